package collectors

import (
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

// InferenceThresholds are the local warning limits for inference metrics.
type InferenceThresholds struct {
	MaxLatencyMS  float64
	MinConfidence float64
}

// InferenceCollector records model inference performance metrics.
type InferenceCollector struct {
	latency    *registry.Handle
	confidence *registry.Handle
	total      *registry.Handle
	thresholds InferenceThresholds
	logger     *zap.Logger
}

// NewInferenceCollector creates the inference metric instruments in the
// given registry.
func NewInferenceCollector(reg *registry.Registry, thresholds InferenceThresholds, logger *zap.Logger) (*InferenceCollector, error) {
	latency, err := reg.GetOrCreate("inference_latency_ms", models.Histogram, "model")
	if err != nil {
		return nil, err
	}
	confidence, err := reg.GetOrCreate("inference_confidence", models.Gauge, "model")
	if err != nil {
		return nil, err
	}
	total, err := reg.GetOrCreate("inference_total", models.Counter, "model", "status")
	if err != nil {
		return nil, err
	}
	return &InferenceCollector{
		latency:    latency,
		confidence: confidence,
		total:      total,
		thresholds: thresholds,
		logger:     logger,
	}, nil
}

// RecordInference records one inference: its latency, confidence and
// completion status ("ok" or "error").
func (c *InferenceCollector) RecordInference(model, status string, latencyMS, confidence float64) {
	if err := c.latency.Observe(latencyMS, model); err != nil {
		c.logger.Warn("inference latency not recorded", zap.String("model", model), zap.Error(err))
		return
	}
	if err := c.confidence.Set(confidence, model); err != nil {
		c.logger.Warn("inference confidence not recorded", zap.String("model", model), zap.Error(err))
		return
	}
	if err := c.total.Add(1, model, status); err != nil {
		c.logger.Warn("inference count not recorded", zap.String("model", model), zap.Error(err))
	}

	if c.thresholds.MaxLatencyMS > 0 && latencyMS > c.thresholds.MaxLatencyMS {
		c.logger.Warn("inference latency above threshold",
			zap.String("model", model),
			zap.Float64("latency_ms", latencyMS),
			zap.Float64("threshold_ms", c.thresholds.MaxLatencyMS),
		)
	}
	if c.thresholds.MinConfidence > 0 && confidence < c.thresholds.MinConfidence {
		c.logger.Warn("inference confidence below threshold",
			zap.String("model", model),
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", c.thresholds.MinConfidence),
		)
	}
}
