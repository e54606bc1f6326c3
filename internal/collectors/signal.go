package collectors

import (
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

// SignalThresholds are the local warning limits for signal metrics.
// Exceeding a threshold logs a structured warning; it never rejects the
// sample and never raises an alert on its own, since alerting is rule-driven.
type SignalThresholds struct {
	MaxStageLatencyMS float64
	MinQualityScore   float64
	MinSNRdB          float64
}

// SignalCollector records signal-processing latency and quality metrics.
// Methods never block on I/O and never return errors to the caller; a
// recording failure is logged and the producer call is a no-op.
type SignalCollector struct {
	stageLatency *registry.Handle
	quality      *registry.Handle
	snr          *registry.Handle
	thresholds   SignalThresholds
	logger       *zap.Logger
}

// NewSignalCollector creates the signal metric instruments in the given
// registry. Instrument creation conflicts surface here, at startup.
func NewSignalCollector(reg *registry.Registry, thresholds SignalThresholds, logger *zap.Logger) (*SignalCollector, error) {
	stageLatency, err := reg.GetOrCreate("pipeline_stage_latency_ms", models.Histogram, "stage", "device_type", "signal_type")
	if err != nil {
		return nil, err
	}
	quality, err := reg.GetOrCreate("signal_quality_score", models.Gauge, "device_id")
	if err != nil {
		return nil, err
	}
	snr, err := reg.GetOrCreate("signal_snr_db", models.Gauge, "device_id")
	if err != nil {
		return nil, err
	}
	return &SignalCollector{
		stageLatency: stageLatency,
		quality:      quality,
		snr:          snr,
		thresholds:   thresholds,
		logger:       logger,
	}, nil
}

// RecordStageLatency records one processing-stage latency sample in
// milliseconds. Out-of-range samples are still recorded for post-hoc
// analysis.
func (c *SignalCollector) RecordStageLatency(stage, deviceType, signalType string, latencyMS float64) {
	if err := c.stageLatency.Observe(latencyMS, stage, deviceType, signalType); err != nil {
		c.logger.Warn("stage latency not recorded", zap.String("stage", stage), zap.Error(err))
		return
	}
	if c.thresholds.MaxStageLatencyMS > 0 && latencyMS > c.thresholds.MaxStageLatencyMS {
		c.logger.Warn("stage latency above threshold",
			zap.String("stage", stage),
			zap.String("device_type", deviceType),
			zap.Float64("latency_ms", latencyMS),
			zap.Float64("threshold_ms", c.thresholds.MaxStageLatencyMS),
		)
	}
}

// RecordQuality records the quality score and signal-to-noise ratio reported
// for a device.
func (c *SignalCollector) RecordQuality(deviceID string, score, snrDB float64) {
	if err := c.quality.Set(score, deviceID); err != nil {
		c.logger.Warn("quality score not recorded", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	if err := c.snr.Set(snrDB, deviceID); err != nil {
		c.logger.Warn("snr not recorded", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	if c.thresholds.MinQualityScore > 0 && score < c.thresholds.MinQualityScore {
		c.logger.Warn("signal quality below threshold",
			zap.String("device_id", deviceID),
			zap.Float64("score", score),
			zap.Float64("threshold", c.thresholds.MinQualityScore),
		)
	}
	if c.thresholds.MinSNRdB != 0 && snrDB < c.thresholds.MinSNRdB {
		c.logger.Warn("snr below threshold",
			zap.String("device_id", deviceID),
			zap.Float64("snr_db", snrDB),
			zap.Float64("threshold_db", c.thresholds.MinSNRdB),
		)
	}
}
