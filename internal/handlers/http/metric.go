package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/streamsense/observability/internal/models"
)

// Snapshotter provides a point-in-time copy of all current metric states.
type Snapshotter interface {
	Snapshot() []models.Metric
}

// LatencyRecorder records one processing-stage latency sample.
type LatencyRecorder interface {
	RecordStageLatency(stage, deviceType, signalType string, latencyMS float64)
}

// QualityRecorder records a device quality score and SNR.
type QualityRecorder interface {
	RecordQuality(deviceID string, score, snrDB float64)
}

// GaugeWriter records an arbitrary named gauge.
type GaugeWriter interface {
	SetGauge(name string, labels map[string]string, value float64) error
}

// NewSnapshotHandler returns the current registry contents as JSON. Consumers
// must not assume cross-metric atomicity of the snapshot.
func NewSnapshotHandler(snapshotter Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := snapshotter.Snapshot()
		if snapshot == nil {
			snapshot = []models.Metric{}
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

type latencySample struct {
	Stage      string  `json:"stage"`
	DeviceType string  `json:"device_type"`
	SignalType string  `json:"signal_type"`
	LatencyMS  float64 `json:"latency_ms"`
}

// NewLatencyIngestHandler accepts stage latency samples from out-of-process
// producers. Ingestion is best-effort: a malformed payload is rejected, but
// recording itself never fails the caller.
func NewLatencyIngestHandler(recorder LatencyRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sample latencySample
		if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(sample.Stage) == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		recorder.RecordStageLatency(sample.Stage, sample.DeviceType, sample.SignalType, sample.LatencyMS)
		w.WriteHeader(http.StatusOK)
	}
}

type qualitySample struct {
	DeviceID string  `json:"device_id"`
	Score    float64 `json:"score"`
	SNRdB    float64 `json:"snr_db"`
}

// NewQualityIngestHandler accepts device signal-quality samples.
func NewQualityIngestHandler(recorder QualityRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sample qualitySample
		if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(sample.DeviceID) == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		recorder.RecordQuality(sample.DeviceID, sample.Score, sample.SNRdB)
		w.WriteHeader(http.StatusOK)
	}
}

type gaugeSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// NewGaugeIngestHandler accepts arbitrary named gauges. A schema conflict
// (same name, different kind or label keys) is the producer's setup bug and
// is reported as a 409.
func NewGaugeIngestHandler(writer GaugeWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sample gaugeSample
		if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(sample.Name) == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if err := writer.SetGauge(sample.Name, sample.Labels, sample.Value); err != nil {
			http.Error(w, "Conflict", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
