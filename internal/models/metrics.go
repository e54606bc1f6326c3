package models

import "time"

// Metric kinds.
const (
	Counter   = "counter"   // Counter accumulates non-negative deltas.
	Gauge     = "gauge"     // Gauge holds the last written value.
	Histogram = "histogram" // Histogram counts observations into fixed buckets.
)

// SeriesID identifies a single time series: a metric name plus one
// concrete label combination.
type SeriesID struct {
	Name   string `json:"name"`   // Metric name, stable across the process lifetime.
	Labels string `json:"labels"` // Canonical label encoding, "k=v,k=v" in schema order.
}

// HistogramValue holds the state of one histogram series. Bounds are fixed
// at metric creation; Counts has len(Bounds)+1 entries, the last one being
// the overflow bucket.
type HistogramValue struct {
	Bounds []float64 `json:"bounds"`
	Counts []uint64  `json:"counts"`
	Sum    float64   `json:"sum"`
	Count  uint64    `json:"count"`
}

// Metric is a point-in-time copy of one series as returned by a registry
// snapshot.
type Metric struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Labels     map[string]string `json:"labels,omitempty"`
	Value      float64           `json:"value"`               // Counter total or gauge value.
	Histogram  *HistogramValue   `json:"histogram,omitempty"` // Set only for histograms.
	RecordedAt time.Time         `json:"recorded_at"`
}

// ExportRecord is the wire shape shipped to an external time-series sink.
type ExportRecord struct {
	Name      string            `json:"name" db:"name"`
	Labels    map[string]string `json:"labels,omitempty" db:"-"`
	Kind      string            `json:"kind" db:"kind"`
	Value     float64           `json:"value" db:"value"`
	Buckets   *HistogramValue   `json:"buckets,omitempty" db:"-"`
	Timestamp time.Time         `json:"timestamp" db:"recorded_at"`
}
