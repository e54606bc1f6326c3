package models

import (
	"encoding/json"
	"time"
)

// Health statuses reported by the liveness and readiness endpoints.
const (
	StatusAlive    = "alive"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// HealthCheckResult is the outcome of a single probe invocation. Results are
// built fresh on every readiness evaluation and never persisted.
type HealthCheckResult struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"-"`
	Detail  string        `json:"detail,omitempty"`
}

// MarshalJSON renders the probe latency as fractional milliseconds, the unit
// the readiness wire contract uses.
func (r HealthCheckResult) MarshalJSON() ([]byte, error) {
	type alias HealthCheckResult
	return json.Marshal(struct {
		alias
		LatencyMS float64 `json:"latency_ms"`
	}{
		alias:     alias(r),
		LatencyMS: float64(r.Latency) / float64(time.Millisecond),
	})
}

// Liveness is the response of the liveness endpoint.
type Liveness struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Readiness is the aggregate response of the readiness endpoint. Status is
// ready only if every check reported healthy.
type Readiness struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}
