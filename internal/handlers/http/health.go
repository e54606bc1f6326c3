package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/streamsense/observability/internal/models"
)

// LivenessChecker reports that the process is responsive.
type LivenessChecker interface {
	Liveness() models.Liveness
}

// ReadinessChecker aggregates dependency probes into a readiness verdict.
type ReadinessChecker interface {
	Readiness(ctx context.Context) models.Readiness
}

// NewLivenessHandler returns the liveness endpoint. It succeeds whenever the
// process can respond at all.
func NewLivenessHandler(checker LivenessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Liveness())
	}
}

// NewReadinessHandler returns the readiness endpoint: 200 with the check map
// when every probe is healthy, 503 otherwise.
func NewReadinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := checker.Readiness(r.Context())
		status := http.StatusOK
		if readiness.Status != models.StatusReady {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readiness)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
