package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
)

// ProbeFunc checks a single dependency. A nil return means healthy; an error
// marks the check unhealthy with the error text as detail. Probes must honor
// ctx, which carries the per-probe timeout.
type ProbeFunc func(ctx context.Context) error

type probeEntry struct {
	fn      ProbeFunc
	timeout time.Duration
}

// Service aggregates named, independent health probes into liveness and
// readiness verdicts.
type Service struct {
	mu     sync.RWMutex
	probes map[string]probeEntry
	logger *zap.Logger
}

// NewService creates a Service with no registered probes. With zero probes,
// readiness reports ready.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		probes: make(map[string]probeEntry),
		logger: logger,
	}
}

// Register adds a probe under the given name. Re-registering a name replaces
// the previous probe, so the probe set can be reconfigured without a restart.
func (s *Service) Register(name string, fn ProbeFunc, timeout time.Duration) {
	s.mu.Lock()
	s.probes[name] = probeEntry{fn: fn, timeout: timeout}
	s.mu.Unlock()
}

// Unregister removes a probe. Removing an unknown name is a no-op.
func (s *Service) Unregister(name string) {
	s.mu.Lock()
	delete(s.probes, name)
	s.mu.Unlock()
}

// Liveness reports that the process is responsive. It performs no dependency
// checks and always succeeds.
func (s *Service) Liveness() models.Liveness {
	return models.Liveness{
		Status:    models.StatusAlive,
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered probe concurrently, each under its own
// timeout, and aggregates the results. The verdict is ready only if every
// probe reports healthy: accepting work while a dependency is degraded risks
// cascading failures in the monitored pipeline. Total wall time is bounded by
// the slowest probe, not the sum.
func (s *Service) Readiness(ctx context.Context) models.Readiness {
	s.mu.RLock()
	entries := make(map[string]probeEntry, len(s.probes))
	for name, e := range s.probes {
		entries[name] = e
	}
	s.mu.RUnlock()

	checks := make(map[string]models.HealthCheckResult, len(entries))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, e := range entries {
		wg.Add(1)
		go func(name string, e probeEntry) {
			defer wg.Done()
			result := runProbe(ctx, name, e)
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}(name, e)
	}
	wg.Wait()

	status := models.StatusReady
	for name, c := range checks {
		if !c.Healthy {
			status = models.StatusNotReady
			s.logger.Warn("probe unhealthy",
				zap.String("probe", name),
				zap.Duration("latency", c.Latency),
				zap.String("detail", c.Detail),
			)
		}
	}
	return models.Readiness{Status: status, Checks: checks}
}

// runProbe invokes one probe under its timeout. A probe that exceeds the
// timeout is reported unhealthy with detail "timeout"; the error never
// reaches the readiness caller.
func runProbe(ctx context.Context, name string, e probeEntry) models.HealthCheckResult {
	probeCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- e.fn(probeCtx)
	}()

	result := models.HealthCheckResult{Name: name, Healthy: true}
	select {
	case err := <-done:
		result.Latency = time.Since(start)
		if err != nil {
			result.Healthy = false
			result.Detail = err.Error()
			if probeCtx.Err() != nil {
				result.Detail = "timeout"
			}
		}
	case <-probeCtx.Done():
		// The probe goroutine is abandoned; it holds only its own ctx.
		result.Latency = time.Since(start)
		result.Healthy = false
		result.Detail = "timeout"
	}
	return result
}
