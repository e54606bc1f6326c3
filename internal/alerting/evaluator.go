package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

var (
	// ErrDebounceTooShort is returned for a rule whose for_duration is below
	// its own evaluation interval; such a rule can never legitimately
	// debounce.
	ErrDebounceTooShort = errors.New("for_duration must be at least evaluation_interval")

	// ErrUnknownComparison is returned for a comparison outside gt/lt/eq.
	ErrUnknownComparison = errors.New("unknown comparison")

	// ErrUnknownSeverity is returned for a severity outside warning/critical.
	ErrUnknownSeverity = errors.New("unknown severity")
)

// Notifier receives alert events on state transitions.
type Notifier interface {
	Notify(ctx context.Context, event models.AlertEvent) error
}

// Snapshotter provides the metric state the rules are evaluated against.
type Snapshotter interface {
	Snapshot() []models.Metric
}

// seriesState tracks one rule applied to one label combination. The labels
// are kept so a series that vanishes from the snapshot can still resolve
// with its identity intact.
type seriesState struct {
	phase          string
	labels         map[string]string
	violationSince time.Time
}

// ruleStates holds the per-series states of one rule under its own lock, so
// evaluation cycles of different rules never contend.
type ruleStates struct {
	mu     sync.Mutex
	series map[string]*seriesState
}

// Evaluator periodically evaluates declarative alert rules against registry
// snapshots, applies the for-duration debounce, and emits events on state
// transitions. Rules run on independent tickers and keep independent state;
// a slow evaluation or notification of one rule never blocks another.
type Evaluator struct {
	rules       []models.AlertRule
	snapshotter Snapshotter
	notifier    Notifier
	logger      *zap.Logger

	mu     sync.Mutex
	states map[string]*ruleStates

	now func() time.Time
}

// NewEvaluator validates the given rules and creates an Evaluator. Rule
// validation fails fast so misconfiguration surfaces at startup, not at the
// first violation.
func NewEvaluator(
	rules []models.AlertRule,
	snapshotter Snapshotter,
	notifier Notifier,
	logger *zap.Logger,
) (*Evaluator, error) {
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return nil, err
		}
	}
	return &Evaluator{
		rules:       rules,
		snapshotter: snapshotter,
		notifier:    notifier,
		logger:      logger,
		states:      make(map[string]*ruleStates),
		now:         time.Now,
	}, nil
}

// ValidateRule checks the structural invariants of a single rule.
func ValidateRule(r models.AlertRule) error {
	switch r.Comparison {
	case models.CompareGT, models.CompareLT, models.CompareEQ:
	default:
		return ErrUnknownComparison
	}
	switch r.Severity {
	case models.SeverityWarning, models.SeverityCritical:
	default:
		return ErrUnknownSeverity
	}
	if r.EvaluationInterval <= 0 || r.ForDuration < r.EvaluationInterval {
		return ErrDebounceTooShort
	}
	return nil
}

// Start runs one evaluation loop per rule until ctx is done. An evaluation
// that overruns its interval causes missed ticks to be dropped rather than
// queued, so sustained slowness cannot build a backlog.
func (e *Evaluator) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, rule := range e.rules {
		wg.Add(1)
		go func(rule models.AlertRule) {
			defer wg.Done()
			ticker := time.NewTicker(rule.EvaluationInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					e.EvaluateRule(ctx, rule)
				}
			}
		}(rule)
	}
	wg.Wait()
	return nil
}

// EvaluateRule runs a single evaluation cycle for one rule against the
// current snapshot. One state is kept per distinct label combination that
// matches the rule's filter. Transitions are collected under the rule's own
// state lock and notifications go out after it is released, so a slow
// webhook cannot stall this rule's state or any other rule's evaluation.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule models.AlertRule) {
	now := e.now()
	snapshot := e.snapshotter.Snapshot()
	rs := e.statesFor(rule.Name)

	rs.mu.Lock()
	var events []models.AlertEvent
	seen := make(map[string]bool)
	for _, m := range snapshot {
		if m.Name != rule.MetricName || !matchesFilter(m.Labels, rule.LabelFilter) {
			continue
		}
		value, ok := metricValue(m)
		if !ok {
			// A series without recorded samples must not synthesize an
			// alert; it is treated the same as an absent metric.
			continue
		}
		key := registry.EncodeLabels(m.Labels)
		seen[key] = true

		state := rs.series[key]
		if state == nil {
			state = &seriesState{phase: models.AlertInactive}
			rs.series[key] = state
		}
		state.labels = m.Labels
		if event := transition(rule, state, value, compare(rule.Comparison, value, rule.Threshold), now); event != nil {
			events = append(events, *event)
		}
	}

	// Series that vanished from the snapshot stop violating.
	for key, state := range rs.series {
		if !seen[key] {
			if event := transition(rule, state, 0, false, now); event != nil {
				events = append(events, *event)
			}
		}
	}
	rs.mu.Unlock()

	for _, event := range events {
		e.send(ctx, event)
	}
}

// statesFor returns the state bucket for one rule, creating it on first use.
func (e *Evaluator) statesFor(name string) *ruleStates {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := e.states[name]
	if rs == nil {
		rs = &ruleStates{series: make(map[string]*seriesState)}
		e.states[name] = rs
	}
	return rs
}

// transition applies one evaluation outcome to a series state on the
// mandatory Inactive -> Pending -> Firing -> Inactive path, returning the
// event to emit if the cycle crossed a notifying edge.
func transition(rule models.AlertRule, state *seriesState, value float64, violating bool, now time.Time) *models.AlertEvent {
	switch {
	case violating && state.phase == models.AlertInactive:
		state.phase = models.AlertPending
		state.violationSince = now

	case violating && state.phase == models.AlertPending:
		if now.Sub(state.violationSince) >= rule.ForDuration {
			state.phase = models.AlertFiring
			return newEvent(rule, models.TransitionFired, state.labels, value, now)
		}

	case violating && state.phase == models.AlertFiring:
		// Already firing; no duplicate event.

	case !violating && state.phase == models.AlertPending:
		state.phase = models.AlertInactive
		state.violationSince = time.Time{}

	case !violating && state.phase == models.AlertFiring:
		state.phase = models.AlertInactive
		state.violationSince = time.Time{}
		return newEvent(rule, models.TransitionResolved, state.labels, value, now)
	}
	return nil
}

func newEvent(rule models.AlertRule, transition string, labels map[string]string, value float64, now time.Time) *models.AlertEvent {
	return &models.AlertEvent{
		RuleName:        rule.Name,
		Severity:        rule.Severity,
		Transition:      transition,
		Labels:          labels,
		Timestamp:       now,
		TriggeringValue: value,
	}
}

func (e *Evaluator) send(ctx context.Context, event models.AlertEvent) {
	if err := e.notifier.Notify(ctx, event); err != nil {
		// Notification failures stay inside the observability core.
		e.logger.Error("alert notification failed",
			zap.String("rule", event.RuleName),
			zap.String("transition", event.Transition),
			zap.Error(err),
		)
	}
}

// metricValue extracts the comparable value of a series. Counters compare
// their accumulated total, gauges their last value, histograms their running
// mean. The second return is false when the series has no recorded samples.
func metricValue(m models.Metric) (float64, bool) {
	if m.Kind == models.Histogram {
		if m.Histogram == nil || m.Histogram.Count == 0 {
			return 0, false
		}
		return m.Histogram.Sum / float64(m.Histogram.Count), true
	}
	if m.RecordedAt.IsZero() {
		return 0, false
	}
	return m.Value, true
}

func compare(comparison string, value, threshold float64) bool {
	switch comparison {
	case models.CompareGT:
		return value > threshold
	case models.CompareLT:
		return value < threshold
	case models.CompareEQ:
		return value == threshold
	}
	return false
}

// matchesFilter reports whether the series labels contain every filter pair.
func matchesFilter(labels, filter map[string]string) bool {
	for k, v := range filter {
		if labels[k] != v {
			return false
		}
	}
	return true
}
