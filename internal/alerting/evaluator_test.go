package alerting

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
)

func latencyRule() models.AlertRule {
	return models.AlertRule{
		Name:               "high_stage_latency",
		Severity:           models.SeverityCritical,
		MetricName:         "pipeline_stage_latency_ms",
		Comparison:         models.CompareGT,
		Threshold:          100,
		ForDuration:        60 * time.Second,
		EvaluationInterval: 30 * time.Second,
	}
}

func gaugeMetric(name string, labels map[string]string, value float64, at time.Time) models.Metric {
	return models.Metric{
		Name:       name,
		Kind:       models.Gauge,
		Labels:     labels,
		Value:      value,
		RecordedAt: at,
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.AlertRule)
		wantErr error
	}{
		{
			name:   "valid rule",
			mutate: func(r *models.AlertRule) {},
		},
		{
			name:   "for_duration equal to the interval is allowed",
			mutate: func(r *models.AlertRule) { r.ForDuration = r.EvaluationInterval },
		},
		{
			name:    "for_duration below the interval",
			mutate:  func(r *models.AlertRule) { r.ForDuration = 10 * time.Second },
			wantErr: ErrDebounceTooShort,
		},
		{
			name:    "zero interval",
			mutate:  func(r *models.AlertRule) { r.EvaluationInterval = 0 },
			wantErr: ErrDebounceTooShort,
		},
		{
			name:    "unknown comparison",
			mutate:  func(r *models.AlertRule) { r.Comparison = "ge" },
			wantErr: ErrUnknownComparison,
		},
		{
			name:    "unknown severity",
			mutate:  func(r *models.AlertRule) { r.Severity = "info" },
			wantErr: ErrUnknownSeverity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := latencyRule()
			tt.mutate(&rule)
			err := ValidateRule(rule)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEvaluator(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	snap := NewMockSnapshotter(ctrl)
	notifier := NewMockNotifier(ctrl)

	t.Run("accepts valid rules", func(t *testing.T) {
		_, err := NewEvaluator([]models.AlertRule{latencyRule()}, snap, notifier, zap.NewNop())
		assert.NoError(t, err)
	})

	t.Run("rejects invalid rules at construction", func(t *testing.T) {
		rule := latencyRule()
		rule.ForDuration = time.Second
		_, err := NewEvaluator([]models.AlertRule{rule}, snap, notifier, zap.NewNop())
		assert.ErrorIs(t, err, ErrDebounceTooShort)
	})
}

// fakeClock drives the evaluator's notion of time so debounce windows can be
// crossed without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEvaluator(t *testing.T, rule models.AlertRule, snap Snapshotter, notifier Notifier) (*Evaluator, *fakeClock) {
	t.Helper()
	e, err := NewEvaluator([]models.AlertRule{rule}, snap, notifier, zap.NewNop())
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e.now = clock.now
	return e, clock
}

func TestEvaluateRule(t *testing.T) {
	rule := latencyRule()
	labels := map[string]string{"stage": "infer"}

	t.Run("violation shorter than for_duration emits nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		// Violating at t=0 and t=30, back below threshold at t=60: the
		// violation lasted under 60s, so the rule never leaves pending.
		values := []float64{150, 150, 50}
		for _, v := range values {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, v, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})

	t.Run("sustained violation fires exactly once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		var fired []models.AlertEvent
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev models.AlertEvent) error {
				fired = append(fired, ev)
				return nil
			}).
			Times(1)

		// Violating at t=0, 30, 60, 90, 120: pending starts at t=0, the
		// 60s debounce is crossed at t=60, later cycles must not re-fire.
		for i := 0; i < 5; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, 150, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}

		require.Len(t, fired, 1)
		ev := fired[0]
		assert.Equal(t, rule.Name, ev.RuleName)
		assert.Equal(t, models.SeverityCritical, ev.Severity)
		assert.Equal(t, models.TransitionFired, ev.Transition)
		assert.Equal(t, labels, ev.Labels)
		assert.Equal(t, 150.0, ev.TriggeringValue)
	})

	t.Run("recovery after firing emits resolved", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		var events []models.AlertEvent
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev models.AlertEvent) error {
				events = append(events, ev)
				return nil
			}).
			Times(2)

		values := []float64{150, 150, 150, 50}
		for _, v := range values {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, v, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}

		require.Len(t, events, 2)
		assert.Equal(t, models.TransitionFired, events[0].Transition)
		assert.Equal(t, models.TransitionResolved, events[1].Transition)
	})

	t.Run("flapping below for_duration stays silent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		// Alternating violation and recovery resets the pending window every
		// other cycle; the debounce is never crossed.
		values := []float64{150, 50, 150, 50, 150, 50}
		for _, v := range values {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, v, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})

	t.Run("absent metric is not a violation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		for i := 0; i < 4; i++ {
			snap.EXPECT().Snapshot().Return(nil)
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})

	t.Run("series without samples is treated as absent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		for i := 0; i < 4; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, 150, time.Time{}),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})

	t.Run("firing series that vanishes resolves", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		var events []models.AlertEvent
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev models.AlertEvent) error {
				events = append(events, ev)
				return nil
			}).
			Times(2)

		for i := 0; i < 3; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, 150, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
		snap.EXPECT().Snapshot().Return(nil)
		e.EvaluateRule(context.Background(), rule)

		require.Len(t, events, 2)
		assert.Equal(t, models.TransitionFired, events[0].Transition)
		assert.Equal(t, models.TransitionResolved, events[1].Transition)
		assert.Equal(t, labels, events[1].Labels)
	})

	t.Run("label combinations are tracked independently", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		var events []models.AlertEvent
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev models.AlertEvent) error {
				events = append(events, ev)
				return nil
			}).
			Times(1)

		// Only the infer stage violates; acquire stays below threshold.
		for i := 0; i < 3; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, map[string]string{"stage": "infer"}, 150, clock.now()),
				gaugeMetric(rule.MetricName, map[string]string{"stage": "acquire"}, 20, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}

		require.Len(t, events, 1)
		assert.Equal(t, map[string]string{"stage": "infer"}, events[0].Labels)
	})

	t.Run("label filter restricts the rule", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		filtered := latencyRule()
		filtered.LabelFilter = map[string]string{"stage": "infer"}

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, filtered, snap, notifier)

		// The acquire stage violates, but the filter excludes it.
		for i := 0; i < 4; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(filtered.MetricName, map[string]string{"stage": "acquire"}, 500, clock.now()),
			})
			e.EvaluateRule(context.Background(), filtered)
			clock.advance(filtered.EvaluationInterval)
		}
	})

	t.Run("histogram rules compare the running mean", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev models.AlertEvent) error {
				assert.Equal(t, 200.0, ev.TriggeringValue)
				return nil
			}).
			Times(1)

		// Sum 600 over 3 observations: mean 200, above the 100 threshold.
		for i := 0; i < 3; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				{
					Name:   rule.MetricName,
					Kind:   models.Histogram,
					Labels: labels,
					Histogram: &models.HistogramValue{
						Bounds: []float64{100},
						Counts: []uint64{0, 3},
						Sum:    600,
						Count:  3,
					},
					RecordedAt: clock.now(),
				},
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})

	t.Run("slow notification for one rule does not stall another", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		ruleA := latencyRule()
		ruleB := latencyRule()
		ruleB.Name = "low_signal_quality"
		ruleB.MetricName = "signal_quality_score"
		ruleB.Comparison = models.CompareLT
		ruleB.Threshold = 0.5

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, err := NewEvaluator([]models.AlertRule{ruleA, ruleB}, snap, notifier, zap.NewNop())
		require.NoError(t, err)
		clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		e.now = clock.now

		entered := make(chan struct{})
		release := make(chan struct{})
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, models.AlertEvent) error {
				close(entered)
				<-release
				return nil
			}).
			Times(1)
		snap.EXPECT().Snapshot().Return([]models.Metric{
			gaugeMetric(ruleA.MetricName, labels, 150, clock.t),
			gaugeMetric(ruleB.MetricName, map[string]string{"device_id": "dev-1"}, 0.9, clock.t),
		}).AnyTimes()

		// Drive rule A to firing; the third cycle blocks inside Notify.
		e.EvaluateRule(context.Background(), ruleA)
		clock.advance(ruleA.EvaluationInterval)
		e.EvaluateRule(context.Background(), ruleA)
		clock.advance(ruleA.EvaluationInterval)

		firedDone := make(chan struct{})
		go func() {
			defer close(firedDone)
			e.EvaluateRule(context.Background(), ruleA)
		}()
		<-entered

		// Rule B must evaluate while rule A's notification is in flight.
		evalDone := make(chan struct{})
		go func() {
			defer close(evalDone)
			e.EvaluateRule(context.Background(), ruleB)
		}()
		select {
		case <-evalDone:
		case <-time.After(time.Second):
			t.Fatal("rule evaluation stalled behind another rule's notification")
		}

		close(release)
		<-firedDone
	})

	t.Run("overrunning evaluation drops missed ticks", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		rule := latencyRule()
		rule.ForDuration = 50 * time.Millisecond
		rule.EvaluationInterval = 50 * time.Millisecond

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, err := NewEvaluator([]models.AlertRule{rule}, snap, notifier, zap.NewNop())
		require.NoError(t, err)

		var calls atomic.Int32
		snap.EXPECT().Snapshot().DoAndReturn(func() []models.Metric {
			if calls.Add(1) == 1 {
				time.Sleep(200 * time.Millisecond)
			}
			return nil
		}).AnyTimes()

		ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
		defer cancel()
		require.NoError(t, e.Start(ctx))

		// A queued backlog behind the 200ms cycle would exceed the tick
		// budget of the 600ms window.
		got := calls.Load()
		assert.GreaterOrEqual(t, got, int32(2))
		assert.LessOrEqual(t, got, int32(13))
	})

	t.Run("notifier failure does not break evaluation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		snap := NewMockSnapshotter(ctrl)
		notifier := NewMockNotifier(ctrl)
		e, clock := newTestEvaluator(t, rule, snap, notifier)

		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			Return(assert.AnError).
			Times(1)

		for i := 0; i < 3; i++ {
			snap.EXPECT().Snapshot().Return([]models.Metric{
				gaugeMetric(rule.MetricName, labels, 150, clock.now()),
			})
			e.EvaluateRule(context.Background(), rule)
			clock.advance(rule.EvaluationInterval)
		}
	})
}

func TestCompare(t *testing.T) {
	assert.True(t, compare(models.CompareGT, 2, 1))
	assert.False(t, compare(models.CompareGT, 1, 1))
	assert.True(t, compare(models.CompareLT, 1, 2))
	assert.False(t, compare(models.CompareLT, 2, 2))
	assert.True(t, compare(models.CompareEQ, 3, 3))
	assert.False(t, compare(models.CompareEQ, 3, 4))
	assert.False(t, compare("ge", 3, 3))
}
