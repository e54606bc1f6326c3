package exporter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

func testConfig() Config {
	return Config{
		SnapshotInterval: 10 * time.Second,
		BatchMaxSize:     100,
		BatchMaxAge:      30 * time.Second,
		MaxRetries:       3,
		BackoffBase:      time.Second,
		BackoffCap:       30 * time.Second,
	}
}

// newTestExporter builds an exporter whose backoff waits are recorded instead
// of slept.
func newTestExporter(t *testing.T, reg *registry.Registry, sink Sink, cfg Config) (*Exporter, *[]time.Duration) {
	t.Helper()
	e, err := New(reg, sink, cfg, zap.NewNop())
	require.NoError(t, err)

	var waits []time.Duration
	e.wait = func(ctx context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return true
	}
	return e, &waits
}

func seedRegistry(t *testing.T, reg *registry.Registry) {
	t.Helper()
	h, err := reg.GetOrCreate("device_samples_total", models.Counter, "device_id")
	require.NoError(t, err)
	require.NoError(t, h.Add(42, "dev-1"))
}

func TestFlush(t *testing.T) {
	t.Run("successful send on first attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)
		e, waits := newTestExporter(t, reg, sink, testConfig())

		sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		var b batch
		b.add(Records(reg.Snapshot()))
		e.flush(context.Background(), &b)

		assert.Empty(t, *waits)
		assert.Zero(t, b.size())
		assert.Zero(t, failedCount(t, reg))
	})

	t.Run("transient failures are retried with growing backoff", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)
		e, waits := newTestExporter(t, reg, sink, testConfig())

		gomock.InOrder(
			sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")),
			sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")),
			sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil),
		)

		var b batch
		b.add(Records(reg.Snapshot()))
		e.flush(context.Background(), &b)

		// First retry near 1s, second near 2s, each within the 20% jitter.
		require.Len(t, *waits, 2)
		assert.InDelta(t, float64(time.Second), float64((*waits)[0]), 0.2*float64(time.Second))
		assert.InDelta(t, float64(2*time.Second), float64((*waits)[1]), 0.2*float64(2*time.Second))
		assert.Zero(t, failedCount(t, reg))
	})

	t.Run("exhausted retries drop the batch and count the failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)
		e, waits := newTestExporter(t, reg, sink, testConfig())

		sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("unreachable")).Times(3)

		var b batch
		b.add(Records(reg.Snapshot()))
		e.flush(context.Background(), &b)

		assert.Len(t, *waits, 2)
		assert.Zero(t, b.size())
		assert.Equal(t, 1.0, failedCount(t, reg))
	})

	t.Run("canceled context stops retrying", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)
		e, err := New(reg, sink, testConfig(), zap.NewNop())
		require.NoError(t, err)
		e.wait = func(ctx context.Context, d time.Duration) bool { return false }

		sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("unreachable")).Times(1)

		var b batch
		b.add(Records(reg.Snapshot()))
		e.flush(context.Background(), &b)

		assert.Equal(t, 1.0, failedCount(t, reg))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		sink := NewMockSink(ctrl)
		e, _ := newTestExporter(t, reg, sink, testConfig())

		var b batch
		e.flush(context.Background(), &b)
	})
}

func TestBackoff(t *testing.T) {
	reg := registry.New()
	e, err := New(reg, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)

	t.Run("doubles per attempt within jitter", func(t *testing.T) {
		for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
			got := e.backoff(attempt)
			assert.InDelta(t, float64(want), float64(got), 0.2*float64(want))
		}
	})

	t.Run("capped at the ceiling plus jitter", func(t *testing.T) {
		got := e.backoff(20)
		assert.LessOrEqual(t, got, time.Duration(1.2*float64(30*time.Second)))
		assert.GreaterOrEqual(t, got, time.Duration(0.8*float64(30*time.Second)))
	})
}

func TestStart(t *testing.T) {
	t.Run("flushes when the batch fills", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)

		cfg := testConfig()
		cfg.SnapshotInterval = 10 * time.Millisecond
		cfg.BatchMaxSize = 1
		e, _ := newTestExporter(t, reg, sink, cfg)

		sent := make(chan []models.ExportRecord, 1)
		sink.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, records []models.ExportRecord) error {
				select {
				case sent <- records:
				default:
				}
				return nil
			}).
			MinTimes(1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = e.Start(ctx)
		}()

		select {
		case records := <-sent:
			require.NotEmpty(t, records)
			assert.Equal(t, "device_samples_total", records[0].Name)
			assert.Equal(t, 42.0, records[0].Value)
		case <-time.After(2 * time.Second):
			t.Fatal("no batch was flushed")
		}
		cancel()
		<-done
	})

	t.Run("age flush ships a small batch near the deadline", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)

		cfg := testConfig()
		cfg.SnapshotInterval = 10 * time.Millisecond
		cfg.BatchMaxAge = 300 * time.Millisecond
		cfg.BatchMaxSize = 1 << 20
		e, _ := newTestExporter(t, reg, sink, cfg)

		sent := make(chan struct{}, 1)
		sink.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, []models.ExportRecord) error {
				select {
				case sent <- struct{}{}:
				default:
				}
				return nil
			}).
			MinTimes(1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		start := time.Now()
		go func() {
			defer close(done)
			_ = e.Start(ctx)
		}()

		select {
		case <-sent:
			// The flush must land shortly after the 300ms age limit, not a
			// whole extra age period later.
			elapsed := time.Since(start)
			assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
			assert.Less(t, elapsed, 500*time.Millisecond)
		case <-time.After(2 * time.Second):
			t.Fatal("age-based flush never happened")
		}
		cancel()
		<-done
	})

	t.Run("slow flush drops missed scrape ticks", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		reg := registry.New()
		seedRegistry(t, reg)
		sink := NewMockSink(ctrl)

		cfg := testConfig()
		cfg.SnapshotInterval = 30 * time.Millisecond
		cfg.BatchMaxSize = 1
		cfg.MaxRetries = 1
		e, _ := newTestExporter(t, reg, sink, cfg)

		var calls atomic.Int32
		sink.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, []models.ExportRecord) error {
				if calls.Add(1) == 1 {
					time.Sleep(150 * time.Millisecond)
				}
				return nil
			}).
			AnyTimes()

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		require.NoError(t, e.Start(ctx))

		// Scrape ticks missed during the 150ms flush must be dropped, not
		// replayed as a burst of catch-up flushes.
		got := calls.Load()
		assert.GreaterOrEqual(t, got, int32(2))
		assert.LessOrEqual(t, got, int32(18))
	})
}

func TestBatch(t *testing.T) {
	t.Run("take resets the batch", func(t *testing.T) {
		var b batch
		b.add([]models.ExportRecord{{Name: "a"}, {Name: "b"}})
		require.Equal(t, 2, b.size())

		records := b.take()
		assert.Len(t, records, 2)
		assert.Zero(t, b.size())
		assert.Zero(t, b.age())
	})

	t.Run("age is measured from the first append", func(t *testing.T) {
		var b batch
		assert.Zero(t, b.age())
		b.add([]models.ExportRecord{{Name: "a"}})
		time.Sleep(20 * time.Millisecond)
		assert.GreaterOrEqual(t, b.age(), 20*time.Millisecond)
	})
}

func TestRecords(t *testing.T) {
	reg := registry.New()
	h, err := reg.GetOrCreateHistogram("stage_latency_ms", []float64{10, 100}, "stage")
	require.NoError(t, err)
	require.NoError(t, h.Observe(5, "infer"))
	require.NoError(t, h.Observe(50, "infer"))

	records := Records(reg.Snapshot())
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "stage_latency_ms", r.Name)
	assert.Equal(t, models.Histogram, r.Kind)
	assert.Equal(t, map[string]string{"stage": "infer"}, r.Labels)
	require.NotNil(t, r.Buckets)
	assert.Equal(t, uint64(2), r.Buckets.Count)
	assert.Equal(t, 55.0, r.Buckets.Sum)
	assert.False(t, r.Timestamp.IsZero())
}

func failedCount(t *testing.T, reg *registry.Registry) float64 {
	t.Helper()
	for _, m := range reg.Snapshot() {
		if m.Name == "export_failed_total" {
			return m.Value
		}
	}
	return 0
}
