package worker

import (
	"context"
	"time"

	"github.com/streamsense/observability/internal/models"
)

// Snapshotter provides the registry state to persist.
type Snapshotter interface {
	Snapshot() []models.Metric
}

// JournalWriter appends snapshots to persistent storage.
type JournalWriter interface {
	Append(ctx context.Context, snapshot []models.Metric) error
}

// JournalReader loads the last persisted state per series.
type JournalReader interface {
	List(ctx context.Context) ([]models.Metric, error)
}

// Restorer re-seeds registry series from persisted state. Only counters and
// gauges are restored; histogram bucket state starts fresh each run.
type Restorer interface {
	AddCounter(name string, labels map[string]string, delta float64) error
	SetGauge(name string, labels map[string]string, value float64) error
}

// JournalWorker periodically persists registry snapshots to the journal and
// optionally restores counters and gauges on start, so accumulated totals
// survive restarts. A nil ticker persists only on shutdown.
type JournalWorker struct {
	restore     bool
	storeTicker *time.Ticker
	snapshotter Snapshotter
	restorer    Restorer
	reader      JournalReader
	writer      JournalWriter
}

// NewJournalWorker creates a JournalWorker with the given configuration.
func NewJournalWorker(
	restore bool,
	storeTicker *time.Ticker,
	snapshotter Snapshotter,
	restorer Restorer,
	reader JournalReader,
	writer JournalWriter,
) *JournalWorker {
	return &JournalWorker{
		restore:     restore,
		storeTicker: storeTicker,
		snapshotter: snapshotter,
		restorer:    restorer,
		reader:      reader,
		writer:      writer,
	}
}

// Start runs the worker until ctx is done, persisting one final snapshot on
// shutdown.
func (jw *JournalWorker) Start(ctx context.Context) error {
	if jw.restore {
		saved, err := jw.reader.List(ctx)
		if err != nil {
			return err
		}
		for _, m := range saved {
			if err := restoreMetric(jw.restorer, m); err != nil {
				return err
			}
		}
	}

	if jw.storeTicker == nil {
		<-ctx.Done()
		return jw.persist(context.Background())
	}

	for {
		select {
		case <-ctx.Done():
			return jw.persist(context.Background())
		case <-jw.storeTicker.C:
			if err := jw.persist(ctx); err != nil {
				return err
			}
		}
	}
}

func (jw *JournalWorker) persist(ctx context.Context) error {
	return jw.writer.Append(ctx, jw.snapshotter.Snapshot())
}

func restoreMetric(restorer Restorer, m models.Metric) error {
	switch m.Kind {
	case models.Counter:
		return restorer.AddCounter(m.Name, m.Labels, m.Value)
	case models.Gauge:
		return restorer.SetGauge(m.Name, m.Labels, m.Value)
	}
	return nil
}
