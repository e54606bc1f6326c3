package exporter

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

// Sink ships a batch of export records to an external time-series backend.
type Sink interface {
	Send(ctx context.Context, records []models.ExportRecord) error
}

// Snapshotter provides the metric state the exporter scrapes.
type Snapshotter interface {
	Snapshot() []models.Metric
}

// Config holds the externally supplied exporter settings.
type Config struct {
	SnapshotInterval time.Duration // how often the registry is scraped
	BatchMaxSize     int           // flush when the batch reaches this many records
	BatchMaxAge      time.Duration // flush when the oldest record is this old
	MaxRetries       int           // send attempts per batch before dropping it
	BackoffBase      time.Duration // first retry delay
	BackoffCap       time.Duration // retry delay ceiling
}

// Exporter periodically snapshots the registry and ships batches to the
// sink. Sink failures are retried with exponential backoff; once retries are
// exhausted the batch is dropped and the export_failed counter is
// incremented. Dropping stale data is preferred over unbounded memory growth
// or blocking producers, and no failure ever surfaces to them.
type Exporter struct {
	snapshotter  Snapshotter
	sink         Sink
	cfg          Config
	exportFailed *registry.Handle
	logger       *zap.Logger

	// wait is swapped out in tests to avoid real sleeps.
	wait func(ctx context.Context, d time.Duration) bool
}

// New creates an Exporter. The export_failed counter is registered in the
// same registry the exporter scrapes, so dropped batches become visible on
// the next successful flush. The exporter cannot alert on its own failure to
// export; this counter is the one permitted lossy signal.
func New(reg *registry.Registry, sink Sink, cfg Config, logger *zap.Logger) (*Exporter, error) {
	exportFailed, err := reg.GetOrCreate("export_failed_total", models.Counter)
	if err != nil {
		return nil, err
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Exporter{
		snapshotter:  reg,
		sink:         sink,
		cfg:          cfg,
		exportFailed: exportFailed,
		logger:       logger,
		wait:         sleepCtx,
	}, nil
}

// Start runs the scrape/flush loop until ctx is done. A final flush is
// attempted on shutdown.
func (e *Exporter) Start(ctx context.Context) error {
	scrape := time.NewTicker(e.cfg.SnapshotInterval)
	defer scrape.Stop()
	// The age check runs at a quarter of the limit so an age flush lags the
	// deadline by at most a fraction of BatchMaxAge, not a full extra period.
	ageTick := e.cfg.BatchMaxAge / 4
	if ageTick <= 0 {
		ageTick = e.cfg.BatchMaxAge
	}
	age := time.NewTicker(ageTick)
	defer age.Stop()

	var b batch
	for {
		select {
		case <-ctx.Done():
			if b.size() > 0 {
				// Best effort: shutdown flush gets one attempt, no retries.
				flushCtx, cancel := context.WithTimeout(context.Background(), e.cfg.BackoffBase)
				_ = e.sink.Send(flushCtx, b.take())
				cancel()
			}
			return nil

		case <-scrape.C:
			b.add(Records(e.snapshotter.Snapshot()))
			if b.size() >= e.cfg.BatchMaxSize {
				e.flush(ctx, &b)
			}

		case <-age.C:
			if b.size() > 0 && b.age() >= e.cfg.BatchMaxAge {
				e.flush(ctx, &b)
			}
		}
	}
}

// flush ships the batch, retrying with exponential backoff. On exhausted
// retries the batch is dropped and accounted for; the error never escapes.
func (e *Exporter) flush(ctx context.Context, b *batch) {
	records := b.take()
	if len(records) == 0 {
		return
	}

	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if !e.wait(ctx, e.backoff(attempt-1)) {
				break
			}
		}
		err := e.sink.Send(ctx, records)
		if err == nil {
			return
		}
		e.logger.Warn("export attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
	}

	if err := e.exportFailed.Add(1); err != nil {
		e.logger.Error("export_failed counter not incremented", zap.Error(err))
	}
	e.logger.Error("batch dropped after exhausted retries", zap.Int("records", len(records)))
}

// backoff returns the delay before retry number attempt (zero-based):
// base doubled per attempt, capped, with ±20% jitter.
func (e *Exporter) backoff(attempt int) time.Duration {
	d := float64(e.cfg.BackoffBase) * math.Pow(2, float64(attempt))
	if ceil := float64(e.cfg.BackoffCap); d > ceil {
		d = ceil
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(d * jitter)
}

// Records converts a registry snapshot into the export wire shape.
func Records(snapshot []models.Metric) []models.ExportRecord {
	records := make([]models.ExportRecord, 0, len(snapshot))
	for _, m := range snapshot {
		records = append(records, models.ExportRecord{
			Name:      m.Name,
			Labels:    m.Labels,
			Kind:      m.Kind,
			Value:     m.Value,
			Buckets:   m.Histogram,
			Timestamp: m.RecordedAt,
		})
	}
	return records
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
