package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/streamsense/observability/internal/models"
)

// Sink appends export batches to the metric_points table. Rows are
// append-only time-series points, not upserts: every flush is a new scrape.
type Sink struct {
	db *sqlx.DB
}

// NewSink creates a Sink over the given database connection.
func NewSink(db *sqlx.DB) *Sink {
	return &Sink{db: db}
}

// point is the row shape for one export record. Labels and buckets travel as
// JSON text so the same schema works on Postgres and sqlite.
type point struct {
	Name       string    `db:"name"`
	Kind       string    `db:"kind"`
	Labels     string    `db:"labels"`
	Value      float64   `db:"value"`
	Buckets    *string   `db:"buckets"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Send inserts the batch in a single transaction so a failed flush leaves no
// partial batch behind and the exporter can safely retry.
func (s *Sink) Send(ctx context.Context, records []models.ExportRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		row, err := toPoint(r)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO metric_points (name, kind, labels, value, buckets, recorded_at)
			VALUES (:name, :kind, :labels, :value, :buckets, :recorded_at)
		`, row)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func toPoint(r models.ExportRecord) (point, error) {
	labels, err := json.Marshal(r.Labels)
	if err != nil {
		return point{}, err
	}
	p := point{
		Name:       r.Name,
		Kind:       r.Kind,
		Labels:     string(labels),
		Value:      r.Value,
		RecordedAt: r.Timestamp,
	}
	if r.Buckets != nil {
		buckets, err := json.Marshal(r.Buckets)
		if err != nil {
			return point{}, err
		}
		text := string(buckets)
		p.Buckets = &text
	}
	return p, nil
}
