package exporter

import (
	"time"

	"github.com/streamsense/observability/internal/models"
)

// batch accumulates export records between flushes. It is owned by the
// exporter loop and is not safe for concurrent access.
type batch struct {
	records []models.ExportRecord
	started time.Time
}

// add appends records, stamping the batch start time on the first append.
func (b *batch) add(records []models.ExportRecord) {
	if len(b.records) == 0 {
		b.started = time.Now()
	}
	b.records = append(b.records, records...)
}

func (b *batch) size() int {
	return len(b.records)
}

// age returns how long the oldest record has been waiting.
func (b *batch) age() time.Duration {
	if len(b.records) == 0 {
		return 0
	}
	return time.Since(b.started)
}

// take hands the accumulated records to the caller and resets the batch.
func (b *batch) take() []models.ExportRecord {
	records := b.records
	b.records = nil
	b.started = time.Time{}
	return records
}
