// Package journal persists registry snapshots as JSON lines so accumulated
// counter totals survive a process restart.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

// Writer appends snapshots to the journal file.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a Writer for the given path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append writes every metric of a snapshot as one JSON line. Later lines for
// the same series supersede earlier ones on read.
func (w *Writer) Append(ctx context.Context, snapshot []models.Metric) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	encoder := json.NewEncoder(buf)
	for _, m := range snapshot {
		if err := encoder.Encode(m); err != nil {
			return err
		}
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return file.Sync()
}

// Reader reads the most recent state of every journaled series.
type Reader struct {
	path string
	mu   sync.Mutex
}

// NewReader creates a Reader for the given path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// List returns the last journaled state per series, sorted by name. A
// missing journal file means no metrics were persisted yet.
func (r *Reader) List(ctx context.Context) ([]models.Metric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	latest := make(map[models.SeriesID]models.Metric)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var m models.Metric
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, err
		}
		key := models.SeriesID{Name: m.Name, Labels: registry.EncodeLabels(m.Labels)}
		latest[key] = m
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	metrics := make([]models.Metric, 0, len(latest))
	for _, m := range latest {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Name != metrics[j].Name {
			return metrics[i].Name < metrics[j].Name
		}
		return registry.EncodeLabels(metrics[i].Labels) < registry.EncodeLabels(metrics[j].Labels)
	})
	return metrics, nil
}
