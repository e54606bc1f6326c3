package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/streamsense/observability/internal/models"
)

// DefaultBuckets are the histogram bounds used when a histogram is created
// without an explicit layout. Tuned for millisecond latencies.
var DefaultBuckets = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// Registry owns every metric instrument of a process. All access is safe
// under true parallelism; contention is scoped per series so that concurrent
// producers recording distinct series never serialize on a single lock.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*family
}

// family groups every series sharing one metric name. Kind, label schema and
// histogram bounds are fixed when the family is created.
type family struct {
	name      string
	kind      string
	labelKeys []string
	bounds    []float64

	mu     sync.RWMutex
	series map[string]*series
}

// series is a single (name, label combination) time series with its own lock.
type series struct {
	mu          sync.Mutex
	labelValues []string
	value       float64
	hist        *models.HistogramValue
	recordedAt  time.Time
}

// Handle is a cheap reference to one metric family handed out to producers.
type Handle struct {
	fam *family
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		families: make(map[string]*family),
	}
}

// GetOrCreate returns the handle for the named metric, creating it on first
// use. Repeated calls with the same name, kind and label schema return a
// handle to the same underlying instrument. Histograms created through this
// method use DefaultBuckets; use GetOrCreateHistogram to fix custom bounds.
func (r *Registry) GetOrCreate(name, kind string, labelKeys ...string) (*Handle, error) {
	switch kind {
	case models.Counter, models.Gauge, models.Histogram:
	default:
		return nil, ErrUnknownKind
	}

	var bounds []float64
	if kind == models.Histogram {
		bounds = DefaultBuckets
	}
	return r.getOrCreate(name, kind, labelKeys, bounds)
}

// GetOrCreateHistogram returns the handle for a histogram with explicit
// bucket bounds. Bounds must be sorted ascending; they never mutate after
// creation.
func (r *Registry) GetOrCreateHistogram(name string, bounds []float64, labelKeys ...string) (*Handle, error) {
	if len(bounds) == 0 {
		bounds = DefaultBuckets
	}
	if !sort.Float64sAreSorted(bounds) {
		return nil, ErrSchemaMismatch
	}
	return r.getOrCreate(name, models.Histogram, labelKeys, bounds)
}

func (r *Registry) getOrCreate(name, kind string, labelKeys []string, bounds []float64) (*Handle, error) {
	r.mu.RLock()
	fam, ok := r.families[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		fam, ok = r.families[name]
		if !ok {
			fam = &family{
				name:      name,
				kind:      kind,
				labelKeys: append([]string(nil), labelKeys...),
				bounds:    append([]float64(nil), bounds...),
				series:    make(map[string]*series),
			}
			r.families[name] = fam
		}
		r.mu.Unlock()
	}

	if fam.kind != kind {
		return nil, ErrKindMismatch
	}
	if !sameSchema(fam.labelKeys, labelKeys) || !sameBounds(fam.bounds, bounds) {
		return nil, ErrSchemaMismatch
	}
	return &Handle{fam: fam}, nil
}

// Add increments a counter by a non-negative delta. A negative delta is
// rejected with ErrInvalidDelta and leaves the stored value unchanged.
func (h *Handle) Add(delta float64, labelValues ...string) error {
	if h.fam.kind != models.Counter {
		return ErrKindMismatch
	}
	if delta < 0 {
		return ErrInvalidDelta
	}
	s, err := h.fam.seriesFor(labelValues)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.value += delta
	s.recordedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Set overwrites a gauge with the given value. The last physical write wins.
func (h *Handle) Set(value float64, labelValues ...string) error {
	if h.fam.kind != models.Gauge {
		return ErrKindMismatch
	}
	s, err := h.fam.seriesFor(labelValues)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.value = value
	s.recordedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Observe records one histogram observation, incrementing the bucket that
// contains value and the running sum and count.
func (h *Handle) Observe(value float64, labelValues ...string) error {
	if h.fam.kind != models.Histogram {
		return ErrKindMismatch
	}
	s, err := h.fam.seriesFor(labelValues)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.hist == nil {
		s.hist = &models.HistogramValue{
			Bounds: h.fam.bounds,
			Counts: make([]uint64, len(h.fam.bounds)+1),
		}
	}
	s.hist.Counts[bucketFor(h.fam.bounds, value)]++
	s.hist.Sum += value
	s.hist.Count++
	s.recordedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// SetGauge records a gauge by name with an ad hoc label map. The label
// schema is derived from the sorted keys on first use and validated on every
// later call, so ad hoc ingestion cannot silently explode cardinality with
// drifting key sets.
func (r *Registry) SetGauge(name string, labels map[string]string, value float64) error {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, err := r.getOrCreate(name, models.Gauge, keys, nil)
	if err != nil {
		return err
	}
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return h.Set(value, values...)
}

// AddCounter increments a counter by name with an ad hoc label map, with the
// same derived-schema rules as SetGauge.
func (r *Registry) AddCounter(name string, labels map[string]string, delta float64) error {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, err := r.getOrCreate(name, models.Counter, keys, nil)
	if err != nil {
		return err
	}
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return h.Add(delta, values...)
}

// Snapshot returns an immutable point-in-time copy of every current series.
// Producers are blocked only for the time it takes to copy one series state;
// there is no cross-metric atomicity guarantee.
func (r *Registry) Snapshot() []models.Metric {
	r.mu.RLock()
	fams := make([]*family, 0, len(r.families))
	for _, fam := range r.families {
		fams = append(fams, fam)
	}
	r.mu.RUnlock()

	var out []models.Metric
	for _, fam := range fams {
		fam.mu.RLock()
		members := make([]*series, 0, len(fam.series))
		for _, s := range fam.series {
			members = append(members, s)
		}
		fam.mu.RUnlock()

		for _, s := range members {
			s.mu.Lock()
			m := models.Metric{
				Name:       fam.name,
				Kind:       fam.kind,
				Labels:     labelMap(fam.labelKeys, s.labelValues),
				Value:      s.value,
				RecordedAt: s.recordedAt,
			}
			if s.hist != nil {
				m.Histogram = &models.HistogramValue{
					Bounds: s.hist.Bounds,
					Counts: append([]uint64(nil), s.hist.Counts...),
					Sum:    s.hist.Sum,
					Count:  s.hist.Count,
				}
			}
			s.mu.Unlock()
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return EncodeLabels(out[i].Labels) < EncodeLabels(out[j].Labels)
	})
	return out
}

// seriesFor returns the series for the given label values, creating it on
// first record.
func (f *family) seriesFor(labelValues []string) (*series, error) {
	if len(labelValues) != len(f.labelKeys) {
		return nil, ErrLabelArity
	}
	key := strings.Join(labelValues, "\x1f")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	s = &series{labelValues: append([]string(nil), labelValues...)}
	f.series[key] = s
	return s, nil
}

// bucketFor returns the index of the first bucket whose upper bound holds
// value; the final index is the overflow bucket.
func bucketFor(bounds []float64, value float64) int {
	for i, b := range bounds {
		if value <= b {
			return i
		}
	}
	return len(bounds)
}

func labelMap(keys, values []string) map[string]string {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		m[k] = values[i]
	}
	return m
}

// EncodeLabels renders a label map in the canonical "k=v,k=v" form with keys
// sorted, matching models.SeriesID.Labels.
func EncodeLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func sameSchema(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameBounds(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
