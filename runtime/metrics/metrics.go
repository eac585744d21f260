// Package metrics keeps process wide counters, gauges and histograms of the
// dispatcher, the clients and the dev node.
package metrics

import (
	"encoding/binary"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/exp/maps"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindCounter
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	}
	return "invalid"
}

// NonNegativeBuckets are histogram bounds for values that are never
// negative: latencies, byte counts, gas.
var NonNegativeBuckets = func() []float64 {
	var out []float64
	for exp := 1.0; exp <= 1e10; exp *= 10 {
		out = append(out, exp, 2*exp, 5*exp)
	}
	return out
}()

var registry struct {
	mu      sync.RWMutex
	names   map[string]bool
	metrics []*Metric
}

// Metric is one labelled time series.
type Metric struct {
	kind   Kind
	name   string
	labels map[string]string

	once  sync.Once
	id    uint64
	value atomic.Uint64 // float64 bits: counter and gauge value, histogram sum

	bounds []float64
	counts []atomic.Uint64
}

func newMetric(kind Kind, name string, labels map[string]string, bounds []float64) *Metric {
	m := &Metric{kind: kind, name: name, labels: labels, bounds: bounds}
	if kind == KindHistogram {
		m.counts = make([]atomic.Uint64, len(bounds)+1)
	}
	registry.mu.Lock()
	registry.metrics = append(registry.metrics, m)
	registry.mu.Unlock()
	return m
}

func (m *Metric) Name() string { return m.name }

func (m *Metric) add(delta float64) {
	for {
		cur := m.value.Load()
		next := math.Float64bits(math.Float64frombits(cur) + delta)
		if m.value.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (m *Metric) set(v float64) {
	m.value.Store(math.Float64bits(v))
}

func (m *Metric) put(v float64) {
	// bounds are upper exclusive: a value equal to a bound lands above it
	idx := sort.Search(len(m.bounds), func(i int) bool { return m.bounds[i] > v })
	m.counts[idx].Add(1)
	if v != 0 {
		m.add(v)
	}
}

// ID is a random id assigned on first use, stable for the process lifetime.
func (m *Metric) ID() uint64 {
	m.once.Do(func() {
		m.id = binary.LittleEndian.Uint64([]byte(gonanoid.Must(8)))
	})
	return m.id
}

// Snapshot is a copy of a metric at one point in time.
type Snapshot struct {
	ID     uint64
	Name   string
	Kind   Kind
	Labels map[string]string

	Value  float64
	Bounds []float64
	Counts []uint64
}

// Count is the number of values put in a histogram.
func (s *Snapshot) Count() uint64 {
	var n uint64
	for _, c := range s.Counts {
		n += c
	}
	return n
}

func (m *Metric) snapshot() *Snapshot {
	s := &Snapshot{
		ID:     m.ID(),
		Name:   m.name,
		Kind:   m.kind,
		Labels: maps.Clone(m.labels),
		Value:  math.Float64frombits(m.value.Load()),
		Bounds: slices.Clone(m.bounds),
	}
	if len(m.counts) > 0 {
		s.Counts = make([]uint64, len(m.counts))
		for i := range m.counts {
			s.Counts[i] = m.counts[i].Load()
		}
	}
	return s
}

// Snapshots returns a snapshot of every metric in creation order.
func Snapshots() []*Snapshot {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	out := make([]*Snapshot, len(registry.metrics))
	for i, m := range registry.metrics {
		out[i] = m.snapshot()
	}
	return out
}

// Lookup returns the snapshots of the metrics named name.
func Lookup(name string) []*Snapshot {
	var out []*Snapshot
	for _, s := range Snapshots() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
