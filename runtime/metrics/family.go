package metrics

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Family is a set of metrics sharing a name and a label struct type L.
// Label names are the lower camel field names or the `rigging` tag.
type Family[L comparable] struct {
	kind    Kind
	name    string
	bounds  []float64
	fields  []labelField
	mu      sync.Mutex
	members map[L]*Metric
}

type labelField struct {
	index []int
	name  string
}

func newFamily[L comparable](kind Kind, name string, bounds []float64) *Family[L] {
	fields, err := labelFields[L]()
	if err != nil {
		panic(err)
	}
	if name == "" {
		panic(fmt.Errorf("empty metric name"))
	}
	for i, x := range bounds {
		if math.IsNaN(x) || (i > 0 && x <= bounds[i-1]) {
			panic(fmt.Errorf("metric %q: non-ascending histogram bounds %v", name, bounds))
		}
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.names == nil {
		registry.names = map[string]bool{}
	}
	if registry.names[name] {
		panic(fmt.Errorf("metric %q already exists", name))
	}
	registry.names[name] = true

	return &Family[L]{kind: kind, name: name, bounds: bounds, fields: fields, members: map[L]*Metric{}}
}

func (f *Family[L]) Name() string { return f.name }

func (f *Family[L]) get(labels L) *Metric {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[labels]; ok {
		return m
	}
	m := newMetric(f.kind, f.name, f.extract(labels), f.bounds)
	f.members[labels] = m
	return m
}

func (f *Family[L]) extract(labels L) map[string]string {
	if len(f.fields) == 0 {
		return nil
	}
	v := reflect.ValueOf(labels)
	out := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		out[field.name] = fmt.Sprint(v.FieldByIndex(field.index).Interface())
	}
	return out
}

// labelFields checks that L is a struct of exported string, bool or integer
// fields with distinct label names.
func labelFields[L comparable]() ([]labelField, error) {
	var x L
	t := reflect.TypeOf(x)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("metric labels: type %T is not a struct", x)
	}

	var fields []labelField
	seen := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		fi := t.Field(i)
		if !fi.IsExported() {
			return nil, fmt.Errorf("metric labels: field %q of type %T is unexported", fi.Name, x)
		}
		switch fi.Type.Kind() {
		case reflect.String, reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return nil, fmt.Errorf("metric labels: field %q of type %T has unsupported type %v", fi.Name, x, fi.Type)
		}

		name := lowerFirst(fi.Name)
		if alias, ok := fi.Tag.Lookup("rigging"); ok {
			name = alias
		}
		if seen[name] {
			return nil, fmt.Errorf("metric labels: type %T has duplicate label %q", x, name)
		}
		seen[name] = true
		fields = append(fields, labelField{index: fi.Index, name: name})
	}
	return fields, nil
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

type Counter struct{ m *Metric }

func NewCounter(name string) *Counter {
	return NewCounterMap[struct{}](name).Get(struct{}{})
}

func (c *Counter) Name() string      { return c.m.name }
func (c *Counter) Inc()              { c.m.add(1) }
func (c *Counter) Add(delta float64) { c.m.add(delta) }

type CounterMap[L comparable] struct{ *Family[L] }

func NewCounterMap[L comparable](name string) *CounterMap[L] {
	return &CounterMap[L]{newFamily[L](KindCounter, name, nil)}
}

func (cm *CounterMap[L]) Get(labels L) *Counter { return &Counter{cm.get(labels)} }

type Gauge struct{ m *Metric }

func NewGauge(name string) *Gauge {
	return NewGaugeMap[struct{}](name).Get(struct{}{})
}

func (g *Gauge) Name() string      { return g.m.name }
func (g *Gauge) Set(v float64)     { g.m.set(v) }
func (g *Gauge) Add(delta float64) { g.m.add(delta) }
func (g *Gauge) Sub(delta float64) { g.m.add(-delta) }

type GaugeMap[L comparable] struct{ *Family[L] }

func NewGaugeMap[L comparable](name string) *GaugeMap[L] {
	return &GaugeMap[L]{newFamily[L](KindGauge, name, nil)}
}

func (gm *GaugeMap[L]) Get(labels L) *Gauge { return &Gauge{gm.get(labels)} }

type Histogram struct{ m *Metric }

func NewHistogram(name string, bounds []float64) *Histogram {
	return NewHistogramMap[struct{}](name, bounds).Get(struct{}{})
}

func (h *Histogram) Name() string  { return h.m.name }
func (h *Histogram) Put(v float64) { h.m.put(v) }

type HistogramMap[L comparable] struct{ *Family[L] }

func NewHistogramMap[L comparable](name string, bounds []float64) *HistogramMap[L] {
	return &HistogramMap[L]{newFamily[L](KindHistogram, name, bounds)}
}

func (hm *HistogramMap[L]) Get(labels L) *Histogram { return &Histogram{hm.get(labels)} }
