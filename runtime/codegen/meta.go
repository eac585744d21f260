package codegen

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Meta describes a generated service client: its route, the entry table
// shared with the program and the interface id of the IDL it was built from.
type Meta struct {
	Route       string
	InterfaceID uint64
	Entries     []Entry
	Events      []string
	// AsyncBitmap has bit i set when entry i may suspend.
	AsyncBitmap []byte
}

type Entry struct {
	Name  string
	ID    uint16
	Query bool
}

// IsAsync reports whether the entry with id may suspend.
func (m *Meta) IsAsync(id uint16) bool {
	i := int(id / 8)
	return i < len(m.AsyncBitmap) && m.AsyncBitmap[i]&(1<<(id%8)) != 0
}

func (m *Meta) Entry(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// AsyncBitmap packs async flags indexed by entry id.
func AsyncBitmap(async []bool) []byte {
	out := make([]byte, (len(async)+7)/8)
	for i, a := range async {
		if a {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

var globalRegistry registry

type registry struct {
	m     sync.Mutex
	metas map[string]*Meta // by route and interface id
}

// Register records the metadata of a generated client. Generated code calls
// it from init.
func Register(meta Meta) {
	if err := globalRegistry.register(meta); err != nil {
		panic(err)
	}
}

// Find returns the metadata registered for route.
func Find(route string) []*Meta {
	globalRegistry.m.Lock()
	defer globalRegistry.m.Unlock()
	var out []*Meta
	for _, m := range globalRegistry.metas {
		if m.Route == route {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b *Meta) int { return cmp.Compare(a.InterfaceID, b.InterfaceID) })
	return out
}

// Registered returns all metadata ordered by route.
func Registered() []*Meta {
	globalRegistry.m.Lock()
	defer globalRegistry.m.Unlock()
	out := make([]*Meta, 0, len(globalRegistry.metas))
	for _, m := range globalRegistry.metas {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Meta) int {
		if c := strings.Compare(a.Route, b.Route); c != 0 {
			return c
		}
		return cmp.Compare(a.InterfaceID, b.InterfaceID)
	})
	return out
}

func (r *registry) register(meta Meta) error {
	r.m.Lock()
	defer r.m.Unlock()
	key := fmt.Sprintf("%s/%016x", meta.Route, meta.InterfaceID)
	if _, ok := r.metas[key]; ok {
		return fmt.Errorf("service %s with interface %016x already registered", meta.Route, meta.InterfaceID)
	}
	if r.metas == nil {
		r.metas = map[string]*Meta{}
	}
	for i, e := range meta.Entries {
		if int(e.ID) != i {
			return fmt.Errorf("service %s: entry %s has id %d, want %d", meta.Route, e.Name, e.ID, i)
		}
	}
	r.metas[key] = &meta
	return nil
}
