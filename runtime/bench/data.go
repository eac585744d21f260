// Package bench keeps the gas figures of the benchmark programs in a JSON
// file shared by concurrent benchmark runs.
package bench

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/kanengo/rigging/internal/files"
)

// Data is the content of the benchmark file.
type Data struct {
	Compute      uint64            `json:"compute"`
	Alloc        map[uint64]uint64 `json:"alloc"`
	Counter      Counter           `json:"counter"`
	CrossProgram uint64            `json:"cross_program"`
	Redirect     uint64            `json:"redirect"`
}

type Counter struct {
	AsyncCall uint64 `json:"async_call"`
	SyncCall  uint64 `json:"sync_call"`
}

func NewData() *Data {
	return &Data{Alloc: map[uint64]uint64{}}
}

// Category names one figure of Data.
type Category struct {
	Kind CategoryKind
	// Size is the allocation size of KindAlloc.
	Size uint64
}

type CategoryKind uint8

const (
	KindCompute CategoryKind = iota
	KindAlloc
	KindCounterSync
	KindCounterAsync
	KindCrossProgram
	KindRedirect
)

func (c Category) String() string {
	switch c.Kind {
	case KindCompute:
		return "compute"
	case KindAlloc:
		return fmt.Sprintf("alloc-%d", c.Size)
	case KindCounterSync:
		return "counter_sync"
	case KindCounterAsync:
		return "counter_async"
	case KindCrossProgram:
		return "cross_program"
	case KindRedirect:
		return "redirect"
	}
	return fmt.Sprintf("category(%d)", c.Kind)
}

func (c Category) less(o Category) bool {
	if c.Kind != o.Kind {
		return c.Kind < o.Kind
	}
	return c.Size < o.Size
}

// Set stores value under c.
func (d *Data) Set(c Category, value uint64) {
	switch c.Kind {
	case KindCompute:
		d.Compute = value
	case KindAlloc:
		if d.Alloc == nil {
			d.Alloc = map[uint64]uint64{}
		}
		d.Alloc[c.Size] = value
	case KindCounterSync:
		d.Counter.SyncCall = value
	case KindCounterAsync:
		d.Counter.AsyncCall = value
	case KindCrossProgram:
		d.CrossProgram = value
	case KindRedirect:
		d.Redirect = value
	}
}

// Entries lists every figure in category order.
func (d *Data) Entries() map[Category]uint64 {
	out := map[Category]uint64{
		{Kind: KindCompute}:      d.Compute,
		{Kind: KindCounterSync}:  d.Counter.SyncCall,
		{Kind: KindCounterAsync}: d.Counter.AsyncCall,
		{Kind: KindCrossProgram}: d.CrossProgram,
		{Kind: KindRedirect}:     d.Redirect,
	}
	for size, v := range d.Alloc {
		out[Category{Kind: KindAlloc, Size: size}] = v
	}
	return out
}

// Categories returns the keys of m in order.
func Categories(m map[Category]uint64) []Category {
	out := make([]Category, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func (d *Data) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bench data: %w", err)
	}
	return append(b, '\n'), nil
}

func Unmarshal(b []byte) (*Data, error) {
	d := NewData()
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("decode bench data: %w", err)
	}
	if d.Alloc == nil {
		d.Alloc = map[uint64]uint64{}
	}
	return d, nil
}

// Read loads the file at path.
func Read(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(b)
}

// Store updates the file at path with fn while holding an exclusive lock on
// path.lock, so that concurrent runs do not lose each other's figures. A
// missing file starts empty.
func Store(path string, fn func(*Data)) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	d, err := Read(path)
	if os.IsNotExist(err) {
		d, err = NewData(), nil
	}
	if err != nil {
		return err
	}

	fn(d)

	b, err := d.Marshal()
	if err != nil {
		return err
	}
	return files.WriteFile(path, b)
}
