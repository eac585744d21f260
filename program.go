// Package rigging turns typed services into message handlers of a program.
//
// A program owns one state cell, initialized by a constructor on activation
// and exposes services under routes. Each inbound message is matched by the
// longest route prefix and then by the longest method name prefix, its
// parameters are decoded and the handler's result is replied under the same
// prefix.
package rigging

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/kanengo/rigging/pkg/idl"
	"github.com/kanengo/rigging/runtime/codegen"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/idlgen"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

const instrumentationLibrary = "github.com/kanengo/rigging"

// Program is a program definition over state S. It implements host.Code.
type Program[S any] struct {
	name string
	opts programOptions

	mu       sync.Mutex
	ctors    []*ctor[S]
	bindings []*binding[S]
}

type ctor[S any] struct {
	name   string
	opts   entryOptions
	params reflect.Type
	prefix []byte
	call   func(c *Context, body []byte) (S, error)
}

type binding[S any] struct {
	route   string
	svc     *Service[S]
	prefix  []byte
	entries []*boundEntry[S]
	names   [][]byte
	events  map[string]bool
}

type boundEntry[S any] struct {
	*entry[S]
	metrics *codegen.MethodMetrics
}

func NewProgram[S any](name string, opts ...ProgramOption) *Program[S] {
	p := &Program[S]{name: name}
	for _, o := range opts {
		o(&p.opts)
	}
	if p.opts.logger == nil {
		p.opts.logger = slog.New(logging.NewLogHandler(nil, logging.Options{App: name, Component: "dispatcher"}, slog.LevelInfo))
	}
	if p.opts.tracer == nil {
		p.opts.tracer = otel.Tracer(instrumentationLibrary)
	}
	return p
}

// Ctor registers a constructor. The activation message selects one
// constructor by name and its result initializes the state cell.
func Ctor[S, P any](p *Program[S], name string, fn func(c *Context, params P) (S, error), opts ...Option) {
	c := &ctor[S]{name: name, params: reflect.TypeFor[P](), prefix: wire.CtorPrefix(name)}
	for _, o := range opts {
		o(&c.opts)
	}
	c.call = func(ctx *Context, body []byte) (S, error) {
		var params P
		if err := scale.Unmarshal(body, &params); err != nil {
			var zero S
			return zero, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return fn(ctx, params)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, other := range p.ctors {
		if other.name == name {
			panic(fmt.Sprintf("rigging: program %s: duplicate constructor %s", p.name, name))
		}
	}
	p.ctors = append(p.ctors, c)
}

// Expose binds svc under route. A service cannot change once exposed.
func (p *Program[S]) Expose(route string, svc *Service[S]) *Program[S] {
	svc.freeze()
	b := &binding[S]{
		route:  route,
		svc:    svc,
		prefix: wire.EncodeName(route),
		events: svc.eventNames(),
	}
	for _, e := range svc.table() {
		b.entries = append(b.entries, &boundEntry[S]{
			entry: e,
			metrics: codegen.MethodMetricsFor(codegen.MethodLabels{
				Program: p.name,
				Route:   route,
				Method:  e.name,
			}),
		})
		b.names = append(b.names, wire.EncodeName(e.name))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, other := range p.bindings {
		if other.route == route {
			panic(fmt.Sprintf("rigging: program %s: route %s exposed twice", p.name, route))
		}
	}
	p.bindings = append(p.bindings, b)
	return p
}

// Name implements host.Code.
func (p *Program[S]) Name() string { return p.name }

// Routes returns the exposed routes in exposure order.
func (p *Program[S]) Routes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.bindings))
	for _, b := range p.bindings {
		out = append(out, b.route)
	}
	return out
}

// Instantiate implements host.Code.
func (p *Program[S]) Instantiate() host.Actor {
	return &instance[S]{prog: p}
}

// Describe returns the input of the IDL generator for p.
func (p *Program[S]) Describe() *idlgen.Program {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := &idlgen.Program{Name: p.name, Docs: p.opts.docs}
	for _, c := range p.ctors {
		out.Ctors = append(out.Ctors, idlgen.Func{Name: c.name, Docs: c.opts.docs, Params: c.params})
	}
	described := map[*Service[S]]*idlgen.Service{}
	for _, b := range p.bindings {
		out.Services = append(out.Services, describe(b.svc, b.route, described))
	}
	return out
}

func describe[S any](s *Service[S], name string, described map[*Service[S]]*idlgen.Service) *idlgen.Service {
	if d, ok := described[s]; ok && d.Name == name {
		return d
	}
	d := &idlgen.Service{Name: name, Docs: s.docs}
	for _, b := range s.bases {
		d.Extends = append(d.Extends, describe(b, b.name, described))
	}
	for _, e := range s.entries {
		if e.overrides != nil {
			continue
		}
		d.Funcs = append(d.Funcs, idlgen.Func{
			Name:   e.name,
			Docs:   e.opts.docs,
			Params: e.params,
			Reply:  e.reply,
			Throws: e.opts.throws,
			Query:  e.query,
		})
	}
	for _, ev := range s.events {
		d.Events = append(d.Events, idlgen.Event{Name: ev.name, Docs: ev.docs, Type: ev.typ})
	}
	described[s] = d
	return d
}

// Metas returns the entry tables of the exposed services, with the async
// flag of each entry packed into the bitmap.
func (p *Program[S]) Metas() ([]codegen.Meta, error) {
	doc, err := idlgen.Generate(p.Describe())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]codegen.Meta, 0, len(p.bindings))
	for _, b := range p.bindings {
		svc := doc.Service(b.route)
		if svc == nil {
			return nil, fmt.Errorf("rigging: program %s: route %s missing from the interface description", p.name, b.route)
		}
		id, err := idl.InterfaceID(doc, svc)
		if err != nil {
			return nil, err
		}
		async := make([]bool, len(svc.Funcs))
		meta := codegen.Meta{Route: b.route, InterfaceID: id, Entries: make([]codegen.Entry, len(svc.Funcs))}
		for _, f := range svc.Funcs {
			if int(f.EntryID) >= len(svc.Funcs) {
				return nil, fmt.Errorf("rigging: program %s: %s.%s has entry id %d", p.name, b.route, f.Name, f.EntryID)
			}
			meta.Entries[f.EntryID] = codegen.Entry{Name: f.Name, ID: f.EntryID, Query: f.Query}
			for _, e := range b.entries {
				if e.name == f.Name {
					async[f.EntryID] = e.opts.async
				}
			}
		}
		for _, ev := range svc.Events {
			meta.Events = append(meta.Events, ev.Name)
		}
		meta.AsyncBitmap = codegen.AsyncBitmap(async)
		out = append(out, meta)
	}
	return out, nil
}

// IDL renders the interface description of p.
func (p *Program[S]) IDL() (string, error) {
	return idlgen.Text(p.Describe())
}
