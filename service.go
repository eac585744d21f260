package rigging

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// Service is a named set of commands, queries and events over the program
// state S. A service holds no state itself, handlers receive the program's
// state for the duration of one message.
type Service[S any] struct {
	name    string
	docs    []string
	entries []*entry[S]
	events  []*eventInfo
	bases   []*Service[S]
	frozen  bool
}

type entry[S any] struct {
	name   string
	query  bool
	opts   entryOptions
	params reflect.Type
	reply  reflect.Type
	// id is the position among commands then queries, assigned on freeze.
	id uint16
	// overrides is set when the entry replaces an entry of a base service,
	// whose id and name it keeps on the wire.
	overrides *entry[S]
	call      func(c *Context, st *S, body []byte) ([]byte, error)
}

type eventInfo struct {
	name string
	docs []string
	typ  reflect.Type
}

func NewService[S any](name string, docs ...string) *Service[S] {
	return &Service[S]{name: name, docs: docs}
}

func (s *Service[S]) Name() string { return s.name }

// Extends makes the entries and events of bases reachable through s. Entries
// of s take precedence over entries of its bases with the same name.
func (s *Service[S]) Extends(bases ...*Service[S]) *Service[S] {
	s.mustNotBeFrozen()
	for _, b := range bases {
		if b == s || b.reaches(s) {
			panic(fmt.Sprintf("rigging: service %s cannot extend %s: cycle", s.name, b.name))
		}
	}
	s.bases = append(s.bases, bases...)
	return s
}

func (s *Service[S]) reaches(target *Service[S]) bool {
	for _, b := range s.bases {
		if b == target || b.reaches(target) {
			return true
		}
	}
	return false
}

func (s *Service[S]) mustNotBeFrozen() {
	if s.frozen {
		panic(fmt.Sprintf("rigging: service %s changed after being exposed", s.name))
	}
}

func (s *Service[S]) add(e *entry[S]) {
	s.mustNotBeFrozen()
	for _, other := range s.entries {
		if other.name == e.name {
			panic(fmt.Sprintf("rigging: service %s: duplicate function %s", s.name, e.name))
		}
	}
	for _, ev := range s.events {
		if ev.name == e.name {
			panic(fmt.Sprintf("rigging: service %s: function %s collides with an event", s.name, e.name))
		}
	}
	s.entries = append(s.entries, e)
}

// Command registers a state mutating handler. Params P is a struct whose
// fields are the parameters in order.
func Command[S, P, R any](s *Service[S], name string, fn func(c *Context, st *S, params P) (R, error), opts ...Option) {
	e := newEntry[S, P, R](name, false, opts)
	e.call = func(c *Context, st *S, body []byte) ([]byte, error) {
		var p P
		if err := scale.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		r, err := fn(c, st, p)
		return encodeReply(e.opts, r, err)
	}
	s.add(e)
}

// Query registers a read-only handler. It receives a deep copy of the state,
// so changes it makes to maps or slices are discarded with the copy.
func Query[S, P, R any](s *Service[S], name string, fn func(c *Context, st S, params P) (R, error), opts ...Option) {
	e := newEntry[S, P, R](name, true, opts)
	e.call = func(c *Context, st *S, body []byte) ([]byte, error) {
		var p P
		if err := scale.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		r, err := fn(c, *st, p)
		return encodeReply(e.opts, r, err)
	}
	s.add(e)
}

func newEntry[S, P, R any](name string, query bool, opts []Option) *entry[S] {
	e := &entry[S]{
		name:   name,
		query:  query,
		params: reflect.TypeFor[P](),
		reply:  reflect.TypeFor[R](),
	}
	for _, o := range opts {
		o(&e.opts)
	}
	return e
}

// encodeReply encodes the handler result. Functions with a declared error
// reply Result(Ok, Err).
func encodeReply(opts entryOptions, r any, err error) (out []byte, rerr error) {
	defer func() {
		if x := scale.CatchPanics(recover()); x != nil {
			out, rerr = nil, x
		}
	}()
	enc := scale.NewEncoder()
	if err != nil {
		if opts.thrown == nil {
			return nil, err
		}
		v, ok := opts.thrown(err)
		if !ok {
			return nil, err
		}
		enc.Uint8(1)
		enc.Encode(v)
		return enc.Data(), nil
	}
	if opts.thrown != nil {
		enc.Uint8(0)
	}
	enc.Encode(r)
	return enc.Data(), nil
}

// Event is a typed event of a service. P is the payload type, scale.Unit for
// events without payload.
type Event[P any] struct {
	name string
}

func NewEvent[S, P any](s *Service[S], name string, docs ...string) *Event[P] {
	s.mustNotBeFrozen()
	for _, ev := range s.events {
		if ev.name == name {
			panic(fmt.Sprintf("rigging: service %s: duplicate event %s", s.name, name))
		}
	}
	for _, e := range s.entries {
		if e.name == name {
			panic(fmt.Sprintf("rigging: service %s: event %s collides with a function", s.name, name))
		}
	}
	s.events = append(s.events, &eventInfo{name: name, docs: docs, typ: reflect.TypeFor[P]()})
	return &Event[P]{name: name}
}

func (e *Event[P]) Name() string { return e.name }

// Emit broadcasts v under the route of the running message. Emission does
// not suspend; a transport failure is returned to the handler.
func (e *Event[P]) Emit(c *Context, v P) error {
	payload, err := wire.EncodeEvent(c.route, e.name, v)
	if err != nil {
		return fmt.Errorf("event %s: %w", e.name, err)
	}
	return c.emit(e.name, payload)
}

// freeze assigns entry ids and resolves overrides. It runs when the service
// is first exposed.
func (s *Service[S]) freeze() {
	if s.frozen {
		return
	}
	for _, b := range s.bases {
		b.freeze()
	}
	s.frozen = true

	var id uint16
	for _, query := range []bool{false, true} {
		for _, e := range s.entries {
			if e.query != query {
				continue
			}
			if base := s.findBase(e.name); base != nil {
				if base.params != e.params || base.reply != e.reply || base.query != e.query {
					panic(fmt.Sprintf("rigging: service %s: %s does not match the signature of the entry it overrides", s.name, e.name))
				}
				e.overrides = base
				e.id = base.id
				continue
			}
			e.id = id
			id++
		}
	}
}

func (s *Service[S]) findBase(name string) *entry[S] {
	for _, b := range s.bases {
		for _, e := range b.entries {
			if e.name == name {
				return e
			}
		}
		if e := b.findBase(name); e != nil {
			return e
		}
	}
	return nil
}

// table flattens own entries followed by base entries not shadowed by an
// earlier one, in declared order.
func (s *Service[S]) table() []*entry[S] {
	var out []*entry[S]
	seen := map[string]bool{}
	var walk func(svc *Service[S])
	walk = func(svc *Service[S]) {
		for _, e := range svc.ordered() {
			if !seen[e.name] {
				seen[e.name] = true
				out = append(out, e)
			}
		}
		for _, b := range svc.bases {
			walk(b)
		}
	}
	walk(s)
	return out
}

// ordered returns commands then queries.
func (s *Service[S]) ordered() []*entry[S] {
	out := slices.Clone(s.entries)
	slices.SortStableFunc(out, func(a, b *entry[S]) int {
		switch {
		case a.query == b.query:
			return 0
		case !a.query:
			return -1
		}
		return 1
	})
	return out
}

func (s *Service[S]) eventNames() map[string]bool {
	out := map[string]bool{}
	for _, ev := range s.events {
		out[ev.name] = true
	}
	for _, b := range s.bases {
		for n := range b.eventNames() {
			out[n] = true
		}
	}
	return out
}
