package codegen

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// Received is an event together with the program that emitted it.
type Received[E any] struct {
	Source scale.ActorID
	Event  E
}

// DecodeEvent decodes an event payload into the union E, an Enum struct with
// one pointer field per event named after it.
func DecodeEvent[E any](set *wire.EventSet, payload []byte) (E, error) {
	var out E
	name, body, err := set.Split(payload)
	if err != nil {
		return out, err
	}
	v := reflect.ValueOf(&out).Elem()
	if !scale.IsEnum(v.Type()) {
		return out, fmt.Errorf("event union %v is not an enum", v.Type())
	}
	for _, f := range scale.Fields(v.Type()) {
		fname := f.Name
		if tag := f.Tag.Get("idl"); tag != "" {
			fname = tag
		}
		if fname != name {
			continue
		}
		ptr := reflect.New(f.Type.Elem())
		if err := scale.Unmarshal(body, ptr.Interface()); err != nil {
			return out, fmt.Errorf("event %s: %w", name, err)
		}
		v.Field(f.Index).Set(ptr)
		return out, nil
	}
	return out, wire.ErrEventNameIsNotFound
}

// Listen streams the events of set decoded into E. A zero source accepts
// every program. Payloads of other routes are skipped, the channel closes
// when ctx is done or the transport stream ends.
func Listen[E any](ctx context.Context, r remoting.Remoting, set *wire.EventSet, source scale.ActorID) (<-chan Received[E], error) {
	in, err := r.Listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Received[E])
	go func() {
		defer close(out)
		for ev := range in {
			if !source.IsZero() && ev.Source != source {
				continue
			}
			if !set.Matches(ev.Payload) {
				continue
			}
			e, err := DecodeEvent[E](set, ev.Payload)
			if err != nil {
				continue
			}
			select {
			case out <- Received[E]{Source: ev.Source, Event: e}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
