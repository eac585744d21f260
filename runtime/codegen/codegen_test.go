package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// echo replies with the request prefix followed by a fixed body.
type echo struct {
	body   []byte
	sent   [][]byte
	events []remoting.Event
}

func (e *echo) reply(payload []byte, prefix []byte) []byte {
	return append(append([]byte{}, prefix...), e.body...)
}

func (e *echo) Activate(_ context.Context, _ scale.CodeID, _ []byte, payload []byte, _ remoting.Args) (*remoting.Future[remoting.Activation], error) {
	e.sent = append(e.sent, payload)
	return remoting.Ready(scale.MessageID{1}, remoting.Activation{ProgramID: scale.ActorID{9}}, nil), nil
}

func (e *echo) Message(_ context.Context, _ scale.ActorID, payload []byte, _ remoting.Args) (*remoting.Future[[]byte], error) {
	e.sent = append(e.sent, payload)
	return remoting.Ready(scale.MessageID{2}, e.reply(payload, wire.Prefix("Counter", "Add")), nil), nil
}

func (e *echo) Query(_ context.Context, _ scale.ActorID, payload []byte, _ remoting.Args) ([]byte, error) {
	return e.reply(payload, wire.Prefix("Counter", "Value")), nil
}

func (e *echo) Listen(ctx context.Context) (<-chan remoting.Event, error) {
	ch := make(chan remoting.Event, len(e.events))
	for _, ev := range e.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type addParams struct{ Value uint32 }

func TestCallAndQuery(t *testing.T) {
	ctx := context.Background()
	r := &echo{body: []byte{52, 0, 0, 0}}
	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	s := NewStub(r, scale.ActorID{1}, "test").WithTracer(tp.Tracer("test"))

	add := wire.NewIO[addParams, uint32]("Counter", "Add", 0)
	got, err := Call(ctx, s, add, addParams{Value: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got != 52 {
		t.Errorf("Add = %d, want 52", got)
	}
	want := append(wire.Prefix("Counter", "Add"), 10, 0, 0, 0)
	if diff := cmp.Diff(want, r.sent[0]); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}

	value := wire.NewIO[scale.Unit, uint32]("Counter", "Value", 1)
	if got, err := Query(ctx, s, value, scale.Unit{}); err != nil || got != 52 {
		t.Errorf("Value = %d, %v", got, err)
	}

	// the reply prefix of Add does not match Value
	wrong := wire.NewIO[scale.Unit, uint32]("Counter", "Sub", 2)
	if _, err := Call(ctx, s, wrong, scale.Unit{}); !errors.Is(err, wire.ErrReplyPrefixMismatches) {
		t.Errorf("got %v, want ReplyPrefixMismatches", err)
	}

	var names []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
	}
	if diff := cmp.Diff([]string{"Counter.Add", "Counter.Value", "Counter.Sub"}, names); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestActivate(t *testing.T) {
	r := &echo{}
	io := wire.NewCtorIO[addParams]("New", 0)
	f, err := Activate(context.Background(), r, scale.CodeID{}, nil, io, addParams{Value: 1}, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := f.Wait(context.Background())
	if err != nil || id != (scale.ActorID{9}) {
		t.Errorf("Activate = %v, %v", id, err)
	}
	if diff := cmp.Diff([]byte{0x0c, 'N', 'e', 'w', 1, 0, 0, 0}, r.sent[0]); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

type counterEvents struct {
	scale.Enum
	Added *uint32
	Reset *struct{}
}

func TestListen(t *testing.T) {
	added, _ := wire.EncodeEvent("Counter", "Added", uint32(10))
	reset, _ := wire.EncodeEvent("Counter", "Reset", nil)
	other, _ := wire.EncodeEvent("Other", "Added", uint32(1))
	r := &echo{events: []remoting.Event{
		{Source: scale.ActorID{1}, Payload: added},
		{Source: scale.ActorID{1}, Payload: other},
		{Source: scale.ActorID{2}, Payload: reset},
		{Source: scale.ActorID{1}, Payload: reset},
	}}
	set := wire.NewEventSet("Counter", "Added", "Reset")
	ch, err := Listen[counterEvents](context.Background(), r, set, scale.ActorID{1})
	if err != nil {
		t.Fatal(err)
	}
	var got []Received[counterEvents]
	for ev := range ch {
		got = append(got, ev)
	}
	ten := uint32(10)
	want := []Received[counterEvents]{
		{Source: scale.ActorID{1}, Event: counterEvents{Added: &ten}},
		{Source: scale.ActorID{1}, Event: counterEvents{Reset: &struct{}{}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestMetaRegistry(t *testing.T) {
	Register(Meta{
		Route:       "Registry",
		InterfaceID: 7,
		Entries:     []Entry{{Name: "A", ID: 0}, {Name: "B", ID: 1, Query: true}},
		AsyncBitmap: AsyncBitmap([]bool{false, true}),
	})
	metas := Find("Registry")
	if len(metas) != 1 {
		t.Fatalf("Find = %d metas, want 1", len(metas))
	}
	m := metas[0]
	if m.IsAsync(0) || !m.IsAsync(1) || m.IsAsync(9) {
		t.Errorf("async bitmap %08b", m.AsyncBitmap)
	}
	if e, ok := m.Entry("B"); !ok || !e.Query {
		t.Errorf("Entry(B) = %+v, %v", e, ok)
	}
	if err := globalRegistry.register(Meta{Route: "Registry", InterfaceID: 7}); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := globalRegistry.register(Meta{Route: "Bad", Entries: []Entry{{Name: "A", ID: 3}}}); err == nil {
		t.Error("sparse entry ids accepted")
	}
}
