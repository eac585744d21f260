package rigging_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kanengo/rigging"
	"github.com/kanengo/rigging/runtime/codegen"
	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// PingPong

type pingParams struct {
	Input string
}

func pingPongProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("PingPong")
	rigging.Command(svc, "Ping", func(c *rigging.Context, _ *struct{}, p pingParams) (string, error) {
		if p.Input != "ping" {
			return "", rigging.Throw(fmt.Sprintf("unexpected %q", p.Input))
		}
		return "pong", nil
	}, rigging.Throws[string]())
	rigging.Command(svc, "Boom", func(c *rigging.Context, _ *struct{}, _ scale.Unit) (scale.Unit, error) {
		panic("boom")
	})
	rigging.Command(svc, "Fail", func(c *rigging.Context, _ *struct{}, _ scale.Unit) (scale.Unit, error) {
		return scale.Unit{}, errors.New("plain failure")
	})
	return rigging.NewProgram[struct{}]("pingpong").Expose("PingPong", svc)
}

// Counter

type counter struct {
	Value uint32
	Owner scale.ActorID
}

type newParams struct {
	Start uint32
}

type valueParams struct {
	Value uint32
}

type counterEvents struct {
	scale.Enum
	Added      *uint32
	Subtracted *uint32
}

var (
	counterNew   = wire.NewCtorIO[newParams]("New", 0)
	counterAdd   = wire.NewIO[valueParams, uint32]("Counter", "Add", 0)
	counterSub   = wire.NewIO[valueParams, uint32]("Counter", "Sub", 1)
	counterValue = wire.NewIO[scale.Unit, uint32]("Counter", "Value", 2)
	counterOwner = wire.NewIO[scale.Unit, scale.ActorID]("Counter", "Owner", 0)
	counterSet   = wire.NewEventSet("Counter", "Added", "Subtracted")
)

func ownableService() *rigging.Service[counter] {
	svc := rigging.NewService[counter]("Ownable")
	rigging.Query(svc, "Owner", func(c *rigging.Context, st counter, _ scale.Unit) (scale.ActorID, error) {
		return st.Owner, nil
	})
	return svc
}

func counterProgram(opts ...rigging.ProgramOption) *rigging.Program[counter] {
	svc := rigging.NewService[counter]("Counter", "Counts things").Extends(ownableService())
	added := rigging.NewEvent[counter, uint32](svc, "Added")
	subtracted := rigging.NewEvent[counter, uint32](svc, "Subtracted")
	rigging.Command(svc, "Add", func(c *rigging.Context, st *counter, p valueParams) (uint32, error) {
		st.Value += p.Value
		return st.Value, added.Emit(c, p.Value)
	})
	rigging.Command(svc, "Sub", func(c *rigging.Context, st *counter, p valueParams) (uint32, error) {
		st.Value -= p.Value
		return st.Value, subtracted.Emit(c, p.Value)
	})
	rigging.Command(svc, "Donate", func(c *rigging.Context, st *counter, _ scale.Unit) (scale.U128, error) {
		return c.Attached(), nil
	}, rigging.Payable())
	rigging.Query(svc, "Value", func(c *rigging.Context, st counter, _ scale.Unit) (uint32, error) {
		return st.Value, nil
	})

	p := rigging.NewProgram[counter]("counter", opts...)
	rigging.Ctor(p, "New", func(c *rigging.Context, p newParams) (counter, error) {
		return counter{Value: p.Start, Owner: c.Source()}, nil
	})
	return p.Expose("Counter", svc)
}

func deploy[P any](t *testing.T, env *gtest.Env, codeID scale.CodeID, io *wire.IO[P, scale.Unit], params P, salt string) scale.ActorID {
	t.Helper()
	ctx := context.Background()
	f, err := codegen.Activate(ctx, env, codeID, []byte(salt), io, params, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func send(t *testing.T, env *gtest.Env, target scale.ActorID, payload []byte) ([]byte, error) {
	t.Helper()
	f, err := env.Message(context.Background(), target, payload, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	return f.Wait(context.Background())
}

func encode(t *testing.T, vs ...any) []byte {
	t.Helper()
	var out []byte
	for _, v := range vs {
		b, err := scale.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b...)
	}
	return out
}

func startPingPong(t *testing.T) (*gtest.System, *gtest.Env, scale.ActorID) {
	sys := gtest.NewSystem()
	env := sys.Env()
	prog := pingPongProgram()
	sys.UploadCode(prog)
	f, err := env.Activate(context.Background(), gtest.CodeIDOf(prog.Name()), []byte("pp"), nil, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(act.Reply) != 0 {
		t.Fatalf("activation reply = %x, want empty", act.Reply)
	}
	return sys, env, act.ProgramID
}

func TestPingPong(t *testing.T) {
	_, env, id := startPingPong(t)
	got, err := send(t, env, id, encode(t, "PingPong", "Ping", "ping"))
	if err != nil {
		t.Fatal(err)
	}
	want := encode(t, "PingPong", "Ping", scale.Ok[string, string]("pong"))
	if !bytes.Equal(got, want) {
		t.Fatalf("reply = %x, want %x", got, want)
	}

	got, err = send(t, env, id, encode(t, "PingPong", "Ping", "pang"))
	if err != nil {
		t.Fatal(err)
	}
	want = encode(t, "PingPong", "Ping", scale.Err[string, string](`unexpected "pang"`))
	if !bytes.Equal(got, want) {
		t.Fatalf("thrown reply = %x, want %x", got, want)
	}
}

func TestDispatchFailures(t *testing.T) {
	_, env, id := startPingPong(t)
	for _, test := range []struct {
		name    string
		payload []byte
		want    string
	}{
		{"wrong route", encode(t, "Other", "Ping", "ping"), "service not found"},
		{"malformed", append(encode(t, "PingPong", "Ping"), 0xff, 0xff), "malformed payload"},
		{"unknown method", encode(t, "PingPong", "Pang"), "method not found"},
		{"empty", nil, "service not found"},
		{"panic", encode(t, "PingPong", "Boom"), "panicked with 'boom'"},
		{"error", encode(t, "PingPong", "Fail"), "plain failure"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := send(t, env, id, test.payload)
			reply, ok := remoting.AsErrorReply(err)
			if !ok {
				t.Fatalf("err = %v, want an error reply", err)
			}
			if reply.Code.IsSuccess() || reply.Code != remoting.ExecutionErrorCode(remoting.UserspacePanic) {
				t.Errorf("code = %s", reply.Code)
			}
			if msg, ok := wire.ErrorString(err); !ok || msg != test.want {
				t.Errorf("error string = %q, want %q", msg, test.want)
			}
		})
	}
}

func TestCounter(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	prog := counterProgram()
	id := deploy(t, env, sys.UploadCode(prog), counterNew, newParams{Start: 42}, "c")

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := codegen.Listen[counterEvents](listenCtx, env, counterSet, id)
	if err != nil {
		t.Fatal(err)
	}

	stub := codegen.NewStub(env, id, "test")
	if got, err := codegen.Call(ctx, stub, counterAdd, valueParams{10}); err != nil || got != 52 {
		t.Fatalf("Add = %d, %v", got, err)
	}
	if got, err := codegen.Call(ctx, stub, counterSub, valueParams{1}); err != nil || got != 51 {
		t.Fatalf("Sub = %d, %v", got, err)
	}
	if got, err := codegen.Query(ctx, stub, counterValue, scale.Unit{}); err != nil || got != 51 {
		t.Fatalf("Value = %d, %v", got, err)
	}
	if got, err := codegen.Query(ctx, stub, counterOwner, scale.Unit{}); err != nil || got != gtest.DefaultUser {
		t.Fatalf("Owner = %s, %v", got, err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			switch {
			case ev.Event.Added != nil:
				got = append(got, fmt.Sprintf("Added(%d)", *ev.Event.Added))
			case ev.Event.Subtracted != nil:
				got = append(got, fmt.Sprintf("Subtracted(%d)", *ev.Event.Subtracted))
			}
		case <-time.After(time.Second):
			t.Fatalf("events = %v", got)
		}
	}
	if diff := cmp.Diff([]string{"Added(10)", "Subtracted(1)"}, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	for _, ev := range sys.Events() {
		if !bytes.HasPrefix(ev.Payload, encode(t, "Counter")) {
			t.Errorf("event %x is not prefixed by its route", ev.Payload)
		}
	}
}

func TestCommandAsQuery(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	prog := counterProgram()
	id := deploy(t, env, sys.UploadCode(prog), counterNew, newParams{Start: 1}, "q")

	stub := codegen.NewStub(env, id, "test")
	got, err := codegen.Query(ctx, stub, counterAdd, valueParams{5})
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Fatalf("Add as query = %d, want 6", got)
	}
	if v, _ := codegen.Query(ctx, stub, counterValue, scale.Unit{}); v != 1 {
		t.Fatalf("state changed by a query: %d", v)
	}
}

func TestPayable(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	prog := counterProgram()
	id := deploy(t, env, sys.UploadCode(prog), counterNew, newParams{}, "p")

	donate := wire.NewIO[scale.Unit, scale.U128]("Counter", "Donate", 2)
	stub := codegen.NewStub(env, id, "test").WithArgs(remoting.Args{Value: scale.NewU128(7)})
	if got, err := codegen.Call(ctx, stub, donate, scale.Unit{}); err != nil || got != scale.NewU128(7) {
		t.Fatalf("Donate = %s, %v", got, err)
	}
	if _, err := codegen.Call(ctx, stub, counterAdd, valueParams{1}); err == nil {
		t.Fatal("non-payable Add accepted value")
	}
	if got := sys.Balance(id).Uint64(); got != 7 {
		t.Fatalf("balance = %d, want 7 after the refund", got)
	}
}

func TestCtorFailures(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	prog := counterProgram()
	codeID := sys.UploadCode(prog)

	f, err := env.Activate(ctx, codeID, []byte("x"), encode(t, "Old"), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Wait(ctx)
	if msg, ok := wire.ErrorString(err); !ok || msg != "constructor not found" {
		t.Fatalf("unknown ctor = %v", err)
	}

	f, err = env.Activate(ctx, codeID, []byte("y"), append(encode(t, "New"), 1), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Wait(ctx)
	if msg, ok := wire.ErrorString(err); !ok || msg != "malformed payload" {
		t.Fatalf("short ctor params = %v", err)
	}
}

func TestCtorReply(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	prog := counterProgram()
	codeID := sys.UploadCode(prog)
	payload, _ := counterNew.EncodeCall(newParams{Start: 3})
	f, err := env.Activate(ctx, codeID, nil, payload, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(act.Reply, encode(t, "New")) {
		t.Fatalf("ctor reply = %x, want the ctor prefix", act.Reply)
	}
}

// Async

type startParams struct {
	Target scale.ActorID
}

var (
	pongPing     = wire.NewIO[scale.Unit, string]("Ponger", "Ping", 0)
	pongSlow     = wire.NewIO[scale.Unit, string]("Ponger", "Slow", 1)
	pingerStart  = wire.NewIO[startParams, string]("Pinger", "Start", 0)
	pingerSync   = wire.NewIO[startParams, string]("Pinger", "StartSync", 1)
	pingerTimely = wire.NewIO[startParams, string]("Pinger", "Timely", 2)
)

func pongerProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("Ponger")
	rigging.Command(svc, "Ping", func(c *rigging.Context, _ *struct{}, _ scale.Unit) (string, error) {
		return "Pong", nil
	})
	rigging.Command(svc, "Slow", func(c *rigging.Context, _ *struct{}, _ scale.Unit) (string, error) {
		if err := c.Wait(3); err != nil {
			return "", err
		}
		return "late", nil
	}, rigging.Async())
	return rigging.NewProgram[struct{}]("ponger").Expose("Ponger", svc)
}

func pingerProgram(hooks *int) *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("Pinger")
	start := func(c *rigging.Context, _ *struct{}, p startParams) (string, error) {
		reply, err := codegen.Call(c, codegen.NewStub(c.Remoting(), p.Target, "Pinger"), pongPing, scale.Unit{})
		if err != nil {
			return "", err
		}
		if reply != "Pong" {
			return "", fmt.Errorf("got %q", reply)
		}
		return "Finished", nil
	}
	rigging.Command(svc, "Start", start, rigging.Async())
	rigging.Command(svc, "StartSync", start)
	rigging.Command(svc, "Timely", func(c *rigging.Context, _ *struct{}, p startParams) (string, error) {
		stub := codegen.NewStub(c.Remoting(), p.Target, "Pinger").WithArgs(remoting.Args{
			ReplyTimeout: 2,
			ReplyHook:    func(remoting.Reply) { *hooks++ },
		})
		_, err := codegen.Call(c, stub, pongSlow, scale.Unit{})
		if errors.Is(err, wire.ErrReplyIsMissing) {
			return "timeout", nil
		}
		return "in time", err
	}, rigging.Async())
	return rigging.NewProgram[struct{}]("pinger").Expose("Pinger", svc)
}

func deployPair(t *testing.T, hooks *int) (*gtest.System, *gtest.Env, scale.ActorID, scale.ActorID) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	var ids []scale.ActorID
	for _, prog := range []*rigging.Program[struct{}]{pingerProgram(hooks), pongerProgram()} {
		f, err := env.Activate(ctx, sys.UploadCode(prog), []byte(prog.Name()), nil, remoting.Args{})
		if err != nil {
			t.Fatal(err)
		}
		act, err := f.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, act.ProgramID)
	}
	return sys, env, ids[0], ids[1]
}

func TestAsyncCrossProgram(t *testing.T) {
	sys, env, a, b := deployPair(t, new(int))
	sent := len(sys.Messages())
	events := len(sys.Events())

	payload, _ := pingerStart.EncodeCall(startParams{Target: b})
	reply, err := send(t, env, a, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(reply, pingerStart.RouteBytes()) {
		t.Fatalf("reply %x does not start with the Start prefix", reply)
	}
	got, err := pingerStart.DecodeReply(reply)
	if err != nil || got != "Finished" {
		t.Fatalf("Start = %q, %v", got, err)
	}
	if n := len(sys.Events()) - events; n != 0 {
		t.Errorf("%d events emitted", n)
	}

	var between []string
	for _, m := range sys.Messages()[sent:] {
		switch {
		case m.Source == a && m.Destination == b:
			between = append(between, "A->B")
		case m.Source == b && m.Destination == a:
			between = append(between, "B->A")
		}
	}
	if diff := cmp.Diff([]string{"A->B", "B->A"}, between); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestSyncHandlerCannotAwait(t *testing.T) {
	_, env, a, b := deployPair(t, new(int))
	payload, _ := pingerSync.EncodeCall(startParams{Target: b})
	_, err := send(t, env, a, payload)
	if msg, ok := wire.ErrorString(err); !ok || msg != rigging.ErrNotAsync.Error() {
		t.Fatalf("sync await = %v", err)
	}
}

func TestReplyTimeout(t *testing.T) {
	hooks := 0
	sys, env, a, b := deployPair(t, &hooks)
	stub := codegen.NewStub(env, a, "test")
	got, err := codegen.Call(context.Background(), stub, pingerTimely, startParams{Target: b})
	if err != nil {
		t.Fatal(err)
	}
	if got != "timeout" {
		t.Fatalf("Timely = %q, want timeout", got)
	}
	sys.RunToBlock(sys.BlockHeight() + 5)
	if hooks != 1 {
		t.Fatalf("reply hook ran %d times, want 1", hooks)
	}
}

func TestAsyncEquivalence(t *testing.T) {
	type tally struct{ N uint32 }
	bump := wire.NewIO[valueParams, uint32]("Eq", "Bump", 0)
	total := wire.NewIO[scale.Unit, uint32]("Eq", "Total", 1)

	// the async handler resumes after a suspension; its replies and state
	// must match the sync one.
	build := func(name string, suspend bool, slept *uint32) *rigging.Program[tally] {
		svc := rigging.NewService[tally]("Eq")
		var opts []rigging.Option
		if suspend {
			opts = append(opts, rigging.Async())
		}
		rigging.Command(svc, "Bump", func(c *rigging.Context, st *tally, p valueParams) (uint32, error) {
			st.N += p.Value
			if suspend {
				from := c.BlockHeight()
				if err := c.Wait(2); err != nil {
					return 0, err
				}
				*slept += c.BlockHeight() - from
			}
			st.N *= 2
			return st.N, nil
		}, opts...)
		rigging.Query(svc, "Total", func(c *rigging.Context, st tally, _ scale.Unit) (uint32, error) {
			return st.N, nil
		})
		return rigging.NewProgram[tally](name).Expose("Eq", svc)
	}

	ctx := context.Background()
	sys := gtest.NewSystem()
	env := sys.Env()
	var slept uint32
	var stubs []*codegen.Stub
	for _, prog := range []*rigging.Program[tally]{build("eq_sync", false, nil), build("eq_async", true, &slept)} {
		f, err := env.Activate(ctx, sys.UploadCode(prog), []byte(prog.Name()), nil, remoting.Args{})
		if err != nil {
			t.Fatal(err)
		}
		act, err := f.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		stubs = append(stubs, codegen.NewStub(env, act.ProgramID, "test"))
	}

	var replies [2][]uint32
	for _, v := range []uint32{1, 5, 3} {
		for i, stub := range stubs {
			got, err := codegen.Call(ctx, stub, bump, valueParams{v})
			if err != nil {
				t.Fatal(err)
			}
			replies[i] = append(replies[i], got)
		}
	}
	if diff := cmp.Diff(replies[0], replies[1]); diff != "" {
		t.Errorf("replies (-sync +async):\n%s", diff)
	}
	if slept < 6 {
		t.Errorf("async handler slept %d blocks, want at least 6", slept)
	}
	for _, stub := range stubs {
		if got, err := codegen.Query(ctx, stub, total, scale.Unit{}); err != nil || got != replies[0][2] {
			t.Errorf("Total = %d, %v, want %d", got, err, replies[0][2])
		}
	}
}

func TestOverride(t *testing.T) {
	type st struct{}
	base := rigging.NewService[st]("Base")
	rigging.Query(base, "Who", func(c *rigging.Context, _ st, _ scale.Unit) (string, error) { return "base", nil })
	rigging.Query(base, "Kept", func(c *rigging.Context, _ st, _ scale.Unit) (string, error) { return "kept", nil })
	derived := rigging.NewService[st]("Derived").Extends(base)
	rigging.Query(derived, "Who", func(c *rigging.Context, _ st, _ scale.Unit) (string, error) { return "derived", nil })
	rigging.Command(derived, "Do", func(c *rigging.Context, _ *st, _ scale.Unit) (bool, error) { return true, nil })
	prog := rigging.NewProgram[st]("override").Expose("Derived", derived)

	sys := gtest.NewSystem()
	env := sys.Env()
	f, _ := env.Activate(context.Background(), sys.UploadCode(prog), nil, nil, remoting.Args{})
	act, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for method, want := range map[string]string{"Who": "derived", "Kept": "kept"} {
		io := wire.NewIO[scale.Unit, string]("Derived", method, 0)
		got, err := codegen.Query(context.Background(), codegen.NewStub(env, act.ProgramID, "test"), io, scale.Unit{})
		if err != nil || got != want {
			t.Errorf("%s = %q, %v; want %q", method, got, err, want)
		}
	}

	idl, err := prog.IDL()
	if err != nil {
		t.Fatal(err)
	}
	want := `service Derived : Base {
  Do : () -> bool;
};

service Base {
  query Who : () -> str;
  query Kept : () -> str;
};
`
	if diff := cmp.Diff(want, idl); diff != "" {
		t.Errorf("idl (-want +got):\n%s", diff)
	}
}

func TestProgramIDL(t *testing.T) {
	got, err := counterProgram().IDL()
	if err != nil {
		t.Fatal(err)
	}
	want := `constructor {
  New : (start: u32);
};

/// Counts things
service Counter : Ownable {
  Add : (value: u32) -> u32;
  Sub : (value: u32) -> u32;
  Donate : () -> u128;
  query Value : () -> u32;

  events {
    Added: u32;
    Subtracted: u32;
  }
};

service Ownable {
  query Owner : () -> actor_id;
};
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("idl (-want +got):\n%s", diff)
	}
}

func TestExit(t *testing.T) {
	type st struct{}
	svc := rigging.NewService[st]("Life")
	rigging.Command(svc, "Exit", func(c *rigging.Context, _ *st, p startParams) (scale.Unit, error) {
		return scale.Unit{}, c.Exit(p.Target)
	})
	prog := rigging.NewProgram[st]("life").Expose("Life", svc)

	sys := gtest.NewSystem()
	env := sys.Env()
	f, _ := env.Activate(context.Background(), sys.UploadCode(prog), nil, nil, remoting.Args{})
	act, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	heir := gtest.UserID(1)
	if _, err := send(t, env, act.ProgramID, encode(t, "Life", "Exit", heir)); err != nil {
		t.Fatal(err)
	}
	_, err = send(t, env, act.ProgramID, encode(t, "Life", "Exit", heir))
	reply, ok := remoting.AsErrorReply(err)
	if !ok {
		t.Fatalf("message after exit = %v", err)
	}
	if got, ok := reply.Inheritor(); !ok || got != heir {
		t.Fatalf("inheritor = %s", got)
	}
}

func TestServerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	prog := counterProgram(rigging.WithTracer(tracer))

	sys := gtest.NewSystem()
	env := sys.Env()
	id := deploy(t, env, sys.UploadCode(prog), counterNew, newParams{}, "s")
	stub := codegen.NewStub(env, id, "test")
	if _, err := codegen.Call(context.Background(), stub, counterAdd, valueParams{1}); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	if diff := cmp.Diff([]string{"ctor.New", "Counter.Add"}, names); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestMetas(t *testing.T) {
	svc := rigging.NewService[counter]("Relay")
	rigging.Command(svc, "Forward", func(c *rigging.Context, st *counter, _ scale.Unit) (uint32, error) {
		return st.Value, nil
	}, rigging.Async())
	rigging.Command(svc, "Local", func(c *rigging.Context, st *counter, _ scale.Unit) (uint32, error) {
		return st.Value, nil
	})
	rigging.Query(svc, "Peek", func(c *rigging.Context, st counter, _ scale.Unit) (uint32, error) {
		return st.Value, nil
	})
	metas, err := rigging.NewProgram[counter]("relay").Expose("Relay", svc).Metas()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("got %d metas, want 1", len(metas))
	}
	m := metas[0]
	want := []codegen.Entry{
		{Name: "Forward", ID: 0},
		{Name: "Local", ID: 1},
		{Name: "Peek", ID: 2, Query: true},
	}
	if diff := cmp.Diff(want, m.Entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
	if !m.IsAsync(0) || m.IsAsync(1) || m.IsAsync(2) {
		t.Errorf("async bitmap %08b", m.AsyncBitmap)
	}
	if m.InterfaceID == 0 {
		t.Error("zero interface id")
	}
}

// Handlers pass their Context to generated clients, which take a
// context.Context.
var _ context.Context = (*rigging.Context)(nil)

func TestContextAttached(t *testing.T) {
	sys := gtest.NewSystem()
	env := sys.Env()
	ctx := context.Background()
	svc := rigging.NewService[counter]("Till")
	rigging.Command(svc, "Take", func(c *rigging.Context, st *counter, _ scale.Unit) (scale.U128, error) {
		var ctx context.Context = c
		if ctx.Err() != nil {
			return scale.U128{}, ctx.Err()
		}
		return c.Attached(), nil
	}, rigging.Payable())
	p := rigging.NewProgram[counter]("till").Expose("Till", svc)
	f, err := env.Activate(ctx, sys.UploadCode(p), []byte("till"), nil, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := act.ProgramID

	take := wire.NewIO[scale.Unit, scale.U128]("Till", "Take", 0)
	stub := codegen.NewStub(env, id, "test").WithArgs(remoting.Args{Value: scale.NewU128(3)})
	if got, err := codegen.Call(ctx, stub, take, scale.Unit{}); err != nil || got != scale.NewU128(3) {
		t.Fatalf("Take = %s, %v", got, err)
	}
}

func TestQueryCannotMutateState(t *testing.T) {
	type book struct {
		Names map[string]uint32
		Order []string
	}
	svc := rigging.NewService[book]("Book")
	rigging.Command(svc, "Put", func(c *rigging.Context, st *book, p pingParams) (uint32, error) {
		if st.Names == nil {
			st.Names = map[string]uint32{}
		}
		st.Names[p.Input]++
		st.Order = append(st.Order, p.Input)
		return st.Names[p.Input], nil
	})
	rigging.Query(svc, "Scribble", func(c *rigging.Context, st book, p pingParams) (uint32, error) {
		st.Names[p.Input] = 100
		if len(st.Order) > 0 {
			st.Order[0] = "scribbled"
		}
		return st.Names[p.Input], nil
	})
	rigging.Query(svc, "First", func(c *rigging.Context, st book, p pingParams) (string, error) {
		return fmt.Sprintf("%s=%d", st.Order[0], st.Names[p.Input]), nil
	})
	prog := rigging.NewProgram[book]("book").Expose("Book", svc)

	ctx := context.Background()
	sys := gtest.NewSystem()
	env := sys.Env()
	f, err := env.Activate(ctx, sys.UploadCode(prog), nil, nil, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	stub := codegen.NewStub(env, act.ProgramID, "test")
	put := wire.NewIO[pingParams, uint32]("Book", "Put", 0)
	scribble := wire.NewIO[pingParams, uint32]("Book", "Scribble", 1)
	first := wire.NewIO[pingParams, string]("Book", "First", 2)

	if _, err := codegen.Call(ctx, stub, put, pingParams{"ann"}); err != nil {
		t.Fatal(err)
	}
	if got, err := codegen.Call(ctx, stub, scribble, pingParams{"ann"}); err != nil || got != 100 {
		t.Fatalf("Scribble = %d, %v", got, err)
	}
	if got, err := codegen.Query(ctx, stub, first, pingParams{"ann"}); err != nil || got != "ann=1" {
		t.Fatalf("First = %q, %v, want ann=1", got, err)
	}
}
