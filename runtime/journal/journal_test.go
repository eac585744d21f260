package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

type echo struct{}

func (echo) Name() string            { return "echo" }
func (echo) Instantiate() host.Actor { return echo{} }

func (echo) Init(context.Context, host.Host) {}

func (echo) Handle(_ context.Context, h host.Host) {
	_ = h.Emit(h.Message().Payload)
	_ = h.Reply(h.Message().Payload, scale.U128{})
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "journal", "devnode.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sys := gtest.NewSystem(gtest.WithBlockObserver(db.Observe))
	env := sys.Env()
	f, err := env.Activate(ctx, sys.UploadCode(echo{}), []byte("salt"), nil, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	m, err := env.Message(ctx, act.ProgramID, []byte("hi"), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	b, err := db.Block(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Block{Height: 2, Executed: 1, GasBurned: b.GasBurned, Events: 1}, b); diff != "" || b.GasBurned == 0 {
		t.Errorf("block (-want +got):\n%s", diff)
	}

	msgs, err := db.Messages(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	var replies []string
	for _, msg := range msgs {
		if msg.IsReply {
			replies = append(replies, string(msg.Payload))
			if msg.ReplyTo != m.MessageID().String() {
				t.Errorf("reply to %s, want %s", msg.ReplyTo, m.MessageID())
			}
		}
	}
	if diff := cmp.Diff([]string{"hi"}, replies); diff != "" {
		t.Errorf("replies (-want +got):\n%s", diff)
	}

	events, err := db.EventsFrom(ctx, act.ProgramID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || string(events[0]) != "hi" {
		t.Errorf("events = %q", events)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "j.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	// observing after close is dropped
	db.Observe(gtest.BlockRunResult{Height: 1})
}
