package noderpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

// echo replies with its payload, "fail" replies with an error and "emit"
// also emits it. "slow" never replies within a block.
type echo struct{}

func (echo) Name() string            { return "echo" }
func (echo) Instantiate() host.Actor { return echo{} }

func (echo) Init(_ context.Context, h host.Host) {
	_ = h.Reply([]byte("ready"), scale.U128{})
}

func (echo) Handle(ctx context.Context, h host.Host) {
	p := h.Message().Payload
	switch string(p) {
	case "fail":
		_ = h.ReplyError(remoting.ExecutionErrorCode(remoting.UserspacePanic), []byte("boom"))
		return
	case "emit":
		_ = h.Emit(p)
	case "slow":
		_ = h.Wait(ctx, 100)
	}
	_ = h.Reply(p, scale.U128{})
}

func startNode(t *testing.T) (*Node, *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	config := runtime.DevnodeConfig{
		BlockTime: 5 * time.Millisecond,
		Journal:   filepath.Join(t.TempDir(), "devnode.db"),
	}
	node, err := NewNode(ctx, config, nil, echo{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = node.Close() })
	go func() { _ = node.Produce(ctx) }()

	srv := httptest.NewServer(node.Handler())
	t.Cleanup(srv.Close)

	client, err := Dial(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)
	return node, client
}

func activateEcho(t *testing.T, client *Client) scale.ActorID {
	t.Helper()
	ctx := context.Background()
	codes, err := client.API().Codes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]CodeInfo{{Name: "echo", ID: gtest.CodeIDOf("echo")}}, codes); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
	f, err := client.Activate(ctx, codes[0].ID, []byte("salt"), nil, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	act, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(act.Reply) != "ready" {
		t.Errorf("init reply = %q", act.Reply)
	}
	if want := gtest.ProgramIDOf(codes[0].ID, []byte("salt")); act.ProgramID != want {
		t.Errorf("program = %s, want %s", act.ProgramID, want)
	}
	return act.ProgramID
}

func TestMessageRoundTrip(t *testing.T) {
	_, client := startNode(t)
	ctx := context.Background()
	id := activateEcho(t, client)

	var hooked []byte
	f, err := client.Message(ctx, id, []byte("hello"), remoting.Args{ReplyHook: func(r remoting.Reply) { hooked = r.Payload }})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" || string(hooked) != "hello" {
		t.Errorf("reply = %q, hook saw %q", got, hooked)
	}

	got, err = client.Query(ctx, id, []byte("peek"), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "peek" {
		t.Errorf("query = %q", got)
	}
}

func TestErrorReplies(t *testing.T) {
	_, client := startNode(t)
	ctx := context.Background()
	id := activateEcho(t, client)

	f, err := client.Message(ctx, id, []byte("fail"), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Wait(ctx)
	e, ok := remoting.AsErrorReply(err)
	if !ok {
		t.Fatalf("Wait = %v, want an error reply", err)
	}
	if e.Code != remoting.ExecutionErrorCode(remoting.UserspacePanic) || string(e.Payload) != "boom" {
		t.Errorf("error reply = %v", e)
	}

	f, err = client.Message(ctx, id, []byte("slow"), remoting.Args{ReplyTimeout: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Wait(ctx); !errors.Is(err, remoting.ErrReplyTimeout) {
		t.Errorf("slow Wait = %v, want timeout", err)
	}

	if _, err := client.Query(ctx, gtest.UserID(7), nil, remoting.Args{}); err == nil {
		t.Error("query to a user succeeded")
	}
}

func TestListenOverRPC(t *testing.T) {
	_, client := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id := activateEcho(t, client)

	events, err := client.Listen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f, err := client.Message(ctx, id, []byte("emit"), remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Source != id || string(ev.Payload) != "emit" {
			t.Errorf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event")
	}
}

func TestSendersAreFunded(t *testing.T) {
	node, client := startNode(t)
	ctx := context.Background()
	id := activateEcho(t, client)

	alice := gtest.UserID(100)
	f, err := client.Message(ctx, id, []byte("hi"), remoting.Args{SenderID: &alice, Value: scale.NewU128(10)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	balance, err := client.API().Balance(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if balance != "10" {
		t.Errorf("program balance = %s", balance)
	}
	if node.System().Balance(alice).IsZero() {
		t.Error("alice was not funded")
	}
}

func TestWebsocketURL(t *testing.T) {
	for in, want := range map[string]string{
		"127.0.0.1:9944":       "ws://127.0.0.1:9944/rpc/v0",
		"http://127.0.0.1:1/":  "ws://127.0.0.1:1/rpc/v0",
		"https://node.example": "wss://node.example/rpc/v0",
		"ws://host:1/rpc/v0":   "ws://host:1/rpc/v0",
	} {
		if got := websocketURL(in); got != want {
			t.Errorf("websocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReplyInfo(t *testing.T) {
	for _, test := range []struct {
		name string
		err  error
		want ReplyInfo
	}{
		{"ok", nil, ReplyInfo{Code: remoting.SuccessCode(remoting.SuccessManual), Payload: []byte("p")}},
		{"timeout", remoting.ErrReplyTimeout, ReplyInfo{Timeout: true, Error: remoting.ErrReplyTimeout.Error()}},
		{"transport", remoting.ErrNotEnoughValue, ReplyInfo{Error: "not enough value"}},
		{"error reply", &remoting.ErrorReply{Code: remoting.RemovedFromWaitlistCode(), Payload: []byte("x")}, ReplyInfo{Code: remoting.RemovedFromWaitlistCode(), Payload: []byte("x")}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := newReplyInfo([]byte("p"), remoting.SuccessCode(remoting.SuccessManual), scale.U128{}, test.err)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			_, err := got.result()
			if (err == nil) != (test.err == nil) {
				t.Errorf("result error = %v, want %v", err, test.err)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	node, err := NewNode(ctx, runtime.DevnodeConfig{}, nil, echo{})
	if err != nil {
		t.Fatal(err)
	}
	defer node.Close()
	srv := httptest.NewServer(node.Handler())
	defer srv.Close()

	client, err := Dial(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.API().BlockHeight(ctx); err != nil {
		t.Fatal(err)
	}
	client.Close()

	resp, err := http.Get(srv.URL + MetricsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "rigging_rpc_request_count{") {
		t.Errorf("metrics lack the request counter:\n%s", body)
	}
}

func TestSampler(t *testing.T) {
	var s sampler
	now := time.Unix(100, 0)
	if !s.sample(now, time.Second) {
		t.Fatal("first request not sampled")
	}
	if s.sample(now, time.Second) {
		t.Error("second request in the same instant sampled")
	}
	if !s.sample(now.Add(2*time.Second+time.Nanosecond), time.Second) {
		t.Error("request after twice the interval not sampled")
	}
}
