package wire

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/kanengo/rigging/runtime/scale"
)

type pingParams struct {
	Input string
}

type addParams struct {
	A uint32
	B uint8
}

func TestPingPongBytes(t *testing.T) {
	io := NewIO[pingParams, scale.Result[string, string]]("PingPong", "Ping", 0)
	call, err := io.EncodeCall(pingParams{Input: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	const want = "2050696e67506f6e671050696e671070696e67"
	if got := hex.EncodeToString(call); got != want {
		t.Fatalf("EncodeCall = %s, want %s", got, want)
	}

	reply, err := io.EncodeReply(scale.Ok[string, string]("pong"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(reply, io.RouteBytes()) {
		t.Fatalf("reply %x does not repeat the request prefix", reply)
	}
	got, err := io.DecodeReply(reply)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsErr || got.Ok != "pong" {
		t.Fatalf("DecodeReply = %+v", got)
	}
}

func TestParamArity(t *testing.T) {
	none := NewIO[struct{}, uint32]("S", "F", 0)
	b, _ := none.EncodeCall(struct{}{})
	if !bytes.Equal(b, Prefix("S", "F")) {
		t.Errorf("zero params encoded to %x", b)
	}

	two := NewIO[addParams, uint32]("S", "F", 1)
	b, _ = two.EncodeCall(addParams{A: 1, B: 2})
	if tail := b[len(two.RouteBytes()):]; hex.EncodeToString(tail) != "0100000002" {
		t.Errorf("tuple params encoded to %x", tail)
	}
	p, err := two.DecodeParams(b)
	if err != nil || p != (addParams{A: 1, B: 2}) {
		t.Errorf("DecodeParams = %+v, %v", p, err)
	}
}

func TestDecodeReplyPrefixMismatch(t *testing.T) {
	io := NewIO[pingParams, string]("PingPong", "Ping", 0)
	other := NewIO[pingParams, string]("PingPong", "Pong", 1)
	reply, _ := other.EncodeReply("x")
	if _, err := io.DecodeReply(reply); !errors.Is(err, ErrReplyPrefixMismatches) {
		t.Fatalf("DecodeReply err = %v, want prefix mismatch", err)
	}
	good, _ := io.EncodeReply("x")
	if _, err := io.DecodeReply(append(good, 0)); err == nil || errors.Is(err, ErrReplyPrefixMismatches) {
		t.Fatalf("trailing byte err = %v, want codec error", err)
	}
}

func TestMatchLongest(t *testing.T) {
	names := [][]byte{EncodeName("Get"), EncodeName("GetAll")}
	payload := append(EncodeName("GetAll"), 1, 2)
	i, ok := MatchLongest(payload, names)
	if !ok || i != 1 {
		t.Fatalf("MatchLongest = %d %v", i, ok)
	}
	if _, ok := MatchLongest([]byte{0x0c}, names); ok {
		t.Fatal("matched a truncated payload")
	}
}

func TestEvents(t *testing.T) {
	set := NewEventSet("Counter", "Added", "Subtracted")
	payload, err := EncodeEvent("Counter", "Added", uint32(10))
	if err != nil {
		t.Fatal(err)
	}
	var v uint32
	name, err := set.Decode(payload, &v)
	if err != nil || name != "Added" || v != 10 {
		t.Fatalf("Decode = %q %d %v", name, v, err)
	}

	other, _ := EncodeEvent("Other", "Added", uint32(1))
	if _, err := set.Decode(other, &v); !errors.Is(err, ErrEventPrefixMismatches) {
		t.Fatalf("foreign route err = %v", err)
	}
	unknown, _ := EncodeEvent("Counter", "Reset", nil)
	if _, _, err := set.Split(unknown); !errors.Is(err, ErrEventNameIsNotFound) {
		t.Fatalf("unknown event err = %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := ReplyHasErrorString("boom")
	if !errors.Is(err, ErrReplyHasErrorString) || errors.Is(err, ErrReplyIsMissing) {
		t.Fatalf("kind matching broken for %v", err)
	}
	if msg, ok := ErrorString(err); !ok || msg != "boom" {
		t.Fatalf("ErrorString = %q %v", msg, ok)
	}
	if got := ReplyIsMissing("timeout").Error(); got != "reply is missing: timeout" {
		t.Fatalf("Error() = %q", got)
	}
}
