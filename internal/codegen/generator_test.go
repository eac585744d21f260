package codegen

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/kanengo/rigging/pkg/idl"
)

const counterIDL = `
type Point = struct {
  x: u32,
  y_pos: u32,
};

type Shape = enum {
  Circle: u32,
  Empty,
  Poly: vec Point,
};

type Pair<T> = struct { first: T, second: u128 };

constructor {
  /// Starts from zero
  New : ();
  WithValue : (value: u32, type: str);
};

service Base {
  Reset : () -> null;
  query Owner : () -> actor_id;
};

/// Counts things
service Counter : Base {
  Add : (value: u32) -> u32;
  Move : (p: Point, s: Shape, pair: Pair<u8>) -> opt Point;
  Tuple : (t: (u8, bool)) -> struct { str, u32 };
  Check : (n: u64) -> u64 throws str;
  query Value : () -> u32;

  events {
    /// Added something
    Added: u32;
    Reset;
  }
};
`

func generate(t *testing.T, src string, opts Options) string {
	t.Helper()
	doc, err := idl.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Generate(doc, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "client.go", out, parser.AllErrors); err != nil {
		t.Fatalf("generated client does not parse: %v\n%s", err, out)
	}
	return string(out)
}

var blanks = regexp.MustCompile(`[ \t]+`)

// containsCode reports whether src contains want, ignoring how gofmt aligned
// the columns.
func containsCode(src, want string) bool {
	return strings.Contains(blanks.ReplaceAllString(src, " "), blanks.ReplaceAllString(want, " "))
}

func TestGenerate(t *testing.T) {
	got := generate(t, counterIDL, Options{ProgramName: "counter"})

	for _, want := range []string{
		`// Code generated by "rigging generate-client". DO NOT EDIT.`,
		`package counter`,
		`type Point struct {`,
		"YPos uint32",
		`scale.Enum`,
		`Poly   *[]Point`,
		`type Pair[T any] struct {`,
		`CounterCtorWithValueIO = wire.NewCtorIO[CounterCtorWithValueParams]("WithValue", 1)`,
		`func (f *CounterFactory) WithValue(ctx context.Context, salt []byte, value uint32, _type string) (*remoting.Future[scale.ActorID], error) {`,
		`CounterAddIO   = wire.NewIO[CounterAddParams, uint32]("Counter", "Add", 0)`,
		`CounterResetIO = wire.NewIO[scale.Unit, scale.Unit]("Counter", "Reset", 0)`,
		`wire.NewIO[CounterCheckParams, scale.Result[uint64, string]]("Counter", "Check", 3)`,
		`var CounterEventSet = wire.NewEventSet("Counter", "Added", "Reset")`,
		`Add(ctx context.Context, value uint32) (uint32, error)`,
		`Reset(ctx context.Context) error`,
		`Owner(ctx context.Context) (scale.ActorID, error)`,
		`Listen(ctx context.Context) (<-chan codegen.Received[CounterEvents], error)`,
		`func (c *CounterClient) SendAdd(ctx context.Context, value uint32) (*remoting.Future[uint32], error) {`,
		`err = rigging.Throw(r.Err)`,
		`func (p *CounterProgram) Counter() *CounterClient {`,
		`// Counts things`,
		`Route:       "Counter",`,
	} {
		if !containsCode(got, want) {
			t.Errorf("generated client lacks %q", want)
		}
	}
	if strings.Contains(got, "CounterMock") {
		t.Error("mocks generated without Mocks")
	}
	if t.Failed() {
		t.Log(got)
	}
}

func TestGenerateMocks(t *testing.T) {
	got := generate(t, counterIDL, Options{ProgramName: "counter", Package: "client", Mocks: true})
	for _, want := range []string{
		`package client`,
		`type CounterMock struct {`,
		`AddFunc    func(ctx context.Context, value uint32) (uint32, error)`,
		`var _ Counter = (*CounterMock)(nil)`,
		`return zero, fmt.Errorf("%w: Counter.Add", codegen.ErrNotMocked)`,
		`type BaseMock struct {`,
	} {
		if !containsCode(got, want) {
			t.Errorf("generated client lacks %q", want)
		}
	}
	if t.Failed() {
		t.Log(got)
	}
}

func TestGenerateWithoutCtor(t *testing.T) {
	got := generate(t, `service { Ping : () -> str; };`, Options{ProgramName: "ping_pong"})
	for _, want := range []string{
		`package pingpong`,
		`func (f *PingPongFactory) Default(ctx context.Context, salt []byte) (*remoting.Future[scale.ActorID], error) {`,
		`ServicePingIO = wire.NewIO[scale.Unit, string]("", "Ping", 0)`,
		`type ServiceClient struct {`,
	} {
		if !containsCode(got, want) {
			t.Errorf("generated client lacks %q", want)
		}
	}
	if strings.Contains(got, "codegen.Activate") {
		t.Error("program without constructor activates through a constructor")
	}
	if t.Failed() {
		t.Log(got)
	}
}

func TestReservedNames(t *testing.T) {
	for _, test := range []struct{ in, want string }{
		{"value", "value"},
		{"type", "_type"},
		{"ctx", "_ctx"},
		{"owner_id", "ownerId"},
		{"len", "_len"},
	} {
		if got := paramName(test.in); got != test.want {
			t.Errorf("paramName(%q) = %q, want %q", test.in, got, test.want)
		}
	}
	if got := methodName("Listen", clientMethods); got != "CallListen" {
		t.Errorf("methodName(Listen) = %q", got)
	}
}

func TestGenerateFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "my_counter.idl")
	if err := os.WriteFile(in, []byte(counterIDL), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := GenerateFile(in, filepath.Join(dir, "client"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "client", "my_counter_client.go"); out != want {
		t.Errorf("wrote %s, want %s", out, want)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "package mycounter") {
		t.Errorf("unexpected package clause:\n%s", b)
	}
}

func TestGenerateBadPackage(t *testing.T) {
	doc, err := idl.Parse(counterIDL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Generate(doc, Options{ProgramName: "counter", Package: "not-a-name"}); err == nil {
		t.Fatal("invalid package name accepted")
	}
	if _, err := Generate(doc, Options{}); err == nil {
		t.Fatal("missing program name accepted")
	}
}
