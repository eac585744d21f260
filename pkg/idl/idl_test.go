package idl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const thisThat = `
/// Shared type
type ThisThatSvcAppTupleStruct = struct {
  bool,
};

type ThisThatSvcAppDoThatParam = struct {
  p1: u32,
  p2: str,
  p3: ThisThatSvcAppManyVariants,
};

type ThisThatSvcAppManyVariants = enum {
  One,
  Two: u32,
  Three: opt u256,
  Four: struct { a: u32, b: opt u16 },
  Five: struct { str, h256 },
  Six: struct { u32 },
  Seven: [map (u32, str), 10],
  Eight: actor_id,
};

type Wrapper<T> = struct { inner: T, list: vec T };

// plain comments are ignored
constructor {
  /// Default
  New : ();
  WithValue : (value: u32, owner: actor_id);
};

service ThisThatSvc {
  DoThis : (p1: u32, p2: str, p3: struct { opt str, u8 }, p4: ThisThatSvcAppTupleStruct) -> struct { str, u32 };
  DoThat : (param: ThisThatSvcAppDoThatParam) -> result (struct { str, u32 }, struct { str });
  query This : () -> u32;
  query That : () -> str throws str;
  Wrap : (w: Wrapper<u8>, type: (u8, bool), query: [u8, 32]) -> null;

  events {
    /// Something happened
    SomethingHappened: struct { str, u32 };
    Nothing;
  }
};
`

func spanless() cmp.Option {
	return cmp.Options{
		cmpopts.IgnoreFields(TypeDecl{}, "Span"),
		cmpopts.IgnoreFields(Type{}, "Span"),
		cmpopts.IgnoreFields(Service{}, "Span"),
		cmpopts.IgnoreFields(Func{}, "Span"),
		cmpopts.IgnoreFields(Event{}, "Span"),
		cmpopts.IgnoreFields(CtorFunc{}, "Span"),
	}
}

func TestParseThisThat(t *testing.T) {
	doc, err := Parse(thisThat)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(doc.Types); got != 4 {
		t.Fatalf("types = %d, want 4", got)
	}
	if doc.Types[0].Docs[0] != "Shared type" {
		t.Errorf("type docs = %q", doc.Types[0].Docs)
	}
	if !doc.Types[0].Struct.IsTuple() {
		t.Error("tuple struct not recognised")
	}

	variants := doc.Type("ThisThatSvcAppManyVariants").Enum.Variants
	if len(variants) != 8 || variants[0].Type != nil {
		t.Fatalf("variants = %d, first type %v", len(variants), variants[0].Type)
	}
	seven := variants[6].Type
	if seven.Kind != DeclArray || seven.Len != 10 || seven.Elem.Kind != DeclMap {
		t.Errorf("Seven = %s", FormatDecl(seven))
	}

	if doc.Ctor == nil || len(doc.Ctor.Funcs) != 2 || doc.Ctor.Funcs[0].Docs[0] != "Default" {
		t.Fatalf("ctor = %+v", doc.Ctor)
	}

	svc := doc.Service("ThisThatSvc")
	ids := map[string]uint16{}
	for _, f := range svc.Funcs {
		ids[f.Name] = f.EntryID
	}
	want := map[string]uint16{"DoThis": 0, "DoThat": 1, "Wrap": 2, "This": 3, "That": 4}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("entry ids (-want +got):\n%s", diff)
	}
	if that := svc.Funcs[3]; !that.Query || that.Throws == nil || that.Throws.Prim != Str {
		t.Errorf("That = %+v", that)
	}
	wrap := svc.Funcs[4]
	if wrap.Params[1].Name != "type" || wrap.Params[2].Name != "query" {
		t.Errorf("keyword params = %q %q", wrap.Params[1].Name, wrap.Params[2].Name)
	}
	if arg := wrap.Params[0].Type; arg.Name != "Wrapper" || len(arg.Args) != 1 || arg.Args[0].Prim != U8 {
		t.Errorf("generic use = %s", FormatDecl(arg))
	}
	if len(svc.Events) != 2 || svc.Events[1].Type != nil || svc.Events[1].EntryID != 1 {
		t.Errorf("events = %+v", svc.Events)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, src := range []string{
		thisThat,
		"service {};",
		"constructor {};",
		"type T = enum { A }; type U = struct {}; type V = (); service {}",
		"service Base { Ping : () -> str; }; service Derived : Base { query Pong : (a: opt vec u8) -> map (str, u64); };",
	} {
		doc, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		text := Format(doc)
		again, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(Format) failed: %v\n%s", err, text)
		}
		if diff := cmp.Diff(doc, again, spanless()); diff != "" {
			t.Errorf("round trip (-want +got):\n%s\n%s", diff, text)
		}
		if text2 := Format(again); text2 != text {
			t.Errorf("Format is not stable:\n%s\n---\n%s", text, text2)
		}
	}
}

func TestFormatCanonical(t *testing.T) {
	doc, err := Parse(`type Point = struct { x: i32, y: i32 };
service Counter { Add : (value: u32) -> u32; query Get : () -> u32; events { Added: u32; Reset; } };`)
	if err != nil {
		t.Fatal(err)
	}
	const want = `type Point = struct {
  x: i32,
  y: i32,
};

service Counter {
  Add : (value: u32) -> u32;
  query Get : () -> u32;

  events {
    Added: u32;
    Reset;
  }
};
`
	if got := Format(doc); got != want {
		t.Fatalf("Format:\n%s\nwant:\n%s", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"type T = enum { One }\nservice {}",
		"service S { Foo : () -> u32 $ };",
		"service S { Foo : (a u32) -> u32; };",
		"type T = [u8, 99999999999];\nservice {};",
		"service S { Foo : () -> u32<u8>; };",
	} {
		_, err := Parse(src)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q) = %v, want ParseError", src, err)
			continue
		}
		if pe.Span.Line == 0 {
			t.Errorf("Parse(%q) error has no position: %v", src, pe)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	for _, test := range []struct {
		src  string
		want string
	}{
		{"", "document must contain a constructor or a service"},
		{"type T = enum { One };", "document must contain a constructor or a service"},
		{"service S { F : (a: Foo) -> null; };", "Unknown type 'Foo'"},
		{"type T = struct { a: u32, u8 }; service {};", mixedFieldsMsg},
		{"type T = enum { A: struct { a: u32, u8 } }; service {};", mixedFieldsMsg},
		{"type A = enum { One }; type a = enum { Two }; service {};", "duplicate type 'a'"},
		{"type T = enum { One, one }; service {};", "duplicate enum variant 'one'"},
		{"type T = struct { a: u8, a: u8 }; service {};", "duplicate struct field 'a'"},
		{"service S {}; service s {};", "duplicate service 's'"},
		{"service S { F : () -> null; f : () -> null; };", "duplicate function 'f' in service 'S'"},
		{"service S { F : () -> null; events { F; } };", "event 'F' collides with a function in service 'S'"},
		{"service S : Missing {};", "service 'S' extends unknown service 'Missing'"},
		{"service A : B {}; service B : A {};", "service extension cycle: A -> B -> A"},
		{"constructor { New : (); new : (); };", "duplicate constructor 'new'"},
		{"type W<T> = struct { v: T }; service S { F : (w: W) -> null; };", "type 'W' expects 1 type arguments, got 0"},
		{"type opt = struct {}; service {};", "type name 'opt' is reserved"},
	} {
		_, err := Parse(test.src)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Parse(%q) = %v, want ValidationError", test.src, err)
			continue
		}
		if ve.Msg != test.want {
			t.Errorf("Parse(%q) = %q, want %q", test.src, ve.Msg, test.want)
		}
	}
}

func TestInterfaceID(t *testing.T) {
	const src = `service Base { Ping : () -> str; };
service Counter : Base { Add : (v: u32) -> u32; query Get : () -> u32; events { Added: u32; } };`
	doc, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	d, err := Descriptor(doc, doc.Service("Counter"))
	if err != nil {
		t.Fatal(err)
	}
	canonical, _ := d.Canonical()
	if !strings.HasPrefix(string(canonical), `{"commands":[{"entry_id":0,"name":"Add"}],"events":[{"entry_id":0,"name":"Added"}],"extends":[{"interface_id":`) {
		t.Fatalf("canonical = %s", canonical)
	}

	id1, _ := InterfaceID(doc, doc.Service("Counter"))
	doc2, _ := Parse(src)
	id2, _ := InterfaceID(doc2, doc2.Service("Counter"))
	if id1 != id2 || id1 == 0 {
		t.Fatalf("ids not stable: %x %x", id1, id2)
	}

	renamed, _ := Parse(strings.Replace(src, "Ping", "Pong", 1))
	id3, _ := InterfaceID(renamed, renamed.Service("Counter"))
	if id3 == id1 {
		t.Fatal("base change did not change the derived id")
	}
}
