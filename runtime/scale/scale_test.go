package scale

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
)

func TestCompact(t *testing.T) {
	for _, test := range []struct {
		v    uint64
		want string
	}{
		{0, "00"},
		{1, "04"},
		{63, "fc"},
		{64, "0101"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1<<30 - 1, "feffffff"},
		{1 << 30, "0300000040"},
		{1 << 32, "070000000001"},
		{math.MaxUint64, "13ffffffffffffffff"},
	} {
		e := NewEncoder()
		e.Compact(test.v)
		if got := hex.EncodeToString(e.Data()); got != test.want {
			t.Errorf("Compact(%d) = %s, want %s", test.v, got, test.want)
		}
		d := NewDecoder(e.Data())
		if got := d.Compact(); got != test.v {
			t.Errorf("decode %s = %d, want %d", test.want, got, test.v)
		}
		if d.Remaining() != 0 {
			t.Errorf("decode %s left %d bytes", test.want, d.Remaining())
		}
	}
}

func TestCompactRejectsNonCanonical(t *testing.T) {
	for _, in := range []string{"0500", "0200000000", "0300000000"} {
		b, _ := hex.DecodeString(in)
		var err error
		func() {
			defer func() { err = CatchPanics(recover()) }()
			NewDecoder(b).Compact()
		}()
		if err == nil {
			t.Errorf("Compact(%s) succeeded, want error", in)
		}
	}
}

type shape struct {
	Enum
	Circle *uint32
	Empty  *struct{}
	Rect   *rect `scale:"index=5"`
}

type rect struct {
	W, H uint16
}

type pair struct {
	Tuple
	A string
	B bool
}

type record struct {
	ID      ActorID
	Name    string
	Tags    []string
	Scores  map[uint32]int64
	Nick    *string
	Shape   shape
	Balance U128
	Big     uint256.Int
	Ch      Char
	Pair    pair
	Opt     Option[uint8]
	Res     Result[string, uint8]
	hidden  int
	Skipped int `scale:"-"`
}

func TestRoundTrip(t *testing.T) {
	nick := "bob"
	side := uint32(7)
	in := record{
		ID:      ActorID{1, 2, 3},
		Name:    "alice",
		Tags:    []string{"a", "bc"},
		Scores:  map[uint32]int64{3: -1, 1: 42},
		Nick:    &nick,
		Shape:   shape{Circle: &side},
		Balance: U128{Lo: 5, Hi: 1},
		Big:     *uint256.NewInt(1000),
		Ch:      'ж',
		Pair:    pair{A: "x", B: true},
		Opt:     Some[uint8](9),
		Res:     Err[string, uint8](4),
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out, cmp.AllowUnexported(record{}), cmp.Comparer(func(a, b uint256.Int) bool { return a.Eq(&b) })); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestEncodings(t *testing.T) {
	side := uint32(1)
	for _, test := range []struct {
		name string
		v    any
		want string
	}{
		{"string", "ping", "1070696e67"},
		{"ok", Ok[string, string]("pong"), "0010706f6e67"},
		{"err", Err[string, string]("x"), "010478"},
		{"some", Some[uint8](5), "0105"},
		{"none", None[uint8](), "00"},
		{"enum first", shape{Circle: &side}, "0001000000"},
		{"enum unit", shape{Empty: &struct{}{}}, "01"},
		{"enum tagged", shape{Rect: &rect{W: 1, H: 2}}, "0501000200"},
		{"map sorted", map[uint16]bool{256: true, 1: false}, "08010000000101"},
		{"bytes", []byte{1, 2}, "080102"},
		{"array", [3]uint8{1, 2, 3}, "010203"},
		{"tuple", Tuple2[uint8, string]{V0: 1, V1: "a"}, "010461"},
		{"u128", NewU128(1), "01000000000000000000000000000000"},
		{"i128", NewI128(-1), "ffffffffffffffffffffffffffffffff"},
		{"unit", Unit{}, ""},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Marshal(test.v)
			if err != nil {
				t.Fatal(err)
			}
			if h := hex.EncodeToString(got); h != test.want {
				t.Fatalf("Marshal(%v) = %s, want %s", test.v, h, test.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"short u32", []byte{1, 2}, new(uint32)},
		{"trailing", []byte{1, 2}, new(uint8)},
		{"bad bool", []byte{2}, new(bool)},
		{"bad utf8", []byte{4, 0xff}, new(string)},
		{"long string", []byte{0xff, 0xff}, new(string)},
		{"bad variant", []byte{9}, new(shape)},
		{"bad option", []byte{3}, new(Option[uint8])},
		{"short u32 vec", []byte{0x0c, 1, 2, 3, 4, 5, 6, 7, 8}, new([]uint32)},
		{"too many units", []byte{0x06, 0x00, 0x40, 0x00}, new([]Unit)},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := Unmarshal(test.data, test.dst)
			if err == nil {
				t.Fatal("Unmarshal succeeded, want error")
			}
			if !IsDecodeError(err) {
				t.Fatalf("error %v is not a decode error", err)
			}
		})
	}
}

func TestZeroSizeElements(t *testing.T) {
	var units []Unit
	if err := Unmarshal([]byte{0x0c}, &units); err != nil {
		t.Fatal(err)
	}
	if len(units) != 3 {
		t.Errorf("decoded %d units, want 3", len(units))
	}
	var tuples [][0]uint32
	if err := Unmarshal([]byte{0x08}, &tuples); err != nil || len(tuples) != 2 {
		t.Errorf("Unmarshal = %v, %d elements", err, len(tuples))
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Marshal(shape{}); err == nil {
		t.Error("enum without variant encoded")
	}
	if _, err := Marshal(struct{ N int }{1}); err == nil {
		t.Error("int encoded")
	}
	if _, err := Marshal(string([]byte{0xff})); err == nil {
		t.Error("invalid utf-8 encoded")
	}
}

func TestCatchPanicsRethrows(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("foreign panic swallowed")
		}
	}()
	func() {
		defer func() { _ = CatchPanics(recover()) }()
		panic(errors.New("boom"))
	}()
}

func TestU128(t *testing.T) {
	a := NewU128(math.MaxUint64)
	sum, overflow := a.Add(NewU128(1))
	if overflow || sum != (U128{Hi: 1}) {
		t.Fatalf("Add = %v %v", sum, overflow)
	}
	if _, under := NewU128(1).Sub(NewU128(2)); !under {
		t.Fatal("Sub did not underflow")
	}
	back, err := U128FromBig(sum.Big())
	if err != nil || back != sum {
		t.Fatalf("U128FromBig = %v %v", back, err)
	}
	text, _ := sum.MarshalText()
	var parsed U128
	if err := parsed.UnmarshalText(text); err != nil || parsed != sum {
		t.Fatalf("UnmarshalText(%s) = %v %v", text, parsed, err)
	}
	if NewI128(-5).String() != "-5" {
		t.Fatalf("I128 = %s", NewI128(-5))
	}
}

func TestActorIDText(t *testing.T) {
	id := ActorID{0xab}
	text, _ := id.MarshalText()
	if !bytes.HasPrefix(text, []byte("0xab00")) {
		t.Fatalf("MarshalText = %s", text)
	}
	parsed, err := ParseActorID(string(text))
	if err != nil || parsed != id {
		t.Fatalf("ParseActorID = %v %v", parsed, err)
	}
}
