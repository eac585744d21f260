package scale

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Enum marks a struct as a tagged sum. Every other exported field of the struct
// is a pointer to a variant payload; exactly one of them is set. The variant
// index is the field order unless the field carries a `scale:"index=N"` tag.
//
//	type Shape struct {
//		scale.Enum
//		Circle *uint32
//		Empty  *struct{}
//	}
type Enum struct{}

// Tuple marks a struct whose fields are positional.
type Tuple struct{}

// Unit is the empty value, encoded as nothing.
type Unit struct{}

// Char is a unicode scalar value, encoded as u32.
type Char rune

// H160 and H256 are fixed size hashes.
type (
	H160 = common.Address
	H256 = common.Hash
	U256 = uint256.Int
)

type ActorID [32]byte

type MessageID [32]byte

type CodeID [32]byte

var ZeroActorID ActorID

func (id ActorID) String() string   { return hexutil.Encode(id[:]) }
func (id MessageID) String() string { return hexutil.Encode(id[:]) }
func (id CodeID) String() string    { return hexutil.Encode(id[:]) }

func (id ActorID) IsZero() bool { return id == ZeroActorID }

func (id ActorID) MarshalText() ([]byte, error)    { return hexText(id[:]), nil }
func (id MessageID) MarshalText() ([]byte, error)  { return hexText(id[:]), nil }
func (id CodeID) MarshalText() ([]byte, error)     { return hexText(id[:]), nil }
func (id *ActorID) UnmarshalText(b []byte) error   { return parseHexText(id[:], b) }
func (id *MessageID) UnmarshalText(b []byte) error { return parseHexText(id[:], b) }
func (id *CodeID) UnmarshalText(b []byte) error    { return parseHexText(id[:], b) }

func hexText(b []byte) []byte {
	out := make([]byte, 2+hex.EncodedLen(len(b)))
	copy(out, "0x")
	hex.Encode(out[2:], b)
	return out
}

func parseHexText(dst []byte, text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// ParseActorID parses the 0x prefixed hex form of an actor id.
func ParseActorID(s string) (ActorID, error) {
	var id ActorID
	err := parseHexText(id[:], []byte(s))
	return id, err
}

// ActorIDFromBytes converts a 32 byte slice.
func ActorIDFromBytes(b []byte) (ActorID, bool) {
	var id ActorID
	if len(b) != len(id) {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// U128 is an unsigned 128-bit integer.
type U128 struct {
	Lo, Hi uint64
}

func NewU128(v uint64) U128 {
	return U128{Lo: v}
}

func U128FromBig(b *big.Int) (U128, error) {
	if b.Sign() < 0 || b.BitLen() > 128 {
		return U128{}, fmt.Errorf("%s does not fit in u128", b)
	}
	var buf [16]byte
	b.FillBytes(buf[:])
	var u U128
	for i := 0; i < 8; i++ {
		u.Hi = u.Hi<<8 | uint64(buf[i])
		u.Lo = u.Lo<<8 | uint64(buf[8+i])
	}
	return u, nil
}

func (u U128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

func (u U128) IsZero() bool { return u.Lo == 0 && u.Hi == 0 }

func (u U128) Cmp(o U128) int {
	switch {
	case u.Hi < o.Hi:
		return -1
	case u.Hi > o.Hi:
		return 1
	case u.Lo < o.Lo:
		return -1
	case u.Lo > o.Lo:
		return 1
	}
	return 0
}

// Add returns u+o and whether the sum overflowed.
func (u U128) Add(o U128) (U128, bool) {
	lo, carry := bits.Add64(u.Lo, o.Lo, 0)
	hi, carry := bits.Add64(u.Hi, o.Hi, carry)
	return U128{Lo: lo, Hi: hi}, carry != 0
}

// Sub returns u-o and whether the difference underflowed.
func (u U128) Sub(o U128) (U128, bool) {
	lo, borrow := bits.Sub64(u.Lo, o.Lo, 0)
	hi, borrow := bits.Sub64(u.Hi, o.Hi, borrow)
	return U128{Lo: lo, Hi: hi}, borrow != 0
}

func (u U128) String() string { return u.Big().String() }

func (u U128) EncodeScale(e *Encoder) {
	e.Uint64(u.Lo)
	e.Uint64(u.Hi)
}

func (u *U128) DecodeScale(d *Decoder) {
	u.Lo = d.Uint64()
	u.Hi = d.Uint64()
}

func (u U128) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *U128) UnmarshalText(b []byte) error {
	v, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return fmt.Errorf("invalid u128 %q", b)
	}
	r, err := U128FromBig(v)
	if err != nil {
		return err
	}
	*u = r
	return nil
}

// I128 is a two's complement signed 128-bit integer.
type I128 struct {
	Lo uint64
	Hi int64
}

func NewI128(v int64) I128 {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return I128{Lo: uint64(v), Hi: hi}
}

func (i I128) Big() *big.Int {
	b := new(big.Int).SetInt64(i.Hi)
	b.Lsh(b, 64)
	return b.Add(b, new(big.Int).SetUint64(i.Lo))
}

func (i I128) String() string { return i.Big().String() }

func (i I128) EncodeScale(e *Encoder) {
	e.Uint64(i.Lo)
	e.Int64(i.Hi)
}

func (i *I128) DecodeScale(d *Decoder) {
	i.Lo = d.Uint64()
	i.Hi = d.Int64()
}

// Option is an optional value, encoded as 0x00 or 0x01 followed by the value.
type Option[T any] struct {
	Some  bool
	Value T
}

func Some[T any](v T) Option[T] {
	return Option[T]{Some: true, Value: v}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Some
}

func (o Option[T]) EncodeScale(e *Encoder) {
	if !o.Some {
		e.Uint8(0)
		return
	}
	e.Uint8(1)
	e.Encode(o.Value)
}

func (o *Option[T]) DecodeScale(d *Decoder) {
	switch b := d.Uint8(); b {
	case 0:
		*o = Option[T]{}
	case 1:
		o.Some = true
		d.Decode(&o.Value)
	default:
		panic(makeDecodeError("invalid option tag %#x", b))
	}
}

// Result is either Ok(T) or Err(E).
type Result[T, E any] struct {
	IsErr bool
	Ok    T
	Err   E
}

func Ok[T, E any](v T) Result[T, E] {
	return Result[T, E]{Ok: v}
}

func Err[T, E any](e E) Result[T, E] {
	return Result[T, E]{IsErr: true, Err: e}
}

func (r Result[T, E]) EncodeScale(e *Encoder) {
	if r.IsErr {
		e.Uint8(1)
		e.Encode(r.Err)
		return
	}
	e.Uint8(0)
	e.Encode(r.Ok)
}

func (r *Result[T, E]) DecodeScale(d *Decoder) {
	switch b := d.Uint8(); b {
	case 0:
		*r = Result[T, E]{}
		d.Decode(&r.Ok)
	case 1:
		*r = Result[T, E]{IsErr: true}
		d.Decode(&r.Err)
	default:
		panic(makeDecodeError("invalid result tag %#x", b))
	}
}

type Tuple2[A, B any] struct {
	Tuple
	V0 A
	V1 B
}

type Tuple3[A, B, C any] struct {
	Tuple
	V0 A
	V1 B
	V2 C
}

type Tuple4[A, B, C, D any] struct {
	Tuple
	V0 A
	V1 B
	V2 C
	V3 D
}
