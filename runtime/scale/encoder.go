package scale

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/kanengo/rigging/internal/umath"
)

// Encoder appends SCALE encoded values to an internal buffer. Encoding methods
// panic on unsupported input; wrap the call with CatchPanics at the boundary.
type Encoder struct {
	buf []byte
}

func NewEncoder(size ...int) *Encoder {
	if len(size) > 0 && size[0] > 0 {
		return &Encoder{buf: make([]byte, 0, umath.NextPow2(size[0]))}
	}

	return &Encoder{buf: make([]byte, 0, 64)}
}

// Data returns the encoded bytes. The encoder keeps ownership of the slice.
func (e *Encoder) Data() []byte {
	return e.buf
}

func (e *Encoder) Size() int {
	return len(e.buf)
}

func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

func (e *Encoder) grow(bytesNeeded int) {
	l := len(e.buf)
	c := cap(e.buf)
	if l+bytesNeeded <= c {
		return
	}

	buf := make([]byte, 0, umath.NextPow2(l+bytesNeeded))
	buf = append(buf, e.buf...)
	e.buf = buf
}

func (e *Encoder) Raw(b []byte) {
	e.grow(len(b))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
		return
	}
	e.Uint8(0)
}

func (e *Encoder) Uint8(v uint8) {
	e.grow(1)
	e.buf = append(e.buf, v)
}

func (e *Encoder) Uint16(v uint16) {
	e.grow(2)
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) Uint32(v uint32) {
	e.grow(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) Uint64(v uint64) {
	e.grow(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Int8(v int8)   { e.Uint8(uint8(v)) }
func (e *Encoder) Int16(v int16) { e.Uint16(uint16(v)) }
func (e *Encoder) Int32(v int32) { e.Uint32(uint32(v)) }
func (e *Encoder) Int64(v int64) { e.Uint64(uint64(v)) }

// Char encodes a unicode scalar value as u32.
func (e *Encoder) Char(v rune) {
	if !utf8.ValidRune(v) {
		panic(makeEncodeError("invalid char %#x", v))
	}
	e.Uint32(uint32(v))
}

// Compact writes v using the SCALE compact integer encoding.
func (e *Encoder) Compact(v uint64) {
	switch {
	case v < 1<<6:
		e.Uint8(uint8(v) << 2)
	case v < 1<<14:
		e.Uint16(uint16(v)<<2 | 0b01)
	case v < 1<<30:
		e.Uint32(uint32(v)<<2 | 0b10)
	default:
		n := 8
		for n > 4 && v>>(8*(n-1)) == 0 {
			n--
		}
		e.Uint8(uint8(n-4)<<2 | 0b11)
		e.grow(n)
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(v>>(8*i)))
		}
	}
}

// Len writes a collection length.
func (e *Encoder) Len(n int) {
	if n < 0 {
		panic(makeEncodeError("negative length %d", n))
	}
	e.Compact(uint64(n))
}

// Bytes writes a length prefixed byte sequence (Vec<u8>).
func (e *Encoder) Bytes(b []byte) {
	if uint64(len(b)) > math.MaxUint32 {
		panic(makeEncodeError("byte sequence too long: %d", len(b)))
	}
	e.Compact(uint64(len(b)))
	e.Raw(b)
}

// String writes a length prefixed UTF-8 string.
func (e *Encoder) String(s string) {
	if !utf8.ValidString(s) {
		panic(makeEncodeError("string is not valid utf-8"))
	}
	e.Compact(uint64(len(s)))
	e.grow(len(s))
	e.buf = append(e.buf, s...)
}

// Encode writes v using reflection, see Marshal for the supported types.
func (e *Encoder) Encode(v any) {
	encodeValue(e, v)
}
