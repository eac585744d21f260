package scale

import (
	"encoding/binary"
	"unicode/utf8"
)

// Decoder reads SCALE encoded values from a byte slice. Decoding methods panic
// with a DecodeError on malformed input.
type Decoder struct {
	buf   []byte
	index int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) check(n int) {
	if n < 0 || len(d.buf)-d.index < n {
		panic(makeDecodeError("%w: need %d bytes, have %d", ErrNotEnoughData, n, len(d.buf)-d.index))
	}
}

// Remaining returns the number of undecoded bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.index
}

// Rest returns the undecoded tail without consuming it.
func (d *Decoder) Rest() []byte {
	return d.buf[d.index:]
}

func (d *Decoder) Offset() int {
	return d.index
}

// Finish fails when undecoded bytes remain.
func (d *Decoder) Finish() {
	if d.Remaining() != 0 {
		panic(makeDecodeError("%w: %d", ErrTrailingBytes, d.Remaining()))
	}
}

func (d *Decoder) Raw(n int) []byte {
	d.check(n)
	b := d.buf[d.index : d.index+n]
	d.index += n
	return b
}

func (d *Decoder) Bool() bool {
	switch b := d.Uint8(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		panic(makeDecodeError("invalid bool byte %#x", b))
	}
}

func (d *Decoder) Uint8() uint8 {
	d.check(1)
	v := d.buf[d.index]
	d.index++
	return v
}

func (d *Decoder) Uint16() uint16 {
	d.check(2)
	v := binary.LittleEndian.Uint16(d.buf[d.index:])
	d.index += 2
	return v
}

func (d *Decoder) Uint32() uint32 {
	d.check(4)
	v := binary.LittleEndian.Uint32(d.buf[d.index:])
	d.index += 4
	return v
}

func (d *Decoder) Uint64() uint64 {
	d.check(8)
	v := binary.LittleEndian.Uint64(d.buf[d.index:])
	d.index += 8
	return v
}

func (d *Decoder) Int8() int8   { return int8(d.Uint8()) }
func (d *Decoder) Int16() int16 { return int16(d.Uint16()) }
func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }
func (d *Decoder) Int64() int64 { return int64(d.Uint64()) }

func (d *Decoder) Char() rune {
	v := rune(d.Uint32())
	if !utf8.ValidRune(v) {
		panic(makeDecodeError("invalid char %#x", uint32(v)))
	}
	return v
}

// Compact reads a SCALE compact integer. Non canonical encodings are rejected.
func (d *Decoder) Compact() uint64 {
	d.check(1)
	b := d.buf[d.index]
	switch b & 0b11 {
	case 0b00:
		d.index++
		return uint64(b >> 2)
	case 0b01:
		v := uint64(d.Uint16() >> 2)
		if v < 1<<6 {
			panic(makeDecodeError("non-canonical compact %d", v))
		}
		return v
	case 0b10:
		v := uint64(d.Uint32() >> 2)
		if v < 1<<14 {
			panic(makeDecodeError("non-canonical compact %d", v))
		}
		return v
	}

	d.index++
	n := int(b>>2) + 4
	if n > 8 {
		panic(makeDecodeError("compact integer of %d bytes overflows u64", n))
	}
	raw := d.Raw(n)
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	if raw[n-1] == 0 || v < 1<<30 {
		panic(makeDecodeError("non-canonical compact %d", v))
	}
	return v
}

// MaxEmptyLen bounds the length of collections whose elements may encode to
// nothing, such as []Unit.
const MaxEmptyLen = 1 << 20

// Len reads the length of a byte sequence and checks it against the input
// size.
func (d *Decoder) Len() int {
	return d.LenOf(1)
}

// LenOf reads the length of a collection whose elements encode to at least
// minSize bytes each.
func (d *Decoder) LenOf(minSize int) int {
	n := d.Compact()
	if minSize <= 0 {
		if n > MaxEmptyLen {
			panic(makeDecodeError("length %d of zero-size elements exceeds %d", n, MaxEmptyLen))
		}
		return int(n)
	}
	if n > uint64(d.Remaining()/minSize) {
		panic(makeDecodeError("%w: length %d of %d-byte elements exceeds remaining %d", ErrNotEnoughData, n, minSize, d.Remaining()))
	}
	return int(n)
}

func (d *Decoder) Bytes() []byte {
	n := d.Len()
	b := make([]byte, n)
	copy(b, d.Raw(n))
	return b
}

func (d *Decoder) String() string {
	n := d.Len()
	raw := d.Raw(n)
	if !utf8.Valid(raw) {
		panic(makeDecodeError("string is not valid utf-8"))
	}
	return string(raw)
}

// Decode reads into the value pointed to by ptr using reflection.
func (d *Decoder) Decode(ptr any) {
	decodeValue(d, ptr)
}
