package scale

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Marshaler is implemented by types that encode themselves.
type Marshaler interface {
	EncodeScale(e *Encoder)
}

// Unmarshaler is implemented by types that decode themselves.
type Unmarshaler interface {
	DecodeScale(d *Decoder)
}

var (
	marshalerType   = reflect.TypeFor[Marshaler]()
	unmarshalerType = reflect.TypeFor[Unmarshaler]()
	enumType        = reflect.TypeFor[Enum]()
	tupleType       = reflect.TypeFor[Tuple]()
	charType        = reflect.TypeFor[Char]()
)

// Marshal returns the SCALE encoding of v.
//
// Supported: bool, fixed size integers, Char, string, arrays, slices, maps,
// pointers (as options), structs (fields in order), Enum structs and every
// type implementing Marshaler. int, uint, floats, channels and funcs are not.
func Marshal(v any) (data []byte, err error) {
	defer func() { err = CatchPanics(recover()) }()
	e := NewEncoder()
	e.Encode(v)
	return e.Data(), nil
}

// Unmarshal decodes data into ptr. All bytes must be consumed.
func Unmarshal(data []byte, ptr any) (err error) {
	defer func() { err = CatchPanics(recover()) }()
	d := NewDecoder(data)
	d.Decode(ptr)
	d.Finish()
	return nil
}

func encodeValue(e *Encoder, v any) {
	if v == nil {
		panic(makeEncodeError("cannot encode nil"))
	}
	encodeReflect(e, reflect.ValueOf(v))
}

func decodeValue(d *Decoder, ptr any) {
	if u, ok := ptr.(Unmarshaler); ok {
		u.DecodeScale(d)
		return
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		panic(makeDecodeError("decode target must be a non-nil pointer, got %T", ptr))
	}
	decodeReflect(d, rv.Elem())
}

func encodeReflect(e *Encoder, v reflect.Value) {
	t := v.Type()
	if t.Kind() != reflect.Pointer {
		if t.Implements(marshalerType) {
			v.Interface().(Marshaler).EncodeScale(e)
			return
		}
		if reflect.PointerTo(t).Implements(marshalerType) {
			if !v.CanAddr() {
				c := reflect.New(t)
				c.Elem().Set(v)
				v = c.Elem()
			}
			v.Addr().Interface().(Marshaler).EncodeScale(e)
			return
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		e.Bool(v.Bool())
	case reflect.Int8:
		e.Int8(int8(v.Int()))
	case reflect.Int16:
		e.Int16(int16(v.Int()))
	case reflect.Int32:
		if t == charType {
			e.Char(rune(v.Int()))
			return
		}
		e.Int32(int32(v.Int()))
	case reflect.Int64:
		e.Int64(v.Int())
	case reflect.Uint8:
		e.Uint8(uint8(v.Uint()))
	case reflect.Uint16:
		e.Uint16(uint16(v.Uint()))
	case reflect.Uint32:
		e.Uint32(uint32(v.Uint()))
	case reflect.Uint64:
		e.Uint64(v.Uint())
	case reflect.String:
		e.String(v.String())
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, t.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			e.Raw(b)
			return
		}
		for i := 0; i < v.Len(); i++ {
			encodeReflect(e, v.Index(i))
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && !t.Elem().Implements(marshalerType) {
			e.Bytes(v.Bytes())
			return
		}
		e.Len(v.Len())
		for i := 0; i < v.Len(); i++ {
			encodeReflect(e, v.Index(i))
		}
	case reflect.Map:
		encodeMap(e, v)
	case reflect.Pointer:
		if v.IsNil() {
			e.Uint8(0)
			return
		}
		e.Uint8(1)
		encodeReflect(e, v.Elem())
	case reflect.Interface:
		if v.IsNil() {
			panic(makeEncodeError("cannot encode nil interface %v", t))
		}
		encodeReflect(e, v.Elem())
	case reflect.Struct:
		info := structInfoOf(t)
		if info.enum {
			encodeEnum(e, v, info)
			return
		}
		for _, f := range info.fields {
			encodeReflect(e, v.Field(f.index))
		}
	default:
		panic(makeEncodeError("unsupported type %v", t))
	}
}

func encodeEnum(e *Encoder, v reflect.Value, info *structInfo) {
	set := -1
	for i, f := range info.fields {
		if !v.Field(f.index).IsNil() {
			if set >= 0 {
				panic(makeEncodeError("enum %v has more than one variant set", v.Type()))
			}
			set = i
		}
	}
	if set < 0 {
		panic(makeEncodeError("enum %v has no variant set", v.Type()))
	}
	f := info.fields[set]
	e.Uint8(f.variant)
	encodeReflect(e, v.Field(f.index).Elem())
}

func encodeMap(e *Encoder, v reflect.Value) {
	keys := v.MapKeys()
	sortKeys(keys)
	e.Len(len(keys))
	for _, k := range keys {
		encodeReflect(e, k)
		encodeReflect(e, v.MapIndex(k))
	}
}

// sortKeys orders map keys the way an ordered map would iterate them.
func sortKeys(keys []reflect.Value) {
	if len(keys) == 0 {
		return
	}
	switch keys[0].Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmpOrdered(a.Int(), b.Int()) })
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmpOrdered(a.Uint(), b.Uint()) })
	case reflect.String:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
	default:
		encoded := make(map[int][]byte, len(keys))
		idx := make([]int, len(keys))
		for i, k := range keys {
			enc := NewEncoder()
			encodeReflect(enc, k)
			encoded[i] = enc.Data()
			idx[i] = i
		}
		slices.SortFunc(idx, func(a, b int) int { return bytes.Compare(encoded[a], encoded[b]) })
		sorted := make([]reflect.Value, len(keys))
		for i, j := range idx {
			sorted[i] = keys[j]
		}
		copy(keys, sorted)
	}
}

func cmpOrdered[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func decodeReflect(d *Decoder, v reflect.Value) {
	t := v.Type()
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(unmarshalerType) {
		v.Addr().Interface().(Unmarshaler).DecodeScale(d)
		return
	}

	switch t.Kind() {
	case reflect.Bool:
		v.SetBool(d.Bool())
	case reflect.Int8:
		v.SetInt(int64(d.Int8()))
	case reflect.Int16:
		v.SetInt(int64(d.Int16()))
	case reflect.Int32:
		if t == charType {
			v.SetInt(int64(d.Char()))
			return
		}
		v.SetInt(int64(d.Int32()))
	case reflect.Int64:
		v.SetInt(d.Int64())
	case reflect.Uint8:
		v.SetUint(uint64(d.Uint8()))
	case reflect.Uint16:
		v.SetUint(uint64(d.Uint16()))
	case reflect.Uint32:
		v.SetUint(uint64(d.Uint32()))
	case reflect.Uint64:
		v.SetUint(d.Uint64())
	case reflect.String:
		v.SetString(d.String())
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			reflect.Copy(v, reflect.ValueOf(d.Raw(t.Len())))
			return
		}
		for i := 0; i < v.Len(); i++ {
			decodeReflect(d, v.Index(i))
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && !reflect.PointerTo(t.Elem()).Implements(unmarshalerType) {
			b := d.Bytes()
			s := reflect.MakeSlice(t, len(b), len(b))
			reflect.Copy(s, reflect.ValueOf(b))
			v.Set(s)
			return
		}
		n := d.LenOf(minEncodedSize(t.Elem()))
		s := reflect.MakeSlice(t, n, n)
		for i := 0; i < n; i++ {
			decodeReflect(d, s.Index(i))
		}
		v.Set(s)
	case reflect.Map:
		n := d.LenOf(minEncodedSize(t.Key()) + minEncodedSize(t.Elem()))
		m := reflect.MakeMapWithSize(t, n)
		for i := 0; i < n; i++ {
			k := reflect.New(t.Key()).Elem()
			decodeReflect(d, k)
			val := reflect.New(t.Elem()).Elem()
			decodeReflect(d, val)
			m.SetMapIndex(k, val)
		}
		v.Set(m)
	case reflect.Pointer:
		switch b := d.Uint8(); b {
		case 0:
			v.Set(reflect.Zero(t))
		case 1:
			p := reflect.New(t.Elem())
			decodeReflect(d, p.Elem())
			v.Set(p)
		default:
			panic(makeDecodeError("invalid option tag %#x", b))
		}
	case reflect.Struct:
		info := structInfoOf(t)
		if info.enum {
			decodeEnum(d, v, info)
			return
		}
		for _, f := range info.fields {
			decodeReflect(d, v.Field(f.index))
		}
	default:
		panic(makeDecodeError("unsupported type %v", t))
	}
}

func decodeEnum(d *Decoder, v reflect.Value, info *structInfo) {
	idx := d.Uint8()
	for _, f := range info.fields {
		if f.variant != idx {
			continue
		}
		v.Set(reflect.Zero(v.Type()))
		field := v.Field(f.index)
		p := reflect.New(field.Type().Elem())
		decodeReflect(d, p.Elem())
		field.Set(p)
		return
	}
	panic(makeDecodeError("enum %v has no variant with index %d", v.Type(), idx))
}

// Field describes an encoded struct field or enum variant.
type Field struct {
	Name    string
	Index   int
	Variant uint8
	Type    reflect.Type
	Tag     reflect.StructTag
}

type structInfo struct {
	enum   bool
	tuple  bool
	fields []fieldInfo
}

type fieldInfo struct {
	index   int
	variant uint8
}

var minSizes sync.Map // reflect.Type -> int

// minEncodedSize is a lower bound of the encoded size of any value of t. It
// is zero for types with their own decoder.
func minEncodedSize(t reflect.Type) int {
	if v, ok := minSizes.Load(t); ok {
		return v.(int)
	}
	n := computeMinSize(t)
	minSizes.Store(t, n)
	return n
}

func computeMinSize(t reflect.Type) int {
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(unmarshalerType) {
		return 0
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Int64, reflect.Uint64:
		return 8
	case reflect.String, reflect.Slice, reflect.Map, reflect.Pointer:
		// compact length or option tag
		return 1
	case reflect.Array:
		return t.Len() * minEncodedSize(t.Elem())
	case reflect.Struct:
		info := structInfoOf(t)
		if info.enum {
			return 1
		}
		n := 0
		for _, fi := range info.fields {
			n += minEncodedSize(t.Field(fi.index).Type)
		}
		return n
	}
	return 0
}

var structInfos sync.Map // reflect.Type -> *structInfo

func structInfoOf(t reflect.Type) *structInfo {
	if v, ok := structInfos.Load(t); ok {
		return v.(*structInfo)
	}
	info := buildStructInfo(t)
	v, _ := structInfos.LoadOrStore(t, info)
	return v.(*structInfo)
}

func buildStructInfo(t reflect.Type) *structInfo {
	info := &structInfo{}
	next := 0
	seen := map[uint8]string{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		switch {
		case f.Type == enumType:
			info.enum = true
			continue
		case f.Type == tupleType:
			info.tuple = true
			continue
		case !f.IsExported():
			continue
		}
		tag := f.Tag.Get("scale")
		if tag == "-" {
			continue
		}
		fi := fieldInfo{index: i, variant: uint8(next)}
		if idx, ok := tagIndex(tag); ok {
			fi.variant = idx
		}
		next = int(fi.variant) + 1
		info.fields = append(info.fields, fi)
	}
	if info.enum {
		for _, fi := range info.fields {
			f := t.Field(fi.index)
			if f.Type.Kind() != reflect.Pointer {
				panic(makeEncodeError("enum %v variant %s must be a pointer", t, f.Name))
			}
			if prev, ok := seen[fi.variant]; ok {
				panic(makeEncodeError("enum %v variants %s and %s share index %d", t, prev, f.Name, fi.variant))
			}
			seen[fi.variant] = f.Name
		}
	}
	return info
}

func tagIndex(tag string) (uint8, bool) {
	for _, part := range strings.Split(tag, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != "index" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			panic(makeEncodeError("invalid index tag %q: %v", tag, err))
		}
		return uint8(n), true
	}
	return 0, false
}

// IsEnum reports whether t is a struct marked with Enum.
func IsEnum(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && structInfoOf(t).enum
}

// IsTuple reports whether t is a struct marked with Tuple.
func IsTuple(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && structInfoOf(t).tuple
}

// Fields lists the encoded fields of a struct, or the variants of an Enum
// struct, in encoding order.
func Fields(t reflect.Type) []Field {
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("scale.Fields: %v is not a struct", t))
	}
	info := structInfoOf(t)
	out := make([]Field, 0, len(info.fields))
	for _, fi := range info.fields {
		f := t.Field(fi.index)
		out = append(out, Field{Name: f.Name, Index: fi.index, Variant: fi.variant, Type: f.Type, Tag: f.Tag})
	}
	if info.enum {
		slices.SortStableFunc(out, func(a, b Field) int { return int(a.Variant) - int(b.Variant) })
	}
	return out
}
