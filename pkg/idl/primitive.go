package idl

type Primitive uint8

const (
	Null Primitive = iota + 1
	Bool
	Char
	Str
	U8
	U16
	U32
	U64
	U128
	I8
	I16
	I32
	I64
	I128
	H160
	H256
	U256
	ActorID
	MessageID
	CodeID
)

var primitiveNames = map[Primitive]string{
	Null:      "null",
	Bool:      "bool",
	Char:      "char",
	Str:       "str",
	U8:        "u8",
	U16:       "u16",
	U32:       "u32",
	U64:       "u64",
	U128:      "u128",
	I8:        "i8",
	I16:       "i16",
	I32:       "i32",
	I64:       "i64",
	I128:      "i128",
	H160:      "h160",
	H256:      "h256",
	U256:      "u256",
	ActorID:   "actor_id",
	MessageID: "message_id",
	CodeID:    "code_id",
}

var primitiveByName = func() map[string]Primitive {
	m := make(map[string]Primitive, len(primitiveNames))
	for p, n := range primitiveNames {
		m[n] = p
	}
	return m
}()

func (p Primitive) String() string {
	return primitiveNames[p]
}

// PrimitiveByName returns the primitive spelled name.
func PrimitiveByName(name string) (Primitive, bool) {
	p, ok := primitiveByName[name]
	return p, ok
}

// keywords cannot name types.
var keywords = map[string]bool{
	"type": true, "struct": true, "enum": true, "service": true, "constructor": true,
	"query": true, "events": true, "extends": true, "opt": true, "vec": true,
	"result": true, "map": true, "null": true, "throws": true,
}

func IsKeyword(name string) bool {
	_, prim := primitiveByName[name]
	return keywords[name] || prim
}
