// Package wire maps typed calls, replies and events onto byte payloads.
//
// A request is SCALE(route) ++ SCALE(name) ++ params, a reply repeats the
// request prefix followed by SCALE(reply), an event is SCALE(route) ++
// SCALE(event name) ++ SCALE(payload). Constructor calls carry no route.
package wire

import (
	"bytes"
	"fmt"

	"github.com/kanengo/rigging/runtime/scale"
)

// EncodeName returns the SCALE encoding of a route or method name.
func EncodeName(name string) []byte {
	e := scale.NewEncoder(len(name) + 5)
	e.String(name)
	return e.Data()
}

// Prefix returns SCALE(route) ++ SCALE(name).
func Prefix(route, name string) []byte {
	e := scale.NewEncoder(len(route) + len(name) + 10)
	e.String(route)
	e.String(name)
	return e.Data()
}

// CtorPrefix returns the prefix of a constructor call.
func CtorPrefix(name string) []byte {
	return EncodeName(name)
}

// MatchLongest returns the index of the longest candidate that prefixes
// payload. Candidates are compared as raw bytes.
func MatchLongest(payload []byte, candidates [][]byte) (int, bool) {
	best, bestLen := -1, -1
	for i, c := range candidates {
		if len(c) > bestLen && bytes.HasPrefix(payload, c) {
			best, bestLen = i, len(c)
		}
	}
	return best, best >= 0
}

// EncodeParams appends the SCALE encoding of a params struct to prefix.
// The struct fields are the parameters in declared order, so zero params
// encode to nothing, one param encodes bare and more encode as a tuple.
func EncodeParams(prefix []byte, params any) ([]byte, error) {
	body, err := scale.Marshal(params)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...), nil
}

// DecodeTail verifies payload starts with prefix and decodes the rest into ptr.
func DecodeTail(payload, prefix []byte, ptr any) error {
	if !bytes.HasPrefix(payload, prefix) {
		return ErrReplyPrefixMismatches
	}
	if err := scale.Unmarshal(payload[len(prefix):], ptr); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// IO ties a function to its route, parameter and reply types. P is the
// params struct, R the declared reply type.
type IO[P, R any] struct {
	Route   string
	Name    string
	EntryID uint16
	Query   bool
	Async   bool

	prefix []byte
}

func NewIO[P, R any](route, name string, entryID uint16) *IO[P, R] {
	return &IO[P, R]{Route: route, Name: name, EntryID: entryID, prefix: Prefix(route, name)}
}

// NewCtorIO describes a constructor, which has no route.
func NewCtorIO[P any](name string, entryID uint16) *IO[P, scale.Unit] {
	return &IO[P, scale.Unit]{Name: name, EntryID: entryID, prefix: CtorPrefix(name)}
}

// RouteBytes returns the encoded (route, name) prefix.
func (io *IO[P, R]) RouteBytes() []byte {
	return io.prefix
}

func (io *IO[P, R]) EncodeCall(params P) ([]byte, error) {
	return EncodeParams(io.prefix, params)
}

func (io *IO[P, R]) DecodeParams(payload []byte) (P, error) {
	var p P
	if !bytes.HasPrefix(payload, io.prefix) {
		return p, fmt.Errorf("%s/%s: call prefix mismatches", io.Route, io.Name)
	}
	err := scale.Unmarshal(payload[len(io.prefix):], &p)
	return p, err
}

func (io *IO[P, R]) EncodeReply(reply R) ([]byte, error) {
	return EncodeParams(io.prefix, reply)
}

// DecodeReply verifies the reply prefix and decodes the declared reply type.
func (io *IO[P, R]) DecodeReply(payload []byte) (R, error) {
	var r R
	err := DecodeTail(payload, io.prefix, &r)
	return r, err
}
