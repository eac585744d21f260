package wire

import (
	"bytes"

	"github.com/kanengo/rigging/runtime/scale"
)

// EncodeEvent returns SCALE(route) ++ SCALE(name) ++ SCALE(payload). A nil
// payload encodes as unit.
func EncodeEvent(route, name string, payload any) ([]byte, error) {
	prefix := Prefix(route, name)
	if payload == nil {
		return prefix, nil
	}
	return EncodeParams(prefix, payload)
}

// EventSet decodes events of one service. Names are matched by their exact
// encoded bytes, longest first.
type EventSet struct {
	route   []byte
	names   []string
	encoded [][]byte
}

func NewEventSet(route string, names ...string) *EventSet {
	s := &EventSet{route: EncodeName(route), names: names}
	for _, n := range names {
		s.encoded = append(s.encoded, EncodeName(n))
	}
	return s
}

// Matches reports whether payload carries this service's route.
func (s *EventSet) Matches(payload []byte) bool {
	return bytes.HasPrefix(payload, s.route)
}

// Split returns the event name and its still encoded payload.
func (s *EventSet) Split(payload []byte) (string, []byte, error) {
	if !s.Matches(payload) {
		return "", nil, ErrEventPrefixMismatches
	}
	rest := payload[len(s.route):]
	i, ok := MatchLongest(rest, s.encoded)
	if !ok {
		return "", nil, ErrEventNameIsNotFound
	}
	return s.names[i], rest[len(s.encoded[i]):], nil
}

// Decode splits payload and decodes the body into ptr, which may be nil for
// payload-less events.
func (s *EventSet) Decode(payload []byte, ptr any) (string, error) {
	name, body, err := s.Split(payload)
	if err != nil {
		return "", err
	}
	if ptr == nil {
		ptr = &scale.Unit{}
	}
	if err := scale.Unmarshal(body, ptr); err != nil {
		return name, err
	}
	return name, nil
}
