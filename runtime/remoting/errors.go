package remoting

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// TransportError is a failure reported by the runtime itself.
type TransportError struct {
	Msg string
}

func (e *TransportError) Error() string { return e.Msg }

var (
	ErrProgramNotFound = &TransportError{Msg: "program is not found"}
	ErrCodeNotFound    = &TransportError{Msg: "program code is not found"}
	ErrNotEnoughGas    = &TransportError{Msg: "not enough gas to handle program data"}
	ErrOutOfGas        = &TransportError{Msg: "out of gas"}
	ErrNotEnoughValue  = &TransportError{Msg: "not enough value"}
	ErrProgramExists   = &TransportError{Msg: "program already exists"}
	ErrClosed          = &TransportError{Msg: "transport is closed"}
)

// ErrReplyTimeout resolves a future whose deadline passed before the reply
// arrived. It matches wire.ErrReplyIsMissing.
var ErrReplyTimeout = wire.ReplyIsMissing("reply timeout")

// ErrorReply is a reply with a non-success code.
type ErrorReply struct {
	Code    ReplyCode
	Payload []byte
}

func (e *ErrorReply) Error() string {
	if utf8.Valid(e.Payload) && len(e.Payload) > 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Payload)
	}
	return fmt.Sprintf("%s: %x", e.Code, e.Payload)
}

// Unwrap exposes a UTF-8 payload as a wire ReplyHasErrorString error.
func (e *ErrorReply) Unwrap() error {
	if len(e.Payload) > 0 && utf8.Valid(e.Payload) {
		return wire.ReplyHasErrorString(string(e.Payload))
	}
	return nil
}

// Inheritor returns the actor a program exited to.
func (e *ErrorReply) Inheritor() (scale.ActorID, bool) {
	if !e.Code.IsExited() {
		return scale.ActorID{}, false
	}
	return scale.ActorIDFromBytes(e.Payload)
}

// CheckReply returns the payload of a successful reply or an *ErrorReply.
func CheckReply(r Reply) ([]byte, error) {
	if r.Code == (ReplyCode{}) && r.Missing {
		return nil, wire.ErrReplyCodeIsMissing
	}
	if r.Code.IsSuccess() {
		return r.Payload, nil
	}
	return nil, &ErrorReply{Code: r.Code, Payload: r.Payload}
}

// AsErrorReply extracts an *ErrorReply from err.
func AsErrorReply(err error) (*ErrorReply, bool) {
	var e *ErrorReply
	ok := errors.As(err, &e)
	return e, ok
}
