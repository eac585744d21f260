package rigging

import (
	"errors"
	"fmt"
)

// Dispatcher failures. Their text is the payload of the error reply.
var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrMethodNotFound   = errors.New("method not found")
	ErrCtorNotFound     = errors.New("constructor not found")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrValueNotAccepted = errors.New("value is not accepted by a non-payable function")
	ErrNotAsync         = errors.New("rigging: only async handlers can await")
	ErrStateNotCloned   = errors.New("rigging: state cannot be cloned for a read-only call")
)

// Thrown carries the declared error of a function. The dispatcher encodes it
// as the Err side of the reply rather than failing the message.
type Thrown[E any] struct {
	Value E
}

func (t *Thrown[E]) Error() string {
	return fmt.Sprintf("thrown: %v", t.Value)
}

// Throw returns the declared error v of a function registered with Throws[E].
func Throw[E any](v E) error {
	return &Thrown[E]{Value: v}
}

// panicError is a recovered handler panic.
type panicError struct {
	v any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panicked with '%v'", p.v)
}
