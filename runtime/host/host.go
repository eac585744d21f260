// Package host is the surface a running program sees of its runtime.
package host

import (
	"context"
	"errors"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

var (
	// ErrReadOnly is returned by side effects attempted while computing a query.
	ErrReadOnly = errors.New("host: side effects are not allowed in a query")
	// ErrAlreadyReplied is returned by a second reply to the same message.
	ErrAlreadyReplied = errors.New("host: message already replied")
	// ErrExited is returned by operations after the program exited.
	ErrExited = errors.New("host: program exited")
)

// Message describes the message being handled.
type Message struct {
	ID          scale.MessageID
	Source      scale.ActorID
	Destination scale.ActorID
	Value       scale.U128
	GasLimit    uint64
	Payload     []byte
	// ReadOnly is set when the reply is computed for a query and state
	// changes are discarded.
	ReadOnly bool
}

// Host is implemented by every runtime able to execute a program. All methods
// are called from the goroutine handling the current message.
type Host interface {
	// Message returns the message being handled.
	Message() Message

	// BlockHeight returns the height of the block the message executes in.
	BlockHeight() uint32

	// Reply answers the current message with a success code.
	Reply(payload []byte, value scale.U128) error

	// ReplyError answers the current message with code, which must not be a
	// success code.
	ReplyError(code remoting.ReplyCode, payload []byte) error

	// Emit broadcasts payload to the zero address.
	Emit(payload []byte) error

	// Remoting sends messages on behalf of the program. Awaiting a returned
	// future suspends the handler until the reply arrives or the deadline
	// passes.
	Remoting() remoting.Remoting

	// Charge burns gas, failing with remoting.ErrOutOfGas when the limit is
	// exceeded.
	Charge(gas uint64) error

	// GasAvailable returns the gas left to the current message.
	GasAvailable() uint64

	// Wait suspends the handler for blocks blocks.
	Wait(ctx context.Context, blocks uint32) error

	// Exit removes the program, transferring its balance to inheritor.
	Exit(inheritor scale.ActorID) error
}

// Code is an uploadable program.
type Code interface {
	// Name identifies the code, runtimes derive the code id from it.
	Name() string
	// Instantiate returns a new program instance with an empty state cell.
	Instantiate() Actor
}

// Actor is a running program instance. Init is called with the activation
// message, Handle with every later message.
type Actor interface {
	Init(ctx context.Context, h Host)
	Handle(ctx context.Context, h Host)
}
