// Package remoting is the client side contract shared by every transport:
// activate a program, send a message and await its reply, run a read-only
// query and listen to events.
package remoting

import (
	"context"

	"github.com/kanengo/rigging/runtime/scale"
)

type Remoting interface {
	// Activate creates a program from uploaded code. The future resolves to
	// the new program id and the constructor reply.
	Activate(ctx context.Context, code scale.CodeID, salt []byte, payload []byte, args Args) (*Future[Activation], error)
	// Message sends payload to target and returns a future of the reply payload.
	Message(ctx context.Context, target scale.ActorID, payload []byte, args Args) (*Future[[]byte], error)
	// Query computes the reply of payload without changing program state.
	Query(ctx context.Context, target scale.ActorID, payload []byte, args Args) ([]byte, error)
	// Listen streams events until ctx is done.
	Listen(ctx context.Context) (<-chan Event, error)
}

type Activation struct {
	ProgramID scale.ActorID
	Reply     []byte
}

// Event is a payload a program sent to the zero address.
type Event struct {
	Source  scale.ActorID
	Payload []byte
}

// Reply is a reply message as delivered by a transport.
type Reply struct {
	MessageID scale.MessageID
	ReplyTo   scale.MessageID
	Source    scale.ActorID
	Payload   []byte
	Value     scale.U128
	Code      ReplyCode
	// Missing is set by transports that could not observe the reply code.
	Missing bool
}

type WaitType uint8

const (
	WaitUpTo WaitType = iota
	WaitExactly
)

// Lock bounds how many blocks an awaiting future may stay suspended.
type Lock struct {
	Blocks uint32
	Type   WaitType
}

func UpTo(blocks uint32) *Lock    { return &Lock{Blocks: blocks, Type: WaitUpTo} }
func Exactly(blocks uint32) *Lock { return &Lock{Blocks: blocks, Type: WaitExactly} }

// Args configures a single call.
type Args struct {
	// GasLimit is forwarded to the transport, zero means the transport default.
	GasLimit uint64
	// ReplyDeposit prepays gas for handling the reply.
	ReplyDeposit uint64
	// Value is transferred with the message.
	Value scale.U128
	// SenderID overrides the sender in test harnesses.
	SenderID *scale.ActorID
	// ReplyTimeout bounds, in blocks, how long the future waits for a reply.
	ReplyTimeout uint32
	// WaitLock bounds suspension of a program awaiting the reply.
	WaitLock *Lock
	// ReplyHook runs exactly once when the reply arrives, whether or not the
	// future still waits for it.
	ReplyHook func(Reply)
	// RedirectOnExit resends the message to the inheritor when the target
	// has exited.
	RedirectOnExit bool
}

// Deadline returns the number of blocks a reply may take, zero for none.
func (a Args) Deadline() uint32 {
	switch {
	case a.WaitLock != nil && a.ReplyTimeout != 0:
		return min(a.WaitLock.Blocks, a.ReplyTimeout)
	case a.WaitLock != nil:
		return a.WaitLock.Blocks
	}
	return a.ReplyTimeout
}
