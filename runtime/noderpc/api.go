// Package noderpc carries remoting over JSON-RPC: a Client implementing
// remoting.Remoting and a Gateway serving a gtest.System to such clients.
package noderpc

import (
	"context"
	"errors"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

const (
	// Namespace prefixes every method name, e.g. Gear.Message.
	Namespace = "Gear"
	// Path is where a Gateway handler answers.
	Path = "/rpc/v0"
	// MetricsPath serves the metrics in text form.
	MetricsPath = "/debug/metrics"
)

type ActivateRequest struct {
	Sender         scale.ActorID
	Code           scale.CodeID
	Salt           []byte
	Payload        []byte
	Value          scale.U128
	GasLimit       uint64
	ReplyTimeout   uint32
	RedirectOnExit bool
}

type MessageRequest struct {
	Sender         scale.ActorID
	Target         scale.ActorID
	Payload        []byte
	Value          scale.U128
	GasLimit       uint64
	ReplyTimeout   uint32
	RedirectOnExit bool
}

// Submitted identifies a queued message. ProgramID is set for activations.
type Submitted struct {
	MessageID scale.MessageID
	ProgramID scale.ActorID
}

// ReplyInfo is the outcome of a message. Error is set when no reply could be
// observed, Timeout when the deadline passed first.
type ReplyInfo struct {
	Code    remoting.ReplyCode
	Payload []byte
	Value   scale.U128
	Timeout bool
	Error   string
}

type BlockInfo struct {
	Height   uint32
	Executed int
	Failed   int
	Events   int
}

type CodeInfo struct {
	Name string
	ID   scale.CodeID
}

type EventInfo struct {
	Source  scale.ActorID
	Payload []byte
}

// GearAPI is served under Namespace.
type GearAPI interface {
	Activate(ctx context.Context, req ActivateRequest) (Submitted, error)
	Message(ctx context.Context, req MessageRequest) (Submitted, error)
	WaitReply(ctx context.Context, id scale.MessageID) (ReplyInfo, error)
	Query(ctx context.Context, req MessageRequest) (ReplyInfo, error)
	Subscribe(ctx context.Context) (<-chan EventInfo, error)
	RunNextBlock(ctx context.Context) (BlockInfo, error)
	BlockHeight(ctx context.Context) (uint32, error)
	Codes(ctx context.Context) ([]CodeInfo, error)
	Balance(ctx context.Context, id scale.ActorID) (string, error)
}

// GearStruct is the client side proxy of GearAPI.
type GearStruct struct {
	Internal struct {
		Activate     func(ctx context.Context, req ActivateRequest) (Submitted, error)
		Message      func(ctx context.Context, req MessageRequest) (Submitted, error)
		WaitReply    func(ctx context.Context, id scale.MessageID) (ReplyInfo, error)
		Query        func(ctx context.Context, req MessageRequest) (ReplyInfo, error)
		Subscribe    func(ctx context.Context) (<-chan EventInfo, error)
		RunNextBlock func(ctx context.Context) (BlockInfo, error)
		BlockHeight  func(ctx context.Context) (uint32, error)
		Codes        func(ctx context.Context) ([]CodeInfo, error)
		Balance      func(ctx context.Context, id scale.ActorID) (string, error)
	}
}

var _ GearAPI = (*GearStruct)(nil)

func (s *GearStruct) Activate(ctx context.Context, req ActivateRequest) (Submitted, error) {
	return s.Internal.Activate(ctx, req)
}

func (s *GearStruct) Message(ctx context.Context, req MessageRequest) (Submitted, error) {
	return s.Internal.Message(ctx, req)
}

func (s *GearStruct) WaitReply(ctx context.Context, id scale.MessageID) (ReplyInfo, error) {
	return s.Internal.WaitReply(ctx, id)
}

func (s *GearStruct) Query(ctx context.Context, req MessageRequest) (ReplyInfo, error) {
	return s.Internal.Query(ctx, req)
}

func (s *GearStruct) Subscribe(ctx context.Context) (<-chan EventInfo, error) {
	return s.Internal.Subscribe(ctx)
}

func (s *GearStruct) RunNextBlock(ctx context.Context) (BlockInfo, error) {
	return s.Internal.RunNextBlock(ctx)
}

func (s *GearStruct) BlockHeight(ctx context.Context) (uint32, error) {
	return s.Internal.BlockHeight(ctx)
}

func (s *GearStruct) Codes(ctx context.Context) ([]CodeInfo, error) {
	return s.Internal.Codes(ctx)
}

func (s *GearStruct) Balance(ctx context.Context, id scale.ActorID) (string, error) {
	return s.Internal.Balance(ctx, id)
}

// newReplyInfo converts the outcome of a wait to its wire form.
func newReplyInfo(payload []byte, code remoting.ReplyCode, value scale.U128, err error) ReplyInfo {
	if err == nil {
		return ReplyInfo{Code: code, Payload: payload, Value: value}
	}
	if e, ok := remoting.AsErrorReply(err); ok {
		return ReplyInfo{Code: e.Code, Payload: e.Payload}
	}
	return ReplyInfo{Timeout: errors.Is(err, remoting.ErrReplyTimeout), Error: err.Error()}
}

// result is the inverse of newReplyInfo.
func (r ReplyInfo) result() ([]byte, error) {
	switch {
	case r.Timeout:
		return nil, remoting.ErrReplyTimeout
	case r.Error != "":
		return nil, &remoting.TransportError{Msg: r.Error}
	}
	return remoting.CheckReply(remoting.Reply{Code: r.Code, Payload: r.Payload, Value: r.Value})
}
