package gtest

import (
	"context"
	"fmt"

	"github.com/kanengo/rigging/internal/umath"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

// execution is one message being handled. The handler runs on its own
// goroutine while the system goroutine waits; control passes back through
// yield whenever the handler finishes or suspends.
type execution struct {
	sys  *System
	prog *program
	msg  *message
	info host.Message

	gasUsed  uint64
	outOfGas bool

	replied      bool
	replyCode    remoting.ReplyCode
	replyPayload []byte
	panicked     any

	yield    chan struct{}
	resume   chan error
	finished bool
}

var _ host.Host = (*execution)(nil)

func (s *System) newExecution(p *program, m *message, readOnly bool) *execution {
	return &execution{
		sys:  s,
		prog: p,
		msg:  m,
		info: host.Message{
			ID:          m.ID,
			Source:      m.Source,
			Destination: m.Destination,
			Value:       m.Value,
			GasLimit:    m.gasLimit,
			Payload:     m.Payload,
			ReadOnly:    readOnly,
		},
		gasUsed: messageCost(m.Payload),
		yield:   make(chan struct{}),
		resume:  make(chan error),
	}
}

// start runs the handler until it finishes or suspends.
func (s *System) start(x *execution) {
	go x.run()
	<-x.yield
	s.settle(x)
}

// resume hands control back to a suspended handler.
func (s *System) resume(x *execution, err error) {
	delete(s.suspended, x)
	x.resume <- err
	<-x.yield
	s.settle(x)
}

func (x *execution) run() {
	defer func() {
		if r := recover(); r != nil {
			x.panicked = r
		}
		x.finished = true
		x.yield <- struct{}{}
	}()
	ctx := context.Background()
	if x.msg.init {
		x.prog.actor.Init(ctx, x)
		return
	}
	x.prog.actor.Handle(ctx, x)
}

func (x *execution) suspend() error {
	x.sys.suspended[x] = true
	x.yield <- struct{}{}
	return <-x.resume
}

// settle finalizes a finished execution. A handler that did not reply gets
// an automatic reply.
func (s *System) settle(x *execution) {
	if !x.finished || x.info.ReadOnly {
		return
	}
	if !x.replied {
		switch {
		case x.outOfGas:
			x.sendReply(remoting.ExecutionErrorCode(remoting.RanOutOfGas), nil, scale.U128{})
		case x.panicked != nil:
			x.sendReply(remoting.ExecutionErrorCode(remoting.UserspacePanic), []byte(fmt.Sprint(x.panicked)), scale.U128{})
		default:
			x.sendReply(remoting.SuccessCode(remoting.SuccessAuto), nil, scale.U128{})
		}
	}
	if x.msg.init && x.prog.status == statusUninitialized {
		if x.replyCode.IsSuccess() {
			x.prog.status = statusActive
		} else {
			x.prog.status = statusInitFailed
		}
	}

	failed := !x.replyCode.IsSuccess()
	if res := s.result; res != nil {
		res.Executed = append(res.Executed, x.msg.ID)
		res.GasBurned[x.msg.ID] = x.gasUsed
		if failed {
			res.Failed[x.msg.ID] = true
		} else {
			res.Succeed[x.msg.ID] = true
		}
	}
	s.logger.Debug("message executed",
		"message", x.msg.ID.String(),
		"program", x.prog.id.String(),
		"gas", x.gasUsed,
		"code", x.replyCode.String())
}

// sendReply answers the current message. Error replies return the message
// value to its sender.
func (x *execution) sendReply(code remoting.ReplyCode, payload []byte, value scale.U128) error {
	if x.replied {
		return host.ErrAlreadyReplied
	}
	if x.info.ReadOnly {
		if !value.IsZero() {
			return host.ErrReadOnly
		}
		x.replied, x.replyCode, x.replyPayload = true, code, payload
		return nil
	}
	if code.IsError() {
		value = x.msg.Value
	}
	s := x.sys
	if err := s.debit(x.prog.id, toU256(value)); err != nil {
		return err
	}
	x.replied, x.replyCode, x.replyPayload = true, code, payload
	if s.result != nil {
		s.result.ReplyCodes[x.msg.ID] = code
	}
	s.enqueue(&message{MessageRecord: MessageRecord{
		ID:          s.nextMessageID(),
		Source:      x.prog.id,
		Destination: x.msg.Source,
		Payload:     payload,
		Value:       value,
		Block:       s.height,
		IsReply:     true,
		ReplyTo:     x.msg.ID,
		Code:        code,
	}})
	return nil
}

func (x *execution) Message() host.Message { return x.info }

func (x *execution) BlockHeight() uint32 { return x.sys.height }

func (x *execution) Reply(payload []byte, value scale.U128) error {
	if err := x.Charge(GasPerReply + GasPerByte*uint64(len(payload))); err != nil {
		return err
	}
	return x.sendReply(remoting.SuccessCode(remoting.SuccessManual), payload, value)
}

func (x *execution) ReplyError(code remoting.ReplyCode, payload []byte) error {
	if code.IsSuccess() {
		return fmt.Errorf("gtest: %s is not an error code", code)
	}
	if x.outOfGas {
		code, payload = remoting.ExecutionErrorCode(remoting.RanOutOfGas), nil
	}
	return x.sendReply(code, payload, scale.U128{})
}

// Emit drops events of a read-only computation.
func (x *execution) Emit(payload []byte) error {
	if err := x.Charge(GasPerEmit + GasPerByte*uint64(len(payload))); err != nil {
		return err
	}
	if !x.info.ReadOnly {
		x.sys.emit(x.prog.id, payload)
	}
	return nil
}

func (x *execution) Remoting() remoting.Remoting {
	if x.info.ReadOnly {
		return readOnlyRemoting{}
	}
	return programRemoting{x}
}

func (x *execution) Charge(gas uint64) error {
	if x.outOfGas {
		return remoting.ErrOutOfGas
	}
	x.gasUsed = umath.SaturatingAdd(x.gasUsed, gas)
	if x.gasUsed > x.info.GasLimit {
		x.gasUsed = x.info.GasLimit
		x.outOfGas = true
		return remoting.ErrOutOfGas
	}
	return nil
}

func (x *execution) GasAvailable() uint64 {
	return x.info.GasLimit - x.gasUsed
}

func (x *execution) Wait(_ context.Context, blocks uint32) error {
	if x.info.ReadOnly {
		return host.ErrReadOnly
	}
	if blocks == 0 {
		return nil
	}
	s := x.sys
	s.sleepers = append(s.sleepers, sleeper{x: x, until: s.height + blocks})
	return x.suspend()
}

func (x *execution) Exit(inheritor scale.ActorID) error {
	if x.info.ReadOnly {
		return host.ErrReadOnly
	}
	p := x.prog
	if p.status == statusExited {
		return host.ErrExited
	}
	s := x.sys
	p.status = statusExited
	p.inheritor = inheritor
	if b, ok := s.balances[p.id]; ok {
		s.credit(inheritor, b)
		delete(s.balances, p.id)
	}
	s.logger.Debug("program exited", "program", p.id.String(), "inheritor", inheritor.String())
	return nil
}

// await suspends the handler until a resolves.
func (x *execution) await(a *awaiter) (remoting.Reply, error) {
	if !a.done {
		a.waiter = x
		if err := x.suspend(); err != nil {
			return remoting.Reply{}, err
		}
	}
	return a.reply, a.err
}

// programRemoting sends messages on behalf of a running program.
type programRemoting struct {
	x *execution
}

func (r programRemoting) Activate(_ context.Context, code scale.CodeID, salt []byte, payload []byte, args remoting.Args) (*remoting.Future[remoting.Activation], error) {
	x := r.x
	if err := x.Charge(GasPerSend + args.ReplyDeposit); err != nil {
		return nil, err
	}
	id, a, err := x.sys.activate(x.prog.id, code, salt, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(a.msg.ID, func(context.Context) (remoting.Activation, error) {
		reply, err := x.await(a)
		if err != nil {
			return remoting.Activation{}, err
		}
		return activation(id, reply)
	}), nil
}

func (r programRemoting) Message(_ context.Context, target scale.ActorID, payload []byte, args remoting.Args) (*remoting.Future[[]byte], error) {
	x := r.x
	if err := x.Charge(GasPerSend + GasPerByte*uint64(len(payload)) + args.ReplyDeposit); err != nil {
		return nil, err
	}
	m, a, err := x.sys.send(x.prog.id, target, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(m.ID, func(context.Context) ([]byte, error) {
		reply, err := x.await(a)
		if err != nil {
			return nil, err
		}
		return remoting.CheckReply(reply)
	}), nil
}

// Query from a program is answered synchronously without a block.
func (r programRemoting) Query(ctx context.Context, target scale.ActorID, payload []byte, args remoting.Args) ([]byte, error) {
	x := r.x
	if err := x.Charge(GasPerSend + GasPerByte*uint64(len(payload))); err != nil {
		return nil, err
	}
	return x.sys.query(x.prog.id, target, payload, args)
}

func (r programRemoting) Listen(context.Context) (<-chan remoting.Event, error) {
	return nil, fmt.Errorf("gtest: programs cannot listen to events")
}

type readOnlyRemoting struct{}

func (readOnlyRemoting) Activate(context.Context, scale.CodeID, []byte, []byte, remoting.Args) (*remoting.Future[remoting.Activation], error) {
	return nil, host.ErrReadOnly
}

func (readOnlyRemoting) Message(context.Context, scale.ActorID, []byte, remoting.Args) (*remoting.Future[[]byte], error) {
	return nil, host.ErrReadOnly
}

func (readOnlyRemoting) Query(context.Context, scale.ActorID, []byte, remoting.Args) ([]byte, error) {
	return nil, host.ErrReadOnly
}

func (readOnlyRemoting) Listen(context.Context) (<-chan remoting.Event, error) {
	return nil, host.ErrReadOnly
}

func activation(id scale.ActorID, reply remoting.Reply) (remoting.Activation, error) {
	payload, err := remoting.CheckReply(reply)
	if err != nil {
		return remoting.Activation{}, err
	}
	return remoting.Activation{ProgramID: id, Reply: payload}, nil
}

// query runs payload against target in read-only mode.
func (s *System) query(source, target scale.ActorID, payload []byte, args remoting.Args) ([]byte, error) {
	p, ok := s.programs[target]
	if !ok {
		return nil, remoting.ErrProgramNotFound
	}
	switch p.status {
	case statusExited:
		return nil, &remoting.ErrorReply{Code: remoting.UnavailableActorCode(remoting.ProgramExited), Payload: p.inheritor[:]}
	case statusInitFailed:
		return nil, &remoting.ErrorReply{Code: remoting.UnavailableActorCode(remoting.InitializationFailure)}
	case statusUninitialized:
		return nil, &remoting.ErrorReply{Code: remoting.UnavailableActorCode(remoting.Uninitialized)}
	}
	gas := args.GasLimit
	if gas == 0 {
		gas = DefaultGasLimit
	}
	m := &message{
		MessageRecord: MessageRecord{
			ID:          s.nextMessageID(),
			Source:      source,
			Destination: target,
			Payload:     payload,
			Value:       args.Value,
			Block:       s.height,
		},
		gasLimit: gas,
	}
	x := s.newExecution(p, m, true)
	if x.gasUsed > gas {
		return nil, &remoting.ErrorReply{Code: remoting.ExecutionErrorCode(remoting.RanOutOfGas)}
	}
	go x.run()
	<-x.yield
	switch {
	case x.outOfGas:
		return nil, &remoting.ErrorReply{Code: remoting.ExecutionErrorCode(remoting.RanOutOfGas)}
	case !x.replied && x.panicked != nil:
		return nil, &remoting.ErrorReply{
			Code:    remoting.ExecutionErrorCode(remoting.UserspacePanic),
			Payload: []byte(fmt.Sprint(x.panicked)),
		}
	case !x.replied:
		return nil, nil
	}
	return remoting.CheckReply(remoting.Reply{
		MessageID: m.ID,
		Source:    target,
		Payload:   x.replyPayload,
		Code:      x.replyCode,
	})
}
