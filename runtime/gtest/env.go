package gtest

import (
	"context"
	"fmt"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// Env is the off-chain side of a System: it implements remoting.Remoting for
// a user account.
type Env struct {
	sys    *System
	sender scale.ActorID
}

var _ remoting.Remoting = (*Env)(nil)

// Env returns a remoting sending as DefaultUser.
func (s *System) Env() *Env {
	return &Env{sys: s, sender: DefaultUser}
}

// WithSender returns a copy of e sending as id.
func (e *Env) WithSender(id scale.ActorID) *Env {
	return &Env{sys: e.sys, sender: id}
}

func (e *Env) System() *System { return e.sys }

func (e *Env) Sender() scale.ActorID { return e.sender }

func (e *Env) source(args remoting.Args) scale.ActorID {
	if args.SenderID != nil {
		return *args.SenderID
	}
	return e.sender
}

func (e *Env) Activate(_ context.Context, code scale.CodeID, salt []byte, payload []byte, args remoting.Args) (*remoting.Future[remoting.Activation], error) {
	s := e.sys
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, remoting.ErrClosed
	}
	id, a, err := s.activate(e.source(args), code, salt, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(a.msg.ID, func(ctx context.Context) (remoting.Activation, error) {
		reply, err := e.await(ctx, a)
		if err != nil {
			return remoting.Activation{}, err
		}
		return activation(id, reply)
	}), nil
}

func (e *Env) Message(_ context.Context, target scale.ActorID, payload []byte, args remoting.Args) (*remoting.Future[[]byte], error) {
	s := e.sys
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, remoting.ErrClosed
	}
	if _, ok := s.programs[target]; !ok {
		return nil, remoting.ErrProgramNotFound
	}
	m, a, err := s.send(e.source(args), target, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(m.ID, func(ctx context.Context) ([]byte, error) {
		reply, err := e.await(ctx, a)
		if err != nil {
			return nil, err
		}
		return remoting.CheckReply(reply)
	}), nil
}

func (e *Env) Query(_ context.Context, target scale.ActorID, payload []byte, args remoting.Args) ([]byte, error) {
	s := e.sys
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, remoting.ErrClosed
	}
	return s.query(e.source(args), target, payload, args)
}

func (e *Env) Listen(ctx context.Context) (<-chan remoting.Event, error) {
	return e.sys.subscribe(ctx), nil
}

// await blocks until a resolves, running blocks as the run mode says.
func (e *Env) await(ctx context.Context, a *awaiter) (remoting.Reply, error) {
	s := e.sys
	switch s.mode {
	case RunManual:
		s.mu.Lock()
		defer s.mu.Unlock()
		for !a.done {
			if s.closed {
				return remoting.Reply{}, remoting.ErrClosed
			}
			if err := s.blocks.Wait(ctx); err != nil {
				return remoting.Reply{}, err
			}
		}
		return a.reply, a.err

	case RunNext:
		s.mu.Lock()
		defer s.mu.Unlock()
		if !a.done {
			s.runBlock()
		}
		if !a.done {
			return remoting.Reply{}, wire.ReplyIsMissing(fmt.Sprintf("no reply in block %d", s.height))
		}
		return a.reply, a.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for n := 0; !a.done; n++ {
		if err := ctx.Err(); err != nil {
			return remoting.Reply{}, err
		}
		if s.closed {
			return remoting.Reply{}, remoting.ErrClosed
		}
		if n == s.maxBlocks {
			return remoting.Reply{}, wire.ReplyIsMissing(fmt.Sprintf("no reply after %d blocks", n))
		}
		s.runBlock()
	}
	return a.reply, a.err
}
