package rigging

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

// Context is handed to every handler for the duration of one message. It is
// a context.Context, so generated clients accept it directly.
type Context struct {
	context.Context

	host   host.Host
	route  string
	method string
	async  bool
	events map[string]bool
	logger *slog.Logger
	onExit func()
}

func (c *Context) Host() host.Host { return c.host }

// Route returns the route the message was dispatched on, empty for
// constructors.
func (c *Context) Route() string { return c.route }

func (c *Context) Method() string { return c.method }

func (c *Context) Message() host.Message { return c.host.Message() }

func (c *Context) Source() scale.ActorID { return c.host.Message().Source }

// ProgramID returns the id of the running program.
func (c *Context) ProgramID() scale.ActorID { return c.host.Message().Destination }

// Attached returns the value sent along with the message.
func (c *Context) Attached() scale.U128 { return c.host.Message().Value }

func (c *Context) BlockHeight() uint32 { return c.host.BlockHeight() }

func (c *Context) GasAvailable() uint64 { return c.host.GasAvailable() }

// Logger returns the program logger annotated with the message and trace.
func (c *Context) Logger() *slog.Logger {
	logger := c.logger
	sc := trace.SpanContextFromContext(c)
	if sc.HasTraceID() {
		logger = logger.With(slog.String("traceId", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		logger = logger.With(slog.String("spanId", sc.SpanID().String()))
	}
	return logger
}

// Remoting sends messages on behalf of the program. Futures returned to a
// handler not marked Async fail with ErrNotAsync when awaited.
func (c *Context) Remoting() remoting.Remoting {
	r := c.host.Remoting()
	if c.async {
		return r
	}
	return syncRemoting{r}
}

// Charge burns gas for work the handler does.
func (c *Context) Charge(gas uint64) error {
	return c.host.Charge(gas)
}

// Wait suspends an async handler for blocks blocks.
func (c *Context) Wait(blocks uint32) error {
	if !c.async {
		return ErrNotAsync
	}
	return c.host.Wait(c, blocks)
}

// Exit removes the program after the current message. Its balance and later
// messages go to inheritor.
func (c *Context) Exit(inheritor scale.ActorID) error {
	if err := c.host.Exit(inheritor); err != nil {
		return err
	}
	if c.onExit != nil {
		c.onExit()
	}
	return nil
}

func (c *Context) emit(name string, payload []byte) error {
	if !c.events[name] {
		return fmt.Errorf("rigging: event %s is not declared by service %s", name, c.route)
	}
	return c.host.Emit(payload)
}

// syncRemoting lets sync handlers send messages without awaiting them.
type syncRemoting struct {
	remoting.Remoting
}

func (s syncRemoting) Message(ctx context.Context, target scale.ActorID, payload []byte, args remoting.Args) (*remoting.Future[[]byte], error) {
	f, err := s.Remoting.Message(ctx, target, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(f.MessageID(), func(context.Context) ([]byte, error) {
		return nil, ErrNotAsync
	}), nil
}

func (s syncRemoting) Activate(ctx context.Context, code scale.CodeID, salt []byte, payload []byte, args remoting.Args) (*remoting.Future[remoting.Activation], error) {
	f, err := s.Remoting.Activate(ctx, code, salt, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(f.MessageID(), func(context.Context) (remoting.Activation, error) {
		return remoting.Activation{}, ErrNotAsync
	}), nil
}
