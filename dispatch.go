package rigging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kanengo/rigging/internal/register"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// instance is a running program: the dispatcher plus its state cell.
type instance[S any] struct {
	prog  *Program[S]
	state register.Cell[*S]
}

var _ host.Actor = (*instance[struct{}])(nil)

// Init runs the constructor selected by the activation payload and replies
// with the constructor prefix.
func (in *instance[S]) Init(ctx context.Context, h host.Host) {
	p := in.prog
	msg := h.Message()
	logger := p.opts.logger.With("message", msg.ID.String())

	if len(p.ctors) == 0 {
		in.state.Write(new(S))
		if err := h.Reply(nil, scale.U128{}); err != nil {
			logger.Error("reply", "err", err)
		}
		return
	}

	prefixes := make([][]byte, len(p.ctors))
	for i, c := range p.ctors {
		prefixes[i] = c.prefix
	}
	i, ok := wire.MatchLongest(msg.Payload, prefixes)
	if !ok {
		in.fail(h, logger, ErrCtorNotFound)
		return
	}
	c := p.ctors[i]
	if !msg.Value.IsZero() && !c.opts.payable {
		in.fail(h, logger, ErrValueNotAccepted)
		return
	}

	ctx, span := p.opts.tracer.Start(ctx, "ctor."+c.name, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	cx := &Context{
		Context: ctx,
		host:    h,
		method:  c.name,
		async:   c.opts.async,
		logger:  logger,
		onExit:  in.state.Drop,
	}
	var st S
	err := protect(func() (err error) {
		st, err = c.call(cx, msg.Payload[len(c.prefix):])
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		in.fail(h, logger, err)
		return
	}
	in.state.Write(&st)
	if err := h.Reply(c.prefix, scale.U128{}); err != nil {
		logger.Error("reply", "err", err)
	}
	logger.Debug("initialized", "ctor", c.name)
}

// Handle routes one message: Received, Matched, Decoded, Handling and then
// Replied or Failed.
func (in *instance[S]) Handle(ctx context.Context, h host.Host) {
	p := in.prog
	msg := h.Message()
	logger := p.opts.logger.With("message", msg.ID.String())

	st, err := in.state.Load()
	if err != nil {
		code := remoting.UnavailableActorCode(remoting.Uninitialized)
		if errors.Is(err, register.ErrDropped) {
			code = remoting.UnavailableActorCode(remoting.ProgramExited)
		}
		if rerr := h.ReplyError(code, nil); rerr != nil {
			logger.Error("reply", "err", rerr)
		}
		return
	}

	b, e, ok := in.match(msg.Payload)
	switch {
	case b == nil:
		in.fail(h, logger, ErrServiceNotFound)
		return
	case !ok:
		in.fail(h, logger.With("route", b.route), ErrMethodNotFound)
		return
	}
	logger = logger.With("route", b.route, "method", e.name)
	if !msg.Value.IsZero() && !e.opts.payable {
		in.fail(h, logger, ErrValueNotAccepted)
		return
	}

	target := st
	if msg.ReadOnly || e.query {
		if target, err = cloneState(st); err != nil {
			in.fail(h, logger, err)
			return
		}
	}

	ctx, span := p.opts.tracer.Start(ctx, fmt.Sprintf("%s.%s", b.route, e.name),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rigging.route", b.route),
			attribute.String("rigging.method", e.name),
			attribute.String("rigging.message_id", msg.ID.String()),
		))
	defer span.End()

	cx := &Context{
		Context: ctx,
		host:    h,
		route:   b.route,
		method:  e.name,
		async:   e.opts.async,
		events:  b.events,
		logger:  logger,
		onExit:  in.state.Drop,
	}
	prefix := msg.Payload[:len(b.prefix)+len(wire.EncodeName(e.name))]
	body := msg.Payload[len(prefix):]

	handle := e.metrics.Begin()
	gas := h.GasAvailable()
	var reply []byte
	err = protect(func() (err error) {
		reply, err = e.call(cx, target, body)
		return err
	})
	if left := h.GasAvailable(); left <= gas {
		e.metrics.Gas(gas - left)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.End(handle, true, len(msg.Payload), 0)
		in.fail(h, logger, err)
		return
	}

	if in.exited() {
		e.metrics.End(handle, false, len(msg.Payload), 0)
		logger.Debug("exited")
		return
	}

	out := make([]byte, 0, len(prefix)+len(reply))
	out = append(append(out, prefix...), reply...)
	e.metrics.End(handle, false, len(msg.Payload), len(out))
	if err := h.Reply(out, scale.U128{}); err != nil {
		span.RecordError(err)
		logger.Error("reply", "err", err)
		return
	}
	logger.Debug("replied", "bytes", len(out))
}

// match finds the binding with the longest route prefix of payload and, in
// it, the entry with the longest name prefix of the rest.
func (in *instance[S]) match(payload []byte) (*binding[S], *boundEntry[S], bool) {
	p := in.prog
	p.mu.Lock()
	bindings := p.bindings
	p.mu.Unlock()

	prefixes := make([][]byte, len(bindings))
	for i, b := range bindings {
		prefixes[i] = b.prefix
	}
	i, ok := wire.MatchLongest(payload, prefixes)
	if !ok {
		return nil, nil, false
	}
	b := bindings[i]
	j, ok := wire.MatchLongest(payload[len(b.prefix):], b.names)
	if !ok {
		return b, nil, false
	}
	return b, b.entries[j], true
}

// exited reports whether the running handler called Exit. The host replies
// on behalf of an exited program.
func (in *instance[S]) exited() bool {
	_, err := in.state.Load()
	return errors.Is(err, register.ErrDropped)
}

// fail replies with a userspace panic code and the error text.
func (in *instance[S]) fail(h host.Host, logger *slog.Logger, err error) {
	msg := failureText(err)
	var perr panicError
	if errors.As(err, &perr) {
		logger.Error("handler panicked", "err", msg)
	} else {
		logger.Debug("failed", "err", msg)
	}
	if rerr := h.ReplyError(remoting.ExecutionErrorCode(remoting.UserspacePanic), []byte(msg)); rerr != nil {
		logger.Error("reply", "err", rerr)
	}
}

// failureText maps dispatcher failures onto their fixed reply strings.
func failureText(err error) string {
	for _, known := range []error{ErrServiceNotFound, ErrMethodNotFound, ErrCtorNotFound, ErrMalformedPayload} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// protect runs fn, turning a panic into a panicError.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{v: r}
		}
	}()
	return fn()
}

// cloneState deep copies the state through its SCALE encoding. Queries and
// read-only runs of commands work on the copy.
func cloneState[S any](st *S) (*S, error) {
	data, err := scale.Marshal(*st)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateNotCloned, err)
	}
	out := new(S)
	if err := scale.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateNotCloned, err)
	}
	return out, nil
}
