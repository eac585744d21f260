package codegen

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

const instrumentationLibrary = "github.com/kanengo/rigging/runtime/codegen"

// ErrNotMocked is returned by generated mocks for functions left unset.
var ErrNotMocked = errors.New("codegen: function is not mocked")

// Stub binds a transport to a target program. Generated service clients
// embed a Stub and call the package level Call, Send and Query helpers.
type Stub struct {
	remoting remoting.Remoting
	target   scale.ActorID
	caller   string
	args     remoting.Args
	tracer   trace.Tracer
}

func NewStub(r remoting.Remoting, target scale.ActorID, caller string) *Stub {
	return &Stub{
		remoting: r,
		target:   target,
		caller:   caller,
		tracer:   otel.Tracer(instrumentationLibrary),
	}
}

func (s *Stub) Target() scale.ActorID { return s.target }

func (s *Stub) Remoting() remoting.Remoting { return s.remoting }

func (s *Stub) Args() remoting.Args { return s.args }

// WithArgs returns a copy of s sending with args.
func (s *Stub) WithArgs(args remoting.Args) *Stub {
	c := *s
	c.args = args
	return &c
}

// WithTracer returns a copy of s recording spans with t.
func (s *Stub) WithTracer(t trace.Tracer) *Stub {
	c := *s
	c.tracer = t
	return &c
}

func (s *Stub) start(ctx context.Context, route, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, fmt.Sprintf("%s.%s", route, name),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rigging.route", route),
			attribute.String("rigging.method", name),
			attribute.String("rigging.target", s.target.String()),
		))
}

func (s *Stub) metrics(route, name string) *MethodMetrics {
	return MethodMetricsFor(MethodLabels{Caller: s.caller, Route: route, Method: name, Remote: true})
}

// Send encodes a call and returns a future of its decoded reply.
func Send[P, R any](ctx context.Context, s *Stub, io *wire.IO[P, R], params P) (*remoting.Future[R], error) {
	payload, err := io.EncodeCall(params)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: encode: %w", io.Route, io.Name, err)
	}
	m := s.metrics(io.Route, io.Name)
	h := m.Begin()
	ctx, span := s.start(ctx, io.Route, io.Name)
	f, err := s.remoting.Message(ctx, s.target, payload, s.args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		m.End(h, true, len(payload), 0)
		return nil, err
	}
	span.SetAttributes(attribute.String("rigging.message_id", f.MessageID().String()))
	return remoting.NewFuture(f.MessageID(), func(ctx context.Context) (R, error) {
		defer span.End()
		reply, err := f.Wait(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.End(h, true, len(payload), 0)
			var zero R
			return zero, err
		}
		r, err := io.DecodeReply(reply)
		m.End(h, err != nil, len(payload), len(reply))
		return r, err
	}), nil
}

// Call sends a call and waits for its reply.
func Call[P, R any](ctx context.Context, s *Stub, io *wire.IO[P, R], params P) (R, error) {
	f, err := Send(ctx, s, io, params)
	if err != nil {
		var zero R
		return zero, err
	}
	return f.Wait(ctx)
}

// Query computes the reply of a call without changing program state.
func Query[P, R any](ctx context.Context, s *Stub, io *wire.IO[P, R], params P) (R, error) {
	var zero R
	payload, err := io.EncodeCall(params)
	if err != nil {
		return zero, fmt.Errorf("%s.%s: encode: %w", io.Route, io.Name, err)
	}
	m := s.metrics(io.Route, io.Name)
	h := m.Begin()
	ctx, span := s.start(ctx, io.Route, io.Name)
	defer span.End()
	reply, err := s.remoting.Query(ctx, s.target, payload, s.args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.End(h, true, len(payload), 0)
		return zero, err
	}
	r, err := io.DecodeReply(reply)
	m.End(h, err != nil, len(payload), len(reply))
	return r, err
}

// Activate creates a program with a constructor call. The future resolves to
// the id of the new program.
func Activate[P any](ctx context.Context, r remoting.Remoting, code scale.CodeID, salt []byte, io *wire.IO[P, scale.Unit], params P, args remoting.Args) (*remoting.Future[scale.ActorID], error) {
	payload, err := io.EncodeCall(params)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", io.Name, err)
	}
	f, err := r.Activate(ctx, code, salt, payload, args)
	if err != nil {
		return nil, err
	}
	return remoting.Then(f, func(a remoting.Activation) (scale.ActorID, error) {
		return a.ProgramID, nil
	}), nil
}
