package rigging

import (
	"errors"
	"log/slog"
	"reflect"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a command, query or constructor.
type Option func(*entryOptions)

type entryOptions struct {
	async   bool
	payable bool
	docs    []string
	throws  reflect.Type
	thrown  func(error) (any, bool)
}

// Async marks a handler that may await replies or wait locks.
func Async() Option {
	return func(o *entryOptions) { o.async = true }
}

// Payable lets callers attach value to the message.
func Payable() Option {
	return func(o *entryOptions) { o.payable = true }
}

// Doc attaches documentation lines that end up in the IDL.
func Doc(lines ...string) Option {
	return func(o *entryOptions) { o.docs = append(o.docs, lines...) }
}

// Throws declares E as the error type of a function. A handler returning
// Throw[E](v) replies Err(v) with a success code.
func Throws[E any]() Option {
	return func(o *entryOptions) {
		o.throws = reflect.TypeFor[E]()
		o.thrown = func(err error) (any, bool) {
			var t *Thrown[E]
			if errors.As(err, &t) {
				return t.Value, true
			}
			return nil, false
		}
	}
}

// ProgramOption configures a program.
type ProgramOption func(*programOptions)

type programOptions struct {
	logger *slog.Logger
	tracer trace.Tracer
	docs   []string
}

func WithLogger(l *slog.Logger) ProgramOption {
	return func(o *programOptions) { o.logger = l }
}

func WithTracer(t trace.Tracer) ProgramOption {
	return func(o *programOptions) { o.tracer = t }
}

// WithDocs documents the constructor block of the program.
func WithDocs(lines ...string) ProgramOption {
	return func(o *programOptions) { o.docs = append(o.docs, lines...) }
}
