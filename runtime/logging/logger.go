package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"time"
)

type Options struct {
	App       string
	Program   string
	Component string

	Attrs []slog.Attr
}

func (o Options) attrs() []slog.Attr {
	attrs := slices.Clone(o.Attrs)
	if o.App != "" {
		attrs = append(attrs, slog.String("app", o.App))
	}
	if o.Program != "" {
		attrs = append(attrs, slog.String("program", o.Program))
	}
	if o.Component != "" {
		attrs = append(attrs, slog.String("component", o.Component))
	}
	return attrs
}

// LogHandler writes JSON records with DateTime timestamps, a file:line
// source and the attributes of Options.
type LogHandler struct {
	attrs []slog.Attr
	*slog.JSONHandler
}

// NewLogHandler returns a handler writing to w, os.Stderr when w is nil.
// w must not retain the slices passed to Write.
func NewLogHandler(w io.Writer, opts Options, level slog.Leveler) *LogHandler {
	if w == nil {
		w = os.Stderr
	}
	return &LogHandler{
		attrs: opts.attrs(),
		JSONHandler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.TimeKey {
					a.Value = slog.StringValue(a.Value.Time().Format(time.DateTime))
				}
				return a
			},
		}),
	}
}

var _ slog.Handler = (*LogHandler)(nil)

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.JSONHandler.Enabled(ctx, level)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(slices.Clone(h.attrs), attrs...)
	return &c
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{attrs: h.attrs, JSONHandler: h.JSONHandler.WithGroup(name).(*slog.JSONHandler)}
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		r.AddAttrs(slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", f.File, f.Line)))
	}
	if len(h.attrs) > 0 {
		r.AddAttrs(h.attrs...)
	}
	return h.JSONHandler.Handle(ctx, r)
}

// StderrLogger returns a JSON logger writing Info and above to stderr.
func StderrLogger(opts Options) *slog.Logger {
	return slog.New(NewLogHandler(os.Stderr, opts, slog.LevelInfo))
}

// Discard returns a logger dropping every record.
func Discard() *slog.Logger {
	return slog.New(NewLogHandler(io.Discard, Options{}, slog.LevelError+1))
}
