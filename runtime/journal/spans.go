package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Span is the stored form of a finished span.
type Span struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	StartMicros  int64          `json:"start_us"`
	EndMicros    int64          `json:"end_us"`
	Error        string         `json:"error,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []SpanEvent    `json:"events,omitempty"`
}

type SpanEvent struct {
	Name       string         `json:"name"`
	TimeMicros int64          `json:"time_us"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SpanWriter is a span exporter storing spans in the journal.
type SpanWriter struct {
	mu sync.Mutex
	j  *DB
}

var _ sdktrace.SpanExporter = (*SpanWriter)(nil)

// Spans returns an exporter writing to j. Shut the tracer provider down before closing j.
func (j *DB) Spans() *SpanWriter {
	return &SpanWriter{j: j}
}

func (w *SpanWriter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := make([]Span, len(spans))
	for i, s := range spans {
		out[i] = toSpan(s)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.j.StoreSpans(ctx, out)
}

func (w *SpanWriter) Shutdown(context.Context) error {
	return nil
}

func toSpan(span sdktrace.ReadOnlySpan) Span {
	s := Span{
		TraceID:     span.SpanContext().TraceID().String(),
		SpanID:      span.SpanContext().SpanID().String(),
		Name:        span.Name(),
		Kind:        span.SpanKind().String(),
		StartMicros: span.StartTime().UnixMicro(),
		EndMicros:   span.EndTime().UnixMicro(),
		Attributes:  toAttrs(span.Attributes()),
	}
	if span.Parent().HasSpanID() {
		s.ParentSpanID = span.Parent().SpanID().String()
	}
	if span.Status().Code == codes.Error {
		s.Error = span.Status().Description
		if s.Error == "" {
			s.Error = "unknown error"
		}
	}
	for _, e := range span.Events() {
		s.Events = append(s.Events, SpanEvent{Name: e.Name, TimeMicros: e.Time.UnixMicro(), Attributes: toAttrs(e.Attributes)})
	}
	return s
}

func toAttrs(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	return attrs
}

// status 返回 span 的错误描述, 没有错误时返回 ""
func status(s Span) string {
	if s.Error != "" {
		return s.Error
	}
	if code, ok := s.Attributes["http.status_code"].(int64); ok && code >= 400 && code < 600 {
		return http.StatusText(int(code))
	}
	return ""
}

// StoreSpans writes spans in a transaction. Root spans also make a trace row.
func (j *DB) StoreSpans(ctx context.Context, spans []Span) error {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelLinearizable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var errs []error
	const traceStmt = `INSERT OR REPLACE INTO traces VALUES (?,?,?,?,?)`
	const spanStmt = `INSERT INTO encoded_spans VALUES (?,?,?)`
	for _, s := range spans {
		if s.ParentSpanID == "" {
			if _, err := tx.ExecContext(ctx, traceStmt, s.TraceID, s.Name, s.StartMicros, s.EndMicros, status(s)); err != nil {
				errs = append(errs, err)
			}
		}
		data, err := json.Marshal(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode span %s: %w", s.SpanID, err))
			continue
		}
		if _, err := tx.ExecContext(ctx, spanStmt, s.TraceID, s.StartMicros, string(data)); err != nil {
			errs = append(errs, err)
		}
	}

	if errs != nil {
		return errors.Join(errs...)
	}
	return tx.Commit()
}

// Trace is a stored trace summary.
type Trace struct {
	TraceID     string
	Name        string
	StartMicros int64
	EndMicros   int64
	Status      string
}

// Traces returns the stored traces, oldest first.
func (j *DB) Traces(ctx context.Context) ([]Trace, error) {
	const q = `SELECT trace_id, name, start_time_unix_us, end_time_unix_us, status FROM traces ORDER BY start_time_unix_us`
	rows, err := j.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var t Trace
		if err := rows.Scan(&t.TraceID, &t.Name, &t.StartMicros, &t.EndMicros, &t.Status); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TraceSpans returns the spans of a trace ordered by start time.
func (j *DB) TraceSpans(ctx context.Context, traceID string) ([]Span, error) {
	const q = `SELECT data FROM encoded_spans WHERE trace_id = ? ORDER BY start_time_unix_us`
	rows, err := j.db.QueryContext(ctx, q, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Span
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s Span
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode span: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
