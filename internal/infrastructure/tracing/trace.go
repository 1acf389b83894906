// Package tracing correlates kernel requests through trace and span ids.
// Spans are logged on completion rather than exported to a collector.
package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/shared/id"
)

// Header names used for trace propagation.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

type ctxKey int

const (
	traceKey ctxKey = iota
	spanKey
)

// Span records one traced operation.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string
	Service  string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error
	Tags     map[string]string
}

// End stamps the span's duration.
func (s *Span) End() {
	s.Duration = time.Since(s.Start)
}

// SetTag attaches a key/value pair to the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// Fail records an error outcome.
func (s *Span) Fail(err error) {
	s.Err = err
}

// Tracer assigns ids to spans and logs them as they complete. Completed
// spans queue through a bounded channel so request paths never block on
// logging.
type Tracer struct {
	service string
	logger  *zap.Logger
	done    chan *Span
}

// New creates a tracer and starts its drain goroutine.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		done:    make(chan *Span, 1000),
	}
	go t.drain()
	return t
}

// Begin opens a span under the context's trace, minting a new trace id if
// the context carries none. The returned context carries the span for
// child operations.
func (t *Tracer) Begin(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceKey).(string)
	if traceID == "" {
		traceID = id.Default().GenerateWithPrefix("trc")
	}
	parentID, _ := ctx.Value(spanKey).(string)

	span := &Span{
		TraceID:  traceID,
		SpanID:   id.Default().GenerateWithPrefix("spn"),
		ParentID: parentID,
		Name:     name,
		Service:  t.service,
		Start:    time.Now(),
		Tags:     make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceKey, traceID)
	ctx = context.WithValue(ctx, spanKey, span.SpanID)
	return span, ctx
}

// Submit queues a completed span for logging. Full buffer drops the span.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.done <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", span.TraceID),
		)
	}
}

func (t *Tracer) drain() {
	for span := range t.done {
		fields := []zap.Field{
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
			zap.String("operation", span.Name),
			zap.String("service", span.Service),
			zap.Duration("duration", span.Duration),
			zap.Int("status", span.Status),
		}
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", span.ParentID))
		}
		for k, v := range span.Tags {
			fields = append(fields, zap.String(k, v))
		}

		if span.Err != nil {
			t.logger.Error("Span failed", append(fields, zap.Error(span.Err))...)
		} else {
			t.logger.Debug("Span completed", fields...)
		}
	}
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceKey).(string)
	return traceID
}

// WithRemote seeds ctx with trace context received from a caller.
func WithRemote(ctx context.Context, traceID, spanID string) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanKey, spanID)
	}
	return ctx
}
