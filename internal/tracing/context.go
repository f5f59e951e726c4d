// Package tracing wires the agent loop's per-run spans into
// OpenTelemetry. It mirrors the teacher's context-carried trace-identity
// idiom (trace ID, collector, parent span ID threaded through
// context.Context) but emits real OTel spans instead of writing bespoke
// span rows to a database.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	ctxKeyTraceID ctxKey = iota
	ctxKeyCollector
	ctxKeyParentSpanID
	ctxKeyAnnounceParentSpanID
)

// WithTraceID attaches a logical trace identifier (the agent run ID) to ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, id)
}

// TraceIDFromContext returns the trace identifier previously attached with
// WithTraceID, or "" if none.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyTraceID).(string)
	return id
}

// WithCollector attaches a Collector to ctx so nested span-emitting calls
// don't need it threaded explicitly through every function signature.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxKeyCollector, c)
}

// CollectorFromContext returns the Collector attached to ctx, or nil.
func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(ctxKeyCollector).(*Collector)
	return c
}

// WithParentSpanID records the OTel span context of the currently active
// parent span, so a child span (e.g. a tool call nested under an LLM
// round) can be linked explicitly.
func WithParentSpanID(ctx context.Context, id trace.SpanID) context.Context {
	return context.WithValue(ctx, ctxKeyParentSpanID, id)
}

// ParentSpanIDFromContext returns the parent span ID attached to ctx, and
// whether one was present.
func ParentSpanIDFromContext(ctx context.Context) (trace.SpanID, bool) {
	id, ok := ctx.Value(ctxKeyParentSpanID).(trace.SpanID)
	return id, ok
}

// WithAnnounceParentSpanID records an externally supplied parent span (for
// example a caller's own tracing root) that this run's top-level agent
// span should nest under instead of starting a fresh root.
func WithAnnounceParentSpanID(ctx context.Context, id trace.SpanID) context.Context {
	return context.WithValue(ctx, ctxKeyAnnounceParentSpanID, id)
}

// AnnounceParentSpanIDFromContext returns the announced parent span ID, if any.
func AnnounceParentSpanIDFromContext(ctx context.Context) (trace.SpanID, bool) {
	id, ok := ctx.Value(ctxKeyAnnounceParentSpanID).(trace.SpanID)
	return id, ok
}
