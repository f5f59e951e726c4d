package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// SpanType names the kind of unit being timed. These match the agent
// loop's three span-emitting call sites.
type SpanType string

const (
	SpanTypeLLMCall  SpanType = "llm_call"
	SpanTypeToolCall SpanType = "tool_call"
	SpanTypeAgent    SpanType = "agent"
)

// maxPreviewLen bounds how much of a message or tool argument gets
// attached to a span, so a large file edit doesn't blow up span payload size.
const maxPreviewLen = 2000

// Config selects where spans are exported.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
	Headers     map[string]string
}

// Collector wraps an OTel TracerProvider, translating the agent loop's
// span-emission calls into real OTel spans.
type Collector struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

// NewCollector builds a Collector. When cfg.Enabled is false, it returns a
// no-op collector — EmitSpan calls are simply dropped, so callers never
// need to branch on whether tracing is configured.
func NewCollector(ctx context.Context, cfg Config) (*Collector, error) {
	if !cfg.Enabled {
		return &Collector{enabled: false}, nil
	}

	var exporter *otlptrace.Exporter
	var err error
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentcore"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Collector{tracer: provider.Tracer("agentcore/agent"), provider: provider, enabled: true}, nil
}

// Shutdown flushes and closes the exporter. No-op on a disabled collector.
func (c *Collector) Shutdown(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.provider.Shutdown(ctx)
}

// SpanInput describes one completed unit of work to emit as a span.
type SpanInput struct {
	Type         SpanType
	Name         string
	StartTime    time.Time
	EndTime      time.Time
	Model        string
	Provider     string
	ToolName     string
	ToolCallID   string
	InputTokens  int
	OutputTokens int
	InputPreview string
	OutputPreview string
	FinishReason string
	Err          error
	ParentSpanID trace.SpanID
	Attrs        map[string]string
}

// EmitSpan records a span retroactively, since the agent loop only knows
// a unit's full shape (tokens, success, duration) after it finishes. It
// never blocks the caller on a disabled or misconfigured collector.
func (c *Collector) EmitSpan(ctx context.Context, in SpanInput) {
	if c == nil || !c.enabled {
		return
	}

	spanCtx := ctx
	if in.ParentSpanID.IsValid() {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID(traceIDFromParent(ctx)),
			SpanID:     in.ParentSpanID,
			TraceFlags: trace.FlagsSampled,
		})
		spanCtx = trace.ContextWithSpanContext(ctx, sc)
	}

	_, span := c.tracer.Start(spanCtx, in.Name, trace.WithTimestamp(in.StartTime))
	defer span.End(trace.WithTimestamp(in.EndTime))

	span.SetAttributes(
		attribute.String("agentcore.span_type", string(in.Type)),
	)
	if in.Model != "" {
		span.SetAttributes(attribute.String("agentcore.model", in.Model))
	}
	if in.Provider != "" {
		span.SetAttributes(attribute.String("agentcore.provider", in.Provider))
	}
	if in.ToolName != "" {
		span.SetAttributes(attribute.String("agentcore.tool_name", in.ToolName))
	}
	if in.ToolCallID != "" {
		span.SetAttributes(attribute.String("agentcore.tool_call_id", in.ToolCallID))
	}
	if in.InputTokens > 0 {
		span.SetAttributes(attribute.Int("agentcore.input_tokens", in.InputTokens))
	}
	if in.OutputTokens > 0 {
		span.SetAttributes(attribute.Int("agentcore.output_tokens", in.OutputTokens))
	}
	if in.InputPreview != "" {
		span.SetAttributes(attribute.String("agentcore.input_preview", TruncateStr(in.InputPreview, maxPreviewLen)))
	}
	if in.OutputPreview != "" {
		span.SetAttributes(attribute.String("agentcore.output_preview", TruncateStr(in.OutputPreview, maxPreviewLen)))
	}
	if in.FinishReason != "" {
		span.SetAttributes(attribute.String("agentcore.finish_reason", in.FinishReason))
	}
	for k, v := range in.Attrs {
		span.SetAttributes(attribute.String(k, v))
	}

	if in.Err != nil {
		span.RecordError(in.Err)
		span.SetStatus(codes.Error, in.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

func traceIDFromParent(ctx context.Context) trace.TraceID {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID()
	}
	return trace.TraceID{}
}

// TruncateStr truncates s to maxLen bytes on a valid UTF-8 rune boundary.
func TruncateStr(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

// EstimateTokens gives a rough chars/3 token estimate for preflight
// token-count reporting, matching the heuristic the teacher uses before an
// actual usage count is available from the provider.
func EstimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += utf8.RuneCountInString(t) / 3
	}
	return total
}
