package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNewCollector_DisabledIsANoop(t *testing.T) {
	c, err := NewCollector(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	// EmitSpan and Shutdown on a disabled collector must never panic or block.
	c.EmitSpan(context.Background(), SpanInput{Type: SpanTypeLLMCall, Name: "test"})
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on disabled collector: %v", err)
	}
}

func TestEmitSpan_NilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.EmitSpan(context.Background(), SpanInput{Type: SpanTypeToolCall, Name: "test"})
}

func TestTruncateStr_RespectsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("a", 10) + "世界"
	got := TruncateStr(s, 11)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected a truncation marker, got %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) {
		t.Fatalf("expected the ascii prefix to survive, got %q", got)
	}
}

func TestTruncateStr_ShortStringPassesThrough(t *testing.T) {
	if got := TruncateStr("short", 100); got != "short" {
		t.Fatalf("expected short string unchanged, got %q", got)
	}
}

func TestEstimateTokens_SumsAcrossTexts(t *testing.T) {
	got := EstimateTokens([]string{"abcdef", "abc"})
	if got != 3 {
		t.Fatalf("expected (6/3)+(3/3)=3, got %d", got)
	}
}

func TestContextHelpers_RoundTripThroughContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	if got := TraceIDFromContext(ctx); got != "trace-1" {
		t.Fatalf("expected trace id to round-trip, got %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty trace id on a bare context, got %q", got)
	}

	c := &Collector{}
	ctx = WithCollector(ctx, c)
	if CollectorFromContext(ctx) != c {
		t.Fatalf("expected the same collector instance to round-trip")
	}

	var sid trace.SpanID
	sid[0] = 7
	ctx = WithParentSpanID(ctx, sid)
	got, ok := ParentSpanIDFromContext(ctx)
	if !ok || got != sid {
		t.Fatalf("expected parent span id to round-trip, got %v ok=%v", got, ok)
	}

	if _, ok := ParentSpanIDFromContext(context.Background()); ok {
		t.Fatalf("expected no parent span id on a bare context")
	}
}
