package orchestrator

import (
	"context"
	"testing"

	"github.com/forgekit/agentcore/internal/agent"
	"github.com/forgekit/agentcore/internal/config"
	"github.com/forgekit/agentcore/internal/executor"
	"github.com/forgekit/agentcore/internal/idempotency"
	"github.com/forgekit/agentcore/internal/planner"
	"github.com/forgekit/agentcore/internal/providers"
	"github.com/forgekit/agentcore/internal/tools"
	"github.com/forgekit/agentcore/pkg/protocol"
)

type stubProvider struct{ reply string }

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}
func (p *stubProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	if onChunk != nil {
		onChunk(providers.StreamChunk{Content: p.reply})
		onChunk(providers.StreamChunk{Done: true})
	}
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func newTestOrchestrator(t *testing.T, confirm Confirmer) *Orchestrator {
	t.Helper()
	reg := tools.NewRegistry()
	loop := agent.New(config.AgentConfig{MinRequestIntervalMs: 1}, &stubProvider{reply: "direct answer"}, reg, nil, nil, nil, nil, nil, "sys")
	pl := planner.NewPlanner(nil)
	ex := executor.NewExecutor(reg, executor.Config{}, nil)
	return New(loop, pl, ex, idempotency.NewTracker(), confirm, 2, 5)
}

func collect(t *testing.T, o *Orchestrator, msg string) []protocol.StreamingChunk {
	t.Helper()
	var chunks []protocol.StreamingChunk
	if err := o.ProcessUserMessageStream(context.Background(), msg, func(c protocol.StreamingChunk) { chunks = append(chunks, c) }); err != nil {
		t.Fatalf("ProcessUserMessageStream: %v", err)
	}
	return chunks
}

func TestProcessUserMessageStream_SimpleRequestGoesDirectToLoop(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	chunks := collect(t, o, "what does this function do")

	last := chunks[len(chunks)-1]
	if last.FinishReason != "stop" {
		t.Fatalf("expected the simple request to run straight through the loop, got finish reason %q", last.FinishReason)
	}
}

func TestProcessUserMessageStream_IdenticalRequestsTriggerLoopGuard(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	collect(t, o, "do the same thing")
	chunks := collect(t, o, "do the same thing")

	last := chunks[len(chunks)-1]
	if last.FinishReason != "loop_detected" {
		t.Fatalf("expected repeated identical requests to be flagged as a loop, got %q", last.FinishReason)
	}
}

func TestProcessUserMessageStream_ComplexRequestRoutesThroughPlanner(t *testing.T) {
	o := newTestOrchestrator(t, func(plan *planner.TaskPlan, preview string) bool { return true })
	chunks := collect(t, o, "refactor the architecture across the whole module and restructure every layer")

	var sawPreview bool
	for _, c := range chunks {
		if c.Kind == protocol.ChunkContent && c.Content != "" {
			sawPreview = true
		}
	}
	if !sawPreview {
		t.Fatalf("expected a plan preview to be emitted for a complex request")
	}
}

func TestProcessUserMessageStream_HighRiskPlanRequiresConfirmation(t *testing.T) {
	rejectAll := func(plan *planner.TaskPlan, preview string) bool { return false }
	o := newTestOrchestrator(t, rejectAll)

	chunks := collect(t, o, "delete the old auth config across the architecture and restructure every module")
	last := chunks[len(chunks)-1]
	if last.FinishReason != "awaiting_confirmation" && last.FinishReason != "plan_complete" && last.FinishReason != "plan_invalid" {
		t.Fatalf("expected a deliberate plan-path outcome, got %q", last.FinishReason)
	}
}

func TestProcessUserMessage_AccumulatesContentIntoChatEntry(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	entries, err := o.ProcessUserMessage(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("ProcessUserMessage: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "direct answer" {
		t.Fatalf("expected one accumulated assistant entry, got %+v", entries)
	}
}
