// Package orchestrator implements the Orchestrator (C9): the public
// façade that owns a session's message history and decides, per request,
// whether to run the AgentLoop directly or route through the Planner and
// PlanExecutor first.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/forgekit/agentcore/internal/agent"
	"github.com/forgekit/agentcore/internal/executor"
	"github.com/forgekit/agentcore/internal/idempotency"
	"github.com/forgekit/agentcore/internal/planner"
	"github.com/forgekit/agentcore/pkg/protocol"
)

// defaultMaxIdenticalRequests and defaultLoopDetectionWindow mirror the configuration
// table's defaults when the caller doesn't override them.
const (
	defaultMaxIdenticalRequests = 2
	defaultLoopDetectionWindow  = 5
)

// planScoreThreshold is the minimum keyword-weighted score a request needs
// before the Orchestrator routes it through the Planner instead of
// straight into the AgentLoop.
const planScoreThreshold = 3

var complexityKeywords = []string{"refactor", "move", "extract", "implement", "restructure"}
var architectureKeywords = []string{"architecture", "module", "layer", "pattern"}

// ChatEntry is one non-streaming turn returned by ProcessUserMessage.
type ChatEntry struct {
	Role    string
	Content string
}

// Confirmer is asked to approve a high or critical risk plan before the
// PlanExecutor runs it. Returning false aborts the plan without running
// any step.
type Confirmer func(plan *planner.TaskPlan, preview string) bool

// Orchestrator is the C9 façade. It composes an AgentLoop, a Planner, and
// a PlanExecutor downward only — none of them hold a back-pointer to the
// Orchestrator. It does not subscribe to executor events; it reads the
// result that Execute returns.
type Orchestrator struct {
	loop    *agent.Loop
	plan    *planner.Planner
	exec    *executor.Executor
	tracker *idempotency.Tracker
	confirm Confirmer

	maxIdenticalRequests int
	loopDetectionWindow  int

	mu              sync.Mutex
	identicalCounts map[string]int
}

// New builds an Orchestrator. confirm may be nil, in which case high and
// critical risk plans are never auto-approved and are reported back to the
// caller as requiring confirmation without being executed.
func New(loop *agent.Loop, pl *planner.Planner, ex *executor.Executor, tracker *idempotency.Tracker, confirm Confirmer, maxIdenticalRequests, loopDetectionWindow int) *Orchestrator {
	if maxIdenticalRequests <= 0 {
		maxIdenticalRequests = defaultMaxIdenticalRequests
	}
	if loopDetectionWindow <= 0 {
		loopDetectionWindow = defaultLoopDetectionWindow
	}
	return &Orchestrator{
		loop: loop, plan: pl, exec: ex, tracker: tracker, confirm: confirm,
		maxIdenticalRequests: maxIdenticalRequests,
		loopDetectionWindow:  loopDetectionWindow,
		identicalCounts:      make(map[string]int),
	}
}

func hashRequest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

// ProcessUserMessageStream is the streaming entry point: three guards run
// before any LLM call, then the request is routed to either the Planner
// or directly into the AgentLoop.
func (o *Orchestrator) ProcessUserMessageStream(ctx context.Context, userMessage string, emit func(protocol.StreamingChunk)) error {
	key := hashRequest(userMessage)

	o.mu.Lock()
	o.identicalCounts[key]++
	count := o.identicalCounts[key]
	o.mu.Unlock()

	if count >= o.maxIdenticalRequests {
		msg := "This request has been repeated without progress. Stopping to avoid a loop — try rephrasing or providing more context."
		emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: msg})
		emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "loop_detected"})
		o.clearIdentical(key)
		return nil
	}

	if o.tracker != nil {
		if lr := o.tracker.DetectLoop(o.loopDetectionWindow); lr.IsLoop {
			msg := fmt.Sprintf("Detected a repeating sequence of operations (%s). Stopping to avoid a loop.", lr.Suggestion)
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: msg})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "loop_detected"})
			o.clearIdentical(key)
			return nil
		}
	}

	if o.plan != nil && o.shouldPlan(userMessage) {
		return o.runPlanPath(ctx, userMessage, emit)
	}

	return o.loop.Run(ctx, userMessage, emit)
}

func (o *Orchestrator) clearIdentical(key string) {
	o.mu.Lock()
	delete(o.identicalCounts, key)
	o.mu.Unlock()
}

// shouldPlan scores a request by complexity/architecture/scope keywords
// and by how many distinct source-file names it mentions, routing to the
// Planner once the score reaches planScoreThreshold.
func (o *Orchestrator) shouldPlan(userMessage string) bool {
	lower := strings.ToLower(userMessage)
	score := 0

	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			score += 2
			break
		}
	}
	for _, kw := range architectureKeywords {
		if strings.Contains(lower, kw) {
			score++
			break
		}
	}
	if strings.Contains(lower, "across") || strings.Contains(lower, "throughout") {
		score++
	}

	fileNames := 0
	for _, tok := range strings.Fields(userMessage) {
		if strings.Contains(tok, ".") && (strings.HasSuffix(tok, ".go") || strings.HasSuffix(tok, ".py") || strings.HasSuffix(tok, ".ts") || strings.HasSuffix(tok, ".js")) {
			fileNames++
		}
	}
	if fileNames >= 2 {
		score += 2
	}

	return score >= planScoreThreshold
}

// runPlanPath creates, validates, and — once approved — executes a plan
// for userMessage. A validation failure or a rejected confirmation is
// reported back without running any step.
func (o *Orchestrator) runPlanPath(ctx context.Context, userMessage string, emit func(protocol.StreamingChunk)) error {
	result := o.plan.CreatePlan(userMessage)

	if !result.Validation.IsValid {
		msg := "I couldn't build a safe plan for this request: " + strings.Join(result.Validation.Errors, "; ")
		emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: msg})
		emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "plan_invalid"})
		return nil
	}

	preview := planner.Preview(result.Plan, result.Validation)
	emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: preview})

	if (result.Plan.OverallRiskLevel == planner.RiskHigh || result.Plan.OverallRiskLevel == planner.RiskCritical) && o.exec != nil {
		if o.confirm == nil || !o.confirm(result.Plan, preview) {
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: "Plan not executed — confirmation required for a high-risk change."})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "awaiting_confirmation"})
			return nil
		}
	}

	if o.exec == nil {
		emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "plan_only"})
		return nil
	}

	execResult, err := o.exec.Execute(ctx, result.Plan)
	if err != nil {
		emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: "Plan execution failed: " + err.Error()})
		emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "plan_error"})
		return nil
	}

	summary := fmt.Sprintf("Plan completed: %d/%d steps succeeded.", countCompleted(result.Plan), len(result.Plan.Steps))
	if !execResult.Success {
		summary = fmt.Sprintf("Plan failed at step %s.", execResult.FailedStep)
		if execResult.RolledBack {
			summary += " Changes were rolled back."
		}
	}
	emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: summary})
	emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "plan_complete"})
	return nil
}

func countCompleted(plan *planner.TaskPlan) int {
	n := 0
	for _, s := range plan.Steps {
		if s.Status == planner.StepCompleted {
			n++
		}
	}
	return n
}

// ProcessUserMessage is the non-streaming convenience wrapper, collecting
// the content chunks a stream would have emitted into a single ChatEntry
// slice.
func (o *Orchestrator) ProcessUserMessage(ctx context.Context, userMessage string) ([]ChatEntry, error) {
	var entries []ChatEntry
	var content strings.Builder

	err := o.ProcessUserMessageStream(ctx, userMessage, func(chunk protocol.StreamingChunk) {
		switch chunk.Kind {
		case protocol.ChunkContent:
			content.WriteString(chunk.Content)
		case protocol.ChunkDone:
			if content.Len() > 0 {
				entries = append(entries, ChatEntry{Role: "assistant", Content: content.String()})
				content.Reset()
			}
		}
	})
	return entries, err
}
