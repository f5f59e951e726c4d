// Package agent implements the AgentLoop (C8): the READY → CHAT → TOOLS →
// DONE state machine that drives one user request through repeated LLM
// calls and tool invocations until the model stops requesting tools.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forgekit/agentcore/internal/config"
	"github.com/forgekit/agentcore/internal/fallback"
	"github.com/forgekit/agentcore/internal/idempotency"
	"github.com/forgekit/agentcore/internal/metrics"
	"github.com/forgekit/agentcore/internal/providers"
	"github.com/forgekit/agentcore/internal/selfcorrect"
	"github.com/forgekit/agentcore/internal/tools"
	"github.com/forgekit/agentcore/internal/tracing"
	"github.com/forgekit/agentcore/pkg/protocol"
)

// defaultMaxCorrectionAttempts bounds how many times this package will
// splice a synthetic "try again" user turn into the conversation for one
// request before giving up and surfacing the raw failure.
const defaultMaxCorrectionAttempts = 3

const defaultMaxToolRounds = 400
const defaultMaxConcurrentToolCalls = 2
const defaultMinRequestInterval = 500 * time.Millisecond

// provider is the subset of providers.Provider the loop needs.
type provider interface {
	Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
	ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error)
	Name() string
}

// Loop is the AgentLoop. One Loop instance is created per session by the
// Orchestrator and reused across requests; message history persists on it
// between calls to Run.
type Loop struct {
	provider provider
	registry *tools.Registry
	policy   *tools.PolicyEngine
	tracker  *idempotency.Tracker
	coll     *metrics.Collector
	fb       *fallback.Engine
	tr       *tracing.Collector

	cfg config.AgentConfig

	mu              sync.Mutex
	messages        []providers.Message
	lastRequestTime time.Time
}

// New builds a Loop seeded with systemPrompt as the immutable message at
// history index 0.
func New(cfg config.AgentConfig, p provider, registry *tools.Registry, policy *tools.PolicyEngine, tracker *idempotency.Tracker, coll *metrics.Collector, fb *fallback.Engine, tr *tracing.Collector, systemPrompt string) *Loop {
	return &Loop{
		provider: p,
		registry: registry,
		policy:   policy,
		tracker:  tracker,
		coll:     coll,
		fb:       fb,
		tr:       tr,
		cfg:      cfg,
		messages: []providers.Message{{Role: "system", Content: systemPrompt}},
	}
}

// History returns a copy of the current message history. Index 0 is
// always the system message and is never mutated once set.
func (l *Loop) History() []providers.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]providers.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Loop) appendMessage(m providers.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

func (l *Loop) maxToolRounds() int {
	if l.cfg.MaxToolRounds <= 0 {
		return defaultMaxToolRounds
	}
	return l.cfg.MaxToolRounds
}

func (l *Loop) maxConcurrentToolCalls() int {
	if l.cfg.MaxConcurrentToolCalls <= 0 {
		return defaultMaxConcurrentToolCalls
	}
	return l.cfg.MaxConcurrentToolCalls
}

func (l *Loop) minRequestInterval() time.Duration {
	if l.cfg.MinRequestIntervalMs <= 0 {
		return defaultMinRequestInterval
	}
	return time.Duration(l.cfg.MinRequestIntervalMs) * time.Millisecond
}

// rateLimit sleeps as needed to keep LLM calls at least minRequestInterval
// apart.
func (l *Loop) rateLimit(ctx context.Context) {
	l.mu.Lock()
	wait := l.minRequestInterval() - time.Since(l.lastRequestTime)
	l.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	l.mu.Lock()
	l.lastRequestTime = time.Now()
	l.mu.Unlock()
}

// Run drives one user request through the READY → CHAT → TOOLS → DONE
// cycle, emitting StreamingChunk events as the response is produced.
// Ordering is fixed per round: content* → tool_calls → tool_result* →
// done, repeated until the model stops requesting tools, a fatal error
// occurs, the caller cancels, or the round cap is reached.
func (l *Loop) Run(ctx context.Context, userMessage string, emit func(protocol.StreamingChunk)) error {
	correctionAttempts := 0
	maxCorrections := l.cfg.MaxCorrectionAttempts
	if maxCorrections <= 0 {
		maxCorrections = defaultMaxCorrectionAttempts
	}

	// READY: append the user turn and report the new prompt size.
	l.appendMessage(providers.Message{Role: "user", Content: userMessage})
	texts := make([]string, 0)
	for _, m := range l.History() {
		texts = append(texts, m.Content)
	}
	emit(protocol.StreamingChunk{Kind: protocol.ChunkTokenCount, PromptTokens: tracing.EstimateTokens(texts)})

	for rounds := 0; ; rounds++ {
		if ctx.Err() != nil {
			l.appendMessage(providers.Message{Role: "assistant", Content: "[Operation cancelled by user]"})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: "[Operation cancelled by user]"})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "cancelled"})
			return ctx.Err()
		}

		if rounds >= l.maxToolRounds() {
			msg := "Maximum tool execution rounds reached"
			l.appendMessage(providers.Message{Role: "assistant", Content: msg})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: msg})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "max_rounds"})
			return nil
		}

		// CHAT
		l.rateLimit(ctx)
		resp, err := l.callLLM(ctx, emit)
		if err != nil {
			msg := fmt.Sprintf("I encountered an error: %s", err)
			l.appendMessage(providers.Message{Role: "assistant", Content: msg})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: msg})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "error"})
			return nil
		}

		l.appendMessage(providers.Message{
			Role:                "assistant",
			Content:             resp.Content,
			ToolCalls:           resp.ToolCalls,
			RawAssistantContent: resp.RawAssistantContent,
		})

		if len(resp.ToolCalls) == 0 {
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: resp.FinishReason})
			return nil
		}

		// TOOLS
		emit(protocol.StreamingChunk{Kind: protocol.ChunkToolCalls, ToolCalls: toWireToolCalls(resp.ToolCalls)})

		if ctx.Err() != nil {
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "cancelled"})
			return ctx.Err()
		}

		if err := l.runToolRound(ctx, resp.ToolCalls, emit, &correctionAttempts, maxCorrections); err != nil {
			emit(protocol.StreamingChunk{Kind: protocol.ChunkDone, FinishReason: "cancelled"})
			return err
		}
		// back to CHAT for another round.
	}
}

// callLLM issues one CHAT-round request, streaming content chunks to emit
// as they arrive and returning the accumulated response.
func (l *Loop) callLLM(ctx context.Context, emit func(protocol.StreamingChunk)) (*providers.ChatResponse, error) {
	start := time.Now()
	req := providers.ChatRequest{
		Messages: l.History(),
		Tools:    l.toolDefinitions(),
		Model:    l.cfg.Model,
		Options: map[string]any{
			providers.OptMaxTokens:   l.cfg.MaxTokens,
			providers.OptTemperature: l.cfg.Temperature,
		},
	}

	resp, err := l.provider.ChatStream(ctx, req, func(chunk providers.StreamChunk) {
		if chunk.Content != "" {
			emit(protocol.StreamingChunk{Kind: protocol.ChunkContent, Content: chunk.Content})
		}
	})

	if l.tr != nil {
		in := tracing.SpanInput{
			Type: tracing.SpanTypeLLMCall, Name: l.provider.Name() + "/" + l.cfg.Model,
			StartTime: start, EndTime: time.Now(), Model: l.cfg.Model, Provider: l.provider.Name(),
		}
		if resp != nil {
			in.OutputPreview = resp.Content
			in.FinishReason = resp.FinishReason
			if resp.Usage != nil {
				in.InputTokens = resp.Usage.PromptTokens
				in.OutputTokens = resp.Usage.CompletionTokens
			}
		}
		in.Err = err
		l.tr.EmitSpan(ctx, in)
	}

	return resp, err
}

func (l *Loop) toolDefinitions() []providers.ToolDefinition {
	var schemas []tools.ToolSchema
	if l.policy != nil {
		schemas = l.policy.FilterTools(l.registry, nil)
	} else {
		schemas = l.registry.Schemas()
	}
	defs := make([]providers.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name: s.Name, Description: s.Description,
				Parameters: providers.CleanSchemaForProvider(l.provider.Name(), s.Parameters),
			},
		})
	}
	return defs
}

func toWireToolCalls(calls []providers.ToolCall) []protocol.ToolCall {
	out := make([]protocol.ToolCall, 0, len(calls))
	for _, c := range calls {
		args, err := marshalArgs(c.Arguments)
		if err != nil {
			args = "{}"
		}
		out = append(out, protocol.ToolCall{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return out
}

// indexedResult carries one tool call's outcome plus its original batch
// position, so results can be sorted back into request order once every
// goroutine in the batch has finished — dispatch order is not guaranteed
// to match completion order.
type indexedResult struct {
	idx       int
	call      providers.ToolCall
	result    *tools.Result
	spanStart time.Time
}

// runToolRound executes one assistant turn's tool calls in batches of at
// most maxConcurrentToolCalls, appends their results to history in
// request order, and splices in a synthetic correction turn for any
// self-correct-shaped failure instead of feeding the raw error back as a
// tool-role message.
func (l *Loop) runToolRound(ctx context.Context, calls []providers.ToolCall, emit func(protocol.StreamingChunk), correctionAttempts *int, maxCorrections int) error {
	batchSize := l.maxConcurrentToolCalls()

	for start := 0; start < len(calls); start += batchSize {
		end := start + batchSize
		if end > len(calls) {
			end = len(calls)
		}
		batch := calls[start:end]

		if ctx.Err() != nil {
			return ctx.Err()
		}

		resultCh := make(chan indexedResult, len(batch))
		var wg sync.WaitGroup
		for i, call := range batch {
			wg.Add(1)
			go func(idx int, call providers.ToolCall) {
				defer wg.Done()
				spanStart := time.Now()
				result := l.executeOne(ctx, call)
				resultCh <- indexedResult{idx: idx, call: call, result: result, spanStart: spanStart}
			}(i, call)
		}
		go func() { wg.Wait(); close(resultCh) }()

		collected := make([]indexedResult, 0, len(batch))
		for r := range resultCh {
			collected = append(collected, r)
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, r := range collected {
			l.emitToolSpan(ctx, r)

			if sce, ok := selfcorrect.Extract(r.result); ok && *correctionAttempts < maxCorrections {
				*correctionAttempts++
				notice := "Retrying with a corrected approach..."
				emit(protocol.StreamingChunk{Kind: protocol.ChunkToolResult, ToolResult: &protocol.ToolResult{
					ToolCallID: r.call.ID, Success: false, Output: notice,
				}})
				l.appendMessage(providers.Message{Role: "tool", Content: notice, ToolCallID: r.call.ID})
				l.appendMessage(providers.Message{
					Role:    "user",
					Content: fmt.Sprintf("Previous approach failed. %s Please try again with the suggested approach.", correctionPrompt(sce)),
				})
				continue
			}

			l.appendMessage(providers.Message{Role: "tool", Content: r.result.String(), ToolCallID: r.call.ID})
			emit(protocol.StreamingChunk{Kind: protocol.ChunkToolResult, ToolResult: &protocol.ToolResult{
				ToolCallID: r.call.ID, Success: r.result.Success, Output: r.result.Output,
				Error: r.result.Error, Metadata: r.result.Metadata,
			}})
		}
	}

	return nil
}

func correctionPrompt(sce *selfcorrect.Error) string {
	if sce.Hint != "" {
		return sce.Hint
	}
	if len(sce.SuggestedFallbacks) > 0 {
		return "Consider using: " + joinStrings(sce.SuggestedFallbacks)
	}
	return "The previous tool call did not succeed."
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// executeOne runs a single tool call, first checking idempotency for
// file-mutating tools, then the registry, then the fallback engine on
// failure. Tool handler panics or errors never escape as Go errors — they
// become a failed *tools.Result, per the loop's never-re-throw contract.
func (l *Loop) executeOne(ctx context.Context, call providers.ToolCall) (result *tools.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = tools.ErrorResult(fmt.Sprintf("tool %s panicked: %v", call.Name, rec))
		}
	}()

	var opID string
	if l.coll != nil {
		opID = l.coll.StartOperation(call.Name, map[string]any{"toolCallId": call.ID})
	}

	if l.tracker != nil {
		if idem, opType, path, ok := l.checkIdempotent(call); ok && idem.IsDuplicate {
			r := tools.SilentResult(fmt.Sprintf("no-op: %s (%s)", idem.Reason, idem.Suggestion))
			if l.coll != nil {
				l.coll.EndOperation(opID, true, "", false)
			}
			_ = opType
			_ = path
			return r
		}
	}

	result = l.registry.Execute(ctx, call.Name, call.Arguments)

	if !result.Success && l.fb != nil {
		fbResult := l.fb.AttemptFallback(ctx, fallback.ToolCall{ID: call.ID, Name: call.Name, Args: call.Arguments}, result.Error)
		if fbResult.Metadata != nil && l.coll != nil {
			if attempt, ok := fbResult.Metadata["fallbackAttempt"].(int); ok {
				l.coll.RecordRetry(opID, attempt)
			}
		}
		if fbResult.Success {
			result = fbResult
		}
	}

	if result.Success && l.tracker != nil {
		l.recordOperation(call)
	}

	if l.coll != nil {
		l.coll.EndOperation(opID, result.Success, result.Error, result.Metadata != nil && result.Metadata["fallbackUsed"] == true)
	}

	return result
}

// checkIdempotent inspects a tool call's arguments for a file-mutating
// shape (path/content) and, if recognized, checks the OperationTracker
// before the tool runs.
func (l *Loop) checkIdempotent(call providers.ToolCall) (idempotency.IdempotencyResult, idempotency.OpType, string, bool) {
	path, _ := call.Arguments["path"].(string)
	if path == "" {
		return idempotency.IdempotencyResult{}, "", "", false
	}

	var opType idempotency.OpType
	switch call.Name {
	case "create_file":
		opType = idempotency.OpCreate
	case "edit_file", "multi_edit":
		opType = idempotency.OpEdit
	case "delete_file":
		opType = idempotency.OpDelete
	default:
		return idempotency.IdempotencyResult{}, "", "", false
	}

	content, _ := call.Arguments["content"].(string)
	return l.tracker.CheckIdempotency(opType, path, content), opType, path, true
}

func (l *Loop) recordOperation(call providers.ToolCall) {
	path, _ := call.Arguments["path"].(string)
	if path == "" {
		return
	}
	var opType idempotency.OpType
	switch call.Name {
	case "create_file":
		opType = idempotency.OpCreate
	case "edit_file", "multi_edit":
		opType = idempotency.OpEdit
	case "delete_file":
		opType = idempotency.OpDelete
	default:
		return
	}
	l.tracker.RecordOperation(opType, path, map[string]any{"tool": call.Name})
}

func (l *Loop) emitToolSpan(ctx context.Context, r indexedResult) {
	if l.tr == nil {
		return
	}
	args, _ := marshalArgs(r.call.Arguments)
	in := tracing.SpanInput{
		Type: tracing.SpanTypeToolCall, Name: r.call.Name,
		StartTime: r.spanStart, EndTime: time.Now(),
		ToolName: r.call.Name, ToolCallID: r.call.ID,
		InputPreview: args,
	}
	if r.result != nil {
		in.OutputPreview = r.result.String()
		if !r.result.Success {
			in.Err = fmt.Errorf("%s", r.result.Error)
		}
	}
	l.tr.EmitSpan(ctx, in)
}
