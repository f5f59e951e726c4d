// Package fallback implements the FallbackEngine: bounded, strategy-driven
// retry of a failing tool call against alternative tools.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forgekit/agentcore/internal/tools"
)

type Strategy string

const (
	StrategyDecomposeAndRetry   Strategy = "decompose_and_retry"
	StrategySequentialExecution Strategy = "sequential_execution"
	StrategySimplerTool         Strategy = "simpler_tool"
	StrategyBashFallback        Strategy = "bash_fallback"
)

// FallbackStrategy is the registered recovery plan for one tool name.
type FallbackStrategy struct {
	FallbackTools []string
	Strategy      Strategy
	Description   string
}

// maxRetries is the per-tool-call retry cap before a failure is terminal.
const maxRetries = 3

// ToolCall mirrors the subset of a tool invocation the engine needs to
// retry it against a different tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Executor dispatches a named tool with the given args. The AgentLoop's
// tool registry satisfies this.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) *tools.Result
}

// Engine is the FallbackEngine.
type Engine struct {
	mu          sync.Mutex
	strategies  map[string]FallbackStrategy
	retryCounts map[string]int
	executor    Executor
}

// NewEngine builds an Engine with the default built-in strategies plus any
// additional ones supplied.
func NewEngine(executor Executor, extra map[string]FallbackStrategy) *Engine {
	e := &Engine{
		strategies:  defaultStrategies(),
		retryCounts: make(map[string]int),
		executor:    executor,
	}
	for k, v := range extra {
		e.strategies[k] = v
	}
	return e
}

func defaultStrategies() map[string]FallbackStrategy {
	return map[string]FallbackStrategy{
		"edit_file": {
			FallbackTools: []string{"read_file", "edit_file"},
			Strategy:      StrategySimplerTool,
			Description:   "re-read the file with the original args; the edit itself is not retried",
		},
		"multi_edit": {
			FallbackTools: []string{"edit_file"},
			Strategy:      StrategyDecomposeAndRetry,
			Description:   "decompose a batch edit into per-file edit_file calls",
		},
		"batch_refactor": {
			FallbackTools: []string{"edit_file"},
			Strategy:      StrategyDecomposeAndRetry,
			Description:   "decompose a batch refactor into per-file edit_file calls",
		},
		"multi_file_write": {
			FallbackTools: []string{"create_file"},
			Strategy:      StrategySequentialExecution,
			Description:   "re-issue an atomic multi-file batch one file at a time",
		},
		"glob_search": {
			FallbackTools: []string{"exec"},
			Strategy:      StrategyBashFallback,
			Description:   "fall back to a shell find/grep invocation",
		},
		"code_search": {
			FallbackTools: []string{"exec"},
			Strategy:      StrategyBashFallback,
			Description:   "fall back to a shell grep invocation",
		},
	}
}

func retryKey(toolName, toolCallID string) string {
	return toolName + "+" + toolCallID
}

// AttemptFallback retries toolCall against its registered fallback
// strategy. It increments the per-call retry counter, applies exponential
// backoff (1s, 2s, 4s) between attempts, and clears the counter on success
// or once the retry cap is reached.
func (e *Engine) AttemptFallback(ctx context.Context, call ToolCall, originalErr string) *tools.Result {
	e.mu.Lock()
	strat, ok := e.strategies[call.Name]
	if !ok {
		e.mu.Unlock()
		return tools.ErrorResult(fmt.Sprintf("no fallback strategy registered for %q: %s", call.Name, originalErr))
	}
	key := retryKey(call.Name, call.ID)
	e.retryCounts[key]++
	attempt := e.retryCounts[key]
	e.mu.Unlock()

	if attempt > maxRetries {
		e.mu.Lock()
		delete(e.retryCounts, key)
		e.mu.Unlock()
		return tools.ErrorResult(fmt.Sprintf("All fallback attempts failed for %s after %d retries: %s", call.Name, maxRetries, originalErr))
	}

	backoff := time.Duration(1<<uint(attempt-1)) * time.Second
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return tools.ErrorResult("cancelled during fallback backoff")
	}

	result := e.dispatch(ctx, strat, call)

	e.mu.Lock()
	if result.Success {
		delete(e.retryCounts, key)
	}
	e.mu.Unlock()

	result.WithMetadata("fallbackUsed", true)
	result.WithMetadata("fallbackStrategy", string(strat.Strategy))
	result.WithMetadata("fallbackAttempt", attempt)
	return result
}

func (e *Engine) dispatch(ctx context.Context, strat FallbackStrategy, call ToolCall) *tools.Result {
	if len(strat.FallbackTools) == 0 {
		return tools.ErrorResult("fallback strategy has no fallback tools configured for " + call.Name)
	}
	target := strat.FallbackTools[0]

	switch strat.Strategy {
	case StrategyDecomposeAndRetry:
		return e.decomposeAndRetry(ctx, target, call)
	case StrategySequentialExecution:
		return e.sequentialExecution(ctx, target, call)
	case StrategySimplerTool:
		return e.executor.Execute(ctx, target, call.Args)
	case StrategyBashFallback:
		return e.bashFallback(ctx, call)
	default:
		return tools.ErrorResult("unknown fallback strategy: " + string(strat.Strategy))
	}
}

// decomposeAndRetry splits a batch-shaped args["files"] or args["edits"]
// array into one invocation of target per element.
func (e *Engine) decomposeAndRetry(ctx context.Context, target string, call ToolCall) *tools.Result {
	items, key := extractBatch(call.Args)
	if items == nil {
		return tools.ErrorResult("cannot decompose " + call.Name + ": no batch field found in args")
	}

	var outputs []string
	for i, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return tools.ErrorResult(fmt.Sprintf("cannot decompose %s: element %d of %q is not an object", call.Name, i, key))
		}
		res := e.executor.Execute(ctx, target, sub)
		if !res.Success {
			return tools.ErrorResult(fmt.Sprintf("decomposed step %d/%d (%s) failed: %s", i+1, len(items), target, res.Error))
		}
		outputs = append(outputs, res.Output)
	}
	return tools.NewResult(fmt.Sprintf("decomposed %s into %d %s calls, all succeeded:\n%s", call.Name, len(items), target, joinLines(outputs)))
}

// sequentialExecution re-issues an atomic multi-step batch one at a time,
// aborting at the first failure and reporting which step failed.
func (e *Engine) sequentialExecution(ctx context.Context, target string, call ToolCall) *tools.Result {
	items, key := extractBatch(call.Args)
	if items == nil {
		return tools.ErrorResult("cannot sequentially execute " + call.Name + ": no batch field found in args")
	}

	for i, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return tools.ErrorResult(fmt.Sprintf("step %d of %q is not an object", i, key))
		}
		res := e.executor.Execute(ctx, target, sub)
		if !res.Success {
			return tools.ErrorResult(fmt.Sprintf("sequential execution aborted at step %d/%d: %s", i+1, len(items), res.Error))
		}
	}
	return tools.NewResult(fmt.Sprintf("sequentially executed %d steps via %s, all succeeded", len(items), target))
}

// bashFallback synthesizes a shell equivalent for search-style tools.
func (e *Engine) bashFallback(ctx context.Context, call ToolCall) *tools.Result {
	var cmd string
	switch call.Name {
	case "glob_search":
		pattern, _ := call.Args["pattern"].(string)
		cmd = fmt.Sprintf("find . -path %q", pattern)
	case "code_search":
		pattern, _ := call.Args["pattern"].(string)
		cmd = fmt.Sprintf("grep -rn %q .", pattern)
	default:
		return tools.ErrorResult("no bash fallback known for " + call.Name)
	}
	return e.executor.Execute(ctx, "exec", map[string]any{"command": cmd})
}

func extractBatch(args map[string]any) ([]any, string) {
	for _, key := range []string{"files", "edits", "steps", "operations"} {
		if v, ok := args[key].([]any); ok {
			return v, key
		}
	}
	return nil, ""
}

func joinLines(lines []string) string {
	data, err := json.Marshal(lines)
	if err != nil {
		slog.Warn("fallback.marshal_failed", "error", err)
		return fmt.Sprintf("%v", lines)
	}
	return string(data)
}
