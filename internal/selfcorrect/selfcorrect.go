// Package selfcorrect carries the SelfCorrectError contract across the
// ToolResult boundary: a structured hint that a tool failure is
// recoverable, and how the agent loop should retry it.
package selfcorrect

import (
	"regexp"

	"github.com/forgekit/agentcore/internal/tools"
)

// Error is a recoverable tool failure: an exact-match miss, wrong path, or
// similar hiccup the LLM can fix given a hint and a short list of
// alternative tools to try.
type Error struct {
	OriginalTool       string         `json:"originalTool"`
	SuggestedFallbacks []string       `json:"suggestedFallbacks"`
	Hint               string         `json:"hint"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// legacyMarker matches the deprecated string-encoded form still accepted
// on ingest: "SELF_CORRECT_ATTEMPT: <hint>".
var legacyMarker = regexp.MustCompile(`SELF_CORRECT_ATTEMPT:\s*(.+)`)

// Extract reports whether a tool result is carrying a SelfCorrectError,
// preferring the metadata envelope and falling back to the legacy string
// marker embedded in Error for backward compatibility with LLM-visible
// prose.
func Extract(result *tools.Result) (*Error, bool) {
	if result == nil || result.Success {
		return nil, false
	}

	if result.IsSelfCorrectError() {
		sce := &Error{Metadata: result.Metadata}
		if v, ok := result.Metadata["originalTool"].(string); ok {
			sce.OriginalTool = v
		}
		if v, ok := result.Metadata["hint"].(string); ok {
			sce.Hint = v
		}
		if v, ok := result.Metadata["suggestedFallbacks"].([]string); ok {
			sce.SuggestedFallbacks = v
		} else if v, ok := result.Metadata["suggestedFallbacks"].([]any); ok {
			for _, e := range v {
				if s, ok := e.(string); ok {
					sce.SuggestedFallbacks = append(sce.SuggestedFallbacks, s)
				}
			}
		}
		return sce, true
	}

	if m := legacyMarker.FindStringSubmatch(result.Error); m != nil {
		return &Error{Hint: m[1]}, true
	}

	return nil, false
}

// Inject marks a Result as carrying a SelfCorrectError, writing both the
// preferred metadata envelope and the legacy string marker so older
// consumers that only scan Error text still see the hint.
func Inject(result *tools.Result, sce *Error) *tools.Result {
	result.Error = "SELF_CORRECT_ATTEMPT: " + sce.Hint
	result.WithMetadata("isSelfCorrectError", true)
	result.WithMetadata("originalTool", sce.OriginalTool)
	result.WithMetadata("hint", sce.Hint)
	result.WithMetadata("suggestedFallbacks", sce.SuggestedFallbacks)
	return result
}
