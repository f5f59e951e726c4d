package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicProvider_ChatParsesTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "hello there"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello there" {
		t.Fatalf("expected parsed text content, got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("expected end_turn to map to stop, got %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage total of 15, got %+v", resp.Usage)
	}
}

func TestAnthropicProvider_ChatParsesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "tool_use", "id": "call_1", "name": "read_file", "input": map[string]any{"path": "a.go"}},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "read it"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("expected tool_use to map to tool_calls, got %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("expected one read_file tool call, got %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["path"] != "a.go" {
		t.Fatalf("expected parsed tool arguments, got %+v", resp.ToolCalls[0].Arguments)
	}
}

func TestAnthropicProvider_NonOKStatusIsRetryableHTTPError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))
	p.retryConfig = RetryConfig{MaxAttempts: 2, BaseDelay: 0, MaxDelay: 0}

	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatalf("expected an error from a 429 response")
	}
	if calls != 2 {
		t.Fatalf("expected the 429 to be retried up to MaxAttempts, got %d calls", calls)
	}
}

func TestWithAnthropicModel_OverridesDefault(t *testing.T) {
	p := NewAnthropicProvider("k", WithAnthropicModel("claude-haiku"))
	if p.DefaultModel() != "claude-haiku" {
		t.Fatalf("expected overridden default model, got %q", p.DefaultModel())
	}
}
