package mcp

import (
	"context"
	"sync/atomic"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/forgekit/agentcore/internal/tools"
)

func TestMapToEnvSlice(t *testing.T) {
	if got := mapToEnvSlice(nil); got != nil {
		t.Fatalf("expected nil for an empty map, got %v", got)
	}
	got := mapToEnvSlice(map[string]string{"FOO": "bar"})
	if len(got) != 1 || got[0] != "FOO=bar" {
		t.Fatalf("expected one KEY=value entry, got %v", got)
	}
}

func TestJoinErrors(t *testing.T) {
	if got := joinErrors(nil); got != "" {
		t.Fatalf("expected empty string for no errors, got %q", got)
	}
	if got := joinErrors([]string{"a", "b"}); got != "a; b" {
		t.Fatalf("expected semicolon-joined errors, got %q", got)
	}
}

func TestManager_StartWithNoConfigsIsNoop(t *testing.T) {
	m := NewManager(tools.NewRegistry())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("expected Start with no configs to be a no-op, got %v", err)
	}
	if len(m.ServerStatus()) != 0 {
		t.Fatalf("expected no server statuses")
	}
	if len(m.ToolNames()) != 0 {
		t.Fatalf("expected no registered tool names")
	}
}

func TestManager_StopOnFreshManagerIsSafe(t *testing.T) {
	m := NewManager(tools.NewRegistry())
	m.Stop() // must not panic with no servers connected
}

func TestBridgeTool_NameUsesPrefixOrServerFallback(t *testing.T) {
	connected := &atomic.Bool{}
	tool := mcpgo.Tool{Name: "search", Description: "search the web"}

	b1 := NewBridgeTool("web", tool, nil, "", 0, connected)
	if b1.Name() != "mcp__web__search" {
		t.Fatalf("expected server name fallback, got %q", b1.Name())
	}

	b2 := NewBridgeTool("web", tool, nil, "custom", 0, connected)
	if b2.Name() != "mcp__custom__search" {
		t.Fatalf("expected custom prefix to win, got %q", b2.Name())
	}
	if b2.OriginalName() != "search" {
		t.Fatalf("expected OriginalName to return the bare tool name, got %q", b2.OriginalName())
	}
}

func TestBridgeTool_ExecuteFailsFastWhenDisconnected(t *testing.T) {
	connected := &atomic.Bool{}
	connected.Store(false)

	b := NewBridgeTool("web", mcpgo.Tool{Name: "search"}, nil, "", 0, connected)
	res := b.Execute(context.Background(), map[string]any{"q": "go"})
	if res.Success {
		t.Fatalf("expected a disconnected server to fail without calling the client")
	}
}
