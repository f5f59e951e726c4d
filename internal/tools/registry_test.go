package tools

import (
	"context"
	"testing"
)

type stubTool struct{ name string }

func (s stubTool) Name() string                                      { return s.name }
func (s stubTool) Description() string                               { return "stub" }
func (s stubTool) Parameters() map[string]any                        { return map[string]any{} }
func (s stubTool) Execute(ctx context.Context, args map[string]any) *Result { return NewResult("ok") }

func TestRegistry_ExecuteUnknownToolNeverPanics(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nonexistent", nil)
	if res.Success {
		t.Fatalf("expected unknown tool to fail")
	}
}

func TestRegistry_SchemasAreSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "zebra"})
	r.Register(stubTool{name: "alpha"})
	r.Register(stubTool{name: "mid"})

	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("expected 3 schemas, got %d", len(schemas))
	}
	if schemas[0].Name != "alpha" || schemas[1].Name != "mid" || schemas[2].Name != "zebra" {
		t.Fatalf("expected alphabetical order, got %v", schemas)
	}
}

func TestRegistry_UnregisterPrefix(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "mcp__server1__tool_a"})
	r.Register(stubTool{name: "mcp__server1__tool_b"})
	r.Register(stubTool{name: "read_file"})

	r.UnregisterPrefix("mcp__server1__")

	if r.Has("mcp__server1__tool_a") || r.Has("mcp__server1__tool_b") {
		t.Fatalf("expected prefixed tools to be removed")
	}
	if !r.Has("read_file") {
		t.Fatalf("expected unrelated tool to survive UnregisterPrefix")
	}
}

func TestRegistry_FilteredSchemas(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "read_file"})
	r.Register(stubTool{name: "exec"})

	filtered := r.FilteredSchemas(map[string]bool{"read_file": true})
	if len(filtered) != 1 || filtered[0].Name != "read_file" {
		t.Fatalf("expected only read_file, got %v", filtered)
	}

	all := r.FilteredSchemas(nil)
	if len(all) != 2 {
		t.Fatalf("expected nil filter to return all tools, got %d", len(all))
	}
}
