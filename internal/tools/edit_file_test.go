package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEditFile_ExactReplace(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "a.go")
	if err := os.WriteFile(path, []byte("package main\n\nfunc old() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]any{
		"path": "a.go", "old_str": "func old() {}", "new_str": "func new() {}",
	})
	if !res.Success {
		t.Fatalf("expected edit to succeed: %s", res.Error)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "func new() {}") {
		t.Fatalf("edit did not apply, got: %s", data)
	}
}

func TestEditFile_NotFoundReturnsSelfCorrectableError(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "a.go")
	os.WriteFile(path, []byte("package main\n"), 0o644)

	tool := NewEditFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]any{
		"path": "a.go", "old_str": "does not exist", "new_str": "x",
	})
	if res.Success {
		t.Fatalf("expected edit with no match to fail")
	}
	if !strings.HasPrefix(res.Error, "String not found") {
		t.Fatalf("expected error to begin with %q, got %q", "String not found", res.Error)
	}
	if !res.IsSelfCorrectError() {
		t.Fatalf("expected an exact-match miss to be a self-correct error, got metadata: %v", res.Metadata)
	}
	if res.Metadata["originalTool"] != "edit_file" {
		t.Fatalf("expected originalTool metadata to be edit_file, got %v", res.Metadata["originalTool"])
	}
}

func TestEditFile_AmbiguousMatchRequiresReplaceAll(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "a.go")
	os.WriteFile(path, []byte("foo\nfoo\n"), 0o644)

	tool := NewEditFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]any{
		"path": "a.go", "old_str": "foo", "new_str": "bar",
	})
	if res.Success {
		t.Fatalf("expected ambiguous match to fail without replace_all")
	}

	res = tool.Execute(context.Background(), map[string]any{
		"path": "a.go", "old_str": "foo", "new_str": "bar", "replace_all": true,
	})
	if !res.Success {
		t.Fatalf("expected replace_all to succeed: %s", res.Error)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "bar\nbar\n" {
		t.Fatalf("unexpected contents after replace_all: %q", data)
	}
}

func TestEditFile_FullOverwrite(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "a.go")
	os.WriteFile(path, []byte("old content"), 0o644)

	tool := NewEditFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]any{"path": "a.go", "content": "new content"})
	if !res.Success {
		t.Fatalf("expected overwrite to succeed: %s", res.Error)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new content" {
		t.Fatalf("unexpected contents: %q", data)
	}
}
