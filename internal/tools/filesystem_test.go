package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateReadDeleteFile_Roundtrip(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	create := NewCreateFileTool(ws, true)
	res := create.Execute(ctx, map[string]any{"path": "notes.txt", "content": "hello"})
	if !res.Success {
		t.Fatalf("create failed: %s", res.Error)
	}

	read := NewReadFileTool(ws, true)
	res = read.Execute(ctx, map[string]any{"path": "notes.txt"})
	if !res.Success || res.Output != "hello" {
		t.Fatalf("unexpected read result: %+v", res)
	}
	if !res.Silent {
		t.Fatalf("expected read_file results to be marked silent")
	}

	del := NewDeleteFileTool(ws, true)
	res = del.Execute(ctx, map[string]any{"path": "notes.txt"})
	if !res.Success {
		t.Fatalf("delete failed: %s", res.Error)
	}
	if _, err := os.Stat(filepath.Join(ws, "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be gone after delete")
	}
}

func TestResolvePath_RejectsEscapeOutsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	read := NewReadFileTool(ws, true)
	res := read.Execute(context.Background(), map[string]any{"path": "../../etc/passwd"})
	if res.Success {
		t.Fatalf("expected a path escaping the workspace to be rejected")
	}
}

func TestResolvePath_UnrestrictedAllowsAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside.txt")
	if err := os.WriteFile(outside, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	read := NewReadFileTool(t.TempDir(), false)
	res := read.Execute(context.Background(), map[string]any{"path": outside})
	if !res.Success || res.Output != "data" {
		t.Fatalf("expected unrestricted read to succeed, got %+v", res)
	}
}

func TestCreateFile_MissingPathIsAnError(t *testing.T) {
	create := NewCreateFileTool(t.TempDir(), true)
	res := create.Execute(context.Background(), map[string]any{"content": "x"})
	if res.Success {
		t.Fatalf("expected missing path to fail")
	}
}
