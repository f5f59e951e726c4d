package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditFileTool performs an exact-match string replacement inside an
// existing file. It accepts either {path, old_str, new_str, replace_all?}
// for a targeted edit or {path, content} for a full overwrite.
//
// Per the tool-argument convention, a failed exact-match lookup returns an
// error string that begins with "String not found" — this is the signal
// the self-correct path keys off of.
type EditFileTool struct {
	workspace string
	restrict  bool
}

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{workspace: workspace, restrict: restrict}
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Edit a file by replacing an exact substring, or overwrite its full content"
}
func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":         map[string]any{"type": "string", "description": "Path of the file to edit"},
			"old_str":      map[string]any{"type": "string", "description": "Exact substring to find and replace"},
			"new_str":      map[string]any{"type": "string", "description": "Replacement text"},
			"replace_all":  map[string]any{"type": "boolean", "description": "Replace every occurrence instead of requiring exactly one"},
			"content":      map[string]any{"type": "string", "description": "Full replacement content (alternative to old_str/new_str)"},
		},
		"required": []string{"path"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if content, ok := args["content"].(string); ok {
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
		}
		return NewResult(fmt.Sprintf("Wrote %s (%d bytes)", path, len(content)))
	}

	oldStr, _ := args["old_str"].(string)
	newStr, _ := args["new_str"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if oldStr == "" {
		return ErrorResult("either content or old_str/new_str is required")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}
	original := string(data)

	count := strings.Count(original, oldStr)
	if count == 0 {
		return selfCorrectableMiss(fmt.Sprintf("String not found in %s: %q", path, truncateForError(oldStr)),
			"the exact text to replace was not found — re-read the file and retry with a substring that matches verbatim")
	}
	if count > 1 && !replaceAll {
		return selfCorrectableMiss(fmt.Sprintf("String not found as a unique match in %s (matched %d times; pass replace_all to replace every occurrence): %q", path, count, truncateForError(oldStr)),
			"the match was ambiguous — pass replace_all:true, or narrow old_str to a unique substring")
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(original, oldStr, newStr)
	} else {
		updated = strings.Replace(original, oldStr, newStr, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return NewResult(fmt.Sprintf("Edited %s", path))
}

// selfCorrectableMiss builds an exact-match-miss failure as a
// SelfCorrectError, per the tool-argument convention (§6): the error
// string still begins with "String not found" for callers that only scan
// text, but metadata.isSelfCorrectError lets the self-correct path in the
// agent loop re-engage the LLM with read_file as a suggested fallback
// instead of giving up after one miss.
func selfCorrectableMiss(errMsg, hint string) *Result {
	r := ErrorResult(errMsg)
	r.WithMetadata("isSelfCorrectError", true)
	r.WithMetadata("originalTool", "edit_file")
	r.WithMetadata("hint", hint)
	r.WithMetadata("suggestedFallbacks", []string{"read_file"})
	return r
}

func truncateForError(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
