package selfcorrect

import (
	"testing"

	"github.com/forgekit/agentcore/internal/tools"
)

func TestExtract_SuccessfulResultNeverMatches(t *testing.T) {
	result := tools.NewResult("ok")
	if _, ok := Extract(result); ok {
		t.Fatalf("a successful result must never be extracted as a SelfCorrectError")
	}
}

func TestExtract_MetadataEnvelope(t *testing.T) {
	result := tools.ErrorResult("String not found in file")
	result.WithMetadata("isSelfCorrectError", true)
	result.WithMetadata("originalTool", "edit_file")
	result.WithMetadata("hint", "re-read the file before retrying the edit")
	result.WithMetadata("suggestedFallbacks", []string{"read_file"})

	sce, ok := Extract(result)
	if !ok {
		t.Fatalf("expected metadata envelope to be extracted")
	}
	if sce.OriginalTool != "edit_file" || sce.Hint != "re-read the file before retrying the edit" {
		t.Fatalf("unexpected extracted fields: %+v", sce)
	}
	if len(sce.SuggestedFallbacks) != 1 || sce.SuggestedFallbacks[0] != "read_file" {
		t.Fatalf("unexpected fallbacks: %+v", sce.SuggestedFallbacks)
	}
}

func TestExtract_LegacyStringMarker(t *testing.T) {
	result := tools.ErrorResult("SELF_CORRECT_ATTEMPT: old_str did not match any text in the file")
	sce, ok := Extract(result)
	if !ok {
		t.Fatalf("expected legacy marker to be recognized")
	}
	if sce.Hint != "old_str did not match any text in the file" {
		t.Fatalf("unexpected hint: %q", sce.Hint)
	}
}

func TestExtract_PlainErrorDoesNotMatch(t *testing.T) {
	result := tools.ErrorResult("permission denied")
	if _, ok := Extract(result); ok {
		t.Fatalf("a plain error with no marker must not be extracted")
	}
}

func TestInject_SetsBothEnvelopeAndLegacyMarker(t *testing.T) {
	result := tools.ErrorResult("")
	sce := &Error{OriginalTool: "edit_file", Hint: "retry with read_file first", SuggestedFallbacks: []string{"read_file"}}

	Inject(result, sce)

	if !result.IsSelfCorrectError() {
		t.Fatalf("expected Inject to set the metadata envelope")
	}
	extracted, ok := Extract(result)
	if !ok {
		t.Fatalf("expected Extract to round-trip an injected result")
	}
	if extracted.Hint != sce.Hint || extracted.OriginalTool != sce.OriginalTool {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", extracted, sce)
	}
}
