package tools

import "testing"

func newFilesystemExecRegistry() *Registry {
	r := NewRegistry()
	r.Register(stubTool{name: "read_file"})
	r.Register(stubTool{name: "edit_file"})
	r.Register(stubTool{name: "create_file"})
	r.Register(stubTool{name: "delete_file"})
	r.Register(stubTool{name: "exec"})
	return r
}

func namesOf(schemas []ToolSchema) map[string]bool {
	out := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		out[s.Name] = true
	}
	return out
}

func TestPolicyEngine_MinimalProfileExcludesRuntime(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "minimal"})

	names := namesOf(pe.FilterTools(r, nil))
	if names["exec"] {
		t.Fatalf("expected minimal profile to exclude exec, got %v", names)
	}
	if !names["read_file"] {
		t.Fatalf("expected minimal profile to include read_file, got %v", names)
	}
}

func TestPolicyEngine_FullProfileIsUnrestricted(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "full"})

	names := namesOf(pe.FilterTools(r, nil))
	if len(names) != 5 {
		t.Fatalf("expected full profile to expose every tool, got %v", names)
	}
}

func TestPolicyEngine_DenyOverridesAllow(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "coding", Deny: []string{"delete_file"}})

	names := namesOf(pe.FilterTools(r, nil))
	if names["delete_file"] {
		t.Fatalf("expected delete_file to be denied, got %v", names)
	}
	if !names["exec"] {
		t.Fatalf("expected coding profile to still allow exec, got %v", names)
	}
}

func TestPolicyEngine_AgentPolicyNarrowsGlobal(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "coding"})

	agentPolicy := &ToolPolicy{Allow: []string{"read_file"}}
	names := namesOf(pe.FilterTools(r, agentPolicy))
	if len(names) != 1 || !names["read_file"] {
		t.Fatalf("expected agent policy to narrow the allowed set to read_file, got %v", names)
	}
}

func TestPolicyEngine_AlsoAllowAddsBack(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "minimal", AlsoAllow: []string{"exec"}})

	names := namesOf(pe.FilterTools(r, nil))
	if !names["exec"] {
		t.Fatalf("expected also_allow to add exec back despite minimal profile, got %v", names)
	}
}

func TestPolicyEngine_UnknownProfileFallsBackToFull(t *testing.T) {
	r := newFilesystemExecRegistry()
	pe := NewPolicyEngine(ToolPolicy{Profile: "nonexistent"})

	names := namesOf(pe.FilterTools(r, nil))
	if len(names) != 5 {
		t.Fatalf("expected unknown profile to fall back to unrestricted, got %v", names)
	}
}
