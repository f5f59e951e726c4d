package tools

import (
	"log/slog"
	"strings"
)

// toolGroups maps group names to concrete tool names; "group:xxx" in a
// policy spec expands through this table. MCP servers register their own
// "mcp" and "mcp:<server>" groups dynamically via RegisterToolGroup.
var toolGroups = map[string][]string{
	"fs":      {"read_file", "edit_file", "create_file", "delete_file"},
	"runtime": {"exec"},
}

// RegisterToolGroup adds or replaces a dynamic tool group — used by the MCP
// manager to register "mcp" and "mcp:<server>" groups as servers connect.
func RegisterToolGroup(name string, members []string) {
	toolGroups[name] = members
}

// UnregisterToolGroup removes a dynamic tool group, used when an MCP
// server disconnects.
func UnregisterToolGroup(name string) {
	delete(toolGroups, name)
}

// toolProfiles define preset allow sets advertised to the LLM.
var toolProfiles = map[string][]string{
	"minimal": {"group:fs"},
	"coding":  {"group:fs", "group:runtime"},
	"full":    {}, // empty = no restriction
}

// ToolPolicy configures the allow/deny/profile pipeline for one agent.
type ToolPolicy struct {
	Profile   string
	Allow     []string
	Deny      []string
	AlsoAllow []string
}

// PolicyEngine evaluates which tools are advertised to the LLM on a given
// round, generalizing the teacher's profile→allow→deny→alsoAllow pipeline
// down to this core's smaller tool surface.
type PolicyEngine struct {
	global ToolPolicy
}

func NewPolicyEngine(global ToolPolicy) *PolicyEngine {
	return &PolicyEngine{global: global}
}

// FilterTools returns the advertised tool schema list after applying the
// global policy, optionally narrowed by a per-call agent policy.
func (pe *PolicyEngine) FilterTools(registry *Registry, agentPolicy *ToolPolicy) []ToolSchema {
	all := make([]string, 0)
	for _, s := range registry.Schemas() {
		all = append(all, s.Name)
	}

	allowed := pe.applyProfile(all, pe.global.Profile)
	if len(pe.global.Allow) > 0 {
		allowed = intersectWithSpec(allowed, pe.global.Allow)
	}
	if agentPolicy != nil {
		if agentPolicy.Profile != "" {
			allowed = intersectWithSpec(allowed, expandSpec(all, []string{agentPolicy.Profile}))
		}
		if len(agentPolicy.Allow) > 0 {
			allowed = intersectWithSpec(allowed, agentPolicy.Allow)
		}
	}

	if len(pe.global.Deny) > 0 {
		allowed = subtractSpec(allowed, pe.global.Deny)
	}
	if agentPolicy != nil && len(agentPolicy.Deny) > 0 {
		allowed = subtractSpec(allowed, agentPolicy.Deny)
	}

	if len(pe.global.AlsoAllow) > 0 {
		allowed = unionWithSpec(allowed, all, pe.global.AlsoAllow)
	}
	if agentPolicy != nil && len(agentPolicy.AlsoAllow) > 0 {
		allowed = unionWithSpec(allowed, all, agentPolicy.AlsoAllow)
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}
	out := registry.FilteredSchemas(allowedSet)
	slog.Debug("tool policy applied", "total_tools", len(all), "allowed", len(out))
	return out
}

func (pe *PolicyEngine) applyProfile(allTools []string, profile string) []string {
	if profile == "" || profile == "full" {
		return copySlice(allTools)
	}
	spec, ok := toolProfiles[profile]
	if !ok {
		slog.Warn("unknown tool profile, using full", "profile", profile)
		return copySlice(allTools)
	}
	return expandSpec(allTools, spec)
}

// expandSpec expands a spec list (which may contain "group:xxx") into
// concrete tool names, filtered against available tools.
func expandSpec(available []string, spec []string) []string {
	expanded := make(map[string]bool)
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			groupName := strings.TrimPrefix(s, "group:")
			for _, m := range toolGroups[groupName] {
				expanded[m] = true
			}
		} else {
			expanded[s] = true
		}
	}
	var result []string
	for _, t := range available {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func intersectWithSpec(current []string, spec []string) []string {
	expanded := make(map[string]bool)
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			groupName := strings.TrimPrefix(s, "group:")
			for _, m := range toolGroups[groupName] {
				expanded[m] = true
			}
		} else {
			expanded[s] = true
		}
	}
	var result []string
	for _, t := range current {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func subtractSpec(current []string, spec []string) []string {
	denied := make(map[string]bool)
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			groupName := strings.TrimPrefix(s, "group:")
			for _, m := range toolGroups[groupName] {
				denied[m] = true
			}
		} else {
			denied[s] = true
		}
	}
	var result []string
	for _, t := range current {
		if !denied[t] {
			result = append(result, t)
		}
	}
	return result
}

func unionWithSpec(current []string, allTools []string, spec []string) []string {
	existing := make(map[string]bool, len(current))
	for _, t := range current {
		existing[t] = true
	}
	for _, t := range expandSpec(allTools, spec) {
		if !existing[t] {
			current = append(current, t)
			existing[t] = true
		}
	}
	return current
}

func copySlice(s []string) []string {
	c := make([]string, len(s))
	copy(c, s)
	return c
}
