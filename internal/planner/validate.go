package planner

import (
	"fmt"
	"strings"
	"time"
)

// maxReasonableDuration flags plans whose total estimated duration exceeds
// this ceiling as worth a warning before execution.
const maxReasonableDuration = 10 * time.Minute

// Validator is the PlanValidator: it checks a TaskPlan's structural
// integrity (missing fields, dangling or cyclic dependencies, unknown
// tools) and scores the plan's likely success rate.
type Validator struct {
	knownTools map[string]bool
}

// NewValidator builds a Validator against the built-in tool set. Extend
// with RegisterTool for custom or MCP-bridged tools the registry exposes.
func NewValidator() *Validator {
	v := &Validator{knownTools: make(map[string]bool)}
	for _, t := range []string{"read_file", "create_file", "edit_file", "delete_file", "exec"} {
		v.knownTools[t] = true
	}
	return v
}

// RegisterTool adds name to the set of tools the validator treats as known.
func (v *Validator) RegisterTool(name string) {
	v.knownTools[name] = true
}

// Validate checks structural integrity and estimates a success rate.
func (v *Validator) Validate(plan *TaskPlan) ValidationResult {
	var errs, warnings, suggestions []string

	ids := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.ID == "" {
			errs = append(errs, "a step is missing an id")
			continue
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		ids[s.ID] = true
	}

	for _, s := range plan.Steps {
		if s.Description == "" {
			errs = append(errs, fmt.Sprintf("step %q is missing a description", s.ID))
		}
		if s.Tool == "" {
			errs = append(errs, fmt.Sprintf("step %q is missing a tool", s.ID))
		} else if !v.knownTools[s.Tool] {
			errs = append(errs, fmt.Sprintf("step %q references unknown tool %q", s.ID, s.Tool))
		}
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				errs = append(errs, fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep))
			}
		}
	}

	if cyclePath, ok := findCycle(plan.Steps); ok {
		errs = append(errs, "plan has a circular dependency: "+strings.Join(cyclePath, " -> "))
	}

	criticalCount := 0
	for _, s := range plan.Steps {
		if s.RiskLevel == RiskCritical {
			criticalCount++
		}
	}
	if criticalCount == 1 {
		warnings = append(warnings, "plan contains a single critical-risk step; consider isolating it in its own confirmation")
	} else if criticalCount > 1 {
		warnings = append(warnings, fmt.Sprintf("plan contains %d critical-risk steps", criticalCount))
	}

	if plan.TotalEstimatedDuration > maxReasonableDuration {
		warnings = append(warnings, fmt.Sprintf("estimated duration %s exceeds the usual ceiling of %s", plan.TotalEstimatedDuration, maxReasonableDuration))
	}

	if len(plan.FilesAffected) > 10 {
		warnings = append(warnings, fmt.Sprintf("plan affects %d files, which is unusually broad", len(plan.FilesAffected)))
		suggestions = append(suggestions, "consider splitting this into smaller, independently reviewable plans")
	}

	isValid := len(errs) == 0
	return ValidationResult{
		IsValid:              isValid,
		Errors:               errs,
		Warnings:             warnings,
		Suggestions:          suggestions,
		EstimatedSuccessRate: estimateSuccessRate(plan, len(warnings), isValid),
	}
}

func estimateSuccessRate(plan *TaskPlan, warningCount int, isValid bool) float64 {
	if !isValid {
		return 0
	}
	rate := 0.95
	rate -= float64(len(plan.Steps)) * 0.01
	switch plan.OverallRiskLevel {
	case RiskMedium:
		rate -= 0.05
	case RiskHigh:
		rate -= 0.15
	case RiskCritical:
		rate -= 0.3
	}
	rate -= float64(warningCount) * 0.03
	if rate < 0.05 {
		rate = 0.05
	}
	if rate > 0.99 {
		rate = 0.99
	}
	return rate
}

// findCycle runs a DFS over the step dependency graph looking for a back
// edge, returning the cycle as a slice of step IDs if one is found.
func findCycle(steps []*PlanStep) ([]string, bool) {
	byID := make(map[string]*PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var path []string

	var visit func(id string) ([]string, bool)
	visit = func(id string) ([]string, bool) {
		color[id] = gray
		path = append(path, id)

		if s, ok := byID[id]; ok {
			for _, dep := range s.Dependencies {
				switch color[dep] {
				case gray:
					cycleStart := indexOf(path, dep)
					return append(append([]string{}, path[cycleStart:]...), dep), true
				case white:
					if cyc, found := visit(dep); found {
						return cyc, true
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return nil, false
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if cyc, found := visit(s.ID); found {
				return cyc, true
			}
		}
	}
	return nil, false
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

// Preview renders a deterministic, human-readable confirmation block for
// a plan, used when a high or critical risk plan requires the user to
// approve it before the PlanExecutor runs.
func Preview(plan *TaskPlan, validation ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n", plan.Description)
	fmt.Fprintf(&b, "Risk: %s   Estimated duration: %s   Success rate: %.0f%%\n",
		plan.OverallRiskLevel, plan.TotalEstimatedDuration, validation.EstimatedSuccessRate*100)
	if len(plan.FilesAffected) > 0 {
		fmt.Fprintf(&b, "Files affected (%d): %s\n", len(plan.FilesAffected), strings.Join(plan.FilesAffected, ", "))
	}
	b.WriteString("Steps:\n")
	for _, s := range plan.Steps {
		deps := ""
		if len(s.Dependencies) > 0 {
			deps = fmt.Sprintf(" (after %s)", strings.Join(s.Dependencies, ", "))
		}
		fmt.Fprintf(&b, "  [%s] %s: %s%s\n", s.RiskLevel, s.ID, s.Description, deps)
	}
	if len(validation.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range validation.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}
