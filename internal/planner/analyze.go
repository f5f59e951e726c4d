package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/forgekit/agentcore/internal/codeintel"
)

// defaultStepDuration is the per-step estimate used when a step has no
// more specific basis for one.
const defaultStepDuration = 30 * time.Second

// minComplexCandidates is the floor on file-touching steps a moderate-or-
// higher complexity request gets even when neither a literal path in the
// request nor a wired codeintel.Index resolves any candidates. Without
// this floor such a request against an empty workspace collapses to a
// two-step plan (analysis + verify), which undershoots the step count and
// risk level a request like that is meant to carry.
const minComplexCandidates = 3

var complexityKeywords = []string{"refactor", "move", "extract", "implement", "restructure", "migrate", "redesign"}
var architectureKeywords = []string{"architecture", "module", "layer", "pattern", "dependency injection", "interface"}

// Planner turns a user request into an Analysis and, if warranted, a
// validated TaskPlan. It consults a codeintel.Index to resolve vague
// requests ("refactor the auth module") into concrete file targets.
type Planner struct {
	index     *codeintel.Index
	validator *Validator
	seq       int64
}

// NewPlanner builds a Planner backed by index (may be nil, in which case
// file-resolution falls back to whatever paths the request names
// literally).
func NewPlanner(index *codeintel.Index) *Planner {
	return &Planner{index: index, validator: NewValidator()}
}

// RegisterTool extends the set of tools the Planner's Validator treats as
// known, for MCP-bridged or policy-added tools beyond the built-in five.
func (p *Planner) RegisterTool(name string) {
	p.validator.RegisterTool(name)
}

// Analyze produces a lightweight assessment of a request without
// committing to concrete steps — CreatePlan uses it to size and risk-rate
// the plan. The Orchestrator's plan-detection heuristic scores requests on
// its own and does not call it.
func (p *Planner) Analyze(userRequest string) Analysis {
	lower := strings.ToLower(userRequest)

	score := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			score += 2
		}
	}
	for _, kw := range architectureKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	if strings.Contains(lower, "across") || strings.Contains(lower, "throughout") {
		score++
	}

	complexity := "simple"
	estimatedSteps := 1
	switch {
	case score >= 5:
		complexity = "complex"
		estimatedSteps = 8
	case score >= 2:
		complexity = "moderate"
		estimatedSteps = 4
	}

	var risks []string
	if strings.Contains(lower, "delete") || strings.Contains(lower, "remove") {
		risks = append(risks, "destructive operation: deleting or removing code")
	}
	if strings.Contains(lower, "config") || strings.Contains(lower, "migration") {
		risks = append(risks, "touches configuration or migration files")
	}
	if strings.Contains(lower, "auth") || strings.Contains(lower, "security") {
		risks = append(risks, "touches authentication or security-sensitive code")
	}

	return Analysis{
		Intent:         inferIntent(lower),
		Complexity:     complexity,
		EstimatedSteps: estimatedSteps,
		PotentialRisks: risks,
	}
}

func inferIntent(lower string) string {
	switch {
	case strings.Contains(lower, "add") && strings.Contains(lower, "endpoint"):
		return "add_endpoint"
	case strings.Contains(lower, "refactor"):
		return "refactor_symbol"
	case strings.Contains(lower, "move") || strings.Contains(lower, "extract"):
		return "move_code"
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug"):
		return "fix_bug"
	default:
		return "general_change"
	}
}

// CreatePlan builds a full TaskPlan from a user request, validates it, and
// returns both alongside the Analysis that informed it.
func (p *Planner) CreatePlan(userRequest string) CreatePlanResult {
	analysis := p.Analyze(userRequest)
	candidates := p.resolveCandidateFiles(userRequest, analysis)
	if analysis.EstimatedSteps >= 4 && len(candidates) < minComplexCandidates {
		candidates = appendUniquePaths(candidates, placeholderCandidates(userRequest)...)
	}

	steps := p.buildSteps(userRequest, analysis, candidates)
	plan := &TaskPlan{
		ID:            fmt.Sprintf("plan-%d", p.nextID()),
		Description:   userRequest,
		Steps:         steps,
		FilesAffected: candidates,
	}
	plan.OverallRiskLevel = aggregateRisk(steps, len(candidates))
	for _, s := range steps {
		plan.TotalEstimatedDuration += s.EstimatedDuration
	}

	validation := p.validator.Validate(plan)
	return CreatePlanResult{Plan: plan, Validation: validation, Analysis: analysis}
}

func (p *Planner) nextID() int64 {
	p.seq++
	return p.seq
}

// resolveCandidateFiles asks the code index for files matching symbols or
// path fragments named in the request, for intents where that makes
// sense. It never errors — an empty index just yields no candidates, and
// step synthesis falls back to literal paths found in the request text.
func (p *Planner) resolveCandidateFiles(userRequest string, analysis Analysis) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			candidates = append(candidates, path)
		}
	}

	for _, tok := range strings.Fields(userRequest) {
		tok = strings.Trim(tok, `,.;:'"()`)
		if strings.Contains(tok, "/") || strings.HasSuffix(tok, ".go") {
			add(tok)
		}
	}

	if p.index != nil {
		switch analysis.Intent {
		case "add_endpoint", "refactor_symbol", "move_code":
			for _, tok := range strings.Fields(userRequest) {
				tok = strings.Trim(tok, `,.;:'"()`)
				if len(tok) < 4 {
					continue
				}
				for _, sym := range p.index.FindSymbol(tok) {
					add(sym.File)
				}
				for _, f := range p.index.FindFiles(tok) {
					add(f)
				}
			}
		}
	}

	return candidates
}

// domainNouns are generic feature-area names a request's wording is
// matched against to synthesize plausible candidate paths when no index
// is available to resolve real ones.
var domainNouns = []string{
	"auth", "authentication", "security", "payment", "billing",
	"config", "migration", "database", "session", "user",
}

// placeholderCandidates derives deterministic stand-in file paths from
// domain nouns mentioned in userRequest, so a high-complexity request
// still yields a concrete, risk-rated multi-step plan even with no
// codeintel.Index wired. These are placeholders for the PlanStep.Args the
// executing tool receives — a real workspace with an index attached
// resolves to actual paths well before this fallback is consulted.
func placeholderCandidates(userRequest string) []string {
	lower := strings.ToLower(userRequest)
	var found []string
	seen := make(map[string]bool)
	for _, noun := range domainNouns {
		if !strings.Contains(lower, noun) || seen[noun] {
			continue
		}
		seen[noun] = true
		found = append(found, fmt.Sprintf("%s/service.go", noun), fmt.Sprintf("%s/handler.go", noun))
	}
	if len(found) == 0 {
		found = []string{"module/service.go", "module/handler.go", "module/config.go"}
	}
	return found
}

// appendUniquePaths appends extra to base, skipping any path already
// present, until base reaches minComplexCandidates entries.
func appendUniquePaths(base []string, extra ...string) []string {
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p] = true
	}
	for _, p := range extra {
		if len(base) >= minComplexCandidates {
			break
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		base = append(base, p)
	}
	return base
}

// buildSteps synthesizes a linear-dependency chain of steps: analysis
// step first (no deps), then one step per candidate file (each depending
// on the previous), and finally a verification step depending on all
// file-touching steps. This is deliberately conservative — a real
// multi-branch DAG would need deeper intent-specific planning than a
// general-purpose planner can responsibly guess.
func (p *Planner) buildSteps(userRequest string, analysis Analysis, candidates []string) []*PlanStep {
	steps := make([]*PlanStep, 0, len(candidates)+2)

	analysisStep := &PlanStep{
		ID: "step-1", Type: "analysis", Tool: "read_file",
		Description:       "review current implementation before making changes",
		RiskLevel:         RiskLow,
		Status:            StepPending,
		EstimatedDuration: defaultStepDuration,
	}
	if len(candidates) > 0 {
		analysisStep.Args = map[string]any{"path": candidates[0]}
	}
	steps = append(steps, analysisStep)

	prevID := analysisStep.ID
	for i, file := range candidates {
		step := &PlanStep{
			ID:                fmt.Sprintf("step-%d", i+2),
			Type:              "edit",
			Tool:              "edit_file",
			Description:       fmt.Sprintf("apply change to %s", file),
			Args:              map[string]any{"path": file},
			Dependencies:      []string{prevID},
			RiskLevel:         riskForFile(file),
			Status:            StepPending,
			EstimatedDuration: defaultStepDuration * 2,
		}
		steps = append(steps, step)
		prevID = step.ID
	}

	verifyStep := &PlanStep{
		ID: fmt.Sprintf("step-%d", len(steps)+1), Type: "verification", Tool: "exec",
		Description:       "run tests to confirm the change behaves as expected",
		Args:              map[string]any{"command": "go test ./..."},
		Dependencies:      []string{prevID},
		RiskLevel:         RiskLow,
		Status:            StepPending,
		EstimatedDuration: defaultStepDuration * 2,
	}
	steps = append(steps, verifyStep)

	return steps
}

func riskForFile(path string) RiskLevel {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "config"), strings.Contains(lower, "auth"), strings.Contains(lower, "migration"):
		return RiskHigh
	case strings.Contains(lower, "_test.go"):
		return RiskLow
	default:
		return RiskMedium
	}
}

func aggregateRisk(steps []*PlanStep, filesAffected int) RiskLevel {
	max := RiskLow
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2, RiskCritical: 3}
	for _, s := range steps {
		if rank[s.RiskLevel] > rank[max] {
			max = s.RiskLevel
		}
	}
	if filesAffected > 10 && rank[max] < rank[RiskHigh] {
		max = RiskHigh
	}
	return max
}
