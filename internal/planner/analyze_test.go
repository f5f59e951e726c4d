package planner

import "testing"

func TestAnalyze_ScoresComplexityFromKeywords(t *testing.T) {
	p := NewPlanner(nil)

	simple := p.Analyze("fix a typo in the readme")
	if simple.Complexity != "simple" {
		t.Fatalf("expected simple complexity, got %q", simple.Complexity)
	}

	complex := p.Analyze("refactor the architecture across every module and extract shared interfaces")
	if complex.Complexity != "complex" {
		t.Fatalf("expected complex complexity, got %q (analysis: %+v)", complex.Complexity, complex)
	}
}

func TestAnalyze_FlagsDestructiveAndSensitiveRisks(t *testing.T) {
	p := NewPlanner(nil)
	a := p.Analyze("delete the old auth config migration")
	if len(a.PotentialRisks) < 2 {
		t.Fatalf("expected multiple risk flags, got %v", a.PotentialRisks)
	}
}

func TestAnalyze_InfersIntent(t *testing.T) {
	p := NewPlanner(nil)
	cases := map[string]string{
		"add an endpoint for listing users": "add_endpoint",
		"refactor the payment module":       "refactor_symbol",
		"move the helper to a new package":  "move_code",
		"fix the bug in the parser":         "fix_bug",
		"write some documentation":          "general_change",
	}
	for request, want := range cases {
		got := p.Analyze(request).Intent
		if got != want {
			t.Errorf("Analyze(%q).Intent = %q, want %q", request, got, want)
		}
	}
}

func TestCreatePlan_ProducesAnalysisAwareVerifiedSteps(t *testing.T) {
	p := NewPlanner(nil)
	result := p.CreatePlan("refactor internal/agent/loop.go across the module")

	if !result.Validation.IsValid {
		t.Fatalf("expected a synthesized plan to validate, got errors: %v", result.Validation.Errors)
	}
	if len(result.Plan.Steps) < 2 {
		t.Fatalf("expected at least an analysis and verification step, got %d", len(result.Plan.Steps))
	}
	last := result.Plan.Steps[len(result.Plan.Steps)-1]
	if last.Tool != "exec" {
		t.Fatalf("expected the final step to be a verification exec call, got tool %q", last.Tool)
	}
}

func TestCreatePlan_IDsAreUnique(t *testing.T) {
	p := NewPlanner(nil)
	r1 := p.CreatePlan("fix a bug")
	r2 := p.CreatePlan("fix another bug")
	if r1.Plan.ID == r2.Plan.ID {
		t.Fatalf("expected distinct plan IDs across calls, got %q twice", r1.Plan.ID)
	}
}
