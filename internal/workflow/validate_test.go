package workflow

import (
	"testing"
	"time"
)

func validPlan() Plan {
	return Plan{
		SessionID: "ses-1",
		Revision:  1,
		Goal:      "summarize last night's derby",
		Steps: []Step{
			{Index: 0, Action: ActionRetrieve, Capability: "feed.search", Status: StepStatusPending},
			{Index: 1, Action: ActionCompose, Capability: "desk.compose", Status: StepStatusPending},
			{Index: 2, Action: ActionPersist, Capability: "desk.publish", Status: StepStatusPending},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestValidatePlan(t *testing.T) {
	t.Parallel()

	if err := ValidatePlan(validPlan()); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"missing session", func(p *Plan) { p.SessionID = "" }},
		{"zero revision", func(p *Plan) { p.Revision = 0 }},
		{"missing goal", func(p *Plan) { p.Goal = "  " }},
		{"no steps", func(p *Plan) { p.Steps = nil }},
		{"index out of order", func(p *Plan) { p.Steps[1].Index = 2 }},
		{"bad action", func(p *Plan) { p.Steps[0].Action = "fetch" }},
		{"missing capability", func(p *Plan) { p.Steps[0].Capability = "" }},
		{"bad status", func(p *Plan) { p.Steps[0].Status = "queued" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan := validPlan()
			tc.mutate(&plan)
			if err := ValidatePlan(plan); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestParseStepAction(t *testing.T) {
	t.Parallel()

	action, err := ParseStepAction(" Retrieve ")
	if err != nil {
		t.Fatalf("ParseStepAction: %v", err)
	}
	if action != ActionRetrieve {
		t.Fatalf("got %s, want %s", action, ActionRetrieve)
	}
	if _, err := ParseStepAction("download"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestParseResolutionAction(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"approve", "reject", "edit_wording", "edit_content"} {
		if _, err := ParseResolutionAction(raw); err != nil {
			t.Fatalf("ParseResolutionAction(%q): %v", raw, err)
		}
	}
	if _, err := ParseResolutionAction("accept"); err == nil {
		t.Fatal("expected error for unknown resolution action")
	}
}

func TestGatedAction(t *testing.T) {
	t.Parallel()

	if kind, gated := GatedAction(ActionInvokeTool); !gated || kind != GateKindTool {
		t.Fatalf("invoke_tool should be gated by a tool gate, got %s gated=%t", kind, gated)
	}
	if kind, gated := GatedAction(ActionPersist); !gated || kind != GateKindPlayer {
		t.Fatalf("persist should be gated by a player gate, got %s gated=%t", kind, gated)
	}
	for _, action := range []StepAction{ActionRetrieve, ActionExtract, ActionCompose, ActionAnswer} {
		if _, gated := GatedAction(action); gated {
			t.Fatalf("%s should not be gated", action)
		}
	}
}

func TestNextRevision(t *testing.T) {
	t.Parallel()

	prior := validPlan()
	prior.Steps[0].Status = StepStatusCompleted
	now := time.Now().UTC()

	steps := []Step{
		{Action: ActionRetrieve, Capability: "feed.search"},
		{Action: ActionAnswer, Capability: "desk.answer"},
	}
	next := NextRevision(prior, prior.Goal, "focus on the second half", steps, now)

	if next.Revision != 2 {
		t.Fatalf("revision = %d, want 2", next.Revision)
	}
	if next.Feedback != "focus on the second half" {
		t.Fatalf("feedback not carried: %q", next.Feedback)
	}
	for i, step := range next.Steps {
		if step.Index != i {
			t.Fatalf("step %d index = %d", i, step.Index)
		}
		if step.Status != StepStatusPending {
			t.Fatalf("step %d status = %s, want pending", i, step.Status)
		}
	}
	if err := ValidatePlan(next); err != nil {
		t.Fatalf("next revision invalid: %v", err)
	}
}
