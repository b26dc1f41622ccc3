package workflow

import "testing"

func TestValidateStateTransition_ValidMatrix(t *testing.T) {
	t.Parallel()

	valid := [][2]InstanceState{
		{StateIdle, StatePlanning},
		{StatePlanning, StateAwaitingPlanApproval},
		{StatePlanning, StateFailed},
		{StateAwaitingPlanApproval, StateExecuting},
		{StateAwaitingPlanApproval, StatePlanning},
		{StateAwaitingPlanApproval, StateCancelled},
		{StateExecuting, StateAwaitingToolApproval},
		{StateExecuting, StateAwaitingPlayerApproval},
		{StateExecuting, StateCompleted},
		{StateExecuting, StateFailed},
		{StateExecuting, StateCancelled},
		{StateAwaitingToolApproval, StateExecuting},
		{StateAwaitingToolApproval, StateCancelled},
		{StateAwaitingPlayerApproval, StateExecuting},
		{StateAwaitingPlayerApproval, StatePlanning},
		{StateAwaitingPlayerApproval, StateCancelled},
	}
	for _, pair := range valid {
		if err := ValidateStateTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected valid transition %s->%s, got %v", pair[0], pair[1], err)
		}
	}
}

func TestValidateStateTransition_InvalidTransitions(t *testing.T) {
	t.Parallel()

	invalid := [][2]InstanceState{
		{StateIdle, StateExecuting},
		{StateIdle, StateCompleted},
		{StatePlanning, StateExecuting},
		{StateAwaitingPlanApproval, StateCompleted},
		{StateAwaitingToolApproval, StatePlanning},
		{StateCompleted, StatePlanning},
		{StateFailed, StateExecuting},
		{StateCancelled, StatePlanning},
		{StateExecuting, StateIdle},
	}
	for _, pair := range invalid {
		if err := ValidateStateTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("expected invalid transition %s->%s", pair[0], pair[1])
		}
	}
}

func TestValidateStateTransition_UnknownState(t *testing.T) {
	t.Parallel()

	if err := ValidateStateTransition("launching", StatePlanning); err == nil {
		t.Fatal("expected error for unknown source state")
	}
	if err := ValidateStateTransition(StateIdle, "done"); err == nil {
		t.Fatal("expected error for unknown target state")
	}
}

func TestTerminalAndSuspendedStates(t *testing.T) {
	t.Parallel()

	for _, state := range []InstanceState{StateCompleted, StateFailed, StateCancelled} {
		if !IsTerminal(state) {
			t.Fatalf("%s should be terminal", state)
		}
		if IsSuspended(state) {
			t.Fatalf("%s should not be suspended", state)
		}
	}
	for _, state := range []InstanceState{StateAwaitingPlanApproval, StateAwaitingToolApproval, StateAwaitingPlayerApproval} {
		if !IsSuspended(state) {
			t.Fatalf("%s should be suspended", state)
		}
		if IsTerminal(state) {
			t.Fatalf("%s should not be terminal", state)
		}
	}
	if IsTerminal(StateExecuting) || IsSuspended(StateExecuting) {
		t.Fatal("executing is active work, neither terminal nor suspended")
	}
}

func TestGateStateFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind GateKind
		want InstanceState
	}{
		{GateKindPlan, StateAwaitingPlanApproval},
		{GateKindTool, StateAwaitingToolApproval},
		{GateKindPlayer, StateAwaitingPlayerApproval},
	}
	for _, tc := range cases {
		got, err := GateStateFor(tc.kind)
		if err != nil {
			t.Fatalf("GateStateFor(%s): %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("GateStateFor(%s) = %s, want %s", tc.kind, got, tc.want)
		}
	}
	if _, err := GateStateFor("referee"); err == nil {
		t.Fatal("expected error for unknown gate kind")
	}
}

func TestValidateStepTransition(t *testing.T) {
	t.Parallel()

	valid := [][2]StepStatus{
		{StepStatusPending, StepStatusInProgress},
		{StepStatusInProgress, StepStatusCompleted},
		{StepStatusInProgress, StepStatusError},
		{StepStatusInProgress, StepStatusPending},
	}
	for _, pair := range valid {
		if err := ValidateStepTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected valid step transition %s->%s, got %v", pair[0], pair[1], err)
		}
	}

	invalid := [][2]StepStatus{
		{StepStatusPending, StepStatusCompleted},
		{StepStatusCompleted, StepStatusPending},
		{StepStatusCompleted, StepStatusInProgress},
		{StepStatusError, StepStatusInProgress},
	}
	for _, pair := range invalid {
		if err := ValidateStepTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("expected invalid step transition %s->%s", pair[0], pair[1])
		}
	}
}
