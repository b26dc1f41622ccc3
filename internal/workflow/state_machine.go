package workflow

import "fmt"

type InstanceState string

const (
	StateIdle                  InstanceState = "idle"
	StatePlanning              InstanceState = "planning"
	StateAwaitingPlanApproval  InstanceState = "awaiting_plan_approval"
	StateExecuting             InstanceState = "executing"
	StateAwaitingToolApproval  InstanceState = "awaiting_tool_approval"
	StateAwaitingPlayerApproval InstanceState = "awaiting_player_approval"
	StateCompleted             InstanceState = "completed"
	StateFailed                InstanceState = "failed"
	StateCancelled             InstanceState = "cancelled"
)

var allowedTransitions = map[InstanceState]map[InstanceState]struct{}{
	StateIdle: {
		StatePlanning: {},
	},
	StatePlanning: {
		StateAwaitingPlanApproval: {},
		StateFailed:               {},
		StateCancelled:            {},
	},
	StateAwaitingPlanApproval: {
		StateExecuting: {},
		StatePlanning:  {},
		StateCancelled: {},
		StateFailed:    {},
	},
	StateExecuting: {
		StateAwaitingToolApproval:   {},
		StateAwaitingPlayerApproval: {},
		StateCompleted:              {},
		StateFailed:                 {},
		StateCancelled:              {},
	},
	StateAwaitingToolApproval: {
		StateExecuting: {},
		StateCancelled: {},
		StateFailed:    {},
	},
	// edit_content folds feedback into a new plan revision instead of
	// terminating. This is the one non-linear transition.
	StateAwaitingPlayerApproval: {
		StateExecuting: {},
		StatePlanning:  {},
		StateCancelled: {},
		StateFailed:    {},
	},
	StateCompleted: {},
	StateFailed:    {},
	StateCancelled: {},
}

func ValidateInstanceState(state InstanceState) error {
	if _, ok := allowedTransitions[state]; !ok {
		return fmt.Errorf("invalid instance state: %q", state)
	}
	return nil
}

func ValidateStateTransition(from, to InstanceState) error {
	if err := ValidateInstanceState(from); err != nil {
		return err
	}
	if err := ValidateInstanceState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid instance transition: %s -> %s", from, to)
	}
	return nil
}

// IsTerminal reports whether an instance in this state is frozen.
func IsTerminal(state InstanceState) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsSuspended reports whether this is a durably checkpointed resting state.
// Planning and executing are active work and never externally observable as
// resting states.
func IsSuspended(state InstanceState) bool {
	switch state {
	case StateAwaitingPlanApproval, StateAwaitingToolApproval, StateAwaitingPlayerApproval:
		return true
	default:
		return false
	}
}

// GateStateFor maps a gate kind to the awaiting state it suspends in.
func GateStateFor(kind GateKind) (InstanceState, error) {
	switch kind {
	case GateKindPlan:
		return StateAwaitingPlanApproval, nil
	case GateKindTool:
		return StateAwaitingToolApproval, nil
	case GateKindPlayer:
		return StateAwaitingPlayerApproval, nil
	default:
		return "", fmt.Errorf("invalid gate kind: %q", kind)
	}
}

var allowedStepTransitions = map[StepStatus]map[StepStatus]struct{}{
	StepStatusPending: {
		StepStatusInProgress: {},
	},
	StepStatusInProgress: {
		StepStatusCompleted: {},
		StepStatusError:     {},
		StepStatusPending:   {}, // retry requeue after a transient failure
	},
	StepStatusCompleted: {},
	StepStatusError:     {},
}

// ValidateStepTransition enforces monotonic step statuses: a step never
// regresses from completed/error. A re-plan creates a new revision with
// fresh steps instead of rolling statuses back.
func ValidateStepTransition(from, to StepStatus) error {
	next, ok := allowedStepTransitions[from]
	if !ok {
		return fmt.Errorf("invalid step status: %q", from)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("invalid step transition: %s -> %s", from, to)
	}
	return nil
}
