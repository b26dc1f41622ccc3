package workflow

import (
	"fmt"
	"strings"
)

var validActions = map[StepAction]struct{}{
	ActionRetrieve:   {},
	ActionExtract:    {},
	ActionCompose:    {},
	ActionPersist:    {},
	ActionAnswer:     {},
	ActionInvokeTool: {},
}

var validStepStatuses = map[StepStatus]struct{}{
	StepStatusPending:    {},
	StepStatusInProgress: {},
	StepStatusCompleted:  {},
	StepStatusError:      {},
}

func ParseStepAction(raw string) (StepAction, error) {
	action := StepAction(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validActions[action]; !ok {
		return "", fmt.Errorf("invalid step action: %q", raw)
	}
	return action, nil
}

func ValidateStep(step Step) error {
	if _, ok := validActions[step.Action]; !ok {
		return fmt.Errorf("%w: step[%d]: invalid action %q", ErrInvalidPlan, step.Index, step.Action)
	}
	if strings.TrimSpace(step.Capability) == "" {
		return fmt.Errorf("%w: step[%d]: capability is required", ErrInvalidPlan, step.Index)
	}
	if _, ok := validStepStatuses[step.Status]; !ok {
		return fmt.Errorf("%w: step[%d]: invalid status %q", ErrInvalidPlan, step.Index, step.Status)
	}
	return nil
}

func ValidatePlan(plan Plan) error {
	if strings.TrimSpace(plan.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidPlan)
	}
	if plan.Revision <= 0 {
		return fmt.Errorf("%w: revision must be > 0", ErrInvalidPlan)
	}
	if strings.TrimSpace(plan.Goal) == "" {
		return fmt.Errorf("%w: goal is required", ErrInvalidPlan)
	}
	if len(plan.Steps) == 0 {
		return fmt.Errorf("%w: steps is required", ErrInvalidPlan)
	}
	for i, step := range plan.Steps {
		if step.Index != i {
			return fmt.Errorf("%w: step[%d]: index %d out of order", ErrInvalidPlan, i, step.Index)
		}
		if err := ValidateStep(step); err != nil {
			return err
		}
	}
	return nil
}

var validResolutionActions = map[ResolutionAction]struct{}{
	ResolveApprove:     {},
	ResolveReject:      {},
	ResolveEditWording: {},
	ResolveEditContent: {},
}

func ParseResolutionAction(raw string) (ResolutionAction, error) {
	action := ResolutionAction(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validResolutionActions[action]; !ok {
		return "", fmt.Errorf("invalid resolution action: %q", raw)
	}
	return action, nil
}

var validGateKinds = map[GateKind]struct{}{
	GateKindPlan:   {},
	GateKindTool:   {},
	GateKindPlayer: {},
}

func ValidateGateKind(kind GateKind) error {
	if _, ok := validGateKinds[kind]; !ok {
		return fmt.Errorf("invalid gate kind: %q", kind)
	}
	return nil
}
