package workflow

import (
	"encoding/json"
	"time"
)

type StepAction string

const (
	ActionRetrieve   StepAction = "retrieve"
	ActionExtract    StepAction = "extract"
	ActionCompose    StepAction = "compose"
	ActionPersist    StepAction = "persist"
	ActionAnswer     StepAction = "answer"
	ActionInvokeTool StepAction = "invoke_tool"
)

type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusError      StepStatus = "error"
)

type GateKind string

const (
	GateKindPlan   GateKind = "plan"
	GateKindTool   GateKind = "tool"
	GateKindPlayer GateKind = "player"
)

type GateStatus string

const (
	GateStatusPending  GateStatus = "pending"
	GateStatusResolved GateStatus = "resolved"
)

type ResolutionAction string

const (
	ResolveApprove     ResolutionAction = "approve"
	ResolveReject      ResolutionAction = "reject"
	ResolveEditWording ResolutionAction = "edit_wording"
	ResolveEditContent ResolutionAction = "edit_content"
)

// Step is one unit of work inside a plan revision. Index defines execution
// order; Capability names the external executor that handles the step.
type Step struct {
	Index      int             `json:"index"`
	Action     StepAction      `json:"action"`
	Capability string          `json:"capability"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     StepStatus      `json:"status"`
}

// Plan is an ordered sequence of steps. Once approved a revision is
// immutable; a re-plan produces a new revision rather than mutating the old.
type Plan struct {
	SessionID string    `json:"session_id"`
	Revision  int       `json:"revision"`
	Goal      string    `json:"goal"`
	Feedback  string    `json:"feedback,omitempty"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Resolution records the human decision applied to a gate.
type Resolution struct {
	Action   ResolutionAction `json:"action"`
	Feedback string           `json:"feedback,omitempty"`
	Actor    string           `json:"actor,omitempty"`
}

// Gate is a durable suspension point awaiting a human decision. Gate ids are
// unique per occurrence and never reused across plan revisions.
type Gate struct {
	GateID     string          `json:"gate_id"`
	SessionID  string          `json:"session_id"`
	InstanceID string          `json:"instance_id"`
	Kind       GateKind        `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     GateStatus      `json:"status"`
	Resolution *Resolution     `json:"resolution,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

// StepOutput is the accumulated result of a completed step, carried forward
// as context for later steps and into checkpoints.
type StepOutput struct {
	StepIndex int             `json:"step_index"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Checkpoint is a serializable snapshot of a workflow instance. Replaying
// from the latest checkpoint plus the pending gate's eventual resolution
// reproduces the same forward execution as an uninterrupted run.
type Checkpoint struct {
	SessionID    string        `json:"session_id"`
	InstanceID   string        `json:"instance_id"`
	State        InstanceState `json:"state"`
	PlanRevision int           `json:"plan_revision"`
	StepStatuses []StepStatus  `json:"step_statuses"`
	Outputs      []StepOutput  `json:"outputs,omitempty"`
	PendingGate  string        `json:"pending_gate,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Session is one conversation/goal context. It owns at most one active
// workflow instance at a time.
type Session struct {
	SessionID        string        `json:"session_id"`
	OwnerID          string        `json:"owner_id"`
	State            InstanceState `json:"workflow_state"`
	ActiveInstance   string        `json:"active_instance,omitempty"`
	ActiveCheckpoint int64         `json:"active_checkpoint"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// GatedAction reports whether a step action requires an approval gate before
// execution, and which gate kind guards it.
func GatedAction(action StepAction) (GateKind, bool) {
	switch action {
	case ActionInvokeTool:
		return GateKindTool, true
	case ActionPersist:
		return GateKindPlayer, true
	default:
		return "", false
	}
}

// NextRevision returns a fresh plan revision carrying the goal and operator
// feedback. Step statuses start pending; completed work from the prior
// revision is never copied because a re-plan may reorder or drop steps.
func NextRevision(prior Plan, goal, feedback string, steps []Step, now time.Time) Plan {
	revision := prior.Revision + 1
	out := make([]Step, len(steps))
	for i, step := range steps {
		step.Index = i
		if step.Status == "" {
			step.Status = StepStatusPending
		}
		out[i] = step
	}
	return Plan{
		SessionID: prior.SessionID,
		Revision:  revision,
		Goal:      goal,
		Feedback:  feedback,
		Steps:     out,
		CreatedAt: now,
	}
}
