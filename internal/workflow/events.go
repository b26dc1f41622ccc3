package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventTaskStart     EventKind = "task_start"
	EventTaskComplete  EventKind = "task_complete"
	EventToolProposal  EventKind = "tool_proposal"
	EventPlanProposal  EventKind = "plan_proposal"
	EventPlanProgress  EventKind = "plan_progress"
	EventPlayerPreview EventKind = "player_preview"
	EventToken         EventKind = "token"
	EventGateResolved  EventKind = "gate_resolved"
	EventError         EventKind = "error"

	// EventGap is synthetic: the relay injects it into a degraded
	// subscriber's stream. It is never appended to the log.
	EventGap EventKind = "gap"
)

// Event is an immutable, typed progress record. Seq is strictly increasing
// per session starting at 0; stored events are never mutated.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Seq       int64           `json:"seq"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type TaskStartPayload struct {
	StepIndex  int        `json:"step_index"`
	Action     StepAction `json:"action"`
	Capability string     `json:"capability"`
	Attempt    int        `json:"attempt"`
}

type TaskCompletePayload struct {
	StepIndex int             `json:"step_index"`
	Action    StepAction      `json:"action"`
	Output    json.RawMessage `json:"output,omitempty"`
	Attempts  int             `json:"attempts"`
}

type ToolProposalPayload struct {
	GateID     string          `json:"gate_id"`
	StepIndex  int             `json:"step_index"`
	Capability string          `json:"capability"`
	Params     json.RawMessage `json:"params,omitempty"`
}

type PlanProposalPayload struct {
	GateID   string `json:"gate_id"`
	Revision int    `json:"revision"`
	Goal     string `json:"goal"`
	Steps    []Step `json:"steps"`
}

type PlanProgressPayload struct {
	Revision  int    `json:"revision"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Note      string `json:"note,omitempty"`
}

type PlayerPreviewPayload struct {
	GateID    string          `json:"gate_id"`
	StepIndex int             `json:"step_index"`
	Preview   json.RawMessage `json:"preview,omitempty"`
}

type TokenPayload struct {
	StepIndex int    `json:"step_index"`
	Text      string `json:"text"`
}

type GateResolvedPayload struct {
	GateID    string           `json:"gate_id"`
	Kind      GateKind         `json:"kind"`
	Action    ResolutionAction `json:"action"`
	Feedback  string           `json:"feedback,omitempty"`
	Synthetic bool             `json:"synthetic,omitempty"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type GapPayload struct {
	LastSeq int64  `json:"last_seq"`
	Reason  string `json:"reason"`
}

var payloadPrototypes = map[EventKind]func() any{
	EventTaskStart:     func() any { return &TaskStartPayload{} },
	EventTaskComplete:  func() any { return &TaskCompletePayload{} },
	EventToolProposal:  func() any { return &ToolProposalPayload{} },
	EventPlanProposal:  func() any { return &PlanProposalPayload{} },
	EventPlanProgress:  func() any { return &PlanProgressPayload{} },
	EventPlayerPreview: func() any { return &PlayerPreviewPayload{} },
	EventToken:         func() any { return &TokenPayload{} },
	EventGateResolved:  func() any { return &GateResolvedPayload{} },
	EventError:         func() any { return &ErrorPayload{} },
	EventGap:           func() any { return &GapPayload{} },
}

var payloadKinds = map[EventKind]string{
	EventTaskStart:     "*workflow.TaskStartPayload",
	EventTaskComplete:  "*workflow.TaskCompletePayload",
	EventToolProposal:  "*workflow.ToolProposalPayload",
	EventPlanProposal:  "*workflow.PlanProposalPayload",
	EventPlanProgress:  "*workflow.PlanProgressPayload",
	EventPlayerPreview: "*workflow.PlayerPreviewPayload",
	EventToken:         "*workflow.TokenPayload",
	EventGateResolved:  "*workflow.GateResolvedPayload",
	EventError:         "*workflow.ErrorPayload",
	EventGap:           "*workflow.GapPayload",
}

func ValidateEventKind(kind EventKind) error {
	if _, ok := payloadPrototypes[kind]; !ok {
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, kind)
	}
	return nil
}

// MarshalPayload serializes a typed payload, rejecting payloads whose type
// does not match the kind's fixed schema. Event payloads never carry
// free-form maps.
func MarshalPayload(kind EventKind, payload any) (json.RawMessage, error) {
	if err := ValidateEventKind(kind); err != nil {
		return nil, err
	}
	want := payloadKinds[kind]
	got := fmt.Sprintf("%T", payload)
	if got != want {
		return nil, fmt.Errorf("%w: kind %s requires %s payload, got %s", ErrInvalidEvent, kind, want, got)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return data, nil
}

// DecodePayload parses an event's payload into the schema fixed for its kind.
func DecodePayload(event Event) (any, error) {
	proto, ok := payloadPrototypes[event.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, event.Kind)
	}
	out := proto()
	if len(event.Payload) == 0 {
		return nil, fmt.Errorf("%w: kind %s requires a payload", ErrInvalidEvent, event.Kind)
	}
	if err := json.Unmarshal(event.Payload, out); err != nil {
		return nil, fmt.Errorf("%w: parse %s payload: %v", ErrInvalidEvent, event.Kind, err)
	}
	return out, nil
}

func ValidateEvent(event Event) error {
	if event.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidEvent)
	}
	if event.Seq < 0 {
		return fmt.Errorf("%w: seq must be >= 0", ErrInvalidEvent)
	}
	if event.Kind == EventGap {
		return fmt.Errorf("%w: gap events are synthetic and never stored", ErrInvalidEvent)
	}
	if _, err := DecodePayload(event); err != nil {
		return err
	}
	return nil
}
