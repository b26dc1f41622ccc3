package workflow

import "errors"

var (
	ErrInvalidPlan  = errors.New("invalid plan")
	ErrInvalidEvent = errors.New("invalid event")

	// ErrSessionBusy means the session already has an active instance.
	// Starting a second one fails fast rather than corrupting state.
	ErrSessionBusy = errors.New("session has an active instance")

	// ErrStaleInstance means a resolution or cancellation arrived for an
	// instance token that no longer matches the session's active instance.
	// Such requests are rejected and logged, never silently applied.
	ErrStaleInstance = errors.New("stale instance token")

	// ErrGatePending means a pending gate already exists for the session.
	ErrGatePending = errors.New("session has a pending gate")

	ErrGateNotFound = errors.New("gate not found")

	// ErrCheckpointCorrupt means an instance cannot safely resume; it is
	// surfaced as a failed instance, never silently defaulted.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	ErrCheckpointNotFound = errors.New("checkpoint not found")

	ErrSessionNotFound = errors.New("session not found")
)

// Stable reason codes carried on terminal error events. A client learns of
// failure only through an error event; there is no silent failure path.
const (
	ReasonExecutorFatal     = "EXECUTOR_FATAL"
	ReasonRetriesExhausted  = "RETRIES_EXHAUSTED"
	ReasonPlannerFailed     = "PLANNER_FAILED"
	ReasonCheckpointCorrupt = "CHECKPOINT_CORRUPT"
	ReasonCancelled         = "CANCELLED"
	ReasonUnknownCapability = "UNKNOWN_CAPABILITY"
)
