// Package engine runs workflow instances: it plans, executes steps through
// registered executors, suspends on approval gates, checkpoints at every
// suspension point, and is the single writer of the session event log.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/checkpoint"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/eventlog"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/executor"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/gate"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/planner"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

// SessionStore is the relational record of sessions and plan revisions.
type SessionStore interface {
	UpsertSession(session workflow.Session) error
	LoadSession(sessionID string) (workflow.Session, error)
	SavePlanRevision(plan workflow.Plan) error
	LoadPlanRevision(sessionID string, revision int) (workflow.Plan, error)
	LoadLatestPlan(sessionID string) (workflow.Plan, error)
}

// Options tunes retry and timeout behavior. Zero values fall back to the
// defaults below.
type Options struct {
	MaxAttempts int
	Backoff     []time.Duration
	StepTimeout time.Duration
	Logger      *slog.Logger
}

const defaultMaxAttempts = 3

var defaultBackoff = []time.Duration{
	250 * time.Millisecond,
	time.Second,
	4 * time.Second,
}

type Engine struct {
	sessions    SessionStore
	gates       *gate.Manager
	log         *eventlog.Log
	checkpoints *checkpoint.Store
	planner     planner.Planner
	registry    *executor.Registry
	logger      *slog.Logger
	now         func() time.Time

	maxAttempts int
	backoff     []time.Duration
	stepTimeout time.Duration

	mu     sync.Mutex
	active map[string]*instance
}

func New(sessions SessionStore, gates *gate.Manager, log *eventlog.Log, checkpoints *checkpoint.Store, pl planner.Planner, registry *executor.Registry, opts Options) (*Engine, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if gates == nil {
		return nil, fmt.Errorf("gate manager is required")
	}
	if log == nil {
		return nil, fmt.Errorf("event log is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if pl == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("executor registry is required")
	}
	e := &Engine{
		sessions:    sessions,
		gates:       gates,
		log:         log,
		checkpoints: checkpoints,
		planner:     pl,
		registry:    registry,
		logger:      opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		stepTimeout: opts.StepTimeout,
		active:      map[string]*instance{},
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	if len(e.backoff) == 0 {
		e.backoff = defaultBackoff
	}
	return e, nil
}

// SetClock overrides the timestamp source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Submit starts a new workflow instance for the session's goal. It fails
// fast with ErrSessionBusy when the session already owns an active
// instance; the session's single-owner token is the in-memory active slot.
func (e *Engine) Submit(ctx context.Context, sessionID, ownerID, goal string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = workflow.NewSessionID()
	}
	if strings.TrimSpace(goal) == "" {
		return "", fmt.Errorf("%w: goal is empty", workflow.ErrInvalidPlan)
	}

	e.mu.Lock()
	if _, busy := e.active[sessionID]; busy {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", workflow.ErrSessionBusy, sessionID)
	}
	inst := e.newInstance(sessionID, goal)
	e.active[sessionID] = inst
	e.mu.Unlock()

	now := e.now()
	session, err := e.sessions.LoadSession(sessionID)
	if err != nil {
		session = workflow.Session{SessionID: sessionID, OwnerID: ownerID, CreatedAt: now}
	}
	if workflow.IsSuspended(session.State) {
		// A suspended session still owns its checkpointed instance; it must
		// be resumed, not restarted over.
		e.release(sessionID, inst)
		return "", fmt.Errorf("%w: session %s is suspended at a gate", workflow.ErrSessionBusy, sessionID)
	}
	session.State = workflow.StatePlanning
	session.ActiveInstance = inst.instanceID
	session.UpdatedAt = now
	if err := e.sessions.UpsertSession(session); err != nil {
		e.release(sessionID, inst)
		return "", fmt.Errorf("persist session: %w", err)
	}

	go inst.run()
	return inst.instanceID, nil
}

// ResolveGate applies a human decision to a gate. The instance token guard
// rejects resolutions addressed to an instance that is no longer the
// session's active one, so a late client can never steer a newer run.
func (e *Engine) ResolveGate(sessionID, gateID string, res workflow.Resolution) (gate.Outcome, workflow.Resolution, error) {
	stored, ok := e.gates.Lookup(gateID)
	if !ok || stored.SessionID != sessionID {
		return gate.OutcomeNotFound, workflow.Resolution{}, nil
	}
	if active := e.activeInstanceID(sessionID); active != "" && stored.InstanceID != active {
		e.logger.Warn("rejecting stale gate resolution",
			"session_id", sessionID, "gate_id", gateID,
			"gate_instance", stored.InstanceID, "active_instance", active)
		return gate.OutcomeStaleInstance, workflow.Resolution{}, fmt.Errorf("%w: gate %s", workflow.ErrStaleInstance, gateID)
	}
	return e.gates.Resolve(gateID, res)
}

// Cancel signals the session's active instance to stop. The instance
// transitions to cancelled, emits a terminal error event, and releases the
// ownership token; a late executor result is discarded, never applied.
func (e *Engine) Cancel(sessionID string) error {
	e.mu.Lock()
	inst, ok := e.active[sessionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no active instance for %s", workflow.ErrSessionNotFound, sessionID)
	}
	inst.cancel()
	return nil
}

// Resume reconstructs a suspended instance from its latest checkpoint after
// a restart. A corrupted or missing checkpoint is fatal for the instance:
// resuming from an unknown state risks duplicate side effects.
func (e *Engine) Resume(ctx context.Context, sessionID string) (string, error) {
	session, err := e.sessions.LoadSession(sessionID)
	if err != nil {
		return "", err
	}
	if workflow.IsTerminal(session.State) {
		return "", fmt.Errorf("session %s is already %s", sessionID, session.State)
	}

	e.mu.Lock()
	if _, busy := e.active[sessionID]; busy {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", workflow.ErrSessionBusy, sessionID)
	}
	e.mu.Unlock()

	cp, token, err := e.checkpoints.Latest(sessionID)
	if err != nil {
		e.failResume(sessionID, session, err)
		return "", fmt.Errorf("%w: %v", workflow.ErrCheckpointCorrupt, err)
	}
	plan, err := e.sessions.LoadPlanRevision(sessionID, cp.PlanRevision)
	if err != nil {
		e.failResume(sessionID, session, err)
		return "", fmt.Errorf("%w: plan revision %d: %v", workflow.ErrCheckpointCorrupt, cp.PlanRevision, err)
	}
	if len(cp.StepStatuses) != len(plan.Steps) {
		err := fmt.Errorf("%w: checkpoint covers %d steps, plan revision %d has %d",
			workflow.ErrCheckpointCorrupt, len(cp.StepStatuses), plan.Revision, len(plan.Steps))
		e.failResume(sessionID, session, err)
		return "", err
	}

	inst := e.newInstance(sessionID, plan.Goal)
	inst.instanceID = cp.InstanceID

	e.mu.Lock()
	if _, busy := e.active[sessionID]; busy {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", workflow.ErrSessionBusy, sessionID)
	}
	e.active[sessionID] = inst
	e.mu.Unlock()

	e.logger.Info("resuming workflow instance",
		"session_id", sessionID, "instance_id", inst.instanceID,
		"checkpoint_token", token, "state", string(cp.State))
	go inst.resume(cp, plan)
	return inst.instanceID, nil
}

// Wait blocks until the session's active instance reaches a terminal state.
// It returns immediately when the session has no active instance.
func (e *Engine) Wait(sessionID string) {
	e.mu.Lock()
	inst, ok := e.active[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	<-inst.done
}

// Sessions lists every session on record.
func (e *Engine) Sessions() ([]workflow.Session, error) {
	store, ok := e.sessions.(interface {
		ListSessions() ([]workflow.Session, error)
	})
	if !ok {
		return nil, fmt.Errorf("session store does not support listing")
	}
	return store.ListSessions()
}

func (e *Engine) failResume(sessionID string, session workflow.Session, cause error) {
	e.logger.Error("resume failed", "session_id", sessionID, "error", cause)
	_, _ = e.log.Append(sessionID, workflow.EventError, &workflow.ErrorPayload{
		Reason: workflow.ReasonCheckpointCorrupt,
		Detail: cause.Error(),
	})
	session.State = workflow.StateFailed
	session.ActiveInstance = ""
	session.UpdatedAt = e.now()
	if err := e.sessions.UpsertSession(session); err != nil {
		e.logger.Error("persist failed session", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) activeInstanceID(sessionID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.active[sessionID]; ok {
		return inst.instanceID
	}
	return ""
}

func (e *Engine) release(sessionID string, inst *instance) {
	e.mu.Lock()
	if current, ok := e.active[sessionID]; ok && current == inst {
		delete(e.active, sessionID)
	}
	e.mu.Unlock()
}

func (e *Engine) newInstance(sessionID, goal string) *instance {
	ctx, cancel := context.WithCancel(context.Background())
	return &instance{
		engine:     e,
		sessionID:  sessionID,
		instanceID: workflow.NewInstanceID(),
		goal:       goal,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}
