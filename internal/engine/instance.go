package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/executor"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/gate"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/planner"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

// instance is one run of a plan from submission to a terminal state. Its
// goroutine is the session's dedicated worker: execution within it is
// strictly sequential, and it is the only writer of the session's events,
// checkpoints, and session record.
type instance struct {
	engine     *Engine
	sessionID  string
	instanceID string
	goal       string
	ctx        context.Context
	cancel     context.CancelFunc

	done chan struct{}

	state    workflow.InstanceState
	plan     workflow.Plan
	outputs  []workflow.StepOutput
	feedback string
}

type phaseResult int

const (
	phaseDone phaseResult = iota
	phaseReplan
)

func (i *instance) run() {
	defer close(i.done)
	defer i.engine.release(i.sessionID, i)
	i.state = workflow.StateIdle
	prior := workflow.Plan{SessionID: i.sessionID}

	for {
		if !i.transition(workflow.StatePlanning) {
			return
		}
		if prior.Revision > 0 {
			i.emit(workflow.EventPlanProgress, &workflow.PlanProgressPayload{
				Revision:  prior.Revision,
				Completed: completedSteps(prior),
				Total:     len(prior.Steps),
				Note:      i.feedback,
			})
		}
		plan, err := planner.PlanFor(i.ctx, i.engine.planner, prior, i.goal, i.feedback, i.engine.now())
		if err != nil {
			i.fail(workflow.ReasonPlannerFailed, err.Error())
			return
		}
		if err := i.engine.sessions.SavePlanRevision(plan); err != nil {
			i.fail(workflow.ReasonPlannerFailed, fmt.Sprintf("persist plan revision: %v", err))
			return
		}
		i.plan = plan
		i.outputs = nil

		switch i.proposePlan() {
		case phaseReplan:
			prior = i.plan
			continue
		case phaseDone:
			if workflow.IsTerminal(i.state) {
				return
			}
		}

		switch i.executeFrom(0) {
		case phaseReplan:
			prior = i.plan
			continue
		case phaseDone:
			return
		}
	}
}

// resume continues a suspended instance from its checkpoint: it re-attaches
// the pending gate and picks execution back up from the first incomplete
// step, never re-invoking a completed one.
func (i *instance) resume(cp workflow.Checkpoint, plan workflow.Plan) {
	defer close(i.done)
	defer i.engine.release(i.sessionID, i)
	for idx := range plan.Steps {
		plan.Steps[idx].Status = cp.StepStatuses[idx]
		if plan.Steps[idx].Status == workflow.StepStatusInProgress {
			plan.Steps[idx].Status = workflow.StepStatusPending
		}
	}
	i.plan = plan
	i.outputs = cp.Outputs
	i.state = cp.State
	i.persistSession()

	if cp.PendingGate != "" {
		ch, err := i.engine.gates.Attach(workflow.Gate{GateID: cp.PendingGate})
		if err != nil {
			i.fail(workflow.ReasonCheckpointCorrupt, fmt.Sprintf("attach gate %s: %v", cp.PendingGate, err))
			return
		}
		stored, ok := i.engine.gates.Lookup(cp.PendingGate)
		if !ok {
			i.fail(workflow.ReasonCheckpointCorrupt, fmt.Sprintf("gate %s not on record", cp.PendingGate))
			return
		}
		decision, alive := i.await(cp.PendingGate, ch)
		if !alive {
			return
		}
		i.emitGateResolved(stored, decision)

		var outcome phaseResult
		if stored.Kind == workflow.GateKindPlan {
			outcome = i.applyPlanDecision(decision)
		} else {
			outcome = i.applyStepDecision(stored.Kind, decision)
		}
		if outcome == phaseReplan {
			i.replanLoop()
			return
		}
		if workflow.IsTerminal(i.state) {
			return
		}
		if stored.Kind != workflow.GateKindPlan {
			// The resolved gate guarded the first incomplete step. Its
			// approval covers this occurrence, so run the step without
			// raising a second gate for it.
			if idx := firstIncomplete(i.plan); idx < len(i.plan.Steps) && !i.runStep(idx) {
				return
			}
		}
	} else if i.state != workflow.StateExecuting && !i.transition(workflow.StateExecuting) {
		return
	}

	if i.executeFrom(firstIncomplete(i.plan)) == phaseReplan {
		i.replanLoop()
	}
}

// replanLoop re-enters the plan/execute cycle after an edit_content
// resolution on a resumed instance.
func (i *instance) replanLoop() {
	prior := i.plan
	for {
		if !i.transition(workflow.StatePlanning) {
			return
		}
		i.emit(workflow.EventPlanProgress, &workflow.PlanProgressPayload{
			Revision:  prior.Revision,
			Completed: completedSteps(prior),
			Total:     len(prior.Steps),
			Note:      i.feedback,
		})
		plan, err := planner.PlanFor(i.ctx, i.engine.planner, prior, i.goal, i.feedback, i.engine.now())
		if err != nil {
			i.fail(workflow.ReasonPlannerFailed, err.Error())
			return
		}
		if err := i.engine.sessions.SavePlanRevision(plan); err != nil {
			i.fail(workflow.ReasonPlannerFailed, fmt.Sprintf("persist plan revision: %v", err))
			return
		}
		i.plan = plan
		i.outputs = nil

		if outcome := i.proposePlan(); outcome == phaseReplan {
			prior = i.plan
			continue
		} else if workflow.IsTerminal(i.state) {
			return
		}
		if i.executeFrom(0) == phaseReplan {
			prior = i.plan
			continue
		}
		return
	}
}

// proposePlan creates the plan approval gate, checkpoints, emits the
// proposal, and suspends until the gate resolves.
func (i *instance) proposePlan() phaseResult {
	payload, err := json.Marshal(i.plan)
	if err != nil {
		i.fail(workflow.ReasonPlannerFailed, fmt.Sprintf("marshal plan: %v", err))
		return phaseDone
	}
	g, err := i.engine.gates.Create(i.sessionID, i.instanceID, workflow.GateKindPlan, payload)
	if err != nil {
		i.fail(workflow.ReasonPlannerFailed, fmt.Sprintf("create plan gate: %v", err))
		return phaseDone
	}
	if !i.transition(workflow.StateAwaitingPlanApproval) {
		return phaseDone
	}
	i.saveCheckpoint(g.GateID)
	i.emit(workflow.EventPlanProposal, &workflow.PlanProposalPayload{
		GateID:   g.GateID,
		Revision: i.plan.Revision,
		Goal:     i.plan.Goal,
		Steps:    i.plan.Steps,
	})

	ch, err := i.engine.gates.Wait(g.GateID)
	if err != nil {
		i.fail(workflow.ReasonPlannerFailed, fmt.Sprintf("wait on gate: %v", err))
		return phaseDone
	}
	decision, alive := i.await(g.GateID, ch)
	if !alive {
		return phaseDone
	}
	i.emitGateResolved(g, decision)
	return i.applyPlanDecision(decision)
}

func (i *instance) applyPlanDecision(decision gate.Decision) phaseResult {
	switch decision.Resolution.Action {
	case workflow.ResolveApprove, workflow.ResolveEditWording:
		i.feedback = decision.Resolution.Feedback
		i.transition(workflow.StateExecuting)
		return phaseDone
	case workflow.ResolveEditContent:
		i.feedback = decision.Resolution.Feedback
		return phaseReplan
	default:
		i.transition(workflow.StateCancelled)
		return phaseDone
	}
}

// executeFrom runs steps in strict index order starting at start. Completed
// steps are skipped, never re-invoked.
func (i *instance) executeFrom(start int) phaseResult {
	for idx := start; idx < len(i.plan.Steps); idx++ {
		step := i.plan.Steps[idx]
		if step.Status == workflow.StepStatusCompleted {
			continue
		}
		if kind, gated := workflow.GatedAction(step.Action); gated {
			outcome, proceed := i.gateStep(kind, idx)
			if !proceed {
				return outcome
			}
		}
		if !i.runStep(idx) {
			return phaseDone
		}
	}
	i.transition(workflow.StateCompleted)
	i.saveCheckpoint("")
	return phaseDone
}

// gateStep suspends before a step that needs approval. proceed is true only
// when the resolution allows the step to execute.
func (i *instance) gateStep(kind workflow.GateKind, stepIdx int) (phaseResult, bool) {
	step := i.plan.Steps[stepIdx]
	var payload []byte
	if kind == workflow.GateKindPlayer {
		payload = i.previewFor(stepIdx)
	} else {
		payload = step.Params
	}
	g, err := i.engine.gates.Create(i.sessionID, i.instanceID, kind, payload)
	if err != nil {
		i.fail(workflow.ReasonExecutorFatal, fmt.Sprintf("create %s gate: %v", kind, err))
		return phaseDone, false
	}
	awaiting, err := workflow.GateStateFor(kind)
	if err != nil {
		i.fail(workflow.ReasonExecutorFatal, err.Error())
		return phaseDone, false
	}
	if !i.transition(awaiting) {
		return phaseDone, false
	}
	i.saveCheckpoint(g.GateID)

	switch kind {
	case workflow.GateKindTool:
		i.emit(workflow.EventToolProposal, &workflow.ToolProposalPayload{
			GateID:     g.GateID,
			StepIndex:  stepIdx,
			Capability: step.Capability,
			Params:     step.Params,
		})
	case workflow.GateKindPlayer:
		i.emit(workflow.EventPlayerPreview, &workflow.PlayerPreviewPayload{
			GateID:    g.GateID,
			StepIndex: stepIdx,
			Preview:   payload,
		})
	}

	ch, err := i.engine.gates.Wait(g.GateID)
	if err != nil {
		i.fail(workflow.ReasonExecutorFatal, fmt.Sprintf("wait on gate: %v", err))
		return phaseDone, false
	}
	decision, alive := i.await(g.GateID, ch)
	if !alive {
		return phaseDone, false
	}
	i.emitGateResolved(g, decision)

	outcome := i.applyStepDecision(kind, decision)
	if outcome == phaseReplan {
		return phaseReplan, false
	}
	return phaseDone, i.state == workflow.StateExecuting
}

func (i *instance) applyStepDecision(kind workflow.GateKind, decision gate.Decision) phaseResult {
	switch decision.Resolution.Action {
	case workflow.ResolveApprove, workflow.ResolveEditWording:
		i.transition(workflow.StateExecuting)
		return phaseDone
	case workflow.ResolveEditContent:
		// Only a player gate can fold content feedback into a re-plan;
		// a tool invocation has no wording to edit, so it is rejected.
		if kind == workflow.GateKindPlayer {
			i.feedback = decision.Resolution.Feedback
			return phaseReplan
		}
		i.transition(workflow.StateCancelled)
		return phaseDone
	default:
		i.transition(workflow.StateCancelled)
		return phaseDone
	}
}

// runStep invokes the step's executor with retry on transient failures.
// The executor classifies its own failures; a step timeout counts as
// transient. Returns false when the instance reached a terminal state.
func (i *instance) runStep(stepIdx int) bool {
	step := i.plan.Steps[stepIdx]
	exec, ok := i.engine.registry.Lookup(step.Capability)
	if !ok {
		i.fail(workflow.ReasonUnknownCapability, fmt.Sprintf("no executor for capability %q", step.Capability))
		return false
	}

	for attempt := 1; attempt <= i.engine.maxAttempts; attempt++ {
		i.plan.Steps[stepIdx].Status = workflow.StepStatusInProgress
		i.emit(workflow.EventTaskStart, &workflow.TaskStartPayload{
			StepIndex:  stepIdx,
			Action:     step.Action,
			Capability: step.Capability,
			Attempt:    attempt,
		})

		result, execErr := i.invoke(exec, step, stepIdx)
		if i.ctx.Err() != nil {
			// late result, if any, is discarded rather than applied
			i.terminate(workflow.StateCancelled, workflow.ReasonCancelled, "instance cancelled")
			return false
		}

		status := result.Status
		detail := result.Detail
		if execErr != nil {
			status = executor.StatusTransientError
			detail = execErr.Error()
		}

		switch status {
		case executor.StatusOK:
			i.plan.Steps[stepIdx].Status = workflow.StepStatusCompleted
			i.outputs = append(i.outputs, workflow.StepOutput{StepIndex: stepIdx, Output: result.Output})
			i.emit(workflow.EventTaskComplete, &workflow.TaskCompletePayload{
				StepIndex: stepIdx,
				Action:    step.Action,
				Output:    result.Output,
				Attempts:  attempt,
			})
			i.saveCheckpoint("")
			return true
		case executor.StatusFatalError:
			i.plan.Steps[stepIdx].Status = workflow.StepStatusError
			i.fail(workflow.ReasonExecutorFatal, detail)
			return false
		default:
			i.engine.logger.Warn("step attempt failed",
				"session_id", i.sessionID, "step_index", stepIdx,
				"attempt", attempt, "detail", detail)
			if attempt == i.engine.maxAttempts {
				i.plan.Steps[stepIdx].Status = workflow.StepStatusError
				i.fail(workflow.ReasonRetriesExhausted,
					fmt.Sprintf("step %d failed after %d attempts: %s", stepIdx, attempt, detail))
				return false
			}
			if !i.sleep(i.backoffFor(attempt)) {
				i.terminate(workflow.StateCancelled, workflow.ReasonCancelled, "instance cancelled")
				return false
			}
		}
	}
	return false
}

func (i *instance) invoke(exec executor.Executor, step workflow.Step, stepIdx int) (executor.Result, error) {
	ctx := i.ctx
	if i.engine.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.engine.stepTimeout)
		defer cancel()
	}
	result, err := exec.Execute(ctx, executor.Request{
		SessionID: i.sessionID,
		Step:      step,
		Goal:      i.plan.Goal,
		Prior:     i.outputs,
		OnToken: func(text string) {
			i.emit(workflow.EventToken, &workflow.TokenPayload{StepIndex: stepIdx, Text: text})
		},
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return executor.Result{}, fmt.Errorf("step %d timed out", stepIdx)
	}
	return result, err
}

// await blocks until the gate resolves or the instance is cancelled. On
// cancellation the gate is closed on record so the session never carries a
// dangling pending gate.
func (i *instance) await(gateID string, ch <-chan gate.Decision) (gate.Decision, bool) {
	select {
	case decision := <-ch:
		return decision, true
	case <-i.ctx.Done():
		_, _, _ = i.engine.gates.Resolve(gateID, workflow.Resolution{
			Action:   workflow.ResolveReject,
			Actor:    "system",
			Feedback: "cancelled",
		})
		i.terminate(workflow.StateCancelled, workflow.ReasonCancelled, "instance cancelled")
		return gate.Decision{}, false
	}
}

func (i *instance) emitGateResolved(g workflow.Gate, decision gate.Decision) {
	i.emit(workflow.EventGateResolved, &workflow.GateResolvedPayload{
		GateID:    g.GateID,
		Kind:      g.Kind,
		Action:    decision.Resolution.Action,
		Feedback:  decision.Resolution.Feedback,
		Synthetic: decision.Synthetic,
	})
}

// fail is the single terminal-failure path: every failure emits an error
// event with a stable reason code before the instance settles.
func (i *instance) fail(reason, detail string) {
	i.terminate(workflow.StateFailed, reason, detail)
}

func (i *instance) terminate(state workflow.InstanceState, reason, detail string) {
	i.emit(workflow.EventError, &workflow.ErrorPayload{Reason: reason, Detail: detail})
	i.transition(state)
}

func (i *instance) transition(to workflow.InstanceState) bool {
	if err := workflow.ValidateStateTransition(i.state, to); err != nil {
		i.engine.logger.Error("invalid state transition",
			"session_id", i.sessionID, "from", string(i.state), "to", string(to), "error", err)
		return false
	}
	i.state = to
	i.persistSession()
	return true
}

func (i *instance) persistSession() {
	session, err := i.engine.sessions.LoadSession(i.sessionID)
	if err != nil {
		i.engine.logger.Error("load session", "session_id", i.sessionID, "error", err)
		return
	}
	session.State = i.state
	session.ActiveInstance = i.instanceID
	if workflow.IsTerminal(i.state) {
		session.ActiveInstance = ""
	}
	session.UpdatedAt = i.engine.now()
	if err := i.engine.sessions.UpsertSession(session); err != nil {
		i.engine.logger.Error("persist session", "session_id", i.sessionID, "error", err)
	}
}

func (i *instance) saveCheckpoint(pendingGate string) {
	statuses := make([]workflow.StepStatus, len(i.plan.Steps))
	for idx, step := range i.plan.Steps {
		statuses[idx] = step.Status
	}
	token, err := i.engine.checkpoints.Save(i.sessionID, workflow.Checkpoint{
		SessionID:    i.sessionID,
		InstanceID:   i.instanceID,
		State:        i.state,
		PlanRevision: i.plan.Revision,
		StepStatuses: statuses,
		Outputs:      i.outputs,
		PendingGate:  pendingGate,
		CreatedAt:    i.engine.now(),
	})
	if err != nil {
		i.engine.logger.Error("save checkpoint", "session_id", i.sessionID, "error", err)
		return
	}
	session, err := i.engine.sessions.LoadSession(i.sessionID)
	if err != nil {
		return
	}
	session.ActiveCheckpoint = token
	session.UpdatedAt = i.engine.now()
	_ = i.engine.sessions.UpsertSession(session)
}

func (i *instance) emit(kind workflow.EventKind, payload any) {
	if _, err := i.engine.log.Append(i.sessionID, kind, payload); err != nil {
		i.engine.logger.Error("append event",
			"session_id", i.sessionID, "kind", string(kind), "error", err)
	}
}

func (i *instance) previewFor(stepIdx int) []byte {
	for idx := len(i.outputs) - 1; idx >= 0; idx-- {
		if i.outputs[idx].StepIndex < stepIdx {
			return i.outputs[idx].Output
		}
	}
	return nil
}

func (i *instance) backoffFor(attempt int) time.Duration {
	if attempt-1 < len(i.engine.backoff) {
		return i.engine.backoff[attempt-1]
	}
	return i.engine.backoff[len(i.engine.backoff)-1]
}

func (i *instance) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-i.ctx.Done():
		return false
	}
}

func completedSteps(plan workflow.Plan) int {
	n := 0
	for _, step := range plan.Steps {
		if step.Status == workflow.StepStatusCompleted {
			n++
		}
	}
	return n
}

func firstIncomplete(plan workflow.Plan) int {
	for idx, step := range plan.Steps {
		if step.Status != workflow.StepStatusCompleted {
			return idx
		}
	}
	return len(plan.Steps)
}
