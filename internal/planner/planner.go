// Package planner turns a research goal into an ordered step plan. The
// default planner is rule based: it inspects the goal and operator feedback
// and emits a retrieve/extract/compose/persist/answer pipeline over the
// capabilities it was configured with.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

// Planner builds the step sequence for a goal. Feedback carries operator
// wording from an edit_content resolution and must influence the new plan.
type Planner interface {
	BuildPlan(ctx context.Context, goal, feedback string) ([]workflow.Step, error)
}

// Func adapts a plain function to the Planner interface.
type Func func(ctx context.Context, goal, feedback string) ([]workflow.Step, error)

func (f Func) BuildPlan(ctx context.Context, goal, feedback string) ([]workflow.Step, error) {
	return f(ctx, goal, feedback)
}

// Capabilities names the executors a rule-based plan may reference.
type Capabilities struct {
	Retrieve string
	Extract  string
	Compose  string
	Persist  string
	Answer   string
	Tools    []string
}

type ruleBased struct {
	caps Capabilities
}

// NewRuleBased builds the default planner. Retrieve, compose and answer
// capabilities are mandatory; extract, persist and tools are optional and
// only planned when the goal asks for them.
func NewRuleBased(caps Capabilities) (Planner, error) {
	if caps.Retrieve == "" {
		return nil, fmt.Errorf("retrieve capability is required")
	}
	if caps.Compose == "" {
		return nil, fmt.Errorf("compose capability is required")
	}
	if caps.Answer == "" {
		return nil, fmt.Errorf("answer capability is required")
	}
	return &ruleBased{caps: caps}, nil
}

func (p *ruleBased) BuildPlan(ctx context.Context, goal, feedback string) ([]workflow.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is empty", workflow.ErrInvalidPlan)
	}

	params := stepParams{Goal: goal, Feedback: feedback}
	steps := []workflow.Step{
		p.step(workflow.ActionRetrieve, p.caps.Retrieve, params),
	}
	if p.caps.Extract != "" && wantsExtraction(goal, feedback) {
		steps = append(steps, p.step(workflow.ActionExtract, p.caps.Extract, params))
	}
	steps = append(steps, p.step(workflow.ActionCompose, p.caps.Compose, params))
	if p.caps.Persist != "" && wantsPersistence(goal, feedback) {
		steps = append(steps, p.step(workflow.ActionPersist, p.caps.Persist, params))
	}
	steps = append(steps, p.step(workflow.ActionAnswer, p.caps.Answer, params))

	for i := range steps {
		steps[i].Index = i
	}
	return steps, nil
}

type stepParams struct {
	Goal     string `json:"goal"`
	Feedback string `json:"feedback,omitempty"`
}

func (p *ruleBased) step(action workflow.StepAction, capability string, params stepParams) workflow.Step {
	raw, _ := json.Marshal(params)
	return workflow.Step{
		Action:     action,
		Capability: capability,
		Params:     raw,
		Status:     workflow.StepStatusPending,
	}
}

func wantsExtraction(goal, feedback string) bool {
	return containsAny(goal, feedback, "stats", "score", "lineup", "table", "standings", "extract")
}

func wantsPersistence(goal, feedback string) bool {
	return containsAny(goal, feedback, "save", "publish", "persist", "store", "report")
}

func containsAny(goal, feedback string, needles ...string) bool {
	haystack := strings.ToLower(goal + " " + feedback)
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// PlanFor applies the planner and stamps the result as the next revision for
// the session.
func PlanFor(ctx context.Context, p Planner, prior workflow.Plan, goal, feedback string, now time.Time) (workflow.Plan, error) {
	steps, err := p.BuildPlan(ctx, goal, feedback)
	if err != nil {
		return workflow.Plan{}, err
	}
	plan := workflow.NextRevision(prior, goal, feedback, steps, now)
	if err := workflow.ValidatePlan(plan); err != nil {
		return workflow.Plan{}, err
	}
	return plan, nil
}
