package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/executor"
)

// Built-in capabilities form an offline research pipeline: retrieval and
// extraction return canned desk notes derived from the goal, composition
// streams its write-up token by token, publish and answer pass the composed
// text through. They exist so the CLI works end to end without any external
// collaborator; production deployments register real executors instead.
func registerBuiltins(registry *executor.Registry) error {
	builtins := map[string]executor.Func{
		"feed.search":   builtinSearch,
		"stats.extract": builtinExtract,
		"desk.compose":  builtinCompose,
		"desk.publish":  builtinPublish,
		"desk.answer":   builtinAnswer,
	}
	for capability, fn := range builtins {
		if err := registry.Register(capability, fn); err != nil {
			return err
		}
	}
	return nil
}

type deskNote struct {
	Topic   string   `json:"topic"`
	Sources []string `json:"sources,omitempty"`
	Body    string   `json:"body,omitempty"`
}

func builtinSearch(ctx context.Context, req executor.Request) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}
	note := deskNote{
		Topic:   req.Goal,
		Sources: []string{"wire/archive", "desk/notes"},
		Body:    fmt.Sprintf("collected background material for %q", req.Goal),
	}
	return okResult(note)
}

func builtinExtract(ctx context.Context, req executor.Request) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}
	note := deskNote{
		Topic: req.Goal,
		Body:  "extracted figures from the retrieved material",
	}
	return okResult(note)
}

func builtinCompose(ctx context.Context, req executor.Request) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}
	text := fmt.Sprintf("Desk report on %s, drawing on %d prior step(s).", req.Goal, len(req.Prior))
	if req.OnToken != nil {
		for _, word := range strings.Fields(text) {
			req.OnToken(word + " ")
		}
	}
	return okResult(deskNote{Topic: req.Goal, Body: text})
}

func builtinPublish(ctx context.Context, req executor.Request) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}
	return okResult(deskNote{Topic: req.Goal, Body: "published approved report"})
}

func builtinAnswer(ctx context.Context, req executor.Request) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}
	body := "no composed report available"
	for idx := len(req.Prior) - 1; idx >= 0; idx-- {
		var note deskNote
		if err := json.Unmarshal(req.Prior[idx].Output, &note); err == nil && note.Body != "" {
			body = note.Body
			break
		}
	}
	return okResult(deskNote{Topic: req.Goal, Body: body})
}

func okResult(note deskNote) (executor.Result, error) {
	raw, err := json.Marshal(note)
	if err != nil {
		return executor.Result{Status: executor.StatusFatalError, Detail: err.Error()}, nil
	}
	return executor.Result{Status: executor.StatusOK, Output: raw}, nil
}
