// Package executor defines the contract between the engine and the
// pluggable capabilities that perform steps. The engine never interprets a
// step's work; it only consumes the classified result.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

type Status string

const (
	StatusOK             Status = "ok"
	StatusTransientError Status = "transient_error"
	StatusFatalError     Status = "fatal_error"
)

// Request carries one step invocation. Prior holds the accumulated outputs
// of completed steps; OnToken, when set, streams partial generation output
// back to the engine (which is the only event writer).
type Request struct {
	SessionID string
	Step      workflow.Step
	Goal      string
	Prior     []workflow.StepOutput
	OnToken   func(text string)
}

// Result is the executor's classified outcome. Classification is the
// executor's responsibility — the engine never guesses whether a failure
// is retryable.
type Result struct {
	Status Status
	Output json.RawMessage
	Detail string
}

type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps target capabilities to executors.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]Executor{}}
}

func (r *Registry) Register(capability string, exec Executor) error {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return fmt.Errorf("capability is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[capability]; exists {
		return fmt.Errorf("capability %q already registered", capability)
	}
	r.m[capability] = exec
	return nil
}

func (r *Registry) Lookup(capability string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.m[capability]
	return exec, ok
}

func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for capability := range r.m {
		out = append(out, capability)
	}
	sort.Strings(out)
	return out
}
