// Package gate tracks pending human-decision points and resolves each one
// exactly once, correlating the resolution back to the suspended instance.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeStaleInstance   Outcome = "stale_instance"
)

// Store is the durable record of gates; the manager writes through to it so
// resolutions survive a restart.
type Store interface {
	SaveGate(gate workflow.Gate) error
	UpdateGateResolution(gateID string, res workflow.Resolution, resolvedAt time.Time) error
	LoadGate(gateID string) (workflow.Gate, error)
	LoadPendingGate(sessionID string) (workflow.Gate, bool, error)
}

// Decision is what a suspended instance receives when its gate resolves.
// Synthetic marks TTL auto-rejections.
type Decision struct {
	Resolution workflow.Resolution
	Synthetic  bool
}

type Manager struct {
	store Store
	ttl   map[workflow.GateKind]time.Duration
	now   func() time.Time

	mu               sync.Mutex
	pendingBySession map[string]*workflow.Gate
	byID             map[string]*workflow.Gate
	waiters          map[string]chan Decision
}

// NewManager builds a gate manager. ttl sets an optional expiry per gate
// kind; a zero or missing duration disables expiry for that kind.
func NewManager(store Store, ttl map[workflow.GateKind]time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("gate store is required")
	}
	copied := map[workflow.GateKind]time.Duration{}
	for kind, d := range ttl {
		if err := workflow.ValidateGateKind(kind); err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("gate ttl for %s must be >= 0", kind)
		}
		copied[kind] = d
	}
	return &Manager{
		store:            store,
		ttl:              copied,
		now:              func() time.Time { return time.Now().UTC() },
		pendingBySession: map[string]*workflow.Gate{},
		byID:             map[string]*workflow.Gate{},
		waiters:          map[string]chan Decision{},
	}, nil
}

// SetClock overrides the timestamp source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Create registers a new pending gate for the session. It fails with
// ErrGatePending when the session already has one: at most one gate may be
// pending per session at any time.
func (m *Manager) Create(sessionID, instanceID string, kind workflow.GateKind, payload []byte) (workflow.Gate, error) {
	if strings.TrimSpace(sessionID) == "" {
		return workflow.Gate{}, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(instanceID) == "" {
		return workflow.Gate{}, fmt.Errorf("instance id is required")
	}
	if err := workflow.ValidateGateKind(kind); err != nil {
		return workflow.Gate{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pendingBySession[sessionID]; ok {
		return workflow.Gate{}, fmt.Errorf("%w: gate %s", workflow.ErrGatePending, existing.GateID)
	}
	now := m.now()
	gate := workflow.Gate{
		GateID:     workflow.NewGateID(),
		SessionID:  sessionID,
		InstanceID: instanceID,
		Kind:       kind,
		Payload:    payload,
		Status:     workflow.GateStatusPending,
		CreatedAt:  now,
	}
	if d := m.ttl[kind]; d > 0 {
		gate.ExpiresAt = now.Add(d)
	}
	if err := m.store.SaveGate(gate); err != nil {
		return workflow.Gate{}, fmt.Errorf("persist gate: %w", err)
	}
	stored := gate
	m.pendingBySession[sessionID] = &stored
	m.byID[gate.GateID] = &stored
	m.waiters[gate.GateID] = make(chan Decision, 1)
	return gate, nil
}

// Attach re-registers a pending gate loaded from the store after a restart,
// so a resumed instance can wait on it. If the gate resolved while the
// process was down, the stored decision is delivered immediately.
func (m *Manager) Attach(gate workflow.Gate) (<-chan Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.LoadGate(gate.GateID)
	if err != nil {
		return nil, err
	}
	ch := make(chan Decision, 1)
	copied := stored
	m.byID[stored.GateID] = &copied
	if stored.Status == workflow.GateStatusResolved {
		if stored.Resolution == nil {
			return nil, fmt.Errorf("gate %s resolved without a recorded resolution", stored.GateID)
		}
		ch <- Decision{Resolution: *stored.Resolution}
		return ch, nil
	}
	m.pendingBySession[stored.SessionID] = &copied
	m.waiters[stored.GateID] = ch
	return ch, nil
}

// Wait returns the decision channel for a pending gate created in this
// process. The channel delivers exactly one decision.
func (m *Manager) Wait(gateID string) (<-chan Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.waiters[gateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrGateNotFound, gateID)
	}
	return ch, nil
}

// Resolve is the single linearization point: it atomically checks gate
// status, flips it to resolved, persists the resolution, and wakes the
// suspended instance exactly once. Concurrent resolves race safely — one
// caller observes applied, the rest already_resolved with the resolution
// on record and no side effects.
func (m *Manager) Resolve(gateID string, res workflow.Resolution) (Outcome, workflow.Resolution, error) {
	return m.resolve(gateID, res, false)
}

func (m *Manager) resolve(gateID string, res workflow.Resolution, synthetic bool) (Outcome, workflow.Resolution, error) {
	if _, err := workflow.ParseResolutionAction(string(res.Action)); err != nil {
		return "", workflow.Resolution{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gate, ok := m.byID[gateID]
	if !ok {
		stored, err := m.store.LoadGate(gateID)
		if err != nil {
			return OutcomeNotFound, workflow.Resolution{}, nil
		}
		copied := stored
		gate = &copied
		m.byID[gateID] = gate
	}
	if gate.Status == workflow.GateStatusResolved {
		if gate.Resolution == nil {
			return "", workflow.Resolution{}, fmt.Errorf("gate %s resolved without a recorded resolution", gateID)
		}
		return OutcomeAlreadyResolved, *gate.Resolution, nil
	}

	now := m.now()
	if err := m.store.UpdateGateResolution(gateID, res, now); err != nil {
		return "", workflow.Resolution{}, fmt.Errorf("persist gate resolution: %w", err)
	}
	gate.Status = workflow.GateStatusResolved
	gate.Resolution = &res
	gate.ResolvedAt = now
	delete(m.pendingBySession, gate.SessionID)

	if ch, ok := m.waiters[gateID]; ok {
		ch <- Decision{Resolution: res, Synthetic: synthetic}
		delete(m.waiters, gateID)
	}
	return OutcomeApplied, res, nil
}

// Lookup returns the gate record, preferring in-memory state and falling
// back to the store.
func (m *Manager) Lookup(gateID string) (workflow.Gate, bool) {
	m.mu.Lock()
	if gate, ok := m.byID[gateID]; ok {
		out := *gate
		m.mu.Unlock()
		return out, true
	}
	m.mu.Unlock()
	stored, err := m.store.LoadGate(gateID)
	if err != nil {
		return workflow.Gate{}, false
	}
	return stored, true
}

// Pending returns the session's pending gate, if any.
func (m *Manager) Pending(sessionID string) (workflow.Gate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.pendingBySession[sessionID]
	if !ok {
		return workflow.Gate{}, false
	}
	return *gate, true
}

// ExpireDue auto-rejects every pending gate whose TTL has lapsed and
// returns the expired gates. The waking decision is marked synthetic so the
// engine records a synthetic gate_resolved event.
func (m *Manager) ExpireDue(now time.Time) ([]workflow.Gate, error) {
	m.mu.Lock()
	due := []string{}
	for _, gate := range m.pendingBySession {
		if !gate.ExpiresAt.IsZero() && !now.Before(gate.ExpiresAt) {
			due = append(due, gate.GateID)
		}
	}
	m.mu.Unlock()

	expired := make([]workflow.Gate, 0, len(due))
	for _, gateID := range due {
		res := workflow.Resolution{Action: workflow.ResolveReject, Actor: "system", Feedback: "gate expired"}
		outcome, _, err := m.resolve(gateID, res, true)
		if err != nil {
			return expired, err
		}
		if outcome != OutcomeApplied {
			continue
		}
		if gate, ok := m.Lookup(gateID); ok {
			expired = append(expired, gate)
		}
	}
	return expired, nil
}

// Run sweeps for expired gates until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = m.ExpireDue(now.UTC())
		}
	}
}
