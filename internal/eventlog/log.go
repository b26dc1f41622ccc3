// Package eventlog stores the append-only, per-session, strictly ordered
// event stream. It is the source of truth for replay: events are write-once
// and any reader asking for the same range gets an identical answer.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

// Observer is invoked synchronously after each successful append, in append
// order. Observers must not block; the relay hands events off to buffered
// subscriber queues.
type Observer func(workflow.Event)

type sessionState struct {
	nextSeq int64
	loaded  bool
}

// Log is an append-only JSONL event store, one file per session, with an
// atomically written sequence sidecar. The engine is the only producer for
// a session; Log serializes appends defensively anyway.
type Log struct {
	dir string
	now func() time.Time

	mu        sync.Mutex
	sessions  map[string]*sessionState
	observers []Observer
}

func New(dir string) (*Log, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("event log dir is required")
	}
	return &Log{
		dir:      dir,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: map[string]*sessionState{},
	}, nil
}

// SetClock overrides the timestamp source. Tests only.
func (l *Log) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// RegisterObserver attaches a live-tail observer. Registration order is
// notification order.
func (l *Log) RegisterObserver(obs Observer) {
	if obs == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

// Append assigns the next sequence number for the session, persists the
// event, and notifies observers. Sequence numbers start at 0 and are never
// reused.
func (l *Log) Append(sessionID string, kind workflow.EventKind, payload any) (workflow.Event, error) {
	if strings.TrimSpace(sessionID) == "" {
		return workflow.Event{}, fmt.Errorf("session id is required")
	}
	raw, err := workflow.MarshalPayload(kind, payload)
	if err != nil {
		return workflow.Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadSessionLocked(sessionID)
	if err != nil {
		return workflow.Event{}, err
	}
	event := workflow.Event{
		EventID:   workflow.NewEventID(),
		SessionID: sessionID,
		Seq:       state.nextSeq,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: l.now(),
	}
	if err := appendEventJSONL(l.eventPath(sessionID), event); err != nil {
		return workflow.Event{}, err
	}
	state.nextSeq++
	if err := l.writeSeqStateLocked(sessionID, state.nextSeq); err != nil {
		// The event is on disk; the sidecar is rebuilt from the log on
		// next load, so a failed sidecar write is not fatal.
		state.loaded = false
	}
	for _, obs := range l.observers {
		obs(event)
	}
	return event, nil
}

// Read returns the session's events with Seq >= fromSeq, in order. The
// result is restartable: identical fromSeq yields identical events.
func (l *Log) Read(sessionID string, fromSeq int64) ([]workflow.Event, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	events, err := readEventsFile(l.eventPath(sessionID))
	if err != nil {
		return nil, err
	}
	if err := validateContiguous(events); err != nil {
		return nil, err
	}
	if fromSeq <= 0 {
		return events, nil
	}
	if fromSeq >= int64(len(events)) {
		return nil, nil
	}
	return events[fromSeq:], nil
}

// MaxSeq returns the highest assigned sequence number, or -1 when the
// session has no events yet.
func (l *Log) MaxSeq(sessionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.loadSessionLocked(sessionID)
	if err != nil {
		return -1, err
	}
	return state.nextSeq - 1, nil
}

// Sessions lists the session ids that have an event log, sorted.
func (l *Log) Sessions() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read event log dir: %w", err)
	}
	out := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(l.eventPath(entry.Name())); err == nil {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

type sequenceSidecar struct {
	NextSeq int64 `json:"next_seq"`
}

func (l *Log) loadSessionLocked(sessionID string) (*sessionState, error) {
	if state, ok := l.sessions[sessionID]; ok && state.loaded {
		return state, nil
	}
	next := int64(0)
	data, err := os.ReadFile(l.seqPath(sessionID))
	if err == nil {
		var parsed sequenceSidecar
		if parseErr := json.Unmarshal(data, &parsed); parseErr != nil {
			return nil, fmt.Errorf("parse seq state: %w", parseErr)
		}
		next = parsed.NextSeq
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read seq state: %w", err)
	}

	// The log itself wins over the sidecar: a crash between the event
	// append and the sidecar write must never cause sequence reuse.
	events, err := readEventsFile(l.eventPath(sessionID))
	if err != nil {
		return nil, err
	}
	if err := validateContiguous(events); err != nil {
		return nil, err
	}
	if fromLog := int64(len(events)); fromLog > next {
		next = fromLog
	}

	state := &sessionState{nextSeq: next, loaded: true}
	l.sessions[sessionID] = state
	return state, nil
}

func (l *Log) writeSeqStateLocked(sessionID string, next int64) error {
	return WriteJSONAtomic(l.seqPath(sessionID), sequenceSidecar{NextSeq: next})
}

func (l *Log) eventPath(sessionID string) string {
	return filepath.Join(l.dir, sessionID, "events.jsonl")
}

func (l *Log) seqPath(sessionID string) string {
	return filepath.Join(l.dir, sessionID, "seq_state.json")
}
