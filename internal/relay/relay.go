// Package relay fans session events out to connected observers. A
// subscription first replays persisted events, then switches to live tail
// with no gap and no duplicate at the seam. Slow subscribers are degraded
// with a synthetic gap marker instead of ever blocking the engine's writer.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/eventlog"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

const DefaultBuffer = 64

type subscriber struct {
	sessionID string
	live      chan workflow.Event
	degraded  bool
}

type Relay struct {
	log     *eventlog.Log
	bufSize int
	now     func() time.Time

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// New attaches a relay to the event log as a live-tail observer.
func New(log *eventlog.Log, bufSize int) (*Relay, error) {
	if log == nil {
		return nil, fmt.Errorf("event log is required")
	}
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	r := &Relay{
		log:     log,
		bufSize: bufSize,
		now:     func() time.Time { return time.Now().UTC() },
		subs:    map[string]map[*subscriber]struct{}{},
	}
	log.RegisterObserver(r.onAppend)
	return r, nil
}

// onAppend runs synchronously inside the log's append path, so it must
// never block: a full subscriber buffer degrades that subscriber instead.
func (r *Relay) onAppend(event workflow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs[event.SessionID] {
		if sub.degraded {
			continue
		}
		select {
		case sub.live <- event:
		default:
			sub.degraded = true
			close(sub.live)
		}
	}
}

// Subscribe delivers the session's events with Seq > fromSeq: first the
// persisted tail, then live appends, exactly once each. The returned
// channel closes when ctx is cancelled or after a gap marker is delivered;
// a gap means the subscriber fell behind and must resubscribe from the last
// sequence number it consumed.
func (r *Relay) Subscribe(ctx context.Context, sessionID string, fromSeq int64) (<-chan workflow.Event, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if fromSeq < -1 {
		return nil, fmt.Errorf("from seq must be >= -1")
	}

	sub := &subscriber{
		sessionID: sessionID,
		live:      make(chan workflow.Event, r.bufSize),
	}
	// Register before reading the log: anything appended from here on is
	// captured live, and the replay/live overlap is deduped by sequence.
	r.mu.Lock()
	if r.subs[sessionID] == nil {
		r.subs[sessionID] = map[*subscriber]struct{}{}
	}
	r.subs[sessionID][sub] = struct{}{}
	r.mu.Unlock()

	persisted, err := r.log.Read(sessionID, fromSeq+1)
	if err != nil {
		r.unsubscribe(sub)
		return nil, err
	}

	out := make(chan workflow.Event)
	go r.pump(ctx, sub, persisted, fromSeq, out)
	return out, nil
}

func (r *Relay) pump(ctx context.Context, sub *subscriber, replay []workflow.Event, fromSeq int64, out chan<- workflow.Event) {
	defer close(out)
	defer r.unsubscribe(sub)

	lastSent := fromSeq
	for _, event := range replay {
		select {
		case out <- event:
			lastSent = event.Seq
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case event, ok := <-sub.live:
			if !ok {
				// Degraded: the buffer overflowed. Tell the consumer
				// where replay must restart, then end the stream.
				r.sendGap(ctx, sub.sessionID, lastSent, out)
				return
			}
			if event.Seq <= lastSent {
				continue
			}
			select {
			case out <- event:
				lastSent = event.Seq
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) sendGap(ctx context.Context, sessionID string, lastSeq int64, out chan<- workflow.Event) {
	payload, err := json.Marshal(workflow.GapPayload{LastSeq: lastSeq, Reason: "subscriber_lagged"})
	if err != nil {
		return
	}
	gap := workflow.Event{
		EventID:   workflow.NewEventID(),
		SessionID: sessionID,
		Seq:       lastSeq,
		Kind:      workflow.EventGap,
		Payload:   payload,
		CreatedAt: r.now(),
	}
	select {
	case out <- gap:
	case <-ctx.Done():
	}
}

func (r *Relay) unsubscribe(sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sub.sessionID)
		}
	}
	if !sub.degraded {
		sub.degraded = true
		close(sub.live)
	}
}
