package relay

import (
	"context"
	"testing"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/eventlog"
	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

func newTestRelay(t *testing.T, bufSize int) (*Relay, *eventlog.Log) {
	t.Helper()
	log, err := eventlog.New(t.TempDir())
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	relay, err := New(log, bufSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return relay, log
}

func appendN(t *testing.T, log *eventlog.Log, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := log.Append(sessionID, workflow.EventError, &workflow.ErrorPayload{Reason: "REASON"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func collect(t *testing.T, events <-chan workflow.Event, n int) []workflow.Event {
	t.Helper()
	out := []workflow.Event{}
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(out), n)
			}
			out = append(out, event)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestSubscribeReplaysPersistedTail(t *testing.T) {
	t.Parallel()

	relay, log := newTestRelay(t, 0)
	appendN(t, log, "ses-1", 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := relay.Subscribe(ctx, "ses-1", -1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	got := collect(t, events, 5)
	for i, event := range got {
		if event.Seq != int64(i) {
			t.Fatalf("replay out of order at %d: seq %d", i, event.Seq)
		}
	}
}

func TestReplayToLiveSeamHasNoGapOrDuplicate(t *testing.T) {
	t.Parallel()

	relay, log := newTestRelay(t, 0)
	appendN(t, log, "ses-1", 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := relay.Subscribe(ctx, "ses-1", -1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Appends racing the replay must land exactly once after it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		appendN(t, log, "ses-1", 5)
	}()

	got := collect(t, events, 10)
	<-done
	for i, event := range got {
		if event.Seq != int64(i) {
			t.Fatalf("seam broken at %d: seq %d", i, event.Seq)
		}
	}
}

func TestResubscribeFromLastSeenIsExact(t *testing.T) {
	t.Parallel()

	relay, log := newTestRelay(t, 0)
	appendN(t, log, "ses-1", 12)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := relay.Subscribe(ctx, "ses-1", 9)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	got := collect(t, events, 2)
	if got[0].Seq != 10 || got[1].Seq != 11 {
		t.Fatalf("resubscribe delivered seqs %d, %d; want 10, 11", got[0].Seq, got[1].Seq)
	}
	select {
	case event, ok := <-events:
		if ok {
			t.Fatalf("unexpected extra event seq %d", event.Seq)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberGetsGapMarkerAndCloses(t *testing.T) {
	t.Parallel()

	relay, log := newTestRelay(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := relay.Subscribe(ctx, "ses-1", -1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// No reads while appending: the live buffer overflows and the
	// subscriber is degraded. Appends never block on it.
	appendN(t, log, "ses-1", 8)

	received := []workflow.Event{}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if len(received) == 0 {
					t.Fatal("stream closed without a gap marker")
				}
				last := received[len(received)-1]
				if last.Kind != workflow.EventGap {
					t.Fatalf("last event kind = %s, want gap", last.Kind)
				}
				decoded, err := workflow.DecodePayload(last)
				if err != nil {
					t.Fatalf("decode gap payload: %v", err)
				}
				gap := decoded.(*workflow.GapPayload)
				if len(received) < 2 {
					t.Fatalf("gap with no delivered events: %+v", gap)
				}
				if gap.LastSeq != received[len(received)-2].Seq {
					t.Fatalf("gap LastSeq = %d, want %d", gap.LastSeq, received[len(received)-2].Seq)
				}
				return
			}
			received = append(received, event)
		case <-deadline:
			t.Fatal("degraded stream never closed")
		}
	}
}

func TestAppendNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	relay, log := newTestRelay(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := relay.Subscribe(ctx, "ses-1", -1); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		appendN(t, log, "ses-1", 50)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("append blocked on a slow subscriber")
	}
}

func TestSubscribeValidatesArguments(t *testing.T) {
	t.Parallel()

	relay, _ := newTestRelay(t, 0)
	ctx := context.Background()
	if _, err := relay.Subscribe(ctx, "", 0); err == nil {
		t.Fatal("expected error for empty session id")
	}
	if _, err := relay.Subscribe(ctx, "ses-1", -2); err == nil {
		t.Fatal("expected error for fromSeq < -1")
	}
}
