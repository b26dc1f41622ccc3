package workflow

import (
	"strings"
	"testing"
	"time"
)

func TestMarshalPayloadTypeChecked(t *testing.T) {
	t.Parallel()

	data, err := MarshalPayload(EventTaskStart, &TaskStartPayload{
		StepIndex:  0,
		Action:     ActionRetrieve,
		Capability: "feed.search",
		Attempt:    1,
	})
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	if !strings.Contains(string(data), `"capability":"feed.search"`) {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestMarshalPayloadRejectsWrongType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		kind    EventKind
		payload any
	}{
		{"mismatched struct", EventTaskStart, &TaskCompletePayload{}},
		{"free-form map", EventError, map[string]any{"reason": "x"}},
		{"value not pointer", EventToken, TokenPayload{Text: "x"}},
		{"unknown kind", EventKind("progress_update"), &TaskStartPayload{}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := MarshalPayload(tc.kind, tc.payload); err == nil {
				t.Fatalf("expected MarshalPayload error for %s", tc.name)
			}
		})
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	t.Parallel()

	payload, err := MarshalPayload(EventGateResolved, &GateResolvedPayload{
		GateID:    "gat-1",
		Kind:      GateKindPlan,
		Action:    ResolveApprove,
		Synthetic: true,
	})
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	event := Event{
		EventID:   NewEventID(),
		SessionID: "ses-1",
		Seq:       0,
		Kind:      EventGateResolved,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	decoded, err := DecodePayload(event)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	resolved, ok := decoded.(*GateResolvedPayload)
	if !ok {
		t.Fatalf("decoded %T, want *GateResolvedPayload", decoded)
	}
	if resolved.GateID != "gat-1" || resolved.Action != ResolveApprove || !resolved.Synthetic {
		t.Fatalf("decoded payload mismatch: %+v", resolved)
	}
}

func TestValidateEventRejectsGapKind(t *testing.T) {
	t.Parallel()

	payload, err := MarshalPayload(EventGap, &GapPayload{LastSeq: 4, Reason: "subscriber_lagged"})
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	event := Event{
		EventID:   NewEventID(),
		SessionID: "ses-1",
		Seq:       5,
		Kind:      EventGap,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := ValidateEvent(event); err == nil {
		t.Fatal("gap events must never be accepted for storage")
	}
}

func TestValidateEventRequiredFields(t *testing.T) {
	t.Parallel()

	payload, _ := MarshalPayload(EventError, &ErrorPayload{Reason: ReasonCancelled})
	base := Event{
		EventID:   NewEventID(),
		SessionID: "ses-1",
		Seq:       0,
		Kind:      EventError,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := ValidateEvent(base); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing event id", func(e *Event) { e.EventID = "" }},
		{"missing session id", func(e *Event) { e.SessionID = "" }},
		{"negative seq", func(e *Event) { e.Seq = -1 }},
		{"missing payload", func(e *Event) { e.Payload = nil }},
		{"unknown kind", func(e *Event) { e.Kind = "finished" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			event := base
			tc.mutate(&event)
			if err := ValidateEvent(event); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}
