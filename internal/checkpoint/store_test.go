package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

func sampleCheckpoint(sessionID string, revision int) workflow.Checkpoint {
	return workflow.Checkpoint{
		SessionID:    sessionID,
		InstanceID:   "wfi-1",
		State:        workflow.StateAwaitingPlanApproval,
		PlanRevision: revision,
		StepStatuses: []workflow.StepStatus{workflow.StepStatusPending},
		PendingGate:  "gat-1",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSaveAssignsMonotonicTokens(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for want := int64(1); want <= 3; want++ {
		token, err := store.Save("ses-1", sampleCheckpoint("ses-1", int(want)))
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if token != want {
			t.Fatalf("Save assigned token %d, want %d", token, want)
		}
	}

	cp, token, err := store.Latest("ses-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if token != 3 || cp.PlanRevision != 3 {
		t.Fatalf("Latest = token %d revision %d, want 3/3", token, cp.PlanRevision)
	}
}

func TestTokensSurviveRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Save("ses-1", sampleCheckpoint("ses-1", 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save("ses-1", sampleCheckpoint("ses-1", 2)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore after restart: %v", err)
	}
	token, err := reopened.Save("ses-1", sampleCheckpoint("ses-1", 3))
	if err != nil {
		t.Fatalf("Save after restart: %v", err)
	}
	if token != 3 {
		t.Fatalf("token reused after restart: got %d, want 3", token)
	}
}

func TestLoadSpecificToken(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Save("ses-1", sampleCheckpoint("ses-1", 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save("ses-1", sampleCheckpoint("ses-1", 2)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cp, err := store.Load("ses-1", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.PlanRevision != 1 {
		t.Fatalf("Load(1) revision = %d, want 1", cp.PlanRevision)
	}
	if _, err := store.Load("ses-1", 0); !errors.Is(err, workflow.ErrCheckpointNotFound) {
		t.Fatalf("Load(0) error = %v, want ErrCheckpointNotFound", err)
	}
	if _, err := store.Load("ses-1", 9); !errors.Is(err, workflow.ErrCheckpointNotFound) {
		t.Fatalf("Load(9) error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestLatestEmptySession(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, _, err := store.Latest("ses-none"); !errors.Is(err, workflow.ErrCheckpointNotFound) {
		t.Fatalf("Latest error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestCorruptCheckpointSurfaces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	token, err := store.Save("ses-1", sampleCheckpoint("ses-1", 1))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "ses-1", "cp-00000001.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt checkpoint: %v", err)
	}

	if _, err := store.Load("ses-1", token); !errors.Is(err, workflow.ErrCheckpointCorrupt) {
		t.Fatalf("Load error = %v, want ErrCheckpointCorrupt", err)
	}
	if _, _, err := store.Latest("ses-1"); !errors.Is(err, workflow.ErrCheckpointCorrupt) {
		t.Fatalf("Latest error = %v, want ErrCheckpointCorrupt", err)
	}
}

func TestSaveRejectsMismatchedSession(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Save("ses-1", sampleCheckpoint("ses-2", 1)); err == nil {
		t.Fatal("expected session mismatch to be rejected")
	}
	cp := sampleCheckpoint("ses-1", 1)
	cp.InstanceID = ""
	if _, err := store.Save("ses-1", cp); err == nil {
		t.Fatal("expected missing instance id to be rejected")
	}
}
