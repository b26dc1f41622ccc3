// Package checkpoint persists workflow instance snapshots. Checkpoints are
// content-addressed by a monotonically increasing token — one atomically
// renamed file per token — so concurrent readers never see a torn write.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

const filePrefix = "cp-"

type Store struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	latest map[string]int64
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint dir is required")
	}
	return &Store{
		dir:    dir,
		now:    func() time.Time { return time.Now().UTC() },
		latest: map[string]int64{},
	}, nil
}

// SetClock overrides the timestamp source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Save writes the checkpoint under the next token for the session and
// returns that token. Tokens advance monotonically and are never reused.
func (s *Store) Save(sessionID string, cp workflow.Checkpoint) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if cp.SessionID != sessionID {
		return 0, fmt.Errorf("checkpoint session %q does not match %q", cp.SessionID, sessionID)
	}
	if cp.InstanceID == "" {
		return 0, fmt.Errorf("checkpoint instance id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.latestTokenLocked(sessionID)
	if err != nil {
		return 0, err
	}
	token := prev + 1
	cp.CreatedAt = s.now()
	if err := writeCheckpoint(s.tokenPath(sessionID, token), cp); err != nil {
		return 0, err
	}
	s.latest[sessionID] = token
	return token, nil
}

// Load reads the checkpoint stored under token. A missing or unparsable
// checkpoint is surfaced as corruption — resuming from an unknown state
// risks duplicate side effects.
func (s *Store) Load(sessionID string, token int64) (workflow.Checkpoint, error) {
	if token <= 0 {
		return workflow.Checkpoint{}, fmt.Errorf("%w: token %d", workflow.ErrCheckpointNotFound, token)
	}
	return readCheckpoint(s.tokenPath(sessionID, token))
}

// Latest returns the most recent checkpoint for the session, or
// ErrCheckpointNotFound when none exists.
func (s *Store) Latest(sessionID string) (workflow.Checkpoint, int64, error) {
	s.mu.Lock()
	token, err := s.latestTokenLocked(sessionID)
	s.mu.Unlock()
	if err != nil {
		return workflow.Checkpoint{}, 0, err
	}
	if token == 0 {
		return workflow.Checkpoint{}, 0, fmt.Errorf("%w: session %s", workflow.ErrCheckpointNotFound, sessionID)
	}
	cp, err := readCheckpoint(s.tokenPath(sessionID, token))
	if err != nil {
		return workflow.Checkpoint{}, 0, err
	}
	return cp, token, nil
}

func (s *Store) latestTokenLocked(sessionID string) (int64, error) {
	if token, ok := s.latest[sessionID]; ok {
		return token, nil
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			s.latest[sessionID] = 0
			return 0, nil
		}
		return 0, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var max int64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		token, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || token <= 0 {
			continue
		}
		if token > max {
			max = token
		}
	}
	s.latest[sessionID] = max
	return max, nil
}

func (s *Store) tokenPath(sessionID string, token int64) string {
	return filepath.Join(s.dir, sessionID, fmt.Sprintf("%s%08d.json", filePrefix, token))
}

func writeCheckpoint(path string, cp workflow.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func readCheckpoint(path string) (workflow.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return workflow.Checkpoint{}, fmt.Errorf("%w: %s", workflow.ErrCheckpointNotFound, path)
		}
		return workflow.Checkpoint{}, fmt.Errorf("%w: read %s: %v", workflow.ErrCheckpointCorrupt, path, err)
	}
	var cp workflow.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return workflow.Checkpoint{}, fmt.Errorf("%w: parse %s: %v", workflow.ErrCheckpointCorrupt, path, err)
	}
	if cp.SessionID == "" || cp.InstanceID == "" || cp.PlanRevision < 0 {
		return workflow.Checkpoint{}, fmt.Errorf("%w: %s is missing required fields", workflow.ErrCheckpointCorrupt, path)
	}
	return cp, nil
}
