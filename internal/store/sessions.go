package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

func (s *Store) UpsertSession(session workflow.Session) error {
	if session.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, owner_id, workflow_state, active_instance, active_checkpoint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			workflow_state = excluded.workflow_state,
			active_instance = excluded.active_instance,
			active_checkpoint = excluded.active_checkpoint,
			updated_at = excluded.updated_at;
	`, session.SessionID, session.OwnerID, string(session.State), session.ActiveInstance,
		session.ActiveCheckpoint, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *Store) LoadSession(sessionID string) (workflow.Session, error) {
	row := s.db.QueryRow(`
		SELECT session_id, owner_id, workflow_state, active_instance, active_checkpoint, created_at, updated_at
		FROM sessions WHERE session_id = ?;
	`, sessionID)
	var out workflow.Session
	var state string
	err := row.Scan(&out.SessionID, &out.OwnerID, &state, &out.ActiveInstance,
		&out.ActiveCheckpoint, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Session{}, fmt.Errorf("%w: %s", workflow.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return workflow.Session{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	out.State = workflow.InstanceState(state)
	return out, nil
}

func (s *Store) ListSessions() ([]workflow.Session, error) {
	rows, err := s.db.Query(`
		SELECT session_id, owner_id, workflow_state, active_instance, active_checkpoint, created_at, updated_at
		FROM sessions ORDER BY created_at;
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []workflow.Session{}
	for rows.Next() {
		var session workflow.Session
		var state string
		if err := rows.Scan(&session.SessionID, &session.OwnerID, &state, &session.ActiveInstance,
			&session.ActiveCheckpoint, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.State = workflow.InstanceState(state)
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// SavePlanRevision persists a new plan revision. Revisions are append-only:
// writing an existing (session, revision) pair is an error, never an update.
func (s *Store) SavePlanRevision(plan workflow.Plan) error {
	if err := workflow.ValidatePlan(plan); err != nil {
		return err
	}
	steps, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshal plan steps: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO plan_revisions (session_id, revision, goal, feedback, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, plan.SessionID, plan.Revision, plan.Goal, plan.Feedback, string(steps), plan.CreatedAt); err != nil {
		return fmt.Errorf("save plan revision %s/%d: %w", plan.SessionID, plan.Revision, err)
	}
	return nil
}

func (s *Store) LoadPlanRevision(sessionID string, revision int) (workflow.Plan, error) {
	row := s.db.QueryRow(`
		SELECT session_id, revision, goal, feedback, steps, created_at
		FROM plan_revisions WHERE session_id = ? AND revision = ?;
	`, sessionID, revision)
	return scanPlan(row)
}

func (s *Store) LoadLatestPlan(sessionID string) (workflow.Plan, error) {
	row := s.db.QueryRow(`
		SELECT session_id, revision, goal, feedback, steps, created_at
		FROM plan_revisions WHERE session_id = ? ORDER BY revision DESC LIMIT 1;
	`, sessionID)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (workflow.Plan, error) {
	var plan workflow.Plan
	var steps string
	err := row.Scan(&plan.SessionID, &plan.Revision, &plan.Goal, &plan.Feedback, &steps, &plan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Plan{}, fmt.Errorf("%w: no plan revision", workflow.ErrInvalidPlan)
	}
	if err != nil {
		return workflow.Plan{}, fmt.Errorf("load plan revision: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &plan.Steps); err != nil {
		return workflow.Plan{}, fmt.Errorf("parse plan steps: %w", err)
	}
	return plan, nil
}
