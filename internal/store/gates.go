package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

func (s *Store) SaveGate(gate workflow.Gate) error {
	if gate.GateID == "" {
		return fmt.Errorf("gate id is required")
	}
	var expires, resolved any
	if !gate.ExpiresAt.IsZero() {
		expires = gate.ExpiresAt
	}
	if !gate.ResolvedAt.IsZero() {
		resolved = gate.ResolvedAt
	}
	var action, feedback, actor any
	if gate.Resolution != nil {
		action = string(gate.Resolution.Action)
		feedback = gate.Resolution.Feedback
		actor = gate.Resolution.Actor
	}
	_, err := s.db.Exec(`
		INSERT INTO gates (gate_id, session_id, instance_id, kind, payload, status,
			resolution_action, resolution_feedback, resolution_actor,
			created_at, expires_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, gate.GateID, gate.SessionID, gate.InstanceID, string(gate.Kind), string(gate.Payload),
		string(gate.Status), action, feedback, actor, gate.CreatedAt, expires, resolved)
	if err != nil {
		return fmt.Errorf("save gate %s: %w", gate.GateID, err)
	}
	return nil
}

// UpdateGateResolution flips a pending gate to resolved. The status guard in
// the WHERE clause makes the flip first-write-wins under concurrent callers.
func (s *Store) UpdateGateResolution(gateID string, res workflow.Resolution, resolvedAt time.Time) error {
	result, err := s.db.Exec(`
		UPDATE gates
		SET status = 'resolved', resolution_action = ?, resolution_feedback = ?,
			resolution_actor = ?, resolved_at = ?
		WHERE gate_id = ? AND status = 'pending';
	`, string(res.Action), res.Feedback, res.Actor, resolvedAt, gateID)
	if err != nil {
		return fmt.Errorf("resolve gate %s: %w", gateID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve gate %s: %w", gateID, err)
	}
	if affected == 0 {
		var status string
		row := s.db.QueryRow(`SELECT status FROM gates WHERE gate_id = ?;`, gateID)
		if scanErr := row.Scan(&status); errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", workflow.ErrGateNotFound, gateID)
		}
		return fmt.Errorf("gate %s is already resolved", gateID)
	}
	return nil
}

func (s *Store) LoadGate(gateID string) (workflow.Gate, error) {
	row := s.db.QueryRow(`
		SELECT gate_id, session_id, instance_id, kind, payload, status,
			resolution_action, resolution_feedback, resolution_actor,
			created_at, expires_at, resolved_at
		FROM gates WHERE gate_id = ?;
	`, gateID)
	gate, err := scanGate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Gate{}, fmt.Errorf("%w: %s", workflow.ErrGateNotFound, gateID)
	}
	return gate, err
}

func (s *Store) LoadPendingGate(sessionID string) (workflow.Gate, bool, error) {
	row := s.db.QueryRow(`
		SELECT gate_id, session_id, instance_id, kind, payload, status,
			resolution_action, resolution_feedback, resolution_actor,
			created_at, expires_at, resolved_at
		FROM gates WHERE session_id = ? AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1;
	`, sessionID)
	gate, err := scanGate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Gate{}, false, nil
	}
	if err != nil {
		return workflow.Gate{}, false, err
	}
	return gate, true, nil
}

func scanGate(scan func(dest ...any) error) (workflow.Gate, error) {
	var gate workflow.Gate
	var kind, status, payload string
	var action, feedback, actor sql.NullString
	var expires, resolved sql.NullTime
	err := scan(&gate.GateID, &gate.SessionID, &gate.InstanceID, &kind, &payload, &status,
		&action, &feedback, &actor, &gate.CreatedAt, &expires, &resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Gate{}, err
		}
		return workflow.Gate{}, fmt.Errorf("scan gate: %w", err)
	}
	gate.Kind = workflow.GateKind(kind)
	gate.Status = workflow.GateStatus(status)
	if payload != "" {
		gate.Payload = []byte(payload)
	}
	if action.Valid && action.String != "" {
		gate.Resolution = &workflow.Resolution{
			Action:   workflow.ResolutionAction(action.String),
			Feedback: feedback.String,
			Actor:    actor.String,
		}
	}
	if expires.Valid {
		gate.ExpiresAt = expires.Time
	}
	if resolved.Valid {
		gate.ResolvedAt = resolved.Time
	}
	return gate, nil
}
