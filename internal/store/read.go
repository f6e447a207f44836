package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/veil/internal/ir"
)

// ReadEvents returns every event of a session in seq order.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, path, detail
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

// ReadEventsByKind returns the events of a session with the given kinds, in
// seq order.
func (s *Store) ReadEventsByKind(ctx context.Context, sessionID string, kinds ...ir.EventKind) ([]ir.Event, error) {
	if len(kinds) == 0 {
		return s.ReadEvents(ctx, sessionID)
	}
	return s.QueryEvents(ctx, EventQuery{Session: sessionID, Filter: KindIn{Kinds: kinds}})
}

// ReadSession returns a single session by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.Session, error) {
	var sess ir.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rule_set_hash, engine_version, started_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.RuleSetHash, &sess.EngineVersion, &sess.StartedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Session{}, err
		}
		return ir.Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]ir.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_set_hash, engine_version, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.Session{}
	for rows.Next() {
		var sess ir.Session
		if err := rows.Scan(&sess.ID, &sess.RuleSetHash, &sess.EngineVersion, &sess.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CountEvents returns the number of events recorded for a session.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func collectEvents(rows *sql.Rows) ([]ir.Event, error) {
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev   ir.Event
			kind string
		)
		if err := rows.Scan(&ev.Session, &ev.Seq, &kind, &ev.Path, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
