package store

import (
	"context"
	"fmt"

	"github.com/roach88/veil/internal/ir"
)

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess ir.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, rule_set_hash, engine_version, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.RuleSetHash,
		sess.EngineVersion,
		sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEvent appends one event to its session.
// Duplicate (session, seq) pairs are silently ignored.
//
// Note: the session referenced by ev.Session must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	if ev.Session == "" {
		return fmt.Errorf("write event %d: session is required", ev.Seq)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, kind, path, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Session,
		ev.Seq,
		string(ev.Kind),
		ev.Path,
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", ev.Seq, err)
	}
	return nil
}

// WriteEvents appends events in one transaction.
func (s *Store) WriteEvents(ctx context.Context, events []ir.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (session_id, seq, kind, path, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if ev.Session == "" {
			return fmt.Errorf("write event %d: session is required", ev.Seq)
		}
		if _, err := stmt.ExecContext(ctx, ev.Session, ev.Seq, string(ev.Kind), ev.Path, ev.Detail); err != nil {
			return fmt.Errorf("write event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}
