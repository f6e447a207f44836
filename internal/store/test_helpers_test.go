package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/veil/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string, startedAt int64) ir.Session {
	t.Helper()
	sess := ir.Session{
		ID:            id,
		RuleSetHash:   "test-hash",
		EngineVersion: "0.1.0",
		StartedAt:     startedAt,
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestEvent builds an event for session.
func createTestEvent(session string, seq int64, kind ir.EventKind, path, detail string) ir.Event {
	return ir.Event{Seq: seq, Session: session, Kind: kind, Path: path, Detail: detail}
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
