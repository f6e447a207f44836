package store

import (
	"context"
	"testing"

	"github.com/roach88/veil/internal/ir"
)

func TestWriteSession_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestSession(t, s, "session-1", 1700000000)

	got, err := s.ReadSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if got != want {
		t.Errorf("ReadSession() = %+v, want %+v", got, want)
	}
}

func TestWriteSession_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestSession(t, s, "session-1", 1)
	// Second write with different fields is ignored.
	if err := s.WriteSession(ctx, ir.Session{ID: "session-1", RuleSetHash: "other", EngineVersion: "9", StartedAt: 2}); err != nil {
		t.Fatalf("second WriteSession() failed: %v", err)
	}

	got, err := s.ReadSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if got.RuleSetHash != "test-hash" || got.StartedAt != 1 {
		t.Errorf("first write should win, got %+v", got)
	}
}

func TestWriteEvent_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	ev := createTestEvent("session-1", 1, ir.EventCall, "Math.random", "[]")
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	events, err := s.ReadEvents(ctx, "session-1")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0] != ev {
		t.Errorf("ReadEvents()[0] = %+v, want %+v", events[0], ev)
	}
}

func TestWriteEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	ev := createTestEvent("session-1", 1, ir.EventCall, "echo", `["a"]`)
	for i := 0; i < 3; i++ {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() iteration %d failed: %v", i, err)
		}
	}

	n, err := s.CountEvents(ctx, "session-1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 event after duplicate writes, got %d", n)
	}
}

func TestWriteEvent_RequiresSession(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), createTestEvent("", 1, ir.EventCall, "echo", ""))
	if err == nil {
		t.Error("expected error for event without session")
	}
}

func TestWriteEvent_ForeignKeyViolation(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), createTestEvent("missing", 1, ir.EventCall, "echo", ""))
	if err == nil {
		t.Error("expected foreign key error for unknown session")
	}
}

func TestWriteEvents_Batch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	events := []ir.Event{
		createTestEvent("session-1", 1, ir.EventRegistered, "echo", "kind=auto method=echo"),
		createTestEvent("session-1", 2, ir.EventApplied, "echo", "kind=function"),
		createTestEvent("session-1", 3, ir.EventGuardOn, "", "window=10s allowance=2"),
	}
	if err := s.WriteEvents(ctx, events); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	n, err := s.CountEvents(ctx, "session-1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}
}

func TestWriteEvents_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	events := []ir.Event{
		createTestEvent("session-1", 1, ir.EventCall, "echo", ""),
		createTestEvent("", 2, ir.EventReturn, "echo", ""),
	}
	if err := s.WriteEvents(ctx, events); err == nil {
		t.Fatal("expected error for event without session")
	}

	n, err := s.CountEvents(ctx, "session-1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback to leave 0 events, got %d", n)
	}
}
