package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/veil/internal/ir"
)

func TestReadEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if events == nil {
		t.Error("ReadEvents() should return an empty slice, not nil")
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	// Written out of order.
	for _, seq := range []int64{3, 1, 2} {
		if err := s.WriteEvent(ctx, createTestEvent("session-1", seq, ir.EventCall, "echo", "")); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}

	events, err := s.ReadEvents(ctx, "session-1")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestReadEvents_IsolatedBySession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "a", 1)
	createTestSession(t, s, "b", 2)

	if err := s.WriteEvents(ctx, []ir.Event{
		createTestEvent("a", 1, ir.EventCall, "echo", ""),
		createTestEvent("b", 1, ir.EventCall, "fail", ""),
		createTestEvent("b", 2, ir.EventThrow, "fail", "fixture failure"),
	}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	a, err := s.ReadEvents(ctx, "a")
	if err != nil {
		t.Fatalf("ReadEvents(a) failed: %v", err)
	}
	b, err := s.ReadEvents(ctx, "b")
	if err != nil {
		t.Fatalf("ReadEvents(b) failed: %v", err)
	}
	if len(a) != 1 || len(b) != 2 {
		t.Fatalf("expected 1 and 2 events, got %d and %d", len(a), len(b))
	}
	if b[1].Detail != "fixture failure" {
		t.Errorf("b[1].Detail = %q", b[1].Detail)
	}
}

func TestReadEventsByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "session-1", 1)

	if err := s.WriteEvents(ctx, []ir.Event{
		createTestEvent("session-1", 1, ir.EventRegistered, "echo", ""),
		createTestEvent("session-1", 2, ir.EventCall, "echo", ""),
		createTestEvent("session-1", 3, ir.EventReturn, "echo", ""),
		createTestEvent("session-1", 4, ir.EventRedefineBlocked, "echo", ""),
	}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	got, err := s.ReadEventsByKind(ctx, "session-1", ir.EventCall, ir.EventRedefineBlocked)
	if err != nil {
		t.Fatalf("ReadEventsByKind() failed: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 4 {
		t.Errorf("ReadEventsByKind() = %+v", got)
	}

	all, err := s.ReadEventsByKind(ctx, "session-1")
	if err != nil {
		t.Fatalf("ReadEventsByKind() without kinds failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected all 4 events without a kind filter, got %d", len(all))
	}
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadSession(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListSessions_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestSession(t, s, "late", 30)
	createTestSession(t, s, "b", 10)
	createTestSession(t, s, "a", 10)

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	var ids []string
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	want := []string{"a", "b", "late"}
	if len(ids) != len(want) {
		t.Fatalf("ListSessions() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListSessions() ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestListSessions_Empty(t *testing.T) {
	s := createTestStore(t)

	sessions, err := s.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", sessions)
	}
}
