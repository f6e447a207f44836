package ir

// EventKind classifies journal events.
type EventKind string

// Engine lifecycle events.
const (
	EventRegistered   EventKind = "registered"
	EventUnregistered EventKind = "unregistered"
	EventApplied      EventKind = "applied"
	EventApplyFailed  EventKind = "apply_failed"
	EventRestored     EventKind = "restored"
	EventActivated    EventKind = "activated"
	EventDeactivated  EventKind = "deactivated"
)

// Call events emitted by installed wrappers.
const (
	EventCall            EventKind = "call"
	EventConstruct       EventKind = "construct"
	EventReturn          EventKind = "return"
	EventThrow           EventKind = "throw"
	EventRecovered       EventKind = "recovered"
	EventDeferred        EventKind = "deferred"
	EventSettled         EventKind = "settled"
	EventRejected        EventKind = "rejected"
	EventObserverFailure EventKind = "observer_failure"
)

// Anti-tamper events.
const (
	EventGuardOn         EventKind = "guard_on"
	EventGuardOff        EventKind = "guard_off"
	EventRedefineBlocked EventKind = "redefine_blocked"
	EventRedefineAllowed EventKind = "redefine_allowed"
)

// Event is one journal record.
type Event struct {
	Seq     int64     `json:"seq"`
	Session string    `json:"session,omitempty"`
	Kind    EventKind `json:"kind"`
	Path    string    `json:"path"`
	Detail  string    `json:"detail,omitempty"`
}

// Session identifies one engine run recorded in a journal.
type Session struct {
	ID            string `json:"id"`
	RuleSetHash   string `json:"rule_set_hash"`
	EngineVersion string `json:"engine_version"`
	StartedAt     int64  `json:"started_at"`
}

// Canonical returns the event as a map for canonical serialization.
func (e Event) Canonical() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
		"path": e.Path,
	}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	return m
}
