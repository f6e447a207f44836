// Package store provides SQLite-backed durable storage for engine journals.
//
// The store implements an append-only log with:
//   - Sessions: one row per engine run, with the rule-set hash it ran
//   - Events: the journal of that run, keyed by (session, seq)
//
// # Critical Patterns
//
// Logical Ordering
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Traces read back identically regardless of wall time
//
// Idempotent Writes
//   - Writes use ON CONFLICT DO NOTHING, so re-recording a session is safe
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events must belong to a known session
//
// The store is an observer of the engine: nothing in it is read back into
// engine state.
package store
