// Package engine implements the veil interception engine.
//
// The engine keeps a registry of intercept rules keyed by dotted path. When a
// rule is applied, the path is resolved against the namespace, the target is
// routed to the function wrapper or the constructor adapter, and the
// replacement is installed in place of the original. Wrappers run the
// before/after/error observer protocol on every call, including through
// deferred results.
//
// ARCHITECTURE:
//
// Registry:
// The path → rule map is the only mutable engine state. It is guarded by a
// mutex that is never held while observers, originals or definition
// primitives run, so observers may call back into the engine. A per-path
// ReentryGuard refuses operations on a path that is mid-apply.
//
// Lifecycle:
// Registered → Resolving → Applied | Failed, and Applied → Restored.
// A Failed rule is retried by ApplyAll or replaced by re-registration.
//
// Anti-tamper guard:
// After ApplyAll in stealth mode, the Guard replaces the namespace's
// definition primitive for a bounded window on the injected clock. The
// engine's own installs use the primitive captured at construction and are
// never counted.
//
// Journal:
// Every decision and every observed call is recorded as an ir.Event stamped
// by the logical Sequence. Recorders must not call back into the engine.
//
// CRITICAL PATTERNS:
//
// Observer isolation:
// Observer errors and panics are recovered, journalled as observer_failure,
// and never reach the caller. Errors from the original reach the caller with
// their identity intact unless OnError supplies a value.
//
// Deferred ordering:
// A deferred result is replaced by a derived future that settles from the
// source's settlement callback. Derived futures therefore settle in the
// same relative order as their sources, and exactly one of After or OnError
// runs per settlement.
package engine
