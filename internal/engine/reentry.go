package engine

import "sync"

// ReentryGuard tracks paths whose apply, restore or registration is in
// progress.
//
// Applying a rule runs code the engine does not own: the definition
// primitive may have been replaced by the host, and resolution reads host
// objects. If that code calls back into the engine for the same path, the
// inner call would interleave with the outer one and could install two
// wrappers for one path. The guard refuses the inner call instead.
//
// CRITICAL DISTINCTION from apply idempotence:
//   - Idempotence: "Is the wrapper already installed?" (checked against the binding)
//   - Re-entry: "Is another operation on this path still running?" (in-memory)
type ReentryGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewReentryGuard creates an empty guard.
func NewReentryGuard() *ReentryGuard {
	return &ReentryGuard{active: make(map[string]bool)}
}

// Enter marks path as busy. It returns false if path is already busy, in
// which case the caller must not proceed and must not call Leave.
//
// Thread-safe: Can be called concurrently.
func (g *ReentryGuard) Enter(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[path] {
		return false
	}
	g.active[path] = true
	return true
}

// Leave clears the busy mark for path.
//
// Thread-safe: Can be called concurrently.
func (g *ReentryGuard) Leave(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.active, path)
}

// Busy reports whether path is currently marked.
func (g *ReentryGuard) Busy(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.active[path]
}

// Size returns the number of busy paths. Used for testing and introspection.
func (g *ReentryGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.active)
}
