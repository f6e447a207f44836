package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/veil/internal/namespace"
)

// RedefinitionCounter counts redefinition attempts per (object, property)
// and decides which attempts the anti-tamper guard refuses.
//
// The first `allowance` attempts on a property are refused; later attempts
// pass through. Counters only reset when the guard is torn down.
//
// CRITICAL DISTINCTION from the re-entry guard:
//   - Re-entry: protects the engine from its own interleaving (per path)
//   - Redefinition counting: bounds how long external code is resisted (per property)
type RedefinitionCounter struct {
	mu        sync.Mutex
	allowance int
	counts    map[counterKey]int
}

type counterKey struct {
	owner *namespace.Object
	name  string
}

// NewRedefinitionCounter creates a counter that refuses the first allowance
// attempts per property.
func NewRedefinitionCounter(allowance int) *RedefinitionCounter {
	return &RedefinitionCounter{
		allowance: allowance,
		counts:    make(map[counterKey]int),
	}
}

// Check records an attempt and returns a RedefinitionBlockedError while the
// property is still within its allowance.
func (c *RedefinitionCounter) Check(owner *namespace.Object, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := counterKey{owner: owner, name: name}
	c.counts[key]++
	if n := c.counts[key]; n <= c.allowance {
		return &RedefinitionBlockedError{Name: name, Attempt: n, Allowance: c.allowance}
	}
	return nil
}

// Count returns the number of attempts seen for a property.
func (c *RedefinitionCounter) Count(owner *namespace.Object, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[counterKey{owner: owner, name: name}]
}

// Reset drops every counter.
func (c *RedefinitionCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[counterKey]int)
}

// Allowance returns the configured allowance.
func (c *RedefinitionCounter) Allowance() int {
	return c.allowance
}

// RedefinitionBlockedError reports a refused redefinition. It never reaches
// the code attempting the redefinition, which sees a silent no-op.
type RedefinitionBlockedError struct {
	Name      string
	Attempt   int
	Allowance int
}

// Error implements the error interface.
func (e *RedefinitionBlockedError) Error() string {
	return fmt.Sprintf("redefinition of %q blocked (attempt %d of %d refused)",
		e.Name, e.Attempt, e.Allowance)
}
