package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator generates rule and session identifiers.
// Implemented by UUIDv7Generator (production) and the fixed generators
// used by tests and the harness.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by creation time, which keeps journals readable.
//
// UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers in order.
//
// FixedGenerator is safe for concurrent use.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
//	gen := NewFixedGenerator("rule-1", "rule-2")
//	gen.Generate() // "rule-1"
//	gen.Generate() // "rule-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics when all tokens have been consumed, which flags a test that
// registered more rules than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// CounterGenerator returns prefix-1, prefix-2, ... without ever running
// out. Used for deterministic traces.
type CounterGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCounterGenerator creates a CounterGenerator. An empty prefix defaults
// to "rule".
func NewCounterGenerator(prefix string) *CounterGenerator {
	if prefix == "" {
		prefix = "rule"
	}
	return &CounterGenerator{prefix: prefix}
}

// Generate returns the next identifier.
func (g *CounterGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
