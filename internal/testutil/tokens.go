package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates predictable pass tokens: "<prefix>-0001",
// "<prefix>-0002", ...
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with a fresh SequentialTokens produces byte-identical
// traces.
//
// Thread-safety: SequentialTokens is safe for concurrent use via internal mutex.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator. An empty prefix becomes "pass".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.PassTokenGenerator interface.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialTokens) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
