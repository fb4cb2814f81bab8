package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs hands out "prefix-1", "prefix-2", ... so identifiers in golden
// output stay stable across runs.
//
// Thread-safe.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator with the given prefix.
// An empty prefix defaults to "local".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "local"
	}
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
