package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable record identifiers.
//
// Identifiers keep the 18-character shape of real ones: the key prefix,
// a system tag, then a zero padded counter.
//
//	ids := NewSequenceIDs("A")
//	ids.NewID("001") // "001A00000000000001"
//	ids.NewID("001") // "001A00000000000002"
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu  sync.Mutex
	tag string
	n   int64
}

// NewSequenceIDs creates a generator whose ids carry the given tag.
func NewSequenceIDs(tag string) *SequenceIDs {
	return &SequenceIDs{tag: tag}
}

// NewID returns the next identifier for the key prefix.
func (g *SequenceIDs) NewID(keyPrefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	width := 18 - len(keyPrefix) - len(g.tag)
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s%s%0*d", keyPrefix, g.tag, width, g.n)
}

// Reset restarts the counter.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
