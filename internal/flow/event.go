package flow

import (
	"sync"

	"github.com/google/uuid"
)

// Event is the message a flow processes and returns.
//
// Payload is flow specific: create flows take []record.Record and return
// []org.SaveResult, query flows take and return record.Fields, delete
// flows take []string and return []org.DeleteResult. Variables carry flow
// variables such as "sourceSystem".
type Event struct {
	ID        string
	Payload   any
	Variables map[string]string
}

// Variable returns a flow variable, or "" when unset.
func (e *Event) Variable(name string) string {
	if e == nil || e.Variables == nil {
		return ""
	}
	return e.Variables[name]
}

// Reply returns a new event carrying payload, keeping the event id and
// variables so a caller can correlate request and response.
func (e *Event) Reply(payload any) *Event {
	vars := make(map[string]string, len(e.Variables))
	for k, v := range e.Variables {
		vars[k] = v
	}
	return &Event{ID: e.ID, Payload: payload, Variables: vars}
}

// TokenGenerator assigns event ids.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so event ids sort
// by creation time in logs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined event ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
//	gen := NewFixedGenerator("event-1", "event-2")
//	gen.Generate() // "event-1"
//	gen.Generate() // "event-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed: a test issued more invocations
// than it declared.
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
