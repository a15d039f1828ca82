package harness

import (
	"github.com/roach88/accountsync/internal/org"
)

// Ledger records the ids of every account a test created, per system.
// Each system's ids form a set kept in insertion order: an id is deleted
// once however often it was tracked, and an empty id is never tracked. It belongs to one Suite and is not safe for
// concurrent use: tests within a suite run sequentially.
type Ledger struct {
	ids map[org.System][]string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{ids: make(map[org.System][]string)}
}

// Track appends id to the system's ledger unless it is empty or already
// tracked.
func (l *Ledger) Track(system org.System, id string) {
	if id == "" || l.Contains(system, id) {
		return
	}
	l.ids[system] = append(l.ids[system], id)
}

// Contains reports whether id is tracked for system.
func (l *Ledger) Contains(system org.System, id string) bool {
	for _, tracked := range l.ids[system] {
		if tracked == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the system's tracked ids, never nil.
func (l *Ledger) IDs(system org.System) []string {
	out := make([]string, len(l.ids[system]))
	copy(out, l.ids[system])
	return out
}

// Drain returns the system's tracked ids and clears them.
func (l *Ledger) Drain(system org.System) []string {
	out := l.IDs(system)
	delete(l.ids, system)
	return out
}

// Len returns the number of ids tracked across both systems.
func (l *Ledger) Len() int {
	n := 0
	for _, ids := range l.ids {
		n += len(ids)
	}
	return n
}
