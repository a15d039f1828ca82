package org

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/accountsync/internal/record"
)

// AccountKeyPrefix is the id prefix of Account records.
const AccountKeyPrefix = "001"

// ErrNotFound is returned when an account id does not exist.
var ErrNotFound = errors.New("account not found")

// System names one side of the synchronisation.
type System string

const (
	SystemA System = "A"
	SystemB System = "B"
)

// Systems lists both systems in a stable order.
var Systems = []System{SystemA, SystemB}

// ParseSystem accepts "A"/"B" in any case.
func ParseSystem(s string) (System, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return SystemA, nil
	case "B":
		return SystemB, nil
	default:
		return "", fmt.Errorf("unknown system %q: must be A or B", s)
	}
}

// Other returns the opposite system.
func (s System) Other() System {
	if s == SystemA {
		return SystemB
	}
	return SystemA
}

// SaveResult is the per-record outcome of a create call.
type SaveResult struct {
	ID      string   `json:"id,omitempty"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// DeleteResult is the per-id outcome of a delete call.
type DeleteResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// Account is a stored record with its system fields split out.
type Account struct {
	ID               string
	Fields           record.Fields // business fields only
	CreatedDate      time.Time
	LastModifiedDate time.Time
	LastModifiedByID string
}

// Name returns the account's Name field.
func (a Account) Name() string {
	return a.Fields[record.FieldName]
}

// AllFields returns business fields plus system fields.
func (a Account) AllFields() record.Fields {
	out := a.Fields.Clone()
	out[record.FieldID] = a.ID
	out[record.FieldCreatedDate] = record.FormatTime(a.CreatedDate)
	out[record.FieldLastModifiedDate] = record.FormatTime(a.LastModifiedDate)
	out[record.FieldLastModifiedByID] = a.LastModifiedByID
	return out
}

// SystemFields are assigned by the org and ignored on writes.
var SystemFields = []string{
	record.FieldID,
	record.FieldCreatedDate,
	record.FieldLastModifiedDate,
	record.FieldLastModifiedByID,
}

// Clock supplies timestamps for CreatedDate and LastModifiedDate.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MonotonicClock hands out strictly increasing millisecond timestamps.
// Share one between both orgs so that last-modified-wins comparisons
// never see a tie between writes made in the same millisecond.
//
// Thread-safety: MonotonicClock is safe for concurrent use via internal mutex.
type MonotonicClock struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

// NewMonotonicClock returns a clock whose first reading is strictly after
// the given time. A nil base means the wall clock.
func NewMonotonicClock(base Clock, after time.Time) *MonotonicClock {
	if base == nil {
		base = systemClock{}
	}
	return &MonotonicClock{base: base, last: after.UTC().Truncate(time.Millisecond)}
}

// Now returns the base time truncated to milliseconds, bumped past the
// previous reading when needed.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.base.Now().UTC().Truncate(time.Millisecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Millisecond)
	}
	c.last = now
	return now
}

// IDGenerator assigns record ids.
// Implemented by UUIDGenerator (default) and testutil.SequenceIDs (tests).
type IDGenerator interface {
	NewID(keyPrefix string) string
}

// UUIDGenerator derives ids from the random bits of a UUIDv7.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// NewID returns keyPrefix followed by uppercase hex, 18 characters in total.
func (UUIDGenerator) NewID(keyPrefix string) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", ""))
	n := 18 - len(keyPrefix)
	if n < 1 {
		n = 1
	}
	if n > len(hex) {
		n = len(hex)
	}
	return keyPrefix + hex[len(hex)-n:]
}

// Option configures an Org.
type Option func(*Org)

// WithClock sets the clock used for system timestamps.
func WithClock(c Clock) Option {
	return func(o *Org) {
		o.clock = c
	}
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Org) {
		o.ids = g
	}
}

// WithLogger sets the org's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Org) {
		o.logger = l
	}
}

func isSystemField(name string) bool {
	for _, f := range SystemFields {
		if f == name {
			return true
		}
	}
	return false
}

// businessFields renders a record and drops system fields.
func businessFields(r record.Record) record.Fields {
	out := record.Fields{}
	for k, v := range r {
		if isSystemField(k) {
			continue
		}
		out[k] = record.FormatValue(v)
	}
	return out
}
