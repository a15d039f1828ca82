package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// Assertion type constants.
const (
	AssertSynchronizedType = "synchronized"
	AssertRecordEquals     = "record_equals"
	AssertRecordAbsent     = "record_absent"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Fields   []string     // Differing field names, sorted
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&buf, "  Fields: %s\n", strings.Join(e.Fields, ", "))
	}

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Flow, event.Args)
			}
		}
	}

	return buf.String()
}

// IsAssertionError reports whether err is a harness AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

func formatCriteria(criteria record.Fields) string {
	keys := criteria.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, criteria[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// assertRecordEquals checks that the record matching where in system
// carries every expected value (subset match).
func assertRecordEquals(ctx context.Context, s *Suite, system org.System, where, expect record.Fields) error {
	fields, found, err := s.QueryAccount(ctx, system, where)
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{
			Type:     AssertRecordEquals,
			Expected: fmt.Sprintf("a record matching %s in system %s", formatCriteria(where), system),
			Actual:   "not found",
			Trace:    s.trace(),
		}
	}

	var mismatched []string
	for name, want := range expect {
		if got, ok := fields[name]; !ok || got != want {
			mismatched = append(mismatched, name)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}
	sort.Strings(mismatched)

	actual := record.Fields{}
	for _, name := range mismatched {
		if got, ok := fields[name]; ok {
			actual[name] = got
		}
	}
	return &AssertionError{
		Type:     AssertRecordEquals,
		Expected: formatCriteria(expect),
		Actual:   formatCriteria(actual),
		Fields:   mismatched,
		Trace:    s.trace(),
	}
}

// assertRecordAbsent checks that nothing in system matches where.
func assertRecordAbsent(ctx context.Context, s *Suite, system org.System, where record.Fields) error {
	fields, found, err := s.QueryAccount(ctx, system, where)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return &AssertionError{
		Type:     AssertRecordAbsent,
		Expected: fmt.Sprintf("no record matching %s in system %s", formatCriteria(where), system),
		Actual:   fmt.Sprintf("found %s", fields[record.FieldID]),
		Trace:    s.trace(),
	}
}

// EvaluateAssertions runs every assertion against the suite's template
// and returns the failure messages in order.
func EvaluateAssertions(ctx context.Context, s *Suite, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(ctx, s, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluateAssertion(ctx context.Context, s *Suite, a Assertion) error {
	switch a.Type {
	case AssertSynchronizedType:
		return s.AssertSynchronized(ctx, a.Where, a.Ignore...)
	case AssertRecordEquals, AssertRecordAbsent:
		system, err := org.ParseSystem(a.System)
		if err != nil {
			return err
		}
		if a.Type == AssertRecordEquals {
			return assertRecordEquals(ctx, s, system, a.Where, a.Expect)
		}
		return assertRecordAbsent(ctx, s, system, a.Where)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}
