package record

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IdentifierFields are assigned by each system independently and never
// match across systems, so Diff drops them before comparing.
var IdentifierFields = []string{FieldID}

// ValuePair holds the two values of a field that differs.
type ValuePair struct {
	Left  string
	Right string
}

// Difference is the field-level difference between two records.
type Difference struct {
	OnlyOnLeft  Fields
	OnlyOnRight Fields
	Differing   map[string]ValuePair
}

// Diff compares two field maps after removing IdentifierFields.
func Diff(left, right Fields) Difference {
	return DiffIgnoring(left, right, IdentifierFields...)
}

// DiffIgnoring compares two field maps after removing the named fields.
// A field present on only one side counts as a difference.
func DiffIgnoring(left, right Fields, ignore ...string) Difference {
	l := left.Without(ignore...)
	r := right.Without(ignore...)

	d := Difference{
		OnlyOnLeft:  Fields{},
		OnlyOnRight: Fields{},
		Differing:   map[string]ValuePair{},
	}
	for k, lv := range l {
		rv, ok := r[k]
		if !ok {
			d.OnlyOnLeft[k] = lv
			continue
		}
		if norm.NFC.String(lv) != norm.NFC.String(rv) {
			d.Differing[k] = ValuePair{Left: lv, Right: rv}
		}
	}
	for k, rv := range r {
		if _, ok := l[k]; !ok {
			d.OnlyOnRight[k] = rv
		}
	}
	return d
}

// AreEqual reports whether the two records had no differences.
func (d Difference) AreEqual() bool {
	return len(d.OnlyOnLeft) == 0 && len(d.OnlyOnRight) == 0 && len(d.Differing) == 0
}

// Fields lists every differing field name, sorted.
func (d Difference) Fields() []string {
	names := make([]string, 0, len(d.OnlyOnLeft)+len(d.OnlyOnRight)+len(d.Differing))
	for k := range d.OnlyOnLeft {
		names = append(names, k)
	}
	for k := range d.OnlyOnRight {
		names = append(names, k)
	}
	for k := range d.Differing {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders the difference for assertion messages.
func (d Difference) String() string {
	if d.AreEqual() {
		return "equal"
	}
	var parts []string
	if len(d.OnlyOnLeft) > 0 {
		parts = append(parts, "only on left="+formatFields(d.OnlyOnLeft))
	}
	if len(d.OnlyOnRight) > 0 {
		parts = append(parts, "only on right="+formatFields(d.OnlyOnRight))
	}
	if len(d.Differing) > 0 {
		keys := make([]string, 0, len(d.Differing))
		for k := range d.Differing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]string, len(keys))
		for i, k := range keys {
			p := d.Differing[k]
			entries[i] = fmt.Sprintf("%s=(%q, %q)", k, p.Left, p.Right)
		}
		parts = append(parts, "value differences={"+strings.Join(entries, ", ")+"}")
	}
	return "not equal: " + strings.Join(parts, ": ")
}

func formatFields(f Fields) string {
	keys := f.Keys()
	entries := make([]string, len(keys))
	for i, k := range keys {
		entries[i] = fmt.Sprintf("%s=%q", k, f[k])
	}
	return "{" + strings.Join(entries, ", ") + "}"
}
