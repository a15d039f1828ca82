package record

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDiff_IgnoresIdentifiers(t *testing.T) {
	a := Fields{"Id": "001A", "Name": "X", "Phone": "123"}
	b := Fields{"Id": "001B", "Name": "X", "Phone": "123"}

	d := Diff(a, b)
	assert.True(t, d.AreEqual())
	assert.Empty(t, d.Fields())
	assert.Equal(t, "equal", d.String())
}

func TestDiff_DifferingValue(t *testing.T) {
	a := Fields{"Id": "001A", "Name": "X", "Description": "Old description"}
	b := Fields{"Id": "001B", "Name": "X", "Description": "Some nice description"}

	d := Diff(a, b)
	assert.False(t, d.AreEqual())
	assert.Equal(t, []string{"Description"}, d.Fields())
	assert.Equal(t, ValuePair{Left: "Old description", Right: "Some nice description"}, d.Differing["Description"])
	assert.Contains(t, d.String(), `Description=("Old description", "Some nice description")`)
}

func TestDiff_MissingFieldCountsAsDifference(t *testing.T) {
	a := Fields{"Name": "X", "Fax": "1"}
	b := Fields{"Name": "X", "Site": "s"}

	d := Diff(a, b)
	assert.False(t, d.AreEqual())
	assert.Equal(t, Fields{"Fax": "1"}, d.OnlyOnLeft)
	assert.Equal(t, Fields{"Site": "s"}, d.OnlyOnRight)
	assert.Equal(t, []string{"Fax", "Site"}, d.Fields())
	assert.Contains(t, d.String(), "only on left=")
	assert.Contains(t, d.String(), "only on right=")
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	a := Fields{"Id": "1", "Name": "X"}
	b := Fields{"Id": "2", "Name": "X"}
	Diff(a, b)
	assert.Equal(t, "1", a["Id"])
	assert.Equal(t, "2", b["Id"])
}

func TestDiffIgnoring_CustomFields(t *testing.T) {
	a := Fields{"Id": "1", "LastModifiedDate": "x", "Name": "X"}
	b := Fields{"Id": "2", "LastModifiedDate": "y", "Name": "X"}

	assert.False(t, Diff(a, b).AreEqual())
	assert.True(t, DiffIgnoring(a, b, "Id", "LastModifiedDate").AreEqual())
}

func TestDiff_NormalizesUnicode(t *testing.T) {
	a := Fields{"Name": "Caf\u00e9"}
	b := Fields{"Name": "Cafe\u0301"}
	assert.True(t, Diff(a, b).AreEqual())
}

func genFields(rt *rapid.T, label string) Fields {
	n := rapid.IntRange(0, 10).Draw(rt, label+"_n")
	f := Fields{}
	for i := 0; i < n; i++ {
		k := rapid.StringMatching(`[A-W][a-z]{1,8}`).Draw(rt, fmt.Sprintf("%s_key_%d", label, i))
		if k == FieldID {
			continue
		}
		f[k] = rapid.StringMatching(`[a-z0-9]{0,12}`).Draw(rt, fmt.Sprintf("%s_val_%d", label, i))
	}
	return f
}

func TestProperty_EqualExceptIdentifiers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := genFields(rt, "base")
		left := base.Clone()
		right := base.Clone()
		left[FieldID] = rapid.StringMatching(`001[A-Z0-9]{15}`).Draw(rt, "leftID")
		right[FieldID] = rapid.StringMatching(`001[A-Z0-9]{15}`).Draw(rt, "rightID")

		if d := Diff(left, right); !d.AreEqual() {
			rt.Fatalf("expected equal, got %s", d)
		}
	})
}

func TestProperty_OneDifferingFieldIsReported(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := genFields(rt, "base")
		field := rapid.StringMatching(`X[a-z]{1,8}`).Draw(rt, "field")
		left := base.Clone()
		right := base.Clone()
		left[field] = "left"

		switch rapid.IntRange(0, 1).Draw(rt, "mode") {
		case 0:
			right[field] = "right"
		case 1:
			// absent on the right
		}

		got := Diff(left, right).Fields()
		if len(got) != 1 || got[0] != field {
			rt.Fatalf("Fields() = %v, want [%s]", got, field)
		}
	})
}
