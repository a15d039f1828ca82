package record

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBuilder_WithIsCopyOnWrite(t *testing.T) {
	account := AnAccount().
		With("Name", "X-Account").
		With("Phone", "123456789")

	justCreated := account.With("Description", "Old description")
	updated := account.With("Description", "Some nice description")

	base := account.Build()
	_, hasDescription := base["Description"]
	assert.False(t, hasDescription, "base builder must not see variant fields")

	assert.Equal(t, "Old description", justCreated.Build()["Description"])
	assert.Equal(t, "Some nice description", updated.Build()["Description"])
	assert.Equal(t, "X-Account", justCreated.Build()["Name"])
	assert.Equal(t, "X-Account", updated.Build()["Name"])
	assert.Equal(t, "Account", updated.Object())
}

func TestBuilder_BuildReturnsSnapshot(t *testing.T) {
	b := AnAccount().With("Name", "snap")
	snap := b.Build()
	snap["Name"] = "mutated"

	v, ok := b.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "snap", v)
}

func TestBuilder_From(t *testing.T) {
	base := Record{"Name": "seed"}
	b := From("Account", base)
	base["Name"] = "changed"

	assert.Equal(t, "seed", b.Build()["Name"])
}

func TestProperty_WithValuesSurviveBuild(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		b := AnAccount()
		want := map[string]any{}
		for i := 0; i < n; i++ {
			field := rapid.StringMatching(`[A-Z][a-zA-Z]{0,10}`).Draw(rt, fmt.Sprintf("field_%d", i))
			var value any
			if rapid.Bool().Draw(rt, fmt.Sprintf("isInt_%d", i)) {
				value = rapid.IntRange(-1000, 1000).Draw(rt, fmt.Sprintf("int_%d", i))
			} else {
				value = rapid.StringMatching(`[a-z0-9 ]{0,20}`).Draw(rt, fmt.Sprintf("str_%d", i))
			}
			b = b.With(field, value)
			want[field] = value
		}

		got := b.Build()
		if len(got) != len(want) {
			rt.Fatalf("built %d fields, want %d", len(got), len(want))
		}
		for k, v := range want {
			if got[k] != v {
				rt.Fatalf("field %s = %v, want %v", k, got[k], v)
			}
		}
	})
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2014, 6, 2, 13, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "Account bbbb", "Account bbbb"},
		{"int", 5000, "5000"},
		{"int64", int64(42), "42"},
		{"float", 10000.0, "10000"},
		{"fraction", 12.5, "12.5"},
		{"decimal", decimal.RequireFromString("10000.00"), "10000"},
		{"bool", false, "false"},
		{"time", ts, "2014-06-02T13:00:00.000Z"},
		{"nfc", "Cafe\u0301", "Caf\u00e9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatValue(tc.in))
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2014-05-05T11:47:49.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 5, 5, 11, 47, 49, 0, time.UTC), got)

	got, err = ParseTime("2014-05-05T11:47:49Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 5, 5, 11, 47, 49, 0, time.UTC), got)

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestCanonicalDecimal(t *testing.T) {
	assert.Equal(t, "10000", CanonicalDecimal("10000.0"))
	assert.Equal(t, "0.5", CanonicalDecimal("0.50"))
	assert.Equal(t, "High", CanonicalDecimal("High"))
}

func TestRecordFields(t *testing.T) {
	r := Record{"Name": "n", "NumberOfEmployees": 5000}
	f := r.Fields()
	assert.Equal(t, Fields{"Name": "n", "NumberOfEmployees": "5000"}, f)
	assert.Equal(t, []string{"Name", "NumberOfEmployees"}, f.Keys())
	assert.Equal(t, Record{"Name": "n", "NumberOfEmployees": "5000"}, f.Record())
}
