package record

import "sort"

// Well-known Account field names.
const (
	FieldID               = "Id"
	FieldName             = "Name"
	FieldCreatedDate      = "CreatedDate"
	FieldLastModifiedDate = "LastModifiedDate"
	FieldLastModifiedByID = "LastModifiedById"
)

// Record is a business object as submitted by a caller.
// Values may be strings, numbers, booleans, times or decimals.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields renders every value to its canonical string form.
func (r Record) Fields() Fields {
	out := make(Fields, len(r))
	for k, v := range r {
		out[k] = FormatValue(v)
	}
	return out
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields is a business object as returned by an org: field name to
// canonical string value.
type Fields map[string]string

// Clone returns a copy of the field map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Without returns a copy with the named fields removed.
func (f Fields) Without(names ...string) Fields {
	out := f.Clone()
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Record converts the field map back into a submittable record.
func (f Fields) Record() Record {
	out := make(Record, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder accumulates field values for a record.
//
// Builders are immutable: With returns a new builder and leaves the
// receiver untouched, so a partially built record can serve as a template.
type Builder struct {
	object string
	fields Record
}

// AnAccount starts an empty Account builder.
func AnAccount() *Builder {
	return &Builder{object: "Account", fields: Record{}}
}

// From starts a builder seeded with a copy of the given record.
func From(object string, base Record) *Builder {
	return &Builder{object: object, fields: base.Clone()}
}

// Object returns the business object type this builder produces.
func (b *Builder) Object() string {
	return b.object
}

// With returns a new builder with field set to value.
func (b *Builder) With(field string, value any) *Builder {
	next := b.fields.Clone()
	next[field] = value
	return &Builder{object: b.object, fields: next}
}

// Get returns the current value of a field.
func (b *Builder) Get(field string) (any, bool) {
	v, ok := b.fields[field]
	return v, ok
}

// Build returns a snapshot of the accumulated fields.
// Later calls to With on any builder do not affect the snapshot.
func (b *Builder) Build() Record {
	return b.fields.Clone()
}
