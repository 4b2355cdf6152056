// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

// Kind distinguishes span callsites from event callsites.
type Kind uint8

const (
	// KindSpan marks a callsite that delimits a unit of work.
	KindSpan Kind = iota
	// KindEvent marks a callsite that records a point in time.
	KindEvent
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindSpan {
		return "span"
	}
	return "event"
}

// Metadata is the static descriptor of a single instrumentation site. One
// Metadata value exists per callsite, lives for the whole process, and is
// never mutated after registration, so collectors may retain pointers to
// it and compare them for identity.
type Metadata struct {
	name   string
	target string
	level  Level
	file   string
	line   int
	module string
	kind   Kind
	fields fieldNames

	// callsite backs identity comparisons and the interest cache. It is
	// set once by NewCallsite before the metadata becomes visible.
	callsite *Callsite
}

// Name returns the human-readable name of the callsite.
func (m *Metadata) Name() string { return m.name }

// Target returns the logical module path of the callsite. It defaults to
// the package-qualified name of the function that called NewCallsite but
// may name any subsystem.
func (m *Metadata) Target() string { return m.target }

// Level returns the verbosity level of the callsite.
func (m *Metadata) Level() Level { return m.level }

// File returns the source file of the callsite, if recorded.
func (m *Metadata) File() (string, bool) { return m.file, m.file != "" }

// Line returns the source line of the callsite, if recorded.
func (m *Metadata) Line() (int, bool) { return m.line, m.line > 0 }

// Module returns the physical module path of the callsite, if recorded.
func (m *Metadata) Module() (string, bool) { return m.module, m.module != "" }

// Kind reports whether the callsite produces spans or events.
func (m *Metadata) Kind() Kind { return m.kind }

// Callsite returns the callsite owning this metadata.
func (m *Metadata) Callsite() *Callsite { return m.callsite }

// Same reports whether two metadata values describe the same callsite.
// Identity is pointer equality on the owning callsite record.
func (m *Metadata) Same(other *Metadata) bool {
	return m != nil && other != nil && m.callsite == other.callsite
}

// NumFields returns the size of the callsite's field set.
func (m *Metadata) NumFields() int { return len(m.fields) }

// Field returns the field at index i. The second return value is false
// when i is out of range.
func (m *Metadata) Field(i int) (Field, bool) {
	if i < 0 || i >= len(m.fields) {
		return Field{}, false
	}
	return Field{i: i, meta: m}, true
}

// FieldByName resolves a field name to a Field. Lookup is linear over the
// (small) field set; callers on hot paths should resolve once and reuse
// the Field.
func (m *Metadata) FieldByName(name string) (Field, bool) {
	for i, n := range m.fields {
		if n == name {
			return Field{i: i, meta: m}, true
		}
	}
	return Field{}, false
}

// EachField calls fn for every field in declaration order, stopping early
// when fn returns false.
func (m *Metadata) EachField(fn func(Field) bool) {
	for i := range m.fields {
		if !fn(Field{i: i, meta: m}) {
			return
		}
	}
}

type fieldNames []string

// Field addresses one entry of a callsite's ordered field set. A Field is
// only meaningful together with the Metadata it was resolved against: two
// Fields are equal iff their callsites are identical and their indices
// match, which the language's == operator gives us directly.
type Field struct {
	i    int
	meta *Metadata
}

// Name returns the name of the field.
func (f Field) Name() string {
	if f.meta == nil {
		return ""
	}
	return f.meta.fields[f.i]
}

// Index returns the position of the field in its callsite's field set.
func (f Field) Index() int { return f.i }

// Metadata returns the metadata the field belongs to, or nil for the zero
// Field.
func (f Field) Metadata() *Metadata { return f.meta }

// String implements fmt.Stringer.
func (f Field) String() string { return f.Name() }
