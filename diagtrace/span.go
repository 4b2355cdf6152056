// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"github.com/petermattis/goid"
	"go.uber.org/atomic"

	"github.com/diagworks/diag-trace-go/internal/log"
)

// ID is a span identity. Collectors mint IDs and the core treats them as
// opaque; a valid ID is never zero. An ID stays valid from the moment
// NewSpan returns it until the final TryClose balances every CloneSpan.
type ID uint64

// IsZero reports whether the ID is the invalid zero identity.
func (id ID) IsZero() bool { return id == 0 }

// Current describes the span currently executing on a goroutine: a known
// span, known absence of one, or "unknown" when the answer cannot be
// given.
type Current struct {
	id    ID
	meta  *Metadata
	state currentState
}

type currentState uint8

const (
	currentUnknown currentState = iota
	currentNone
	currentKnown
)

// NewCurrent reports a known current span.
func NewCurrent(id ID, meta *Metadata) Current {
	return Current{id: id, meta: meta, state: currentKnown}
}

// CurrentNone reports that no span is current.
func CurrentNone() Current { return Current{state: currentNone} }

// CurrentUnknown reports that the current span cannot be determined.
func CurrentUnknown() Current { return Current{} }

// Span returns the current span's identity and metadata. The second
// return value is false unless a span is positively known to be current.
func (c Current) Span() (ID, *Metadata, bool) {
	return c.id, c.meta, c.state == currentKnown
}

// IsKnown reports whether the answer is definite (a span or none), as
// opposed to unknown.
func (c Current) IsKnown() bool { return c.state != currentUnknown }

// Parent records the parent choice of a span or event. The zero value is
// the contextual choice: whatever the current-span stack reports at
// construction time.
type Parent struct {
	kind parentKind
	id   ID
}

type parentKind uint8

const (
	parentContextual parentKind = iota
	parentContextualRoot
	parentExplicitRoot
	parentExplicit
)

// ContextualParent selects the current span, if any, as parent.
func ContextualParent() Parent { return Parent{} }

// ExplicitRoot selects no parent by user choice.
func ExplicitRoot() Parent { return Parent{kind: parentExplicitRoot} }

// ExplicitParent selects a specific span as parent.
func ExplicitParent(id ID) Parent { return Parent{kind: parentExplicit, id: id} }

// resolve pins a contextual choice against the calling goroutine's
// current-span stack. Resolution happens once, at construction.
func (p Parent) resolve() Parent {
	if p.kind != parentContextual {
		return p
	}
	if g := glsPeek(); g != nil {
		if id, ok := g.stack.current(); ok {
			return Parent{kind: parentContextual, id: id}
		}
	}
	return Parent{kind: parentContextualRoot}
}

// ID returns the parent span identity. The second return value is false
// for root spans of either flavour.
func (p Parent) ID() (ID, bool) {
	if p.kind == parentExplicit || (p.kind == parentContextual && p.id != 0) {
		return p.id, true
	}
	return 0, false
}

// IsRoot reports whether the span or event has no parent.
func (p Parent) IsRoot() bool {
	_, ok := p.ID()
	return !ok
}

// IsExplicit reports whether the parent was chosen by the user rather
// than resolved from context.
func (p Parent) IsExplicit() bool {
	return p.kind == parentExplicit || p.kind == parentExplicitRoot
}

// Attributes is everything a collector needs to allocate a new span: the
// callsite metadata, the initial value set, and the resolved parent
// choice. Attributes are borrowed for the duration of the NewSpan call.
type Attributes struct {
	meta   *Metadata
	values ValueSet
	parent Parent
}

// Metadata returns the span callsite's descriptor.
func (a *Attributes) Metadata() *Metadata { return a.meta }

// Values returns the initial field values.
func (a *Attributes) Values() *ValueSet { return &a.values }

// Parent returns the resolved parent choice.
func (a *Attributes) Parent() Parent { return a.parent }

// Record carries late field values for Collector.Record. Borrowed for the
// duration of the call.
type Record struct {
	values ValueSet
}

// NewRecord assembles a Record for the given metadata.
func NewRecord(m *Metadata, vals ...Value) *Record {
	return &Record{values: newValueSet(m, vals)}
}

// Values returns the recorded field values.
func (r *Record) Values() *ValueSet { return &r.values }

// Event is a point-in-time record delivered to Collector.Event. Borrowed
// for the duration of the call.
type Event struct {
	meta   *Metadata
	values ValueSet
	parent Parent
}

// Metadata returns the event callsite's descriptor.
func (e *Event) Metadata() *Metadata { return e.meta }

// Values returns the event's field values.
func (e *Event) Values() *ValueSet { return &e.values }

// Parent returns the resolved parent choice.
func (e *Event) Parent() Parent { return e.parent }

// Span is the user-facing handle over one span reference. The handle owns
// exactly one reference to the span's identity: Clone takes another via
// the collector's CloneSpan, Close releases this handle's one via
// TryClose. A handle whose callsite was disabled at construction is
// inert; all its methods are cheap no-ops.
type Span struct {
	id       ID
	dispatch *Dispatch
	meta     *Metadata
	closed   atomic.Bool
}

var disabledSpan = &Span{}

// ID returns the span's collector-minted identity, zero when disabled.
func (s *Span) ID() ID {
	if s == nil {
		return 0
	}
	return s.id
}

// Metadata returns the span callsite's descriptor, nil when disabled.
func (s *Span) Metadata() *Metadata {
	if s == nil {
		return nil
	}
	return s.meta
}

// Enabled reports whether the span is backed by a collector.
func (s *Span) Enabled() bool { return s != nil && s.id != 0 }

func (s *Span) live() bool {
	return s.Enabled() && !s.closed.Load()
}

// Enter marks the span as entered on the calling goroutine and returns
// the guard that exits it. Entries nest and may repeat: re-entering a
// span already on the stack is tolerated via duplicate suppression.
// Exits must happen on the goroutine that entered.
func (s *Span) Enter() *EnteredSpan {
	e := &EnteredSpan{span: s}
	if !s.live() {
		return e
	}
	e.gid = goid.Get()
	glsGet().stack.push(s.id)
	s.dispatch.Enter(s.id)
	return e
}

// Record attaches late field values to the span. Values bound to another
// callsite's fields are silently dropped.
func (s *Span) Record(vals ...Value) {
	if !s.live() {
		return
	}
	r := Record{values: newValueSet(s.meta, vals)}
	s.dispatch.Record(s.id, &r)
}

// FollowsFrom records that this span is causally preceded by cause. A
// span may follow from any number of causes.
func (s *Span) FollowsFrom(cause ID) {
	if !s.live() || cause.IsZero() {
		return
	}
	s.dispatch.RecordFollowsFrom(s.id, cause)
}

// Clone returns a second handle to the same span, incrementing the
// collector's reference count. Each handle must be closed exactly once;
// the span's state is released when the final handle closes.
func (s *Span) Clone() *Span {
	if !s.live() {
		return disabledSpan
	}
	return &Span{id: s.dispatch.CloneSpan(s.id), dispatch: s.dispatch, meta: s.meta}
}

// Close releases this handle's reference and reports whether it was the
// final one. Closing a handle twice is a no-op, so the core never hands a
// collector an unbalanced TryClose.
func (s *Span) Close() bool {
	if s == nil || s.id == 0 || !s.closed.CompareAndSwap(false, true) {
		return false
	}
	return s.dispatch.TryClose(s.id)
}

// EnteredSpan is the scope guard returned by Enter. Exit is idempotent
// and restores the goroutine's current-span stack even when run by a
// defer during panic unwinding.
type EnteredSpan struct {
	span *Span
	gid  int64
	done atomic.Bool
}

// Span returns the entered span.
func (e *EnteredSpan) Span() *Span { return e.span }

// Exit pops the span from the current-span stack and notifies the
// collector. A mismatched or cross-goroutine exit is skipped without
// disturbing the stack.
func (e *EnteredSpan) Exit() {
	if e == nil || !e.span.Enabled() || !e.done.CompareAndSwap(false, true) {
		return
	}
	if e.gid != goid.Get() {
		log.Warn("diagtrace: span %q exited on a different goroutine than it was entered on; ignoring", e.span.meta.Name())
		return
	}
	g := glsPeek()
	if g == nil || !g.stack.pop(e.span.id) {
		log.Debug("diagtrace: mismatched exit for span %q; ignoring", e.span.meta.Name())
		return
	}
	glsRelease(g)
	e.span.dispatch.Exit(e.span.id)
}

// CurrentSpan returns the span currently executing on the calling
// goroutine according to the core's current-span stack.
func CurrentSpan() Current {
	if g := glsPeek(); g != nil {
		if id, ok := g.stack.current(); ok {
			return NewCurrent(id, nil)
		}
	}
	return CurrentNone()
}
