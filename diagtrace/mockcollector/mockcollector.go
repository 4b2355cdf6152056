// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package mockcollector provides a collector that records everything it
// is handed. It is the package used throughout this repository's own
// tests and is exported so that applications can assert on the spans and
// events their instrumentation produces.
package mockcollector

import (
	"sync"

	"github.com/petermattis/goid"

	"github.com/diagworks/diag-trace-go/diagtrace"
)

// Option configures a Collector.
type Option func(*Collector)

// WithInterest overrides the interest the collector declares per
// callsite. The default is InterestAlways for everything.
func WithInterest(fn func(*diagtrace.Metadata) diagtrace.Interest) Option {
	return func(c *Collector) { c.interestFn = fn }
}

// WithEnabled overrides the per-operation enablement answer. The default
// enables everything.
func WithEnabled(fn func(*diagtrace.Metadata) bool) Option {
	return func(c *Collector) { c.enabledFn = fn }
}

// WithMaxLevelHint makes the collector advertise a level ceiling.
func WithMaxLevelHint(l diagtrace.Level) Option {
	return func(c *Collector) { c.hint = l; c.hasHint = true }
}

// Collector is a recording diagtrace.Collector. All captured state is
// guarded by one mutex; accessors return copies and are safe to call
// while instrumentation is running on other goroutines.
type Collector struct {
	interestFn func(*diagtrace.Metadata) diagtrace.Interest
	enabledFn  func(*diagtrace.Metadata) bool
	hint       diagtrace.Level
	hasHint    bool

	mu            sync.Mutex
	nextID        uint64
	registered    []*diagtrace.Metadata
	registerCalls int
	enabledCalls  int
	spans         map[diagtrace.ID]*Span
	started       []diagtrace.ID
	events        []*Event
	entered       []diagtrace.ID
	exited        []diagtrace.ID
	stacks        map[int64][]diagtrace.ID
}

var _ diagtrace.Collector = (*Collector)(nil)

// New returns an empty recording collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		spans:  make(map[diagtrace.ID]*Span),
		stacks: make(map[int64][]diagtrace.ID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Span is one captured span.
type Span struct {
	ID          diagtrace.ID
	Name        string
	Target      string
	Level       diagtrace.Level
	Parent      diagtrace.ID
	Root        bool
	Fields      []Field
	FollowsFrom []diagtrace.ID

	// Refs is the live reference count; Closed flips when TryClose
	// releases the final reference.
	Refs   int
	Closed bool
}

// Event is one captured event.
type Event struct {
	Name   string
	Target string
	Level  diagtrace.Level
	Parent diagtrace.ID
	Root   bool
	Fields []Field
}

// Field is one decoded field value.
type Field struct {
	Name  string
	Value interface{}
}

// fieldVisitor decodes a value set into []Field, keeping every primitive
// as its own type.
type fieldVisitor struct {
	fields []Field
}

func (v *fieldVisitor) VisitDebug(f diagtrace.Field, val interface{}) {
	v.fields = append(v.fields, Field{Name: f.Name(), Value: val})
}
func (v *fieldVisitor) VisitInt64(f diagtrace.Field, val int64)     { v.VisitDebug(f, val) }
func (v *fieldVisitor) VisitUint64(f diagtrace.Field, val uint64)   { v.VisitDebug(f, val) }
func (v *fieldVisitor) VisitBool(f diagtrace.Field, val bool)       { v.VisitDebug(f, val) }
func (v *fieldVisitor) VisitFloat64(f diagtrace.Field, val float64) { v.VisitDebug(f, val) }
func (v *fieldVisitor) VisitString(f diagtrace.Field, val string)   { v.VisitDebug(f, val) }
func (v *fieldVisitor) VisitError(f diagtrace.Field, val error)     { v.VisitDebug(f, val) }

func decodeFields(vs *diagtrace.ValueSet) []Field {
	var v fieldVisitor
	vs.Record(&v)
	return v.fields
}

// RegisterCallsite implements diagtrace.Collector.
func (c *Collector) RegisterCallsite(m *diagtrace.Metadata) diagtrace.Interest {
	c.mu.Lock()
	c.registerCalls++
	c.registered = append(c.registered, m)
	c.mu.Unlock()
	if c.interestFn != nil {
		return c.interestFn(m)
	}
	return diagtrace.InterestAlways
}

// Enabled implements diagtrace.Collector.
func (c *Collector) Enabled(m *diagtrace.Metadata) bool {
	c.mu.Lock()
	c.enabledCalls++
	c.mu.Unlock()
	if c.enabledFn != nil {
		return c.enabledFn(m)
	}
	return true
}

// NewSpan implements diagtrace.Collector.
func (c *Collector) NewSpan(a *diagtrace.Attributes) diagtrace.ID {
	fields := decodeFields(a.Values())
	m := a.Metadata()
	parent, hasParent := a.Parent().ID()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := diagtrace.ID(c.nextID)
	c.spans[id] = &Span{
		ID:     id,
		Name:   m.Name(),
		Target: m.Target(),
		Level:  m.Level(),
		Parent: parent,
		Root:   !hasParent,
		Fields: fields,
		Refs:   1,
	}
	c.started = append(c.started, id)
	return id
}

// Record implements diagtrace.Collector.
func (c *Collector) Record(id diagtrace.ID, r *diagtrace.Record) {
	fields := decodeFields(r.Values())
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp, ok := c.spans[id]; ok {
		sp.Fields = append(sp.Fields, fields...)
	}
}

// RecordFollowsFrom implements diagtrace.Collector.
func (c *Collector) RecordFollowsFrom(id, follows diagtrace.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp, ok := c.spans[id]; ok {
		sp.FollowsFrom = append(sp.FollowsFrom, follows)
	}
}

// Event implements diagtrace.Collector.
func (c *Collector) Event(e *diagtrace.Event) {
	fields := decodeFields(e.Values())
	m := e.Metadata()
	parent, hasParent := e.Parent().ID()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, &Event{
		Name:   m.Name(),
		Target: m.Target(),
		Level:  m.Level(),
		Parent: parent,
		Root:   !hasParent,
		Fields: fields,
	})
}

// Enter implements diagtrace.Collector.
func (c *Collector) Enter(id diagtrace.ID) {
	gid := goid.Get()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entered = append(c.entered, id)
	c.stacks[gid] = append(c.stacks[gid], id)
}

// Exit implements diagtrace.Collector.
func (c *Collector) Exit(id diagtrace.ID) {
	gid := goid.Get()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exited = append(c.exited, id)
	stack := c.stacks[gid]
	if n := len(stack); n > 0 && stack[n-1] == id {
		if n == 1 {
			delete(c.stacks, gid)
		} else {
			c.stacks[gid] = stack[:n-1]
		}
	}
}

// CloneSpan implements diagtrace.Collector.
func (c *Collector) CloneSpan(id diagtrace.ID) diagtrace.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp, ok := c.spans[id]; ok && !sp.Closed {
		sp.Refs++
	}
	return id
}

// TryClose implements diagtrace.Collector.
func (c *Collector) TryClose(id diagtrace.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, ok := c.spans[id]
	if !ok || sp.Closed {
		return false
	}
	sp.Refs--
	if sp.Refs > 0 {
		return false
	}
	sp.Closed = true
	return true
}

// CurrentSpan implements diagtrace.Collector from the enters and exits
// the collector has observed on the calling goroutine.
func (c *Collector) CurrentSpan() diagtrace.Current {
	gid := goid.Get()
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := c.stacks[gid]
	if len(stack) == 0 {
		return diagtrace.CurrentNone()
	}
	return diagtrace.NewCurrent(stack[len(stack)-1], nil)
}

// MaxLevelHint implements diagtrace.MaxLevelHinter when configured with
// WithMaxLevelHint.
func (c *Collector) MaxLevelHint() (diagtrace.Level, bool) {
	return c.hint, c.hasHint
}

// RegisterCalls returns how many times RegisterCallsite ran.
func (c *Collector) RegisterCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerCalls
}

// EnabledCalls returns how many times Enabled ran.
func (c *Collector) EnabledCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabledCalls
}

// Registered returns every metadata RegisterCallsite saw, in order.
func (c *Collector) Registered() []*diagtrace.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*diagtrace.Metadata, len(c.registered))
	copy(out, c.registered)
	return out
}

// Events returns the captured events in emission order.
func (c *Collector) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// Span returns one captured span by id.
func (c *Collector) Span(id diagtrace.ID) (*Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, ok := c.spans[id]
	if !ok {
		return nil, false
	}
	cp := *sp
	return &cp, true
}

// StartedSpans returns every captured span in start order, open or
// closed.
func (c *Collector) StartedSpans() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Span, 0, len(c.started))
	for _, id := range c.started {
		cp := *c.spans[id]
		out = append(out, &cp)
	}
	return out
}

// OpenSpans returns the spans whose final reference has not been
// released yet, in start order.
func (c *Collector) OpenSpans() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Span
	for _, id := range c.started {
		if sp := c.spans[id]; !sp.Closed {
			cp := *sp
			out = append(out, &cp)
		}
	}
	return out
}

// FinishedSpans returns the spans whose final reference has been
// released, in start order.
func (c *Collector) FinishedSpans() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Span
	for _, id := range c.started {
		if sp := c.spans[id]; sp.Closed {
			cp := *sp
			out = append(out, &cp)
		}
	}
	return out
}

// Entered returns the ids passed to Enter, in order.
func (c *Collector) Entered() []diagtrace.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]diagtrace.ID, len(c.entered))
	copy(out, c.entered)
	return out
}

// Exited returns the ids passed to Exit, in order.
func (c *Collector) Exited() []diagtrace.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]diagtrace.ID, len(c.exited))
	copy(out, c.exited)
	return out
}

// Reset drops all captured state but keeps configuration.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = nil
	c.registerCalls = 0
	c.enabledCalls = 0
	c.spans = make(map[diagtrace.ID]*Span)
	c.started = nil
	c.events = nil
	c.entered = nil
	c.exited = nil
	c.stacks = make(map[int64][]diagtrace.ID)
}
