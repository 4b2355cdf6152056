// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

// StartConfig holds the per-operation choices of one span construction or
// event emission. It is usually built through StartOption values.
type StartConfig struct {
	// Values is the initial value set, in declaration order.
	Values []Value
	// Parent is the parent choice; the zero value is contextual.
	Parent Parent
}

// StartOption customises StartSpan and Emit.
type StartOption func(*StartConfig)

// WithValues appends field values to the operation's value set. Each
// value expression is an ordinary Go argument and is therefore evaluated
// exactly once, before any gate runs; use LevelEnabled or SiteEnabled to
// short-circuit expensive constructions.
func WithValues(vals ...Value) StartOption {
	return func(cfg *StartConfig) {
		cfg.Values = append(cfg.Values, vals...)
	}
}

// WithParent selects an explicit parent span.
func WithParent(id ID) StartOption {
	return func(cfg *StartConfig) {
		cfg.Parent = ExplicitParent(id)
	}
}

// AsRoot makes the span or event a root by explicit choice.
func AsRoot() StartOption {
	return func(cfg *StartConfig) {
		cfg.Parent = ExplicitRoot()
	}
}

// siteDispatch runs gates one to three of the instrumentation sequence:
// the static level ceiling, a single atomic load of the callsite interest
// cache (recomputing when unset or stale), and the per-operation Enabled
// query when interest is "sometimes". It returns the dispatcher the
// operation should use.
func siteDispatch(cs *Callsite) (*Dispatch, bool) {
	m := &cs.meta
	if !StaticMaxLevel.Enables(m.level) {
		return nil, false
	}
	epoch := dispatchEpoch.Load()
	in, ok := cs.loadInterest(epoch)
	if !ok {
		// Inside a RegisterCallsite callback everything resolves to the
		// no-op dispatcher; recomputing interest here would re-enter the
		// collectors.
		if g := glsPeek(); g != nil && g.inRegister {
			return nil, false
		}
		in = computeInterestAgainst(cs, epoch, aliveDispatchers())
	}
	if in.IsNever() {
		return nil, false
	}
	d := currentDispatch()
	if d.IsNoop() {
		return nil, false
	}
	if in.IsSometimes() && !d.Enabled(m) {
		return nil, false
	}
	return d, true
}

// SiteEnabled reports whether a span or event emitted right now from cs
// would dispatch, without materialising any fields and without side
// effects beyond interest-cache maintenance.
func SiteEnabled(cs *Callsite) bool {
	_, ok := siteDispatch(cs)
	return ok
}

// StartSpan constructs a span from cs. When every gate passes, the
// collector allocates a fresh identity and the returned handle owns one
// reference to it; otherwise the returned handle is inert and all its
// operations are cheap no-ops. The caller must eventually Close the
// handle (and every Clone of it).
func StartSpan(cs *Callsite, opts ...StartOption) *Span {
	d, ok := siteDispatch(cs)
	if !ok {
		return disabledSpan
	}
	var cfg StartConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	attrs := Attributes{
		meta:   &cs.meta,
		values: newValueSet(&cs.meta, cfg.Values),
		parent: cfg.Parent.resolve(),
	}
	id := d.NewSpan(&attrs)
	if id.IsZero() {
		return disabledSpan
	}
	return &Span{id: id, dispatch: d, meta: &cs.meta}
}

// Emit dispatches one event from cs. An event with zero fields still
// reaches the collector exactly once.
func Emit(cs *Callsite, opts ...StartOption) {
	d, ok := siteDispatch(cs)
	if !ok {
		return
	}
	var cfg StartConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ev := Event{
		meta:   &cs.meta,
		values: newValueSet(&cs.meta, cfg.Values),
		parent: cfg.Parent.resolve(),
	}
	d.Event(&ev)
}
