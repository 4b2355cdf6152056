// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"errors"
	"sync"
	"weak"

	"github.com/petermattis/goid"
	"go.uber.org/atomic"

	"github.com/diagworks/diag-trace-go/internal/log"
)

// ErrGlobalDefaultSet is returned by SetGlobalDefault when a global
// default dispatcher has already been installed.
var ErrGlobalDefaultSet = errors.New("diagtrace: global default dispatcher already set")

// Dispatch is a shared, type-erased handle to a Collector, carrying a
// process-unique identity. The identity does not key callsite interest
// caches; those are keyed by the process-wide dispatch epoch. Construct
// one with NewDispatch; the zero value is not usable.
type Dispatch struct {
	collector Collector
	id        uint64
}

var (
	dispatchIDs = atomic.NewUint64(0)

	globalDefault    atomic.Pointer[Dispatch]
	globalDefaultSet atomic.Bool
	globalScoped     atomic.Pointer[Dispatch]

	noopDispatch = &Dispatch{collector: noopCollector{}}
)

// dispatchers holds a weak reference to every Dispatch ever constructed
// and still alive. Interest rebuilds aggregate across these; dead entries
// are pruned whenever the list is walked.
var dispatchers struct {
	mu   sync.Mutex
	list []weak.Pointer[Dispatch]
}

// NewDispatch wraps collector c in a dispatcher, registers it, and
// rebuilds callsite interest so the new collector is asked about every
// known callsite exactly once.
func NewDispatch(c Collector) *Dispatch {
	if c == nil {
		c = noopCollector{}
	}
	d := &Dispatch{collector: c, id: dispatchIDs.Inc()}
	dispatchers.mu.Lock()
	dispatchers.list = append(pruneDispatchers(dispatchers.list), weak.Make(d))
	dispatchers.mu.Unlock()
	// Rebuild outside the list lock; registration callbacks may log or
	// even construct further dispatchers.
	RebuildInterest()
	return d
}

// NoopDispatch returns the dispatcher that disables everything.
func NoopDispatch() *Dispatch { return noopDispatch }

func pruneDispatchers(list []weak.Pointer[Dispatch]) []weak.Pointer[Dispatch] {
	kept := list[:0]
	for _, w := range list {
		if w.Value() != nil {
			kept = append(kept, w)
		}
	}
	return kept
}

func aliveDispatchers() []*Dispatch {
	dispatchers.mu.Lock()
	defer dispatchers.mu.Unlock()
	dispatchers.list = pruneDispatchers(dispatchers.list)
	ds := make([]*Dispatch, 0, len(dispatchers.list))
	for _, w := range dispatchers.list {
		if d := w.Value(); d != nil {
			ds = append(ds, d)
		}
	}
	return ds
}

// ID returns the dispatcher's process-unique identity. The no-op
// dispatcher has identity zero.
func (d *Dispatch) ID() uint64 {
	if d == nil {
		return 0
	}
	return d.id
}

// Collector returns the wrapped collector. Callers wanting a concrete
// collector type use an ordinary Go type assertion on the result, which
// is this implementation's escape hatch for layered collectors.
func (d *Dispatch) Collector() Collector {
	if d == nil {
		return noopCollector{}
	}
	return d.collector
}

// IsNoop reports whether the dispatcher discards everything.
func (d *Dispatch) IsNoop() bool { return d == nil || d.id == 0 }

func (d *Dispatch) maxLevelHint() (Level, bool) {
	if h, ok := d.Collector().(MaxLevelHinter); ok {
		return h.MaxLevelHint()
	}
	return 0, false
}

// RegisterCallsite delegates to the collector.
func (d *Dispatch) RegisterCallsite(m *Metadata) Interest {
	return d.Collector().RegisterCallsite(m)
}

// Enabled delegates to the collector.
func (d *Dispatch) Enabled(m *Metadata) bool { return d.Collector().Enabled(m) }

// NewSpan delegates to the collector.
func (d *Dispatch) NewSpan(a *Attributes) ID { return d.Collector().NewSpan(a) }

// Record delegates to the collector.
func (d *Dispatch) Record(id ID, r *Record) { d.Collector().Record(id, r) }

// RecordFollowsFrom delegates to the collector.
func (d *Dispatch) RecordFollowsFrom(id, follows ID) {
	d.Collector().RecordFollowsFrom(id, follows)
}

// Event delegates to the collector.
func (d *Dispatch) Event(e *Event) { d.Collector().Event(e) }

// Enter delegates to the collector.
func (d *Dispatch) Enter(id ID) { d.Collector().Enter(id) }

// Exit delegates to the collector.
func (d *Dispatch) Exit(id ID) { d.Collector().Exit(id) }

// CloneSpan delegates to the collector.
func (d *Dispatch) CloneSpan(id ID) ID { return d.Collector().CloneSpan(id) }

// TryClose delegates to the collector.
func (d *Dispatch) TryClose(id ID) bool { return d.Collector().TryClose(id) }

// CurrentSpan delegates to the collector.
func (d *Dispatch) CurrentSpan() Current { return d.Collector().CurrentSpan() }

// currentDispatch resolves the dispatcher every operation uses, in order:
// goroutine-scoped default, process-global scoped default, process-global
// default, no-op. While a RegisterCallsite callback runs on this
// goroutine the no-op dispatcher is returned unconditionally, which is
// what breaks the recursion when a collector logs during registration.
func currentDispatch() *Dispatch {
	if g := glsPeek(); g != nil {
		if g.inRegister {
			return noopDispatch
		}
		if g.scoped != nil {
			return g.scoped
		}
	}
	if d := globalScoped.Load(); d != nil {
		return d
	}
	if d := globalDefault.Load(); d != nil {
		return d
	}
	return noopDispatch
}

// GetDefault invokes f with the currently resolved dispatcher. Nested
// calls observe the innermost scoped default.
func GetDefault(f func(*Dispatch)) {
	f(currentDispatch())
}

// SetGlobalDefault installs d as the process-global default dispatcher.
// It succeeds at most once for the lifetime of the process; later calls
// return ErrGlobalDefaultSet and leave the installed default untouched.
// Scoped defaults installed via SetDefault or SetGlobalScoped shadow the
// global default without consuming the one installation.
func SetGlobalDefault(d *Dispatch) error {
	if d == nil {
		d = noopDispatch
	}
	if !globalDefaultSet.CompareAndSwap(false, true) {
		return ErrGlobalDefaultSet
	}
	globalDefault.Store(d)
	// No interest rebuild here: constructing the dispatcher already ran
	// one, and a collector installed as the global default is promised to
	// be visible at the next rebuild, not instantly.
	return nil
}

// ScopeGuard undoes a scoped dispatcher installation. Close is
// idempotent, must run on the goroutine that created the guard for
// goroutine-scoped installs, and restores the prior state even when run
// by a defer during panic unwinding.
type ScopeGuard struct {
	once    sync.Once
	restore func()
	gid     int64
}

// Close restores the dispatcher state captured when the guard was
// created.
func (g *ScopeGuard) Close() {
	if g == nil {
		return
	}
	if g.gid != 0 && g.gid != goid.Get() {
		log.Warn("diagtrace: scope guard closed on a different goroutine; ignoring")
		return
	}
	g.once.Do(g.restore)
}

// SetDefault installs d as the calling goroutine's default dispatcher
// until the returned guard is closed. Guards nest; closing restores the
// previous goroutine-scoped default, if any.
func SetDefault(d *Dispatch) *ScopeGuard {
	if d == nil {
		d = noopDispatch
	}
	g := glsGet()
	prev := g.scoped
	g.scoped = d
	return &ScopeGuard{
		gid: goid.Get(),
		restore: func() {
			g.scoped = prev
			glsRelease(g)
		},
	}
}

// SetGlobalScoped installs d as a process-wide scoped default, shadowing
// any installed global default on every goroutine without one of its own
// scoped defaults. Closing the returned guard restores the previous
// process-wide scoped state.
func SetGlobalScoped(d *Dispatch) *ScopeGuard {
	if d == nil {
		d = noopDispatch
	}
	prev := globalScoped.Swap(d)
	return &ScopeGuard{
		restore: func() {
			globalScoped.Store(prev)
		},
	}
}

// WithDefault runs f with d installed as the calling goroutine's default
// dispatcher, restoring the prior state when f returns or panics.
func WithDefault(d *Dispatch, f func()) {
	guard := SetDefault(d)
	defer guard.Close()
	f()
}
