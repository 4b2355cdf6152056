// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"

	"github.com/diagworks/diag-trace-go/internal/log"
)

// Callsite is the static record of one instrumentation site. Declare one
// per site, normally as a package-level variable, and reuse it for every
// span or event the site produces; the interest cache only amortises to a
// single atomic load when the same Callsite value is reused.
type Callsite struct {
	meta Metadata

	// cache packs the dispatch epoch with the aggregated interest:
	// epoch<<2 | interest. A stored epoch older than the current one
	// marks the value stale. Writes are release, reads acquire, both via
	// the atomic below.
	cache atomic.Uint64
}

// CallsiteConfig describes a callsite to NewCallsite. Name, Target and
// FieldNames must refer to storage that lives as long as the process,
// which string literals always do.
type CallsiteConfig struct {
	// Name is the human-readable name of the site.
	Name string
	// Target is the logical module path. When empty, the caller's
	// package-qualified function name is used.
	Target string
	// Level is the verbosity of the site.
	Level Level
	// Kind selects between span and event sites.
	Kind Kind
	// FieldNames is the ordered field set of the site. Dotted and
	// arbitrary quoted names are permitted; names are never parsed.
	FieldNames []string
	// File and Line optionally pin the source location. When File is
	// empty the direct caller's location is captured.
	File string
	Line int
	// Module optionally records the physical module path.
	Module string
}

// NewCallsite constructs and registers a callsite. Registration is
// idempotent and includes one round of interest computation against the
// live dispatchers, so constructing callsites in package variable
// initialisers is cheap and safe.
func NewCallsite(cfg CallsiteConfig) *Callsite {
	cs := &Callsite{
		meta: Metadata{
			name:   cfg.Name,
			target: cfg.Target,
			level:  cfg.Level,
			file:   cfg.File,
			line:   cfg.Line,
			module: cfg.Module,
			kind:   cfg.Kind,
			fields: fieldNames(cfg.FieldNames),
		},
	}
	if cs.meta.file == "" || cs.meta.target == "" {
		if pc, file, line, ok := runtime.Caller(1); ok {
			if cs.meta.file == "" {
				cs.meta.file = file
				cs.meta.line = line
			}
			if cs.meta.target == "" {
				if fn := runtime.FuncForPC(pc); fn != nil {
					cs.meta.target = fn.Name()
				}
			}
		}
	}
	cs.meta.callsite = cs
	Register(cs)
	return cs
}

// EventSite is shorthand for NewCallsite with KindEvent.
func EventSite(level Level, name, target string, fieldNames ...string) *Callsite {
	return NewCallsite(CallsiteConfig{
		Name: name, Target: target, Level: level,
		Kind: KindEvent, FieldNames: fieldNames,
	})
}

// SpanSite is shorthand for NewCallsite with KindSpan.
func SpanSite(level Level, name, target string, fieldNames ...string) *Callsite {
	return NewCallsite(CallsiteConfig{
		Name: name, Target: target, Level: level,
		Kind: KindSpan, FieldNames: fieldNames,
	})
}

// ErrorSite declares an error-level event callsite.
func ErrorSite(name, target string, fieldNames ...string) *Callsite {
	return EventSite(LevelError, name, target, fieldNames...)
}

// WarnSite declares a warn-level event callsite.
func WarnSite(name, target string, fieldNames ...string) *Callsite {
	return EventSite(LevelWarn, name, target, fieldNames...)
}

// InfoSite declares an info-level event callsite.
func InfoSite(name, target string, fieldNames ...string) *Callsite {
	return EventSite(LevelInfo, name, target, fieldNames...)
}

// DebugSite declares a debug-level event callsite.
func DebugSite(name, target string, fieldNames ...string) *Callsite {
	return EventSite(LevelDebug, name, target, fieldNames...)
}

// TraceSite declares a trace-level event callsite.
func TraceSite(name, target string, fieldNames ...string) *Callsite {
	return EventSite(LevelTrace, name, target, fieldNames...)
}

// Metadata returns the callsite's static descriptor.
func (c *Callsite) Metadata() *Metadata { return &c.meta }

// Interest returns the currently cached interest for the callsite. The
// second return value is false when the cache is unset or stale.
func (c *Callsite) Interest() (Interest, bool) {
	return c.loadInterest(dispatchEpoch.Load())
}

func (c *Callsite) loadInterest(epoch uint64) (Interest, bool) {
	word := c.cache.Load()
	if word>>2 != epoch {
		return interestUnset, false
	}
	in := Interest(word & 3)
	return in, in != interestUnset
}

// storeInterest writes the aggregated interest for epoch, refusing to
// downgrade an InterestAlways already recorded for the same epoch and
// never clobbering a newer epoch's value.
func (c *Callsite) storeInterest(epoch uint64, in Interest) {
	for {
		cur := c.cache.Load()
		curEpoch, curIn := cur>>2, Interest(cur&3)
		if curEpoch > epoch {
			return
		}
		if curEpoch == epoch && (curIn == InterestAlways || curIn == in) {
			return
		}
		if c.cache.CompareAndSwap(cur, epoch<<2|uint64(in)) {
			return
		}
	}
}

// dispatchEpoch numbers the generations of the active-dispatcher set. Any
// change to that set bumps it, invalidating every callsite cache at once.
var dispatchEpoch = atomic.NewUint64(1)

var callsiteRegistry struct {
	mu  sync.Mutex
	set map[*Callsite]struct{}

	// snapshot is a copy-on-write view of the registered callsites so
	// that iteration never blocks registration and vice versa.
	snapshot atomic.Pointer[[]*Callsite]
}

// Register adds cs to the process-global callsite registry. Registering a
// callsite twice is a no-op. Registration from inside a collector's
// RegisterCallsite callback is forbidden; it is detected and dropped with
// an error log rather than recursing.
func Register(cs *Callsite) {
	if cs == nil {
		return
	}
	if g := glsPeek(); g != nil && g.inRegister {
		log.Error("diagtrace: callsite %q registered from within RegisterCallsite; dropped", cs.meta.name)
		return
	}
	callsiteRegistry.mu.Lock()
	if callsiteRegistry.set == nil {
		callsiteRegistry.set = make(map[*Callsite]struct{})
	}
	if _, ok := callsiteRegistry.set[cs]; ok {
		callsiteRegistry.mu.Unlock()
		return
	}
	callsiteRegistry.set[cs] = struct{}{}
	var prev []*Callsite
	if p := callsiteRegistry.snapshot.Load(); p != nil {
		prev = *p
	}
	next := make([]*Callsite, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, cs)
	callsiteRegistry.snapshot.Store(&next)
	callsiteRegistry.mu.Unlock()

	// Interest is computed after the registry lock is released; the
	// collector callbacks below may themselves log or register.
	computeInterestAgainst(cs, dispatchEpoch.Load(), aliveDispatchers())
}

// RebuildInterest invalidates every callsite's cached interest and
// recomputes it as the minimum across all live dispatchers. It runs
// whenever a dispatcher is constructed and may also be called directly
// after a collector's filtering configuration changes.
func RebuildInterest() {
	if g := glsPeek(); g != nil && g.inRegister {
		log.Error("diagtrace: interest rebuild requested from within RegisterCallsite; dropped")
		return
	}
	epoch := dispatchEpoch.Inc()
	ds := aliveDispatchers()
	updateMaxLevel(ds)
	snap := callsiteRegistry.snapshot.Load()
	if snap == nil {
		return
	}
	for _, cs := range *snap {
		computeInterestAgainst(cs, epoch, ds)
	}
}

func computeInterestAgainst(cs *Callsite, epoch uint64, ds []*Dispatch) Interest {
	agg := interestUnset
	for _, d := range ds {
		agg = agg.And(registerWith(d, cs, epoch))
	}
	if agg == interestUnset {
		// Nobody is listening; a later dispatcher construction bumps the
		// epoch and invalidates this.
		agg = InterestNever
	}
	cs.storeInterest(epoch, agg)
	return agg
}

// registerWith invokes one collector's RegisterCallsite with re-entrancy
// protection. A panic in the callback leaves the cache at
// InterestSometimes for this epoch and then propagates to the caller.
func registerWith(d *Dispatch, cs *Callsite, epoch uint64) Interest {
	g := glsGet()
	g.inRegister = true
	defer func() {
		g.inRegister = false
		glsRelease(g)
		if r := recover(); r != nil {
			cs.storeInterest(epoch, InterestSometimes)
			panic(r)
		}
	}()
	return d.RegisterCallsite(cs.Metadata())
}
