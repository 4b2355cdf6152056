// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

// Collector consumes spans and events. Implementations mint span
// identities, own all per-span state including reference counts, and
// decide per callsite whether they care at all.
//
// Every method may be called concurrently from multiple goroutines. A
// collector callback may itself emit spans and events; the core holds no
// locks across any of these calls, and during RegisterCallsite the
// current dispatcher resolves to a no-op so a collector that logs while
// registering cannot recurse into itself.
type Collector interface {
	// RegisterCallsite declares the collector's interest in a callsite.
	// It is called at most once per (callsite, dispatcher) between
	// interest rebuilds and the result is cached on the callsite.
	RegisterCallsite(m *Metadata) Interest

	// Enabled decides enablement for one operation. It is consulted only
	// when the cached interest is InterestSometimes.
	Enabled(m *Metadata) bool

	// NewSpan allocates a fresh, non-zero span identity with an initial
	// reference count of one.
	NewSpan(a *Attributes) ID

	// Record attaches late field values to an existing span.
	Record(id ID, r *Record)

	// RecordFollowsFrom records that span id is causally preceded by
	// span follows. Both identities must be live.
	RecordFollowsFrom(id, follows ID)

	// Event consumes a point-in-time record. No identity is allocated.
	Event(e *Event)

	// Enter marks the span as entered on the calling goroutine. The core
	// has already pushed the id onto its current-span stack.
	Enter(id ID)

	// Exit is the pair of Enter.
	Exit(id ID)

	// CloneSpan increments the span's reference count and returns the
	// same identity.
	CloneSpan(id ID) ID

	// TryClose releases one reference and reports whether that was the
	// final one. The core balances CloneSpan and TryClose exactly;
	// collectors free state only when TryClose returns true.
	TryClose(id ID) bool

	// CurrentSpan returns the collector's notion of the span currently
	// executing on the calling goroutine, or an unknown Current when the
	// collector does not track one.
	CurrentSpan() Current
}

// MaxLevelHinter is an optional Collector capability. A collector that
// knows it will never enable sites above a certain level may hint it so
// the runtime level ceiling can short-circuit argument construction. The
// hint is advisory only.
type MaxLevelHinter interface {
	MaxLevelHint() (Level, bool)
}

// noopCollector disables everything. It backs the no-op dispatcher and is
// what operations resolve while a RegisterCallsite callback is on the
// stack.
type noopCollector struct{}

func (noopCollector) RegisterCallsite(*Metadata) Interest { return InterestNever }
func (noopCollector) Enabled(*Metadata) bool              { return false }
func (noopCollector) NewSpan(*Attributes) ID              { return 0 }
func (noopCollector) Record(ID, *Record)                  {}
func (noopCollector) RecordFollowsFrom(ID, ID)            {}
func (noopCollector) Event(*Event)                        {}
func (noopCollector) Enter(ID)                            {}
func (noopCollector) Exit(ID)                             {}
func (noopCollector) CloneSpan(id ID) ID                  { return id }
func (noopCollector) TryClose(ID) bool                    { return false }
func (noopCollector) CurrentSpan() Current                { return CurrentNone() }

func (noopCollector) MaxLevelHint() (Level, bool) { return 0, true }
