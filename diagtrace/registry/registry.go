// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package registry provides a span-data storage collector. It keeps one
// record per live span — metadata, resolved parent, follows-from edges
// and a typed extension map — and frees the record when the last span
// reference is released. Layered collectors build on it to attach and
// look up arbitrary per-span state.
package registry

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"github.com/diagworks/diag-trace-go/diagtrace"
)

// LookupSpan is the read side of a span-data store. Layered collectors
// accept any implementation of it.
type LookupSpan interface {
	// Span returns the stored data for a live span id.
	Span(id diagtrace.ID) (*SpanRef, bool)
}

// Store implements diagtrace.Collector by recording span data and
// nothing else: events pass through unrecorded, field values are left to
// layered collectors via the extension map. Interest is always "always",
// making the Store a suitable base of a collector stack.
type Store struct {
	spans  *xsync.MapOf[uint64, *record]
	nextID atomic.Uint64
}

var _ diagtrace.Collector = (*Store)(nil)
var _ LookupSpan = (*Store)(nil)

type record struct {
	id     diagtrace.ID
	meta   *diagtrace.Metadata
	parent diagtrace.ID
	refs   atomic.Int64

	mu      sync.Mutex
	follows []diagtrace.ID

	ext Extensions
}

// New returns an empty Store.
func New() *Store {
	return &Store{spans: xsync.NewMapOf[uint64, *record]()}
}

// RegisterCallsite implements diagtrace.Collector.
func (s *Store) RegisterCallsite(*diagtrace.Metadata) diagtrace.Interest {
	return diagtrace.InterestAlways
}

// Enabled implements diagtrace.Collector.
func (s *Store) Enabled(*diagtrace.Metadata) bool { return true }

// NewSpan implements diagtrace.Collector, minting a fresh identity with
// one reference.
func (s *Store) NewSpan(a *diagtrace.Attributes) diagtrace.ID {
	id := diagtrace.ID(s.nextID.Inc())
	parent, _ := a.Parent().ID()
	rec := &record{id: id, meta: a.Metadata(), parent: parent}
	rec.refs.Store(1)
	s.spans.Store(uint64(id), rec)
	return id
}

// Record implements diagtrace.Collector. The store keeps no field
// values; layered collectors interested in them observe the same Record
// call and stash what they need in the span's Extensions.
func (s *Store) Record(diagtrace.ID, *diagtrace.Record) {}

// RecordFollowsFrom implements diagtrace.Collector.
func (s *Store) RecordFollowsFrom(id, follows diagtrace.ID) {
	rec, ok := s.spans.Load(uint64(id))
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.follows = append(rec.follows, follows)
	rec.mu.Unlock()
}

// Event implements diagtrace.Collector. Events carry no identity and are
// not stored.
func (s *Store) Event(*diagtrace.Event) {}

// Enter implements diagtrace.Collector.
func (s *Store) Enter(diagtrace.ID) {}

// Exit implements diagtrace.Collector.
func (s *Store) Exit(diagtrace.ID) {}

// CloneSpan implements diagtrace.Collector.
func (s *Store) CloneSpan(id diagtrace.ID) diagtrace.ID {
	if rec, ok := s.spans.Load(uint64(id)); ok {
		rec.refs.Inc()
	}
	return id
}

// TryClose implements diagtrace.Collector, freeing the record when the
// final reference goes away.
func (s *Store) TryClose(id diagtrace.ID) bool {
	rec, ok := s.spans.Load(uint64(id))
	if !ok {
		return false
	}
	if rec.refs.Dec() > 0 {
		return false
	}
	s.spans.Delete(uint64(id))
	return true
}

// CurrentSpan implements diagtrace.Collector by resolving the core's
// per-goroutine stack against the stored records.
func (s *Store) CurrentSpan() diagtrace.Current {
	cur := diagtrace.CurrentSpan()
	id, _, ok := cur.Span()
	if !ok {
		return cur
	}
	rec, ok := s.spans.Load(uint64(id))
	if !ok {
		return diagtrace.CurrentUnknown()
	}
	return diagtrace.NewCurrent(rec.id, rec.meta)
}

// Span returns the stored data for a live span id.
func (s *Store) Span(id diagtrace.ID) (*SpanRef, bool) {
	rec, ok := s.spans.Load(uint64(id))
	if !ok {
		return nil, false
	}
	return &SpanRef{store: s, rec: rec}, true
}

// Len returns the number of live spans in the store.
func (s *Store) Len() int { return s.spans.Size() }

// SpanRef is a borrowed view over one stored span.
type SpanRef struct {
	store *Store
	rec   *record
}

// ID returns the span's identity.
func (r *SpanRef) ID() diagtrace.ID { return r.rec.id }

// Metadata returns the span callsite's descriptor.
func (r *SpanRef) Metadata() *diagtrace.Metadata { return r.rec.meta }

// Parent returns the span's parent, if it has one and it is still live.
func (r *SpanRef) Parent() (*SpanRef, bool) {
	if r.rec.parent.IsZero() {
		return nil, false
	}
	return r.store.Span(r.rec.parent)
}

// FollowsFrom returns the ids this span declared as causal predecessors,
// in recording order.
func (r *SpanRef) FollowsFrom() []diagtrace.ID {
	r.rec.mu.Lock()
	defer r.rec.mu.Unlock()
	out := make([]diagtrace.ID, len(r.rec.follows))
	copy(out, r.rec.follows)
	return out
}

// Extensions returns the span's typed extension map.
func (r *SpanRef) Extensions() *Extensions { return &r.rec.ext }

// Scope visits the span and its ancestors from the span outward to the
// root, stopping early when visit returns false or an ancestor is no
// longer live.
func (r *SpanRef) Scope(visit func(*SpanRef) bool) {
	for cur := r; cur != nil; {
		if !visit(cur) {
			return
		}
		next, ok := cur.Parent()
		if !ok {
			return
		}
		cur = next
	}
}
