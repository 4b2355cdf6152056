// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagworks/diag-trace-go/diagtrace"
	"github.com/diagworks/diag-trace-go/diagtrace/mockcollector"
)

func testSpanSite(t *testing.T, fields ...string) *diagtrace.Callsite {
	t.Helper()
	return diagtrace.SpanSite(diagtrace.LevelInfo, t.Name(), "diagtrace.test.span", fields...)
}

func withMock(t *testing.T) *mockcollector.Collector {
	t.Helper()
	c := mockcollector.New()
	guard := diagtrace.SetDefault(diagtrace.NewDispatch(c))
	t.Cleanup(guard.Close)
	return c
}

func TestSpanLifecycle(t *testing.T) {
	c := withMock(t)
	site := testSpanSite(t, "req.id")
	f, _ := site.Metadata().FieldByName("req.id")

	span := diagtrace.StartSpan(site, diagtrace.WithValues(diagtrace.Uint64(f, 7)))
	require.True(t, span.Enabled())
	require.False(t, span.ID().IsZero())

	got, ok := c.Span(span.ID())
	require.True(t, ok)
	assert.Equal(t, t.Name(), got.Name)
	assert.Equal(t, []mockcollector.Field{{Name: "req.id", Value: uint64(7)}}, got.Fields)
	assert.True(t, got.Root)
	assert.Equal(t, 1, got.Refs)

	entered := span.Enter()
	assert.Equal(t, []diagtrace.ID{span.ID()}, c.Entered())
	cur, _, ok := diagtrace.CurrentSpan().Span()
	require.True(t, ok)
	assert.Equal(t, span.ID(), cur)

	entered.Exit()
	assert.Equal(t, []diagtrace.ID{span.ID()}, c.Exited())
	_, _, ok = diagtrace.CurrentSpan().Span()
	assert.False(t, ok)

	assert.True(t, span.Close())
	got, _ = c.Span(span.ID())
	assert.True(t, got.Closed)
}

// TestSpanCloneBalance checks the reference-count law: every CloneSpan is
// balanced by exactly one TryClose, and a clone+close pair is a no-op
// with respect to the collector's count.
func TestSpanCloneBalance(t *testing.T) {
	c := withMock(t)
	site := testSpanSite(t)

	span := diagtrace.StartSpan(site)
	id := span.ID()

	clone := span.Clone()
	assert.Equal(t, id, clone.ID())
	got, _ := c.Span(id)
	assert.Equal(t, 2, got.Refs)

	// Clone then drop: observationally a no-op.
	assert.False(t, clone.Close())
	got, _ = c.Span(id)
	assert.Equal(t, 1, got.Refs)
	assert.False(t, got.Closed)

	// Closing the same handle twice never reaches the collector.
	assert.False(t, clone.Close())
	got, _ = c.Span(id)
	assert.Equal(t, 1, got.Refs)

	assert.True(t, span.Close())
	got, _ = c.Span(id)
	assert.True(t, got.Closed)
	assert.False(t, span.Close())
}

func TestSpanLateRecord(t *testing.T) {
	c := withMock(t)
	site := testSpanSite(t, "phase", "elapsed")
	phase, _ := site.Metadata().FieldByName("phase")
	elapsed, _ := site.Metadata().FieldByName("elapsed")

	other := testSpanSite(t, "phase")
	foreign, _ := other.Metadata().FieldByName("phase")

	span := diagtrace.StartSpan(site)
	span.Record(diagtrace.Str(phase, "flush"))
	// A field owned by another callsite is silently skipped.
	span.Record(diagtrace.Str(foreign, "bogus"), diagtrace.Float64(elapsed, 0.25))
	span.Close()

	got, ok := c.Span(span.ID())
	require.True(t, ok)
	assert.Equal(t, []mockcollector.Field{
		{Name: "phase", Value: "flush"},
		{Name: "elapsed", Value: 0.25},
	}, got.Fields)
}

// TestSpanReentry drives the current-span stack through the public API:
// entering ids 1, 2, 1, 3 reports 3, exiting 3 reports 2, and the
// remaining exits in 2, 1, 1 order empty the stack.
func TestSpanReentry(t *testing.T) {
	withMock(t)
	site := testSpanSite(t)

	span1 := diagtrace.StartSpan(site)
	span2 := diagtrace.StartSpan(site)
	span3 := diagtrace.StartSpan(site, diagtrace.AsRoot())

	current := func() diagtrace.ID {
		id, _, _ := diagtrace.CurrentSpan().Span()
		return id
	}

	e1 := span1.Enter()
	e2 := span2.Enter()
	e1again := span1.Enter()
	e3 := span3.Enter()

	assert.Equal(t, span3.ID(), current())
	e3.Exit()
	assert.Equal(t, span2.ID(), current())
	e2.Exit()
	e1again.Exit()
	e1.Exit()
	_, _, ok := diagtrace.CurrentSpan().Span()
	assert.False(t, ok)

	span3.Close()
	span2.Close()
	span1.Close()
}

func TestEnteredSpanExitIdempotent(t *testing.T) {
	c := withMock(t)
	site := testSpanSite(t)

	span := diagtrace.StartSpan(site)
	entered := span.Enter()
	entered.Exit()
	entered.Exit()
	assert.Len(t, c.Exited(), 1)
	span.Close()
}

func TestContextualParent(t *testing.T) {
	c := withMock(t)
	site := testSpanSite(t)

	parent := diagtrace.StartSpan(site)
	entered := parent.Enter()

	child := diagtrace.StartSpan(site)
	got, ok := c.Span(child.ID())
	require.True(t, ok)
	assert.Equal(t, parent.ID(), got.Parent)
	assert.False(t, got.Root)

	// An explicit root ignores the entered span.
	root := diagtrace.StartSpan(site, diagtrace.AsRoot())
	got, _ = c.Span(root.ID())
	assert.True(t, got.Root)

	// An explicit parent overrides the entered span.
	explicit := diagtrace.StartSpan(site, diagtrace.WithParent(root.ID()))
	got, _ = c.Span(explicit.ID())
	assert.Equal(t, root.ID(), got.Parent)

	entered.Exit()
	for _, sp := range []*diagtrace.Span{explicit, root, child, parent} {
		sp.Close()
	}
}

// TestFollowsFromAcrossGoroutines sends a span id to another goroutine,
// which starts its own span and declares the causal link before both
// sides release their references.
func TestFollowsFromAcrossGoroutines(t *testing.T) {
	c := mockcollector.New()
	d := diagtrace.NewDispatch(c)
	guard := diagtrace.SetDefault(d)
	defer guard.Close()

	site := testSpanSite(t)
	spanA := diagtrace.StartSpan(site)

	ids := make(chan diagtrace.ID, 1)
	ids <- spanA.ID()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Scoped defaults are per goroutine.
		guard := diagtrace.SetDefault(d)
		defer guard.Close()

		spanB := diagtrace.StartSpan(site, diagtrace.AsRoot())
		spanB.FollowsFrom(<-ids)
		spanB.Close()
	}()
	wg.Wait()
	spanA.Close()

	finished := c.FinishedSpans()
	require.Len(t, finished, 2)
	var spanB *mockcollector.Span
	for _, sp := range finished {
		if sp.ID != spanA.ID() {
			spanB = sp
		}
	}
	require.NotNil(t, spanB)
	assert.Equal(t, []diagtrace.ID{spanA.ID()}, spanB.FollowsFrom)
	for _, sp := range finished {
		assert.True(t, sp.Closed)
	}
}

func TestDisabledSpanIsInert(t *testing.T) {
	c := mockcollector.New(mockcollector.WithInterest(func(m *diagtrace.Metadata) diagtrace.Interest {
		if m.Target() == "diagtrace.test.span.disabled" {
			return diagtrace.InterestNever
		}
		return diagtrace.InterestAlways
	}))
	guard := diagtrace.SetDefault(diagtrace.NewDispatch(c))
	defer guard.Close()

	site := diagtrace.SpanSite(diagtrace.LevelInfo, "disabled", "diagtrace.test.span.disabled", "k")
	f, _ := site.Metadata().FieldByName("k")

	span := diagtrace.StartSpan(site)
	assert.False(t, span.Enabled())
	assert.True(t, span.ID().IsZero())
	assert.Nil(t, span.Metadata())

	entered := span.Enter()
	span.Record(diagtrace.Str(f, "v"))
	span.FollowsFrom(7)
	clone := span.Clone()
	entered.Exit()
	assert.False(t, clone.Close())
	assert.False(t, span.Close())

	assert.Empty(t, c.StartedSpans())
	assert.Empty(t, c.Entered())

	var nilSpan *diagtrace.Span
	assert.False(t, nilSpan.Enabled())
	assert.False(t, nilSpan.Close())
}
