// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import "go.uber.org/atomic"

// funcCollector lets a test override individual collector operations; the
// zero value behaves like a collector with interest "always" that mints
// sequential ids.
type funcCollector struct {
	ids atomic.Uint64

	register        func(*Metadata) Interest
	enabled         func(*Metadata) bool
	newSpan         func(*Attributes) ID
	record          func(ID, *Record)
	followsFrom     func(ID, ID)
	event           func(*Event)
	enter, exitSpan func(ID)
	cloneSpan       func(ID) ID
	tryClose        func(ID) bool
}

func (c *funcCollector) RegisterCallsite(m *Metadata) Interest {
	if c.register != nil {
		return c.register(m)
	}
	return InterestAlways
}

func (c *funcCollector) Enabled(m *Metadata) bool {
	if c.enabled != nil {
		return c.enabled(m)
	}
	return true
}

func (c *funcCollector) NewSpan(a *Attributes) ID {
	if c.newSpan != nil {
		return c.newSpan(a)
	}
	return ID(c.ids.Inc())
}

func (c *funcCollector) Record(id ID, r *Record) {
	if c.record != nil {
		c.record(id, r)
	}
}

func (c *funcCollector) RecordFollowsFrom(id, follows ID) {
	if c.followsFrom != nil {
		c.followsFrom(id, follows)
	}
}

func (c *funcCollector) Event(e *Event) {
	if c.event != nil {
		c.event(e)
	}
}

func (c *funcCollector) Enter(id ID) {
	if c.enter != nil {
		c.enter(id)
	}
}

func (c *funcCollector) Exit(id ID) {
	if c.exitSpan != nil {
		c.exitSpan(id)
	}
}

func (c *funcCollector) CloneSpan(id ID) ID {
	if c.cloneSpan != nil {
		return c.cloneSpan(id)
	}
	return id
}

func (c *funcCollector) TryClose(id ID) bool {
	if c.tryClose != nil {
		return c.tryClose(id)
	}
	return false
}

func (c *funcCollector) CurrentSpan() Current { return CurrentUnknown() }

// scopedInterest builds a register function that applies fn to callsites
// whose target matches, and answers "always" for everything else so that
// cross-test interest minimums stay untouched.
func scopedInterest(target string, fn func(*Metadata) Interest) func(*Metadata) Interest {
	return func(m *Metadata) Interest {
		if m.Target() != target {
			return InterestAlways
		}
		return fn(m)
	}
}
