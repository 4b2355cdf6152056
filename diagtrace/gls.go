// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"github.com/petermattis/goid"
	"github.com/puzpuzpuz/xsync/v3"
)

// goroutineState carries the per-goroutine pieces of the core: the
// current-span stack, the scoped default dispatcher, and the re-entrancy
// flag raised while a RegisterCallsite callback runs. Entries are created
// lazily on first use and removed as soon as they are empty again, so a
// goroutine that never instruments costs nothing and a goroutine that
// exits cleanly leaves nothing behind.
//
// A goroutineState is only ever read and written by its own goroutine;
// the map itself provides the cross-goroutine safety for create/delete.
type goroutineState struct {
	stack      spanStack
	scoped     *Dispatch
	inRegister bool
}

func (g *goroutineState) empty() bool {
	return len(g.stack.stack) == 0 && g.scoped == nil && !g.inRegister
}

var goroutines = xsync.NewMapOf[int64, *goroutineState]()

// glsGet returns the calling goroutine's state, creating it if needed.
func glsGet() *goroutineState {
	id := goid.Get()
	if g, ok := goroutines.Load(id); ok {
		return g
	}
	g := &goroutineState{}
	goroutines.Store(id, g)
	return g
}

// glsPeek returns the calling goroutine's state without creating it.
func glsPeek() *goroutineState {
	g, _ := goroutines.Load(goid.Get())
	return g
}

// glsRelease drops the state when nothing references it anymore.
func glsRelease(g *goroutineState) {
	if g.empty() {
		goroutines.Delete(goid.Get())
	}
}
