// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package diagtrace is the core of a structured, context-aware
// diagnostics framework. Applications and libraries annotate their code
// with spans, which delimit units of work, and events, which mark points
// in time; pluggable collectors consume both to produce logs, traces,
// metrics or anything else.
//
// The package owns no goroutines, performs no I/O, defines no wire
// format and never buffers: it is the plumbing between instrumentation
// sites and whichever Collector is installed, built so that a disabled
// site costs one atomic load.
//
// # Callsites
//
// Every instrumentation site is described by a static Callsite, normally
// a package-level variable:
//
//	var evConnect = diagtrace.InfoSite("connect", "mypkg.server", "peer", "message")
//
//	func (s *server) connect(peer string) {
//		diagtrace.Emit(evConnect, diagtrace.WithValues(
//			diagtrace.Str(mustField(evConnect, "peer"), peer),
//			diagtrace.Message(evConnect.Metadata(), "peer connected"),
//		))
//	}
//
// Collectors declare per-callsite interest once; the answer is cached on
// the callsite and consulted with a single atomic load on every
// subsequent operation. Installing a collector invalidates every cache.
//
// # Spans
//
//	var spanHandle = diagtrace.SpanSite(diagtrace.LevelDebug, "handle", "mypkg.server", "req.id")
//
//	span := diagtrace.StartSpan(spanHandle, diagtrace.WithValues(...))
//	defer span.Close()
//	entered := span.Enter()
//	defer entered.Exit()
//
// Span identities are minted and reference-counted by the collector;
// handles balance CloneSpan and TryClose for the caller.
//
// # Collectors
//
// A Collector is installed by wrapping it in a Dispatch and either
// installing it process-wide (SetGlobalDefault, once per process),
// shadowing the process default temporarily (SetGlobalScoped), or
// scoping it to the calling goroutine (SetDefault, WithDefault).
package diagtrace
