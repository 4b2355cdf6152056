// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

//go:build !diagtrace_max_level_off && !diagtrace_max_level_error && !diagtrace_max_level_warn && !diagtrace_max_level_info && !diagtrace_max_level_debug

package diagtrace

// StaticMaxLevel is the compile-time level ceiling. Callsites above it are
// gated by a constant comparison, letting the compiler eliminate the whole
// instrumentation site after constant folding. Select a lower ceiling with
// one of the diagtrace_max_level_* build tags.
const StaticMaxLevel = LevelTrace
