// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

//go:build diagtrace_max_level_debug && !diagtrace_max_level_off && !diagtrace_max_level_error && !diagtrace_max_level_warn && !diagtrace_max_level_info

package diagtrace

const StaticMaxLevel = LevelDebug
