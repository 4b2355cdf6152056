// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"fmt"
	"strings"

	"go.uber.org/atomic"
)

// Level describes the verbosity of a callsite. Levels form a total order
// from LevelError (least verbose) to LevelTrace (most verbose): a ceiling
// of LevelInfo admits error, warn and info sites and rejects debug and
// trace sites.
type Level int32

const (
	// LevelError designates very serious errors.
	LevelError Level = iota + 1
	// LevelWarn designates hazardous situations.
	LevelWarn
	// LevelInfo designates useful information.
	LevelInfo
	// LevelDebug designates lower priority information.
	LevelDebug
	// LevelTrace designates very low priority, often extremely verbose,
	// information.
	LevelTrace
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return fmt.Sprintf("Level(%d)", int32(l))
	}
}

// ParseLevel returns the Level named by s, ignoring case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	}
	return 0, fmt.Errorf("diagtrace: unknown level %q", s)
}

// Enables reports whether a ceiling of l admits a callsite at level site.
func (l Level) Enables(site Level) bool {
	return site <= l && site > 0
}

// runtimeMaxLevel is the most verbose level any live collector has hinted
// interest in. It is refreshed on every interest rebuild and defaults to
// LevelTrace (no cap) when a collector declines to hint.
var runtimeMaxLevel = atomic.NewInt32(int32(LevelTrace))

// MaxLevel returns the current runtime level ceiling. The value is
// advisory: it lets callers short-circuit expensive argument construction,
// but the per-callsite interest cache remains the authoritative gate.
func MaxLevel() Level {
	return Level(runtimeMaxLevel.Load())
}

// LevelEnabled reports whether a callsite at level l could possibly
// dispatch, consulting only the static ceiling and the runtime ceiling.
// It performs no callsite registration and has no side effects.
func LevelEnabled(l Level) bool {
	return StaticMaxLevel.Enables(l) && MaxLevel().Enables(l)
}

func updateMaxLevel(ds []*Dispatch) {
	max := Level(0)
	for _, d := range ds {
		hint, ok := d.maxLevelHint()
		if !ok {
			// A collector with no opinion may enable anything.
			max = LevelTrace
			break
		}
		if hint > max {
			max = hint
		}
	}
	runtimeMaxLevel.Store(int32(max))
}
