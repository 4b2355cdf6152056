// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package log provides the internal logging of the diagnostics core. It
// is only ever used for misuse reports and never on a hot path; the
// default output goes through logrus so that host applications which
// already configure it inherit the destination and formatting.
package log

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level specifies the logging levels the internal logger supports.
type Level int

const (
	// LevelDebug represents debug-level messages.
	LevelDebug Level = iota
	// LevelInfo represents informational messages.
	LevelInfo
	// LevelWarn represents warning messages.
	LevelWarn
	// LevelError represents error messages.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger implementations are able to log given messages.
type Logger interface {
	// Log prints the given message.
	Log(msg string)
}

var (
	mu             sync.RWMutex
	levelThreshold = LevelWarn
	logger         Logger = &logrusLogger{l: logrus.StandardLogger()}
)

// logrusLogger is the default Logger.
type logrusLogger struct {
	l *logrus.Logger
}

func (p *logrusLogger) Log(msg string) { p.l.Print(msg) }

// UseLogger sets l as the active logger and returns a function restoring
// the previous one.
func UseLogger(l Logger) (undo func()) {
	mu.Lock()
	defer mu.Unlock()
	old := logger
	logger = l
	return func() {
		mu.Lock()
		defer mu.Unlock()
		logger = old
	}
}

// SetLevel sets the minimum level which will be printed.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	levelThreshold = lvl
}

// DebugEnabled reports whether debug log messages are enabled.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return levelThreshold <= LevelDebug
}

// Debug prints the given message if the level is LevelDebug.
func Debug(format string, a ...interface{}) {
	if !DebugEnabled() {
		return
	}
	printMsg(LevelDebug, format, a...)
}

// Info prints an informational message.
func Info(format string, a ...interface{}) {
	printMsg(LevelInfo, format, a...)
}

// Warn prints a warning message.
func Warn(format string, a ...interface{}) {
	printMsg(LevelWarn, format, a...)
}

// Error prints an error message.
func Error(format string, a ...interface{}) {
	printMsg(LevelError, format, a...)
}

func printMsg(lvl Level, format string, a ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if lvl < levelThreshold {
		return
	}
	logger.Log(fmt.Sprintf("%s: %s", lvl, fmt.Sprintf(format, a...)))
}

// RecordLogger records every call to Log and makes it available via Logs.
type RecordLogger struct {
	m       sync.Mutex
	logs    []string
	ignored []string
}

// Ignore adds substrings to the ignore set; messages containing any of
// them are dropped instead of recorded.
func (r *RecordLogger) Ignore(substrings ...string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.ignored = append(r.ignored, substrings...)
}

// Log implements Logger.
func (r *RecordLogger) Log(msg string) {
	r.m.Lock()
	defer r.m.Unlock()
	for _, ignored := range r.ignored {
		if strings.Contains(msg, ignored) {
			return
		}
	}
	r.logs = append(r.logs, msg)
}

// Logs returns the ordered list of logs recorded by the logger.
func (r *RecordLogger) Logs() []string {
	r.m.Lock()
	defer r.m.Unlock()
	copied := make([]string, len(r.logs))
	copy(copied, r.logs)
	return copied
}

// Reset resets the logger's internal records and ignore set.
func (r *RecordLogger) Reset() {
	r.m.Lock()
	defer r.m.Unlock()
	r.logs = r.logs[:0]
	r.ignored = r.ignored[:0]
}
