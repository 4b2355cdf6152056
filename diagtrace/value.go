// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace

import (
	"fmt"
	"math"

	"lukechampine.com/uint128"
)

// MessageField is the reserved field name carrying the human-readable
// message of an event, when the callsite declares one.
const MessageField = "message"

type valueKind uint8

const (
	kindInt64 valueKind = iota + 1
	kindUint64
	kindInt128
	kindUint128
	kindBool
	kindFloat64
	kindString
	kindError
	kindDisplay
	kindDebug
)

// Int128 is a two's-complement signed 128-bit integer, represented as a
// high signed limb and a low unsigned limb.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Int128From64 widens v to an Int128.
func Int128From64(v int64) Int128 {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return Int128{Hi: hi, Lo: uint64(v)}
}

// String implements fmt.Stringer, formatting the value in decimal.
func (v Int128) String() string {
	if v.Hi >= 0 {
		return uint128.New(v.Lo, uint64(v.Hi)).String()
	}
	// Negate the two's-complement representation to obtain the magnitude.
	lo := ^v.Lo + 1
	hi := ^uint64(v.Hi)
	if lo == 0 {
		hi++
	}
	return "-" + uint128.New(lo, hi).String()
}

// Value is one recordable datum bound to a Field of its callsite. Values
// are constructed at the instrumentation site and borrowed by the
// collector for the duration of a single visitor pass; the core never
// retains them.
type Value struct {
	field Field
	kind  valueKind
	num   uint64
	u128  uint128.Uint128
	i128  Int128
	str   string
	iface interface{}
}

// Field returns the field this value is bound to.
func (v Value) Field() Field { return v.field }

// Int64 records v as a signed 64-bit integer.
func Int64(f Field, v int64) Value {
	return Value{field: f, kind: kindInt64, num: uint64(v)}
}

// Uint64 records v as an unsigned 64-bit integer.
func Uint64(f Field, v uint64) Value {
	return Value{field: f, kind: kindUint64, num: v}
}

// Int128Value records v as a signed 128-bit integer.
func Int128Value(f Field, v Int128) Value {
	return Value{field: f, kind: kindInt128, i128: v}
}

// Uint128Value records v as an unsigned 128-bit integer.
func Uint128Value(f Field, v uint128.Uint128) Value {
	return Value{field: f, kind: kindUint128, u128: v}
}

// Bool records v as a boolean.
func Bool(f Field, v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{field: f, kind: kindBool, num: n}
}

// Float64 records v as a 64-bit float.
func Float64(f Field, v float64) Value {
	return Value{field: f, kind: kindFloat64, num: math.Float64bits(v)}
}

// Str records v as a string.
func Str(f Field, v string) Value {
	return Value{field: f, kind: kindString, str: v}
}

// Err records v as an error value.
func Err(f Field, v error) Value {
	return Value{field: f, kind: kindError, iface: v}
}

// Display records v through its String method.
func Display(f Field, v fmt.Stringer) Value {
	return Value{field: f, kind: kindDisplay, iface: v}
}

// Debug records v through the generic debug formatting fallback. Any value
// may be recorded this way.
func Debug(f Field, v interface{}) Value {
	return Value{field: f, kind: kindDebug, iface: v}
}

// Message formats a message string and binds it to the metadata's reserved
// "message" field. When the callsite does not declare a message field the
// returned value carries a zero Field and is dropped at value-set
// construction.
func Message(m *Metadata, format string, args ...interface{}) Value {
	f, ok := m.FieldByName(MessageField)
	if !ok {
		return Value{}
	}
	if len(args) == 0 {
		return Str(f, format)
	}
	return Str(f, fmt.Sprintf(format, args...))
}

// Visitor receives the values of one value set, one call per value, in
// declaration order. VisitDebug is the only required method: collectors
// that want type-specific behaviour additionally implement any of the
// typed visitor interfaces below, which are discovered by type assertion.
// A visitor pass is single-shot and non-restartable.
type Visitor interface {
	// VisitDebug receives any value whose type-specific receiver is not
	// implemented, plus values explicitly recorded as debug.
	VisitDebug(f Field, v interface{})
}

// Int64Visitor receives signed 64-bit integers.
type Int64Visitor interface {
	VisitInt64(f Field, v int64)
}

// Uint64Visitor receives unsigned 64-bit integers.
type Uint64Visitor interface {
	VisitUint64(f Field, v uint64)
}

// Int128Visitor receives signed 128-bit integers.
type Int128Visitor interface {
	VisitInt128(f Field, v Int128)
}

// Uint128Visitor receives unsigned 128-bit integers.
type Uint128Visitor interface {
	VisitUint128(f Field, v uint128.Uint128)
}

// BoolVisitor receives booleans.
type BoolVisitor interface {
	VisitBool(f Field, v bool)
}

// Float64Visitor receives 64-bit floats.
type Float64Visitor interface {
	VisitFloat64(f Field, v float64)
}

// StringVisitor receives strings.
type StringVisitor interface {
	VisitString(f Field, v string)
}

// ErrorVisitor receives error values.
type ErrorVisitor interface {
	VisitError(f Field, v error)
}

// DisplayVisitor receives values recorded through their String method.
type DisplayVisitor interface {
	VisitDisplay(f Field, v fmt.Stringer)
}

func (v Value) visit(vis Visitor) {
	switch v.kind {
	case kindInt64:
		if tv, ok := vis.(Int64Visitor); ok {
			tv.VisitInt64(v.field, int64(v.num))
			return
		}
		vis.VisitDebug(v.field, int64(v.num))
	case kindUint64:
		if tv, ok := vis.(Uint64Visitor); ok {
			tv.VisitUint64(v.field, v.num)
			return
		}
		vis.VisitDebug(v.field, v.num)
	case kindInt128:
		if tv, ok := vis.(Int128Visitor); ok {
			tv.VisitInt128(v.field, v.i128)
			return
		}
		vis.VisitDebug(v.field, v.i128)
	case kindUint128:
		if tv, ok := vis.(Uint128Visitor); ok {
			tv.VisitUint128(v.field, v.u128)
			return
		}
		vis.VisitDebug(v.field, v.u128)
	case kindBool:
		if tv, ok := vis.(BoolVisitor); ok {
			tv.VisitBool(v.field, v.num != 0)
			return
		}
		vis.VisitDebug(v.field, v.num != 0)
	case kindFloat64:
		if tv, ok := vis.(Float64Visitor); ok {
			tv.VisitFloat64(v.field, math.Float64frombits(v.num))
			return
		}
		vis.VisitDebug(v.field, math.Float64frombits(v.num))
	case kindString:
		if tv, ok := vis.(StringVisitor); ok {
			tv.VisitString(v.field, v.str)
			return
		}
		vis.VisitDebug(v.field, v.str)
	case kindError:
		if tv, ok := vis.(ErrorVisitor); ok {
			err, _ := v.iface.(error)
			tv.VisitError(v.field, err)
			return
		}
		vis.VisitDebug(v.field, v.iface)
	case kindDisplay:
		if tv, ok := vis.(DisplayVisitor); ok {
			str, _ := v.iface.(fmt.Stringer)
			tv.VisitDisplay(v.field, str)
			return
		}
		vis.VisitDebug(v.field, v.iface)
	case kindDebug:
		vis.VisitDebug(v.field, v.iface)
	}
}

// ValueSet is the ordered payload of fields attached to one span creation
// or event emission. Values bound to a different callsite's metadata are
// dropped at construction rather than observed by any visitor.
type ValueSet struct {
	meta   *Metadata
	values []Value
}

func newValueSet(m *Metadata, vals []Value) ValueSet {
	n := 0
	for _, v := range vals {
		if v.kind != 0 && v.field.meta == m {
			n++
		}
	}
	if n == len(vals) {
		return ValueSet{meta: m, values: vals}
	}
	kept := make([]Value, 0, n)
	for _, v := range vals {
		if v.kind != 0 && v.field.meta == m {
			kept = append(kept, v)
		}
	}
	return ValueSet{meta: m, values: kept}
}

// NewValueSet assembles a value set for the given metadata, preserving
// declaration order and silently dropping values whose field belongs to a
// different callsite.
func NewValueSet(m *Metadata, vals ...Value) ValueSet {
	return newValueSet(m, vals)
}

// Metadata returns the callsite metadata the set belongs to.
func (s *ValueSet) Metadata() *Metadata { return s.meta }

// Len returns the number of recorded values.
func (s *ValueSet) Len() int { return len(s.values) }

// IsEmpty reports whether the set carries no values.
func (s *ValueSet) IsEmpty() bool { return len(s.values) == 0 }

// Contains reports whether the set carries a value for f.
func (s *ValueSet) Contains(f Field) bool {
	if f.meta != s.meta || s.meta == nil {
		return false
	}
	for _, v := range s.values {
		if v.field == f {
			return true
		}
	}
	return false
}

// Record drives one visitor pass over the set in declaration order. Every
// value is delivered exactly once per call.
func (s *ValueSet) Record(vis Visitor) {
	for _, v := range s.values {
		v.visit(vis)
	}
}
