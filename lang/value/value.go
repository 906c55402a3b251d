// Package value implements the tagged-union Value representation (spec §3,
// §4.B) and the Object header shared by every heap object (spec §3
// "HeapObject header"). ObjString also lives here rather than in lang/object:
// lang/table needs *ObjString as its key type, and lang/object needs
// lang/table for Class.Methods/Instance.Fields, so String — a leaf kind with
// no outgoing references — must sit below both to avoid an import cycle. See
// SPEC_FULL.md §0.1.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Type discriminates the four kinds of Value.
type Type uint8

const (
	Nil Type = iota
	Bool
	Number
	Obj
)

// Object is implemented by every heap-allocated value: String, Function,
// Closure, Upvalue, Class, Instance, BoundMethod, Native (spec §3 "Object
// kinds"). It is deliberately minimal: printing goes through String, GC
// tracing through the optional Tracer interface, and equality compares
// object identity.
type Object interface {
	// header returns the embedded ObjHeader so the collector and the
	// all-objects list can manipulate mark bits and the intrusive link
	// uniformly across every kind.
	header() *ObjHeader
	// Kind reports which concrete object kind this is.
	Kind() ObjKind
	// String returns the surface-language printable representation (spec §6
	// "Stdout").
	String() string
}

// Tracer is implemented by heap object kinds that hold outgoing references
// to other heap objects or Values. The collector (lang/vm) calls Trace
// during the mark phase (spec §4.I phase 2) to push each referent grey.
// Kinds with no outgoing edges need not implement it (String does not;
// Native implements it as a no-op); the collector treats a missing Tracer as
// "no edges".
type Tracer interface {
	Trace(markObj func(Object), markValue func(Value))
}

// ObjKind enumerates the heap object kinds of spec §3.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
	ObjKindUpvalue
	ObjKindClass
	ObjKindInstance
	ObjKindBoundMethod
	ObjKindNative
)

func (k ObjKind) String() string {
	switch k {
	case ObjKindString:
		return "string"
	case ObjKindFunction:
		return "function"
	case ObjKindClosure:
		return "closure"
	case ObjKindUpvalue:
		return "upvalue"
	case ObjKindClass:
		return "class"
	case ObjKindInstance:
		return "instance"
	case ObjKindBoundMethod:
		return "bound method"
	case ObjKindNative:
		return "native"
	default:
		return "unknown"
	}
}

// ObjHeader is embedded at the start of every heap object (spec §3). Marked
// is reset to false between collections; Next threads every live object into
// the VM-rooted "all-objects" singly-linked list used by sweep (spec
// invariant 1).
type ObjHeader struct {
	Marked bool
	Next   Object
}

func (h *ObjHeader) header() *ObjHeader { return h }

// Header returns o's embedded ObjHeader. Exported so lang/vm (the collector
// and the all-objects list bookkeeping at allocation time) and lang/table
// (RemoveUnmarked) can manipulate mark bits and the all-objects link without
// the Object interface exposing them to arbitrary callers.
func Header(o Object) *ObjHeader { return o.header() }

// Value is the tagged 64-bit-class cell described in spec §3: exactly one of
// nil, boolean, IEEE-754 double, or a non-owning pointer to a heap Object.
type Value struct {
	typ Type
	b   bool
	n   float64
	o   Object
}

// NilValue is the sole nil Value.
var NilValue = Value{typ: Nil}

// BoolValue constructs a boolean Value.
func BoolValue(b bool) Value { return Value{typ: Bool, b: b} }

// NumberValue constructs a numeric Value.
func NumberValue(n float64) Value { return Value{typ: Number, n: n} }

// ObjValue constructs a Value wrapping a heap Object.
func ObjValue(o Object) Value { return Value{typ: Obj, o: o} }

func (v Value) Type() Type      { return v.typ }
func (v Value) IsNil() bool     { return v.typ == Nil }
func (v Value) IsBool() bool    { return v.typ == Bool }
func (v Value) IsNumber() bool  { return v.typ == Number }
func (v Value) IsObj() bool     { return v.typ == Obj }
func (v Value) AsBool() bool    { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Object   { return v.o }

// IsObjKind reports whether v is a heap object of the given kind.
func (v Value) IsObjKind(k ObjKind) bool { return v.typ == Obj && v.o.Kind() == k }

// Truthy implements spec §4.B truthiness: false iff nil or boolean-false;
// everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.typ {
	case Nil:
		return false
	case Bool:
		return v.b
	default:
		return true
	}
}

// Equals implements the equality contract of spec §3: same-tag-same-bits for
// nil/bool/obj (object identity, sound because Strings are interned), IEEE
// equality for numbers (so NaN != NaN).
func Equals(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case Nil:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case Obj:
		return a.o == b.o
	default:
		return false
	}
}

// Printable renders v per spec §6 "Stdout": nil -> "nil"; booleans ->
// "true"/"false"; numbers via a %g-equivalent; objects defer to their own
// String method (String -> bytes, Function -> "<fn name>"/"<script>", Native
// -> "<native fn>", Class -> name, Instance -> "<ClassName> instance").
func Printable(v Value) string {
	switch v.typ {
	case Nil:
		return "nil"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.n)
	case Obj:
		return v.o.String()
	default:
		return fmt.Sprintf("<bad value type %d>", v.typ)
	}
}

// formatNumber mimics clox's printValue, which prints doubles with plain
// "%g" (6 significant digits, trailing zeros stripped), not the shortest
// round-tripping decimal.
func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(n, 'g', 6, 64)
}
