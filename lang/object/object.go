// Package object implements the heap object kinds of spec §3/§4.C that sit
// above lang/value and lang/table in the dependency layering described in
// SPEC_FULL.md §0.1: Function, Closure, Upvalue, Class, Instance,
// BoundMethod, and Native. (String, the remaining kind, lives in lang/value;
// see that package's doc comment.)
package object

import (
	"fmt"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/table"
	"github.com/mna/clox/lang/value"
)

// Function is a compiled top-level or nested function (spec §3).
type Function struct {
	value.ObjHeader
	Arity        int
	UpvalueCount int
	Name         *value.ObjString // nil for the synthetic top-level <script>
	Chunk        *chunk.Chunk
}

var _ value.Object = (*Function)(nil)

func NewFunction(c *chunk.Chunk) *Function {
	return &Function{Chunk: c}
}

func (f *Function) Kind() value.ObjKind { return value.ObjKindFunction }

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// Trace reports f's outgoing GC edges: its name and its constant pool (spec
// §4.I phase 2 "Function -> name + constants").
func (f *Function) Trace(markObj func(value.Object), markValue func(value.Value)) {
	if f.Name != nil {
		markObj(f.Name)
	}
	for _, c := range f.Chunk.Constants {
		markValue(c)
	}
}

// Upvalue is the runtime shim of spec §3: "open" while Location points into
// a live stack slot, "closed" once that slot is popped and the value is
// copied into Closed. Next threads the VM's openUpvalues list, ordered by
// descending stack address (spec §4.H "Upvalue capture").
type Upvalue struct {
	value.ObjHeader
	Location *value.Value // points into a VM stack slot, or at &Closed once closed
	Closed   value.Value
	Next     *Upvalue

	// StackIndex is the stack slot Location originally pointed at, while open.
	// The VM's open-upvalues list is kept ordered by descending StackIndex so
	// closeUpvalues can find everything above a given frame; Go disallows
	// ordering comparisons on pointers, so this integer stands in for the
	// pointer-address comparisons clox performs directly on C pointers.
	StackIndex int
}

var _ value.Object = (*Upvalue)(nil)

func NewUpvalue(slot *value.Value) *Upvalue {
	u := &Upvalue{}
	u.Location = slot
	return u
}

func (u *Upvalue) Kind() value.ObjKind { return value.ObjKindUpvalue }
func (u *Upvalue) String() string      { return "upvalue" }

// IsClosed reports whether Close has been called on u.
func (u *Upvalue) IsClosed() bool { return u.Location == &u.Closed }

// Close copies the current value out of the stack slot into Closed and
// retargets Location at it, per spec §3's Upvalue lifecycle.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// Trace reports u's sole outgoing edge: Closed is always safe to mark even
// while still open, since in that state it simply holds a stale copy that
// does no harm to mark (spec §4.I phase 2 "Upvalue -> closed (always safe
// even when open)").
func (u *Upvalue) Trace(_ func(value.Object), markValue func(value.Value)) {
	markValue(u.Closed)
}

// Closure is the runtime binding of a Function with its captured Upvalues
// (spec §3).
type Closure struct {
	value.ObjHeader
	Function *Function
	Upvalues []*Upvalue
}

var _ value.Object = (*Closure)(nil)

func NewClosure(fn *Function) *Closure {
	return &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
}

func (c *Closure) Kind() value.ObjKind { return value.ObjKindClosure }
func (c *Closure) String() string      { return c.Function.String() }

func (c *Closure) Trace(markObj func(value.Object), _ func(value.Value)) {
	markObj(c.Function)
	for _, uv := range c.Upvalues {
		if uv != nil {
			markObj(uv)
		}
	}
}

// Class is a class definition: a name and a method table (spec §3).
type Class struct {
	value.ObjHeader
	Name    *value.ObjString
	Methods *table.Table
}

var _ value.Object = (*Class)(nil)

func NewClass(name *value.ObjString) *Class {
	return &Class{Name: name, Methods: table.New()}
}

func (cl *Class) Kind() value.ObjKind { return value.ObjKindClass }
func (cl *Class) String() string      { return cl.Name.Chars }

func (cl *Class) Trace(markObj func(value.Object), markValue func(value.Value)) {
	markObj(cl.Name)
	cl.Methods.Each(func(k *value.ObjString, v value.Value) {
		markObj(k)
		markValue(v)
	})
}

// Instance is a runtime object of a Class, holding its own field table (spec
// §3).
type Instance struct {
	value.ObjHeader
	Class  *Class
	Fields *table.Table
}

var _ value.Object = (*Instance)(nil)

func NewInstance(cl *Class) *Instance {
	return &Instance{Class: cl, Fields: table.New()}
}

func (i *Instance) Kind() value.ObjKind { return value.ObjKindInstance }
func (i *Instance) String() string      { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

func (i *Instance) Trace(markObj func(value.Object), markValue func(value.Value)) {
	markObj(i.Class)
	i.Fields.Each(func(k *value.ObjString, v value.Value) {
		markObj(k)
		markValue(v)
	})
}

// BoundMethod pairs a receiver with the Closure to invoke on it (spec §3),
// produced by property access that resolves to a method rather than a field.
type BoundMethod struct {
	value.ObjHeader
	Receiver value.Value
	Method   *Closure
}

var _ value.Object = (*BoundMethod)(nil)

func NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	return &BoundMethod{Receiver: receiver, Method: method}
}

func (b *BoundMethod) Kind() value.ObjKind { return value.ObjKindBoundMethod }
func (b *BoundMethod) String() string      { return b.Method.String() }

func (b *BoundMethod) Trace(markObj func(value.Object), markValue func(value.Value)) {
	markValue(b.Receiver)
	markObj(b.Method)
}

// NativeFn is a host-implemented callable. It receives a view into its
// argument region of the VM's value stack and returns a result or an error
// (spec §4.H calling convention, spec §9 "Native function surface").
type NativeFn func(args []value.Value) (value.Value, error)

// Native wraps a host function pointer with its expected arity (spec §3).
type Native struct {
	value.ObjHeader
	Name  string
	Arity int
	Fn    NativeFn
}

var _ value.Object = (*Native)(nil)

func NewNative(name string, arity int, fn NativeFn) *Native {
	return &Native{Name: name, Arity: arity, Fn: fn}
}

func (n *Native) Kind() value.ObjKind { return value.ObjKindNative }
func (n *Native) String() string      { return "<native fn>" }

// Trace is a no-op: natives hold no outgoing heap references (spec §4.I
// phase 2 "Native and String — no outgoing edges").
func (n *Native) Trace(func(value.Object), func(value.Value)) {}
