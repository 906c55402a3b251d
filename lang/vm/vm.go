// Package vm implements the stack-based bytecode interpreter of spec §4.H,
// coupled with the tracing garbage collector of spec §4.I (see gc.go): the
// two are tightly interdependent (the collector walks the VM's stack,
// frames, globals, and open-upvalue list directly), so they share this
// package rather than being split across module boundaries.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"

	"github.com/mna/clox/internal/config"
	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/compiler"
	"github.com/mna/clox/lang/debug"
	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/object"
	"github.com/mna/clox/lang/table"
	"github.com/mna/clox/lang/value"
)

// Result is the outcome of Interpret, matching spec §4.H / §7's three-way
// result and the exit codes of spec §6.
type Result int

const (
	Ok Result = iota
	CompileError
	RuntimeError
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case CompileError:
		return "compile error"
	case RuntimeError:
		return "runtime error"
	default:
		return "unknown result"
	}
}

// ErrStackOverflow is wrapped into the runtime error reported when the call
// frame stack exceeds Config.FrameMax (spec §4.H "call depth").
var ErrStackOverflow = errors.New("vm: call stack overflow")

// framesSlots bounds the stack window reserved per call frame; spec §4.G
// allows a function's local-slot operand to address up to 2^24 locals, but a
// VM with a fixed-size value stack (required for upvalue pointer stability,
// spec §3) must still pick a concrete per-frame budget. 256 matches clox's
// own UINT8_COUNT-sized per-frame stack window.
const framesSlots = 256

// CallFrame is one activation record (spec §4.H): the executing Closure, an
// instruction pointer into its Chunk, and the base stack slot the frame's
// locals start at (slot 0 is the callee itself, or the receiver for
// methods).
type CallFrame struct {
	closure  *object.Closure
	ip       int
	slotBase int
}

// VM is one bytecode interpreter instance (spec §4.H), also the Heap
// implementation lang/compiler allocates through and the collector of spec
// §4.I.
type VM struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer

	stack    []value.Value
	stackTop int
	frames   []CallFrame

	globals *table.Table
	strings *table.Table

	openUpvalues *object.Upvalue
	objects      value.Object // all-objects list head (spec invariant 1)

	codeAlloc *mem.Allocator

	bytesAllocated int
	nextGC         int
	grayStack      []value.Object

	compilerRoots []*object.Function

	initString *value.ObjString
	natives    *swiss.Map[string, *object.Native]

	startTime time.Time
}

var _ compiler.Heap = (*VM)(nil)

// New builds a VM ready to Interpret source, per cfg (spec §10.1 Config).
func New(cfg config.Config, stdout, stderr io.Writer) *VM {
	vm := &VM{
		cfg:       cfg,
		stdout:    stdout,
		stderr:    stderr,
		globals:   table.New(),
		strings:   table.New(),
		codeAlloc: mem.New(cfg.InitialHeapBytes),
		nextGC:    cfg.InitialHeapBytes,
		natives:   swiss.NewMap[string, *object.Native](8),
		startTime: time.Now(),
	}
	vm.stack = make([]value.Value, cfg.FrameMax*framesSlots)
	vm.frames = make([]CallFrame, 0, cfg.FrameMax)
	vm.initString = vm.InternString("init")
	vm.defineNative("clock", 0, vm.clockNative)
	vm.defineNative("sqrt", 1, vm.sqrtNative)
	return vm
}

// Interpret compiles and runs source to completion (spec §4.H / §4.K).
func (vm *VM) Interpret(ctx context.Context, source string) Result {
	vm.stackTop = 0
	vm.frames = vm.frames[:0]

	fn, ok := compiler.Compile(source, vm, vm.stderr)
	if !ok {
		return CompileError
	}

	vm.push(value.ObjValue(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(value.ObjValue(closure))
	vm.call(closure, 0)

	return vm.run(ctx)
}

// --- stack primitives --------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

// runtimeError writes a diagnostic plus a back-trace of every active frame
// (spec §4.H "Runtime errors", no truncation per spec §12) and resets the
// stack.
func (vm *VM) runtimeError(format string, args ...any) {
	fmt.Fprintf(vm.stderr, format, args...)
	fmt.Fprintln(vm.stderr)

	indices := make([]int, len(vm.frames))
	for i := range indices {
		indices[i] = i
	}
	slices.Reverse(indices)

	for _, i := range indices {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.GetLine(frame.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(vm.stderr, "[line %d] in %s\n", line, name)
	}
	vm.resetStack()
}

// --- the interpreter loop (spec §4.H) ------------------------------------

func (vm *VM) run(ctx context.Context) Result {
	frame := &vm.frames[len(vm.frames)-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.At(frame.ip)
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readLong := func() int {
		b0 := readByte()
		b1 := readByte()
		b2 := readByte()
		return int(b0)<<16 | int(b1)<<8 | int(b2)
	}
	readConstant := func(idx int) value.Value {
		return frame.closure.Function.Chunk.Constants[idx]
	}
	readString := func(idx int) *value.ObjString {
		return readConstant(idx).AsObj().(*value.ObjString)
	}

	for {
		select {
		case <-ctx.Done():
			vm.runtimeError("interrupted: %s", ctx.Err())
			return RuntimeError
		default:
		}

		if vm.cfg.TraceExecution {
			debug.TraceStack(vm.stderr, vm.stack[:vm.stackTop])
			debug.DisassembleInstruction(vm.stderr, frame.closure.Function.Chunk, frame.ip)
		}

		op := chunk.Opcode(readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(readConstant(int(readByte())))
		case chunk.OpConstantLong:
			vm.push(readConstant(readLong()))
		case chunk.OpNil:
			vm.push(value.NilValue)
		case chunk.OpTrue:
			vm.push(value.BoolValue(true))
		case chunk.OpFalse:
			vm.push(value.BoolValue(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			vm.push(vm.stack[frame.slotBase+int(readByte())])
		case chunk.OpGetLocalLong:
			vm.push(vm.stack[frame.slotBase+readLong()])
		case chunk.OpSetLocal:
			vm.stack[frame.slotBase+int(readByte())] = vm.peek(0)
		case chunk.OpSetLocalLong:
			vm.stack[frame.slotBase+readLong()] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString(int(readByte()))
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return RuntimeError
			}
			vm.push(v)
		case chunk.OpGetGlobalLong:
			name := readString(readLong())
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return RuntimeError
			}
			vm.push(v)

		case chunk.OpSetGlobal:
			name := readString(int(readByte()))
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return RuntimeError
			}
		case chunk.OpSetGlobalLong:
			name := readString(readLong())
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return RuntimeError
			}

		case chunk.OpDefineGlobal:
			name := readString(int(readByte()))
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpDefineGlobalLong:
			name := readString(readLong())
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case chunk.OpGetUpvalue:
			slot := int(readByte())
			vm.push(*frame.closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := int(readByte())
			*frame.closure.Upvalues[slot].Location = vm.peek(0)
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equals(a, b)))
		case chunk.OpGreater:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.BoolValue(a > b) }) {
				return RuntimeError
			}
		case chunk.OpLess:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.BoolValue(a < b) }) {
				return RuntimeError
			}
		case chunk.OpAdd:
			if !vm.add() {
				return RuntimeError
			}
		case chunk.OpSubtract:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.NumberValue(a - b) }) {
				return RuntimeError
			}
		case chunk.OpMultiply:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.NumberValue(a * b) }) {
				return RuntimeError
			}
		case chunk.OpDivide:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.NumberValue(a / b) }) {
				return RuntimeError
			}
		case chunk.OpNot:
			vm.push(value.BoolValue(!vm.pop().Truthy()))
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return RuntimeError
			}
			vm.push(value.NumberValue(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout, value.Printable(vm.pop()))

		case chunk.OpJump:
			frame.ip += readShort()
		case chunk.OpJumpIfFalse:
			offset := readShort()
			if !vm.peek(0).Truthy() {
				frame.ip += offset
			}
		case chunk.OpLoop:
			frame.ip -= readShort()

		case chunk.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return RuntimeError
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpClosure:
			fn := readConstant(int(readByte())).AsObj().(*object.Function)
			cl := vm.newClosure(fn)
			vm.push(value.ObjValue(cl))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte() == 1
				index := int(readByte())
				if isLocal {
					cl.Upvalues[i] = vm.captureUpvalue(frame.slotBase + index)
				} else {
					cl.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case chunk.OpClass:
			name := readString(int(readByte()))
			vm.push(value.ObjValue(vm.newClass(name)))

		case chunk.OpMethod:
			name := readString(int(readByte()))
			vm.defineMethod(name)

		case chunk.OpInherit:
			superclass := vm.peek(1)
			if !superclass.IsObjKind(value.ObjKindClass) {
				vm.runtimeError("Superclass must be a class.")
				return RuntimeError
			}
			subclass := vm.peek(0).AsObj().(*object.Class)
			table.AddAll(superclass.AsObj().(*object.Class).Methods, subclass.Methods)
			vm.pop() // subclass; the superclass value remains for the 'super' local

		case chunk.OpGetProperty:
			name := readString(int(readByte()))
			if !vm.peek(0).IsObjKind(value.ObjKindInstance) {
				vm.runtimeError("Only instances have properties.")
				return RuntimeError
			}
			inst := vm.peek(0).AsObj().(*object.Instance)
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(inst.Class, name) {
				return RuntimeError
			}

		case chunk.OpSetProperty:
			name := readString(int(readByte()))
			if !vm.peek(1).IsObjKind(value.ObjKindInstance) {
				vm.runtimeError("Only instances have fields.")
				return RuntimeError
			}
			inst := vm.peek(1).AsObj().(*object.Instance)
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpInvoke:
			name := readString(int(readByte()))
			argCount := int(readByte())
			if !vm.invoke(name, argCount) {
				return RuntimeError
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpGetSuper:
			name := readString(int(readByte()))
			superclass := vm.pop().AsObj().(*object.Class)
			if !vm.bindMethod(superclass, name) {
				return RuntimeError
			}

		case chunk.OpSuperInvoke:
			name := readString(int(readByte()))
			argCount := int(readByte())
			superclass := vm.pop().AsObj().(*object.Class)
			if !vm.invokeFromClass(superclass, name, argCount) {
				return RuntimeError
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotBase)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.pop()
				return Ok
			}
			vm.stackTop = frame.slotBase
			vm.push(result)
			frame = &vm.frames[len(vm.frames)-1]

		default:
			vm.runtimeError("Unknown opcode %d.", byte(op))
			return RuntimeError
		}
	}
}

func (vm *VM) numericBinary(op func(a, b float64) value.Value) bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.runtimeError("Operands must be numbers.")
		return false
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(op(a, b))
	return true
}

// add implements '+' for two numbers or two strings (spec §6); mixed
// operand kinds, or any other kind, are a runtime error.
func (vm *VM) add() bool {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		bv := vm.pop().AsNumber()
		av := vm.pop().AsNumber()
		vm.push(value.NumberValue(av + bv))
	case a.IsObjKind(value.ObjKindString) && b.IsObjKind(value.ObjKindString):
		bv := vm.pop().AsObj().(*value.ObjString)
		av := vm.pop().AsObj().(*value.ObjString)
		vm.push(value.ObjValue(vm.InternString(av.Chars + bv.Chars)))
	default:
		vm.runtimeError("Operands must be two numbers or two strings.")
		return false
	}
	return true
}

// --- calling convention (spec §4.H) --------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *object.BoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)
		case *object.Class:
			inst := vm.newInstance(obj)
			vm.stack[vm.stackTop-argCount-1] = value.ObjValue(inst)
			if initializer, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsObj().(*object.Closure), argCount)
			}
			if argCount != 0 {
				vm.runtimeError("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true
		case *object.Closure:
			return vm.call(obj, argCount)
		case *object.Native:
			return vm.callNative(obj, argCount)
		}
	}
	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) call(closure *object.Closure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if len(vm.frames) >= vm.cfg.FrameMax {
		vm.runtimeError("%s", ErrStackOverflow)
		return false
	}
	vm.frames = append(vm.frames, CallFrame{closure: closure, slotBase: vm.stackTop - argCount - 1})
	return true
}

func (vm *VM) callNative(n *object.Native, argCount int) bool {
	if argCount != n.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", n.Arity, argCount)
		return false
	}
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]
	result, err := n.Fn(args)
	if err != nil {
		vm.runtimeError("%s", err.Error())
		return false
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return true
}

func (vm *VM) invoke(name *value.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsObjKind(value.ObjKindInstance) {
		vm.runtimeError("Only instances have methods.")
		return false
	}
	inst := receiver.AsObj().(*object.Instance)
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *object.Class, name *value.ObjString, argCount int) bool {
	m, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(m.AsObj().(*object.Closure), argCount)
}

func (vm *VM) bindMethod(class *object.Class, name *value.ObjString) bool {
	m, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	bound := vm.newBoundMethod(vm.peek(0), m.AsObj().(*object.Closure))
	vm.pop()
	vm.push(value.ObjValue(bound))
	return true
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*object.Class)
	class.Methods.Set(name, method)
	vm.pop()
}

// --- upvalues (spec §3, §4.H "Upvalue capture") --------------------------

// captureUpvalue returns the open Upvalue for stack slot idx, reusing one
// already open for that exact slot (spec invariant: at most one Upvalue
// object per live stack slot).
func (vm *VM) captureUpvalue(idx int) *object.Upvalue {
	var prev *object.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.StackIndex > idx {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.StackIndex == idx {
		return cur
	}

	created := vm.newUpvalue(&vm.stack[idx])
	created.StackIndex = idx
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open Upvalue at or above stack slot fromIdx,
// copying its value in and severing Location from the stack (spec §3
// "closed" lifecycle), called on scope exit and return.
func (vm *VM) closeUpvalues(fromIdx int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackIndex >= fromIdx {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
	}
}

// --- compiler.Heap implementation -----------------------------------------

// InternString returns the unique *value.ObjString for chars, allocating and
// registering one if this is the first occurrence (spec §4.D "interning").
func (vm *VM) InternString(chars string) *value.ObjString {
	hash := value.HashString(chars)
	if s := vm.strings.FindByBytes(chars, hash); s != nil {
		return s
	}
	s := value.NewString(chars)
	vm.registerObject(s)
	vm.strings.Set(s, value.NilValue)
	return s
}

func (vm *VM) NewChunk() *chunk.Chunk { return chunk.New(vm.codeAlloc) }

func (vm *VM) NewFunction(c *chunk.Chunk) *object.Function {
	fn := object.NewFunction(c)
	vm.registerObject(fn)
	return fn
}

func (vm *VM) PushCompilerRoot(fn *object.Function) {
	vm.compilerRoots = append(vm.compilerRoots, fn)
}

func (vm *VM) PopCompilerRoot() {
	vm.compilerRoots = vm.compilerRoots[:len(vm.compilerRoots)-1]
}

func (vm *VM) newClosure(fn *object.Function) *object.Closure {
	cl := object.NewClosure(fn)
	vm.registerObject(cl)
	return cl
}

func (vm *VM) newUpvalue(slot *value.Value) *object.Upvalue {
	uv := object.NewUpvalue(slot)
	vm.registerObject(uv)
	return uv
}

func (vm *VM) newClass(name *value.ObjString) *object.Class {
	cl := object.NewClass(name)
	vm.registerObject(cl)
	return cl
}

func (vm *VM) newInstance(cl *object.Class) *object.Instance {
	inst := object.NewInstance(cl)
	vm.registerObject(inst)
	return inst
}

func (vm *VM) newBoundMethod(receiver value.Value, method *object.Closure) *object.BoundMethod {
	bm := object.NewBoundMethod(receiver, method)
	vm.registerObject(bm)
	return bm
}

func (vm *VM) defineNative(name string, arity int, fn object.NativeFn) {
	n := object.NewNative(name, arity, fn)
	vm.registerObject(n)
	vm.natives.Put(name, n)
	s := vm.InternString(name)
	vm.globals.Set(s, value.ObjValue(n))
}
