package vm

import (
	"fmt"

	"github.com/mna/clox/lang/value"
)

// allocUnit is the approximate number of "allocation units" charged for each
// object kind when deciding whether to collect (spec §4.I "threshold
// trigger, then grow by factor"). Go does not expose a cheap, portable
// sizeof for heterogeneous struct kinds the way C's malloc bookkeeping does,
// so the collector counts weighted allocations instead of raw bytes; the
// trigger/grow behavior spec §4.I describes is preserved even though the
// unit differs (documented in DESIGN.md).
func allocUnit(k value.ObjKind) int {
	switch k {
	case value.ObjKindString:
		return 32
	case value.ObjKindUpvalue, value.ObjKindNative:
		return 48
	case value.ObjKindBoundMethod:
		return 56
	case value.ObjKindClosure:
		return 64
	case value.ObjKindFunction:
		return 96
	case value.ObjKindClass, value.ObjKindInstance:
		return 80
	default:
		return 48
	}
}

// registerObject charges o's allocation unit, triggers a collection if the
// stress flag is set or the running total has crossed nextGC (spec §4.I
// "every allocation may trigger collection"), and then links o into the
// all-objects list. Linking after the collection keeps the object being
// registered out of that collection's sweep.
func (vm *VM) registerObject(o value.Object) {
	vm.bytesAllocated += allocUnit(o.Kind())

	if vm.cfg.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}

	h := value.Header(o)
	h.Next = vm.objects
	vm.objects = o
}

// collectGarbage runs one full tri-color mark-sweep cycle (spec §4.I):
// mark roots, trace until the grey set is empty, drop unmarked keys from
// the intern table (so dead strings are never observed as "found" again),
// sweep the all-objects list, then grow the next threshold.
func (vm *VM) collectGarbage() {
	if vm.cfg.LogGC {
		fmt.Fprintln(vm.stderr, "-- gc begin")
	}
	before := vm.bytesAllocated

	vm.markRoots()
	vm.traceReferences()
	vm.strings.RemoveUnmarked()
	vm.sweep()

	next := int(float64(vm.bytesAllocated) * vm.cfg.GCGrowFactor)
	if next < vm.cfg.InitialHeapBytes {
		next = vm.cfg.InitialHeapBytes
	}
	vm.nextGC = next

	if vm.cfg.LogGC {
		fmt.Fprintf(vm.stderr, "-- gc end, collected %d units, %d -> %d, next at %d\n",
			before-vm.bytesAllocated, before, vm.bytesAllocated, vm.nextGC)
	}
}

// markRoots marks every GC root (spec §4.I phase 1): the value stack, open
// call frames' closures, the open-upvalues list, the globals table, any
// Function still under compilation, and the cached init string. The intern
// table is not a root: its unmarked keys are dropped before sweep.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := range vm.frames {
		vm.markObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		vm.markObject(uv)
	}
	vm.globals.Each(func(k *value.ObjString, v value.Value) {
		vm.markObject(k)
		vm.markValue(v)
	})
	for _, fn := range vm.compilerRoots {
		vm.markObject(fn)
	}
	if vm.initString != nil {
		vm.markObject(vm.initString)
	}
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

// markObject marks o grey (pushes it onto the gray stack) the first time it
// is seen; already-marked objects are skipped (spec §4.I "tri-color", the
// gray stack here is a plain Go slice — explicitly not the program's own
// lang/mem allocator, which is scoped to bytecode buffers only).
func (vm *VM) markObject(o value.Object) {
	if o == nil {
		return
	}
	h := value.Header(o)
	if h.Marked {
		return
	}
	h.Marked = true
	vm.grayStack = append(vm.grayStack, o)
}

// traceReferences drains the gray stack, calling Trace on every object that
// implements value.Tracer (spec §4.I phase 2) until no grey objects remain.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		o := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]

		if t, ok := o.(value.Tracer); ok {
			t.Trace(vm.markObject, vm.markValue)
		}
	}
}

// sweep walks the all-objects list (spec invariant 1), freeing every
// unmarked node and resetting the mark bit on survivors for the next cycle.
func (vm *VM) sweep() {
	var prev value.Object
	cur := vm.objects
	for cur != nil {
		h := value.Header(cur)
		if h.Marked {
			h.Marked = false
			prev = cur
			cur = h.Next
			continue
		}

		unreached := cur
		cur = h.Next
		if prev != nil {
			value.Header(prev).Next = cur
		} else {
			vm.objects = cur
		}
		vm.bytesAllocated -= allocUnit(unreached.Kind())
		if vm.bytesAllocated < 0 {
			vm.bytesAllocated = 0
		}
	}
}
