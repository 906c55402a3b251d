// Package debug implements the textual bytecode disassembler of spec §4.J:
// a human-readable dump of a Chunk's instructions, their operands, and the
// value stack. The VM's trace-execution mode (Config.TraceExecution) uses
// TraceStack and DisassembleInstruction; Disassemble dumps a whole chunk.
package debug

import (
	"fmt"
	"io"

	"github.com/dolthub/swiss"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/object"
	"github.com/mna/clox/lang/value"
)

// opcodeByName is the reverse of chunk.Opcode.String(), read by
// LookupOpcode.
var opcodeByName *swiss.Map[string, chunk.Opcode]

func init() {
	all := []chunk.Opcode{
		chunk.OpConstant, chunk.OpConstantLong, chunk.OpNil, chunk.OpTrue, chunk.OpFalse,
		chunk.OpPop, chunk.OpGetLocal, chunk.OpGetLocalLong, chunk.OpSetLocal, chunk.OpSetLocalLong,
		chunk.OpGetGlobal, chunk.OpGetGlobalLong, chunk.OpSetGlobal, chunk.OpSetGlobalLong,
		chunk.OpDefineGlobal, chunk.OpDefineGlobalLong, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
		chunk.OpCloseUpvalue, chunk.OpEqual, chunk.OpGreater, chunk.OpLess, chunk.OpAdd,
		chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide, chunk.OpNot, chunk.OpNegate,
		chunk.OpPrint, chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop, chunk.OpCall,
		chunk.OpClosure, chunk.OpClass, chunk.OpMethod, chunk.OpInherit, chunk.OpGetProperty,
		chunk.OpSetProperty, chunk.OpInvoke, chunk.OpGetSuper, chunk.OpSuperInvoke, chunk.OpReturn,
	}
	opcodeByName = swiss.NewMap[string, chunk.Opcode](uint32(len(all)))
	for _, op := range all {
		opcodeByName.Put(op.String(), op)
	}
}

// LookupOpcode returns the Opcode for its mnemonic (e.g. "OP_ADD"), for
// tooling that needs to go from name back to value.
func LookupOpcode(name string) (chunk.Opcode, bool) {
	return opcodeByName.Get(name)
}

// Disassemble dumps every instruction in c to w, prefixed by name (spec
// §4.J).
func Disassemble(w io.Writer, c *chunk.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < c.Len(); {
		offset = DisassembleInstruction(w, c, offset)
	}
}

// DisassembleInstruction prints the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	line := c.GetLine(offset)
	if offset > 0 && line == c.GetLine(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", line)
	}

	op := chunk.Opcode(c.At(offset))
	switch op {
	case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetGlobal,
		chunk.OpSetGlobal, chunk.OpDefineGlobal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
		chunk.OpCall, chunk.OpClass, chunk.OpMethod, chunk.OpGetProperty, chunk.OpSetProperty,
		chunk.OpGetSuper:
		return byteInstruction(w, c, op, offset)
	case chunk.OpConstantLong, chunk.OpGetLocalLong, chunk.OpSetLocalLong,
		chunk.OpGetGlobalLong, chunk.OpSetGlobalLong, chunk.OpDefineGlobalLong:
		return longInstruction(w, c, op, offset)
	case chunk.OpClosure:
		return closureInstruction(w, c, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, c, offset)
	case chunk.OpLoop:
		return jumpInstruction(w, op, -1, c, offset)
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		return invokeInstruction(w, c, op, offset)
	default:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}

func simpleOperand(c *chunk.Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "<out of range>"
	}
	return value.Printable(c.Constants[idx])
}

func byteInstruction(w io.Writer, c *chunk.Chunk, op chunk.Opcode, offset int) int {
	slot := c.At(offset + 1)
	switch op {
	case chunk.OpConstant, chunk.OpGetGlobal, chunk.OpSetGlobal, chunk.OpDefineGlobal,
		chunk.OpClass, chunk.OpMethod, chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper:
		fmt.Fprintf(w, "%-16s %4d '%s'\n", op, slot, simpleOperand(c, int(slot)))
	default:
		fmt.Fprintf(w, "%-16s %4d\n", op, slot)
	}
	return offset + 2
}

func longInstruction(w io.Writer, c *chunk.Chunk, op chunk.Opcode, offset int) int {
	idx := int(c.At(offset+1))<<16 | int(c.At(offset+2))<<8 | int(c.At(offset+3))
	switch op {
	case chunk.OpConstantLong, chunk.OpGetGlobalLong, chunk.OpSetGlobalLong, chunk.OpDefineGlobalLong:
		fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, simpleOperand(c, idx))
	default:
		fmt.Fprintf(w, "%-16s %4d\n", op, idx)
	}
	return offset + 4
}

func jumpInstruction(w io.Writer, op chunk.Opcode, sign int, c *chunk.Chunk, offset int) int {
	jump := int(c.At(offset+1))<<8 | int(c.At(offset + 2))
	target := offset + 3 + sign*jump
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, target)
	return offset + 3
}

func closureInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	idx := int(c.At(offset + 1))
	fmt.Fprintf(w, "%-16s %4d '%s'\n", chunk.OpClosure, idx, simpleOperand(c, idx))
	offset += 2

	// Each upvalue descriptor is 2 bytes (isLocal flag, index); the count
	// comes from the Function constant just printed above.
	if fn, ok := c.Constants[idx].AsObj().(*object.Function); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.At(offset)
			index := c.At(offset + 1)
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, index)
			offset += 2
		}
	}
	return offset
}

func invokeInstruction(w io.Writer, c *chunk.Chunk, op chunk.Opcode, offset int) int {
	nameIdx := int(c.At(offset + 1))
	argCount := c.At(offset + 2)
	fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", op, argCount, nameIdx, simpleOperand(c, nameIdx))
	return offset + 3
}

// TraceStack prints the live portion of the value stack on one line, as
// clox's debug_trace_execution does before every instruction.
func TraceStack(w io.Writer, stack []value.Value) {
	fmt.Fprint(w, "          ")
	for _, v := range stack {
		fmt.Fprintf(w, "[ %s ]", value.Printable(v))
	}
	fmt.Fprintln(w)
}
