package chunk

// Opcode is a single bytecode instruction tag (spec §4.H opcode catalogue).
// The constant, local-slot and global-name opcodes come in a short form with
// a 1-byte operand and a _LONG form with a 3-byte big-endian operand, chosen
// by emitVariableWidth in lang/compiler depending on whether the index fits
// in a byte (spec §4.G, §12). Upvalue and name-bearing opcodes have only the
// 1-byte form.
type Opcode byte

const (
	OpConstant Opcode = iota
	OpConstantLong
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpGetLocalLong
	OpSetLocal
	OpSetLocalLong
	OpGetGlobal
	OpGetGlobalLong
	OpSetGlobal
	OpSetGlobalLong
	OpDefineGlobal
	OpDefineGlobalLong
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpClosure
	OpClass
	OpMethod
	OpInherit
	OpGetProperty
	OpSetProperty
	OpInvoke
	OpGetSuper
	OpSuperInvoke
	OpReturn

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpConstant:         "OP_CONSTANT",
	OpConstantLong:     "OP_CONSTANT_LONG",
	OpNil:              "OP_NIL",
	OpTrue:             "OP_TRUE",
	OpFalse:            "OP_FALSE",
	OpPop:              "OP_POP",
	OpGetLocal:         "OP_GET_LOCAL",
	OpGetLocalLong:     "OP_GET_LOCAL_LONG",
	OpSetLocal:         "OP_SET_LOCAL",
	OpSetLocalLong:     "OP_SET_LOCAL_LONG",
	OpGetGlobal:        "OP_GET_GLOBAL",
	OpGetGlobalLong:    "OP_GET_GLOBAL_LONG",
	OpSetGlobal:        "OP_SET_GLOBAL",
	OpSetGlobalLong:    "OP_SET_GLOBAL_LONG",
	OpDefineGlobal:     "OP_DEFINE_GLOBAL",
	OpDefineGlobalLong: "OP_DEFINE_GLOBAL_LONG",
	OpGetUpvalue:       "OP_GET_UPVALUE",
	OpSetUpvalue:       "OP_SET_UPVALUE",
	OpCloseUpvalue:     "OP_CLOSE_UPVALUE",
	OpEqual:            "OP_EQUAL",
	OpGreater:          "OP_GREATER",
	OpLess:             "OP_LESS",
	OpAdd:              "OP_ADD",
	OpSubtract:         "OP_SUBTRACT",
	OpMultiply:         "OP_MULTIPLY",
	OpDivide:           "OP_DIVIDE",
	OpNot:              "OP_NOT",
	OpNegate:           "OP_NEGATE",
	OpPrint:            "OP_PRINT",
	OpJump:             "OP_JUMP",
	OpJumpIfFalse:      "OP_JUMP_IF_FALSE",
	OpLoop:             "OP_LOOP",
	OpCall:             "OP_CALL",
	OpClosure:          "OP_CLOSURE",
	OpClass:            "OP_CLASS",
	OpMethod:           "OP_METHOD",
	OpInherit:          "OP_INHERIT",
	OpGetProperty:      "OP_GET_PROPERTY",
	OpSetProperty:      "OP_SET_PROPERTY",
	OpInvoke:           "OP_INVOKE",
	OpGetSuper:         "OP_GET_SUPER",
	OpSuperInvoke:      "OP_SUPER_INVOKE",
	OpReturn:           "OP_RETURN",
}

func (op Opcode) String() string {
	if op < opcodeCount {
		if n := opcodeNames[op]; n != "" {
			return n
		}
	}
	return "OP_<unknown>"
}

// IsLong reports whether op is the 3-byte-operand variant of an indexed
// opcode pair.
func (op Opcode) IsLong() bool {
	switch op {
	case OpConstantLong, OpGetLocalLong, OpSetLocalLong, OpGetGlobalLong,
		OpSetGlobalLong, OpDefineGlobalLong:
		return true
	default:
		return false
	}
}
