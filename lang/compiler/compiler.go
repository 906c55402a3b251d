// Package compiler implements the single-pass Pratt compiler of spec §4.G:
// one pass over the token stream that emits bytecode directly into a Chunk,
// with no intermediate AST, tracking lexical scopes, upvalue capture, and
// class/method context as it goes.
package compiler

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/object"
	"github.com/mna/clox/lang/scanner"
	"github.com/mna/clox/lang/token"
	"github.com/mna/clox/lang/value"
)

// Heap is the allocation surface the compiler needs from its host VM: string
// interning (shared with the VM proper, so that "ab" == "a"+"b" holds, spec
// §8) and Function/Chunk construction, both of which are heap allocations
// that must participate in the VM's "every allocation may trigger
// collection" contract (spec §4.I). Defining this interface here, rather
// than importing lang/vm, is what keeps the dependency graph acyclic: vm
// imports compiler and implements Heap, compiler never imports vm.
type Heap interface {
	InternString(chars string) *value.ObjString
	NewChunk() *chunk.Chunk
	NewFunction(c *chunk.Chunk) *object.Function

	// PushCompilerRoot and PopCompilerRoot let the collector walk the chain of
	// Functions currently under construction (spec §3 "Compiler objects...
	// the collector must still mark them while compilation is in progress").
	PushCompilerRoot(fn *object.Function)
	PopCompilerRoot()
}

// FunctionType distinguishes the kind of function body currently being
// compiled (spec §4.G "Nested Compiler state").
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// MaxLocals bounds the number of locals visible in one function body to what
// a 3-byte local-slot operand can address (clox's UINT8_COUNT-based locals
// array, generalized to the long-opcode range).
const MaxLocals = 1 << 24

// MaxUpvalues bounds a single function's upvalue list; an upvalue index is
// encoded as a 1-byte operand.
const MaxUpvalues = 256

// MaxCallArgs bounds a single call's argument count (spec §7 "too many...
// arguments").
const MaxCallArgs = 255

type local struct {
	name       token.Token
	depth      int // -1 if declared but not yet defined
	isCaptured bool
}

type upvalueDesc struct {
	index   int
	isLocal bool
}

// fnState is the per-function-being-compiled state of spec §4.G.
type fnState struct {
	enclosing *fnState
	function  *object.Function
	typ       FunctionType

	locals     []local
	upvalues   []upvalueDesc
	scopeDepth int
}

// classState is the parallel class-nested state chain of spec §4.G.
type classState struct {
	enclosing      *classState
	hasSuperclass  bool
}

// Compiler drives one top-to-bottom compilation of a source string to a
// top-level Function (spec §4.G "Top-level entry").
type Compiler struct {
	scanner *scanner.Scanner
	heap    Heap
	stderr  io.Writer

	current  token.Token
	previous token.Token

	hadError   bool
	panicMode  bool

	fn    *fnState
	class *classState
}

// Compile compiles source to a top-level Function, matching spec §4.G:
// `compile(source) → Function | error`. It returns (fn, true) on success, or
// (nil, false) after writing one diagnostic per logical error to stderr.
func Compile(source string, heap Heap, stderr io.Writer) (*object.Function, bool) {
	c := &Compiler{
		scanner: scanner.New(source),
		heap:    heap,
		stderr:  stderr,
	}
	c.beginFunction(TypeScript, "")

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}

	fn := c.endFunction()
	if c.hadError {
		return nil, false
	}
	return fn, true
}

// --- token stream plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.ScanToken()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Msg)
	}
}

func (c *Compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) lexeme(t token.Token) string { return c.scanner.Lexeme(t) }

// --- error reporting (spec §4.G "Error handling", §7) ----------------------

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)           { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(t token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	if c.stderr == nil {
		return
	}
	fmt.Fprintf(c.stderr, "[line %d] Error", t.Line)
	switch t.Kind {
	case token.EOF:
		fmt.Fprint(c.stderr, " at end")
	case token.ILLEGAL:
		// lexical errors carry their own message already
	default:
		fmt.Fprintf(c.stderr, " at '%s'", c.lexeme(t))
	}
	fmt.Fprintf(c.stderr, ": %s\n", msg)
}

// syncKinds are the statement-starting keywords synchronize() resumes at.
var syncKinds = []token.Kind{
	token.CLASS, token.FUN, token.VAR, token.FOR, token.IF,
	token.WHILE, token.PRINT, token.RETURN,
}

// synchronize consumes tokens until a semicolon or a statement-starting
// keyword, ending panic mode (spec §4.G).
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMICOLON {
			return
		}
		if slices.Contains(syncKinds, c.current.Kind) {
			return
		}
		c.advance()
	}
}

// --- chunk emission ---------------------------------------------------------

func (c *Compiler) currentChunk() *chunk.Chunk { return c.fn.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op chunk.Opcode) { c.emitByte(byte(op)) }

func (c *Compiler) emitBytes(b1, b2 byte) {
	c.emitByte(b1)
	c.emitByte(b2)
}

func (c *Compiler) emitOpByte(op chunk.Opcode, b byte) {
	c.emitByte(byte(op))
	c.emitByte(b)
}

// emitVariableWidth is the single path (spec §12) used for the constant,
// global-name and local-slot opcodes: it picks the 1-byte short opcode when
// index fits in a byte, else the 3-byte big-endian long opcode. Upvalue slots
// and name-bearing opcodes always take a 1-byte operand.
func (c *Compiler) emitVariableWidth(short, long chunk.Opcode, index int) {
	if index <= 0xff {
		c.emitOpByte(short, byte(index))
		return
	}
	c.emitByte(byte(long))
	c.emitByte(byte(index >> 16))
	c.emitByte(byte(index >> 8))
	c.emitByte(byte(index))
}

// emitJump emits op followed by a 2-byte placeholder, returning the offset
// of the placeholder to be patched later.
func (c *Compiler) emitJump(op chunk.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.currentChunk().Len() - 2
}

// patchJump fills the 2-byte placeholder at offset with the signed distance
// from just past the jump to the current end of code.
func (c *Compiler) patchJump(offset int) {
	jump := c.currentChunk().Len() - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}
	code := c.currentChunk()
	data := code.Code()
	data[offset] = byte(jump>>8) & 0xff
	data[offset+1] = byte(jump) & 0xff
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := c.currentChunk().Len() - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset>>8) & 0xff)
	c.emitByte(byte(offset) & 0xff)
}

func (c *Compiler) emitReturn() {
	if c.fn.typ == TypeInitializer {
		// initializers implicitly return the receiver, bound at local slot 0.
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) int {
	idx, err := c.currentChunk().WriteConstant(v)
	if err != nil {
		c.error(err.Error())
		return 0
	}
	return idx
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitVariableWidth(chunk.OpConstant, chunk.OpConstantLong, c.makeConstant(v))
}

func (c *Compiler) identifierConstant(t token.Token) int {
	s := c.heap.InternString(c.lexeme(t))
	return c.makeConstant(value.ObjValue(s))
}

// emitNameRef emits op followed by a single-byte constant-pool index. Unlike
// emitVariableWidth, the name-bearing opcodes (class/method/property/invoke)
// have no _LONG pair (spec §12 reserves the wide encoding for the
// variable-slot opcodes), so a name constant beyond byte range is a compile
// error rather than a silent wide encoding.
func (c *Compiler) emitNameRef(op chunk.Opcode, index int) {
	if index > 0xff {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOpByte(op, byte(index))
}

// --- function-scope plumbing -------------------------------------------------

// syntheticToken builds a token.Token whose lexeme is text, for the compiler
// to inject implicit bindings ("this", "super") without a real source span.
func (c *Compiler) syntheticToken(text string) token.Token {
	return token.Token{Kind: token.IDENTIFIER, Start: -1, Length: len(text), Line: c.previous.Line, Msg: text}
}

// lexemeOf returns the text of t, accounting for synthetic tokens (Start==-1)
// whose text is stashed in Msg since they have no real source span.
func (c *Compiler) lexemeOf(t token.Token) string {
	if t.Start == -1 {
		return t.Msg
	}
	return c.lexeme(t)
}

func (c *Compiler) beginFunction(typ FunctionType, name string) {
	fn := &fnState{enclosing: c.fn, typ: typ}
	fn.function = c.heap.NewFunction(c.heap.NewChunk())
	c.heap.PushCompilerRoot(fn.function)
	if typ != TypeScript {
		fn.function.Name = c.heap.InternString(name)
	}

	// Slot 0 is reserved: empty lexeme for plain functions, "this" for
	// methods/initializers (spec §4.G "locals").
	recv := ""
	if typ == TypeMethod || typ == TypeInitializer {
		recv = "this"
	}
	fn.locals = append(fn.locals, local{
		name:  token.Token{Kind: token.IDENTIFIER, Start: -1, Length: len(recv), Msg: recv},
		depth: 0,
	})

	c.fn = fn
}

func (c *Compiler) endFunction() *object.Function {
	c.emitReturn()
	fn := c.fn.function
	c.heap.PopCompilerRoot()
	c.fn = c.fn.enclosing
	return fn
}

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

// endScope pops locals declared in the scope being exited, emitting
// CLOSE_UPVALUE for captured ones and POP otherwise (spec §4.G "Scope
// exit").
func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	locals := c.fn.locals
	n := len(locals)
	for n > 0 && locals[n-1].depth > c.fn.scopeDepth {
		if locals[n-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		n--
	}
	c.fn.locals = locals[:n]
}

// --- declarations & statements ----------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.LEFT_BRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RIGHT_BRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RIGHT_BRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LEFT_PAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Len()
	c.consume(token.LEFT_PAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

// forStatement desugars into the equivalent while-loop (spec §4.G "for
// desugars... no new opcode is needed").
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LEFT_PAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.match(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(token.RIGHT_PAREN) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrStart := c.currentChunk().Len()
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(token.RIGHT_PAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.fn.typ == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.fn.typ == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENTIFIER, "Expect class name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitNameRef(chunk.OpClass, nameConst)
	c.defineVariable(nameConst)

	cls := &classState{enclosing: c.class}
	c.class = cls

	if c.match(token.LESS) {
		c.consume(token.IDENTIFIER, "Expect superclass name.")
		c.variable(false)
		if c.identifiersEqual(nameTok, c.previous) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(c.syntheticToken("super"))
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitOp(chunk.OpInherit)
		cls.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(token.LEFT_BRACE, "Expect '{' before class body.")
	for !c.check(token.RIGHT_BRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RIGHT_BRACE, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // the class itself, pushed by namedVariable above

	if cls.hasSuperclass {
		c.endScope()
	}
	c.class = cls.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENTIFIER, "Expect method name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)

	typ := TypeMethod
	if c.lexeme(nameTok) == "init" {
		typ = TypeInitializer
	}
	c.function(typ)
	c.emitNameRef(chunk.OpMethod, nameConst)
}

// function compiles a nested function body into its own Chunk and, back in
// the enclosing function, emits OP_CLOSURE plus the upvalue descriptor
// bytes (spec §4.G "Functions").
func (c *Compiler) function(typ FunctionType) {
	name := ""
	if c.previous.Start != -1 {
		name = c.lexeme(c.previous)
	}
	c.beginFunction(typ, name)
	c.beginScope()

	c.consume(token.LEFT_PAREN, "Expect '(' after function name.")
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > MaxCallArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expect ')' after parameters.")
	c.consume(token.LEFT_BRACE, "Expect '{' before function body.")
	c.block()

	upvalues := c.fn.upvalues
	fn := c.endFunction()
	fn.UpvalueCount = len(upvalues)

	c.emitNameRef(chunk.OpClosure, c.makeConstant(value.ObjValue(fn)))
	for _, uv := range upvalues {
		b := byte(0)
		if uv.isLocal {
			b = 1
		}
		c.emitBytes(b, byte(uv.index))
	}
}

// --- variables, locals, upvalues (spec §4.G "Variable resolution") --------

func (c *Compiler) parseVariable(errMsg string) int {
	c.consume(token.IDENTIFIER, errMsg)
	c.declareVariable()
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) defineVariable(global int) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitVariableWidth(chunk.OpDefineGlobal, chunk.OpDefineGlobalLong, global)
}

func (c *Compiler) declareVariable() {
	if c.fn.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if c.identifiersEqual(name, l.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name token.Token) {
	if len(c.fn.locals) >= MaxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
}

func (c *Compiler) identifiersEqual(a, b token.Token) bool {
	return c.lexemeOf(a) == c.lexemeOf(b)
}

// resolveLocal searches fn's locals top-down (spec §4.G step 1).
func (c *Compiler) resolveLocal(fn *fnState, name token.Token) int {
	for i := len(fn.locals) - 1; i >= 0; i-- {
		if c.identifiersEqual(name, fn.locals[i].name) {
			if fn.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue implements spec §4.G step 2, recursing into enclosing
// Compilers and deduplicating via addUpvalue.
func (c *Compiler) resolveUpvalue(fn *fnState, name token.Token) int {
	if fn.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fn.enclosing, name); local != -1 {
		fn.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fn, local, true)
	}
	if up := c.resolveUpvalue(fn.enclosing, name); up != -1 {
		return c.addUpvalue(fn, up, false)
	}
	return -1
}

func (c *Compiler) addUpvalue(fn *fnState, index int, isLocal bool) int {
	for i, uv := range fn.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fn.upvalues) >= MaxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fn.upvalues = append(fn.upvalues, upvalueDesc{index: index, isLocal: isLocal})
	return len(fn.upvalues) - 1
}

func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getShort, getLong, setShort, setLong chunk.Opcode
	arg := c.resolveLocal(c.fn, name)
	if arg != -1 {
		getShort, getLong = chunk.OpGetLocal, chunk.OpGetLocalLong
		setShort, setLong = chunk.OpSetLocal, chunk.OpSetLocalLong
	} else if arg = c.resolveUpvalue(c.fn, name); arg != -1 {
		if canAssign && c.match(token.EQUAL) {
			c.expression()
			c.emitOpByte(chunk.OpSetUpvalue, byte(arg))
		} else {
			c.emitOpByte(chunk.OpGetUpvalue, byte(arg))
		}
		return
	} else {
		arg = c.identifierConstant(name)
		getShort, getLong = chunk.OpGetGlobal, chunk.OpGetGlobalLong
		setShort, setLong = chunk.OpSetGlobal, chunk.OpSetGlobalLong
	}

	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitVariableWidth(setShort, setLong, arg)
	} else {
		c.emitVariableWidth(getShort, getLong, arg)
	}
}

// --- expressions (Pratt parsing) --------------------------------------------

// Precedence ordering, lowest to highest (spec §4.G "Precedence-driven
// parsing").
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Kind]rule

func init() {
	rules = map[token.Kind]rule{
		token.LEFT_PAREN:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: precCall},
		token.DOT:           {infix: (*Compiler).dot, precedence: precCall},
		token.MINUS:         {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm},
		token.PLUS:          {infix: (*Compiler).binary, precedence: precTerm},
		token.SLASH:         {infix: (*Compiler).binary, precedence: precFactor},
		token.STAR:          {infix: (*Compiler).binary, precedence: precFactor},
		token.BANG:          {prefix: (*Compiler).unary},
		token.BANG_EQUAL:    {infix: (*Compiler).binary, precedence: precEquality},
		token.EQUAL_EQUAL:   {infix: (*Compiler).binary, precedence: precEquality},
		token.GREATER:       {infix: (*Compiler).binary, precedence: precComparison},
		token.GREATER_EQUAL: {infix: (*Compiler).binary, precedence: precComparison},
		token.LESS:          {infix: (*Compiler).binary, precedence: precComparison},
		token.LESS_EQUAL:    {infix: (*Compiler).binary, precedence: precComparison},
		token.IDENTIFIER:    {prefix: (*Compiler).variableExpr},
		token.STRING:        {prefix: (*Compiler).stringExpr},
		token.NUMBER:        {prefix: (*Compiler).numberExpr},
		token.AND:           {infix: (*Compiler).and},
		token.FALSE:         {prefix: (*Compiler).literal},
		token.NIL:           {prefix: (*Compiler).literal},
		token.OR:            {infix: (*Compiler).or},
		token.SUPER:         {prefix: (*Compiler).super},
		token.THIS:          {prefix: (*Compiler).this},
		token.TRUE:          {prefix: (*Compiler).literal},
	}
}

func getRule(k token.Kind) rule { return rules[k] }

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

// parsePrecedence is the heart of spec §4.G: consume one token, invoke its
// prefix rule, then while the lookahead's precedence >= p, consume and
// invoke its infix rule. canAssign gates whether a trailing '=' is a valid
// continuation.
func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	prefix := getRule(c.previous.Kind).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= precAssignment
	prefix(c, canAssign)

	for p <= getRule(c.current.Kind).precedence {
		c.advance()
		infix := getRule(c.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQUAL) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) numberExpr(bool) {
	lex := c.lexeme(c.previous)
	n, err := strconv.ParseFloat(lex, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.NumberValue(n))
}

func (c *Compiler) stringExpr(bool) {
	lex := c.lexeme(c.previous)
	s := c.heap.InternString(lex[1 : len(lex)-1]) // strip quotes, no escapes (spec §6)
	c.emitConstant(value.ObjValue(s))
}

func (c *Compiler) literal(bool) {
	switch c.previous.Kind {
	case token.FALSE:
		c.emitOp(chunk.OpFalse)
	case token.NIL:
		c.emitOp(chunk.OpNil)
	case token.TRUE:
		c.emitOp(chunk.OpTrue)
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

func (c *Compiler) unary(bool) {
	op := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch op {
	case token.BANG:
		c.emitOp(chunk.OpNot)
	case token.MINUS:
		c.emitOp(chunk.OpNegate)
	}
}

func (c *Compiler) binary(bool) {
	op := c.previous.Kind
	r := getRule(op)
	c.parsePrecedence(r.precedence + 1)

	switch op {
	case token.BANG_EQUAL:
		c.emitBytes(byte(chunk.OpEqual), byte(chunk.OpNot))
	case token.EQUAL_EQUAL:
		c.emitOp(chunk.OpEqual)
	case token.GREATER:
		c.emitOp(chunk.OpGreater)
	case token.GREATER_EQUAL:
		c.emitBytes(byte(chunk.OpLess), byte(chunk.OpNot))
	case token.LESS:
		c.emitOp(chunk.OpLess)
	case token.LESS_EQUAL:
		c.emitBytes(byte(chunk.OpGreater), byte(chunk.OpNot))
	case token.PLUS:
		c.emitOp(chunk.OpAdd)
	case token.MINUS:
		c.emitOp(chunk.OpSubtract)
	case token.STAR:
		c.emitOp(chunk.OpMultiply)
	case token.SLASH:
		c.emitOp(chunk.OpDivide)
	}
}

func (c *Compiler) and(bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, byte(argCount))
}

func (c *Compiler) argumentList() int {
	argCount := 0
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.expression()
			if argCount == MaxCallArgs {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expect ')' after arguments.")
	return argCount
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(token.EQUAL):
		c.expression()
		c.emitNameRef(chunk.OpSetProperty, name)
	case c.match(token.LEFT_PAREN):
		argCount := c.argumentList()
		c.emitNameRef(chunk.OpInvoke, name)
		c.emitByte(byte(argCount))
	default:
		c.emitNameRef(chunk.OpGetProperty, name)
	}
}

func (c *Compiler) variableExpr(canAssign bool) { c.namedVariable(c.previous, canAssign) }

func (c *Compiler) variable(canAssign bool) { c.namedVariable(c.previous, canAssign) }

func (c *Compiler) this(bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super(bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENTIFIER, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(c.syntheticToken("this"), false)
	if c.match(token.LEFT_PAREN) {
		argCount := c.argumentList()
		c.namedVariable(c.syntheticToken("super"), false)
		c.emitNameRef(chunk.OpSuperInvoke, name)
		c.emitByte(byte(argCount))
	} else {
		c.namedVariable(c.syntheticToken("super"), false)
		c.emitNameRef(chunk.OpGetSuper, name)
	}
}
