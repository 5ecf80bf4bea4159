// Package compiler translates calla source code into bytecode chunks in a
// single pass: a Pratt parser emits instructions as it recognizes the
// grammar, with no intermediate syntax tree. The package also provides the
// binary encoding of compiled functions and a disassembler.
package compiler

import (
	"fmt"
	"strings"

	"github.com/mna/calla/lang/scanner"
	"github.com/mna/calla/lang/token"
	"github.com/mna/calla/lang/value"
)

const (
	maxLocals    = 256
	maxUpvalues  = 256
	maxConstants = 256
	maxArgs      = 255
	maxJump      = 1<<16 - 1
)

// Compile translates src to a top-level function. On any compilation error
// it returns a nil function and an *Error carrying every message reported.
//
// The compiler registers itself as a collector root for the duration of the
// compilation, keeping the in-progress functions of the compiler chain (and
// through them, their constants) alive across allocations.
func Compile(h *value.Heap, src []byte) (*value.Function, error) {
	c := &compiler{heap: h, scan: scanner.New(src)}
	remove := h.OnMarkRoots(c.markRoots)
	defer remove()

	c.pushFcomp(typeScript, "")
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endFcomp()
	if c.hadError {
		return nil, &Error{Msgs: c.msgs}
	}
	return fn, nil
}

// Error is the accumulated result of a failed compilation, one message per
// reported error.
type Error struct {
	Msgs []string
}

func (e *Error) Error() string { return strings.Join(e.Msgs, "\n") }

type funcType int8

const (
	typeScript funcType = iota
	typeFunction
	typeMethod
	typeInitializer
)

// A local is a declared block-scoped variable. Its depth is -1 between
// declaration and initialization, the sentinel that rejects reads of a
// variable in its own initializer.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

type upvalue struct {
	index   byte
	isLocal bool
}

// An fcomp holds the per-function compiler state. Functions nest, forming a
// chain through enclosing; the chain is the compiler's collector root.
type fcomp struct {
	enclosing  *fcomp
	fn         *value.Function
	typ        funcType
	locals     []local
	upvals     []upvalue
	scopeDepth int
}

// A classComp tracks the innermost class being compiled, for this/super
// validation.
type classComp struct {
	enclosing     *classComp
	hasSuperclass bool
}

type compiler struct {
	heap *value.Heap
	scan *scanner.Scanner

	cur, prev scanner.Tok
	hadError  bool
	panicMode bool
	msgs      []string

	fc *fcomp
	cc *classComp
}

func (c *compiler) markRoots(h *value.Heap) {
	for fc := c.fc; fc != nil; fc = fc.enclosing {
		h.MarkObject(fc.fn)
	}
}

func (c *compiler) pushFcomp(typ funcType, name string) {
	fc := &fcomp{enclosing: c.fc, typ: typ, locals: make([]local, 1, maxLocals)}
	fc.fn = c.heap.NewFunction()
	c.fc = fc
	if typ != typeScript {
		// the function is rooted through the chain before interning its name
		fc.fn.Name = c.heap.Intern(name)
	}
	// slot 0 is reserved: it holds the receiver in methods, and the function
	// itself otherwise.
	if typ == typeMethod || typ == typeInitializer {
		fc.locals[0].name = "this"
	}
}

func (c *compiler) endFcomp() *value.Function {
	c.emitReturn()
	fn := c.fc.fn
	c.fc = c.fc.enclosing
	return fn
}

func (c *compiler) chunk() *value.Chunk { return &c.fc.fn.Chunk }

// ----- token consumption -----

func (c *compiler) advance() {
	c.prev = c.cur
	for {
		c.cur = c.scan.Next()
		if c.cur.Token != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.cur.Lit)
	}
}

func (c *compiler) consume(tok token.Token, msg string) {
	if c.cur.Token == tok {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *compiler) check(tok token.Token) bool { return c.cur.Token == tok }

func (c *compiler) match(tok token.Token) bool {
	if !c.check(tok) {
		return false
	}
	c.advance()
	return true
}

// ----- error reporting -----

func (c *compiler) errorAtCurrent(msg string) { c.errorAt(c.cur, msg) }
func (c *compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *compiler) errorAt(tok scanner.Tok, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	var sb strings.Builder
	fmt.Fprintf(&sb, "[line %d] Error", tok.Line)
	switch tok.Token {
	case token.EOF:
		sb.WriteString(" at end")
	case token.ILLEGAL:
		// the message locates the error
	default:
		fmt.Fprintf(&sb, " at '%s'", tok.Lit)
	}
	fmt.Fprintf(&sb, ": %s", msg)

	c.msgs = append(c.msgs, sb.String())
	c.hadError = true
}

// synchronize skips tokens until a statement boundary, ending panic mode.
func (c *compiler) synchronize() {
	c.panicMode = false
	for c.cur.Token != token.EOF {
		if c.prev.Token == token.SEMI {
			return
		}
		switch c.cur.Token {
		case token.CLASS, token.FUN, token.VAR, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// ----- code emission -----

func (c *compiler) emitByte(b byte) { c.chunk().Write(b, c.prev.Line) }

func (c *compiler) emitOp(op Opcode) { c.emitByte(byte(op)) }

func (c *compiler) emitOps(op Opcode, operand byte) {
	c.emitByte(byte(op))
	c.emitByte(operand)
}

func (c *compiler) emitReturn() {
	if c.fc.typ == typeInitializer {
		// an initializer always returns its receiver
		c.emitOps(GETLOCAL, 0)
	} else {
		c.emitOp(NIL)
	}
	c.emitOp(RETURN)
}

func (c *compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > maxConstants-1 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *compiler) emitConstant(v value.Value) {
	c.emitOps(CONSTANT, c.makeConstant(v))
}

func (c *compiler) identifierConstant(name string) byte {
	return c.makeConstant(c.heap.Intern(name))
}

// emitJump emits op with a placeholder 16-bit offset and returns the
// position of the operand for patchJump.
func (c *compiler) emitJump(op Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *compiler) patchJump(offset int) {
	// -2 to account for the operand itself
	jump := len(c.chunk().Code) - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *compiler) emitLoop(loopStart int) {
	c.emitOp(LOOP)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ----- scopes, locals and upvalues -----

func (c *compiler) beginScope() { c.fc.scopeDepth++ }

func (c *compiler) endScope() {
	fc := c.fc
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		if fc.locals[len(fc.locals)-1].isCaptured {
			c.emitOp(CLOSEUPVALUE)
		} else {
			c.emitOp(POP)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

func (c *compiler) addLocal(name string) {
	if len(c.fc.locals) == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fc.locals = append(c.fc.locals, local{name: name, depth: -1})
}

// declareVariable records a new local in the current scope; globals are late
// bound and need no declaration.
func (c *compiler) declareVariable() {
	if c.fc.scopeDepth == 0 {
		return
	}
	name := c.prev.Lit
	for i := len(c.fc.locals) - 1; i >= 0; i-- {
		l := &c.fc.locals[i]
		if l.depth != -1 && l.depth < c.fc.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[len(c.fc.locals)-1].depth = c.fc.scopeDepth
}

// parseVariable consumes an identifier and returns its constant index when
// it names a global, 0 for locals.
func (c *compiler) parseVariable(errMsg string) byte {
	c.consume(token.IDENT, errMsg)
	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev.Lit)
}

func (c *compiler) defineVariable(global byte) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOps(DEFINEGLOBAL, global)
}

func (c *compiler) resolveLocal(fc *fcomp, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if l.name == name {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *compiler) addUpvalue(fc *fcomp, index byte, isLocal bool) int {
	for i, uv := range fc.upvals {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fc.upvals) == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvals = append(fc.upvals, upvalue{index: index, isLocal: isLocal})
	fc.fn.UpvalueCount = len(fc.upvals)
	return len(fc.upvals) - 1
}

// resolveUpvalue looks up name in the enclosing functions, capturing the
// local where it is found and threading the capture through every function
// in between.
func (c *compiler) resolveUpvalue(fc *fcomp, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}
	if uv := c.resolveUpvalue(fc.enclosing, name); uv != -1 {
		return c.addUpvalue(fc, byte(uv), false)
	}
	return -1
}

// namedVariable emits the load or, when canAssign and an '=' follows, the
// store of the named variable: local, upvalue or global, in that order.
func (c *compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp Opcode
	arg := c.resolveLocal(c.fc, name)
	switch {
	case arg != -1:
		getOp, setOp = GETLOCAL, SETLOCAL
	default:
		if arg = c.resolveUpvalue(c.fc, name); arg != -1 {
			getOp, setOp = GETUPVALUE, SETUPVALUE
		} else {
			arg = int(c.identifierConstant(name))
			getOp, setOp = GETGLOBAL, SETGLOBAL
		}
	}

	if canAssign && c.match(token.EQ) {
		c.expression()
		c.emitOps(setOp, byte(arg))
	} else {
		c.emitOps(getOp, byte(arg))
	}
}
