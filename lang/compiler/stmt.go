package compiler

import (
	"github.com/mna/calla/lang/token"
)

func (c *compiler) declaration() {
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

func (c *compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.EQ) {
		c.expression()
	} else {
		c.emitOp(NIL)
	}
	c.consume(token.SEMI, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// a function may refer to itself; it is initialized as soon as declared
	c.markInitialized()
	c.function(typeFunction)
	c.defineVariable(global)
}

// function compiles a function body in a fresh compiler context and emits
// the CLOSURE instruction with its upvalue capture pairs.
func (c *compiler) function(typ funcType) {
	c.pushFcomp(typ, c.prev.Lit)
	c.beginScope()

	c.consume(token.LPAREN, "Expect '(' after function name.")
	if !c.check(token.RPAREN) {
		for {
			c.fc.fn.Arity++
			if c.fc.fn.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			param := c.parseVariable("Expect parameter name.")
			c.defineVariable(param)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after parameters.")
	c.consume(token.LBRACE, "Expect '{' before function body.")
	c.block()

	upvals := c.fc.upvals
	fn := c.endFcomp()
	c.emitOps(CLOSURE, c.makeConstant(fn))
	for _, uv := range upvals {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *compiler) classDeclaration() {
	c.consume(token.IDENT, "Expect class name.")
	className := c.prev.Lit
	nameConstant := c.identifierConstant(className)
	c.declareVariable()

	c.emitOps(CLASS, nameConstant)
	c.defineVariable(nameConstant)

	c.cc = &classComp{enclosing: c.cc}

	if c.match(token.LT) {
		c.consume(token.IDENT, "Expect superclass name.")
		c.variable(false)
		if className == c.prev.Lit {
			c.error("A class can't inherit from itself.")
		}

		// the superclass is bound to a synthetic local named super, in a scope
		// of its own, so that methods capture it as a regular upvalue.
		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(INHERIT)
		c.cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(POP)

	if c.cc.hasSuperclass {
		c.endScope()
	}
	c.cc = c.cc.enclosing
}

func (c *compiler) method() {
	c.consume(token.IDENT, "Expect method name.")
	name := c.identifierConstant(c.prev.Lit)

	typ := typeMethod
	if c.prev.Lit == "init" {
		typ = typeInitializer
	}
	c.function(typ)
	c.emitOps(METHOD, name)
}

func (c *compiler) statement() {
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
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after expression.")
	c.emitOp(POP)
}

func (c *compiler) printStatement() {
	c.expression()
	c.consume(token.SEMI, "Expect ';' after value.")
	c.emitOp(PRINT)
}

func (c *compiler) returnStatement() {
	if c.fc.typ == typeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMI) {
		c.emitReturn()
		return
	}
	if c.fc.typ == typeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMI, "Expect ';' after return value.")
	c.emitOp(RETURN)
}

func (c *compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(JUMPIFFALSE)
	c.emitOp(POP)
	c.statement()
	elseJump := c.emitJump(JUMP)

	c.patchJump(thenJump)
	c.emitOp(POP)
	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(JUMPIFFALSE)
	c.emitOp(POP)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(POP)
}

// forStatement desugars the three clauses: the initializer runs in its own
// scope, and the increment is compiled out of order, jumped over on the way
// into the body and looped back to before re-testing the condition.
func (c *compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case c.match(token.SEMI):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(token.SEMI) {
		c.expression()
		c.consume(token.SEMI, "Expect ';' after loop condition.")
		exitJump = c.emitJump(JUMPIFFALSE)
		c.emitOp(POP)
	}

	if !c.match(token.RPAREN) {
		bodyJump := c.emitJump(JUMP)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(POP)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(POP)
	}
	c.endScope()
}
