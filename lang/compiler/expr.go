package compiler

import (
	"strconv"

	"github.com/mna/calla/lang/token"
	"github.com/mna/calla/lang/value"
)

type precedence int8

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
	precCall                  // . () []
	precPrimary
)

type parseFn func(c *compiler, canAssign bool)

type rule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is the Pratt table: for each token kind, how it parses as a prefix,
// how it parses as an infix, and its binding precedence. It is populated in
// init because the parse functions refer back to the table.
var rules [token.WHILE + 1]rule

func init() {
	rules = [token.WHILE + 1]rule{
		token.LPAREN: {(*compiler).grouping, (*compiler).call, precCall},
		token.LBRACK: {(*compiler).list, (*compiler).subscript, precCall},
		token.DOT:    {nil, (*compiler).dot, precCall},
		token.MINUS:  {(*compiler).unary, (*compiler).binary, precTerm},
		token.PLUS:   {nil, (*compiler).binary, precTerm},
		token.SLASH:  {nil, (*compiler).binary, precFactor},
		token.STAR:   {nil, (*compiler).binary, precFactor},
		token.NOT:    {(*compiler).unary, nil, precNone},
		token.NEQ:    {nil, (*compiler).binary, precEquality},
		token.EQL:    {nil, (*compiler).binary, precEquality},
		token.GT:     {nil, (*compiler).binary, precComparison},
		token.GE:     {nil, (*compiler).binary, precComparison},
		token.LT:     {nil, (*compiler).binary, precComparison},
		token.LE:     {nil, (*compiler).binary, precComparison},
		token.IDENT:  {(*compiler).variable, nil, precNone},
		token.STRING: {(*compiler).str, nil, precNone},
		token.NUMBER: {(*compiler).number, nil, precNone},
		token.AND:    {nil, (*compiler).and, precAnd},
		token.OR:     {nil, (*compiler).or, precOr},
		token.FALSE:  {(*compiler).literal, nil, precNone},
		token.NIL:    {(*compiler).literal, nil, precNone},
		token.TRUE:   {(*compiler).literal, nil, precNone},
		token.SUPER:  {(*compiler).super, nil, precNone},
		token.THIS:   {(*compiler).this, nil, precNone},
	}
}

// parsePrecedence parses expressions at the given precedence or tighter.
// Assignment is only recognized when the target expression was parsed with
// canAssign set, which is what rejects targets like a+b = c.
func (c *compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := rules[c.prev.Token].prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= rules[c.cur.Token].prec {
		c.advance()
		rules[c.prev.Token].infix(c, canAssign)
	}

	if canAssign && c.match(token.EQ) {
		c.error("Invalid assignment target.")
	}
}

func (c *compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func (c *compiler) number(_ bool) {
	n, _ := strconv.ParseFloat(c.prev.Lit, 64)
	c.emitConstant(value.Number(n))
}

func (c *compiler) str(_ bool) {
	// trim the surrounding quotes; there are no escapes
	lit := c.prev.Lit
	c.emitConstant(c.heap.Intern(lit[1 : len(lit)-1]))
}

func (c *compiler) literal(_ bool) {
	switch c.prev.Token {
	case token.FALSE:
		c.emitOp(FALSE)
	case token.NIL:
		c.emitOp(NIL)
	case token.TRUE:
		c.emitOp(TRUE)
	}
}

func (c *compiler) variable(canAssign bool) {
	c.namedVariable(c.prev.Lit, canAssign)
}

func (c *compiler) unary(_ bool) {
	op := c.prev.Token
	c.parsePrecedence(precUnary)
	switch op {
	case token.NOT:
		c.emitOp(NOT)
	case token.MINUS:
		c.emitOp(NEGATE)
	}
}

func (c *compiler) binary(_ bool) {
	op := c.prev.Token
	c.parsePrecedence(rules[op].prec + 1)

	switch op {
	case token.NEQ:
		c.emitOp(EQUAL)
		c.emitOp(NOT)
	case token.EQL:
		c.emitOp(EQUAL)
	case token.GT:
		c.emitOp(GREATER)
	case token.GE:
		c.emitOp(LESS)
		c.emitOp(NOT)
	case token.LT:
		c.emitOp(LESS)
	case token.LE:
		c.emitOp(GREATER)
		c.emitOp(NOT)
	case token.PLUS:
		c.emitOp(ADD)
	case token.MINUS:
		c.emitOp(SUBTRACT)
	case token.STAR:
		c.emitOp(MULTIPLY)
	case token.SLASH:
		c.emitOp(DIVIDE)
	}
}

// and short-circuits: the tested value stays on the stack when falsy, and
// is popped before evaluating the right operand otherwise.
func (c *compiler) and(_ bool) {
	end := c.emitJump(JUMPIFFALSE)
	c.emitOp(POP)
	c.parsePrecedence(precAnd)
	c.patchJump(end)
}

func (c *compiler) or(_ bool) {
	elseJump := c.emitJump(JUMPIFFALSE)
	endJump := c.emitJump(JUMP)
	c.patchJump(elseJump)
	c.emitOp(POP)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *compiler) argumentList() byte {
	var count int
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if count == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

func (c *compiler) call(_ bool) {
	c.emitOps(CALL, c.argumentList())
}

func (c *compiler) dot(canAssign bool) {
	c.consume(token.IDENT, "Expect property name after '.'.")
	name := c.identifierConstant(c.prev.Lit)

	switch {
	case canAssign && c.match(token.EQ):
		c.expression()
		c.emitOps(SETPROPERTY, name)
	case c.match(token.LPAREN):
		// fused property access and call
		argc := c.argumentList()
		c.emitOps(INVOKE, name)
		c.emitByte(argc)
	default:
		c.emitOps(GETPROPERTY, name)
	}
}

func (c *compiler) list(_ bool) {
	var count int
	if !c.check(token.RBRACK) {
		for {
			c.expression()
			if count == maxArgs {
				c.error("Can't have more than 255 items in a list literal.")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACK, "Expect ']' after list items.")
	c.emitOps(MAKELIST, byte(count))
}

func (c *compiler) subscript(canAssign bool) {
	c.expression()
	c.consume(token.RBRACK, "Expect ']' after index.")
	if canAssign && c.match(token.EQ) {
		c.expression()
		c.emitOp(SETINDEX)
	} else {
		c.emitOp(INDEX)
	}
}

func (c *compiler) this(_ bool) {
	if c.cc == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *compiler) super(_ bool) {
	switch {
	case c.cc == nil:
		c.error("Can't use 'super' outside of a class.")
	case !c.cc.hasSuperclass:
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENT, "Expect superclass method name.")
	name := c.identifierConstant(c.prev.Lit)

	c.namedVariable("this", false)
	if c.match(token.LPAREN) {
		argc := c.argumentList()
		c.namedVariable("super", false)
		c.emitOps(SUPERINVOKE, name)
		c.emitByte(argc)
	} else {
		c.namedVariable("super", false)
		c.emitOps(GETSUPER, name)
	}
}
