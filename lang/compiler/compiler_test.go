package compiler

import (
	"strings"
	"testing"

	"github.com/mna/calla/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileString(t *testing.T, src string) *value.Function {
	t.Helper()
	fn, err := Compile(value.NewHeap(), []byte(src))
	require.NoError(t, err)
	return fn
}

func TestCompileExpression(t *testing.T) {
	fn := compileString(t, "print 1 + 2;")

	require.Equal(t, []byte{
		byte(CONSTANT), 0,
		byte(CONSTANT), 1,
		byte(ADD),
		byte(PRINT),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)
	require.Equal(t, []value.Value{value.Number(1), value.Number(2)}, fn.Chunk.Constants)
	require.Len(t, fn.Chunk.Lines, len(fn.Chunk.Code))
	require.Nil(t, fn.Name)
	require.Zero(t, fn.Arity)
}

func TestCompileLocals(t *testing.T) {
	fn := compileString(t, "var a = 1; { var b = a; print b; }")

	// the variable name is interned before the initializer expression, so
	// constant 0 is 'a' and constant 1 is the literal
	require.Equal(t, []byte{
		byte(CONSTANT), 1, // 1
		byte(DEFINEGLOBAL), 0, // a
		byte(GETGLOBAL), 2, // a
		byte(GETLOCAL), 1, // b
		byte(PRINT),
		byte(POP), // end of scope
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)
}

func TestCompilePrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	fn := compileString(t, "print 1 + 2 * 3;")
	require.Equal(t, []byte{
		byte(CONSTANT), 0,
		byte(CONSTANT), 1,
		byte(CONSTANT), 2,
		byte(MULTIPLY),
		byte(ADD),
		byte(PRINT),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)

	// unary binds tighter than factor: -1 * 2 is (-1) * 2
	fn = compileString(t, "print -1 * 2;")
	require.Equal(t, []byte{
		byte(CONSTANT), 0,
		byte(NEGATE),
		byte(CONSTANT), 1,
		byte(MULTIPLY),
		byte(PRINT),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)

	// assignment is right-associative
	fn = compileString(t, "a = b = 1;")
	require.Equal(t, []byte{
		byte(CONSTANT), 2, // 1
		byte(SETGLOBAL), 1, // b
		byte(SETGLOBAL), 0, // a
		byte(POP),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)
}

func TestCompileShortCircuit(t *testing.T) {
	// "and" leaves the falsy value on the stack and jumps over the pop+rhs
	fn := compileString(t, "print false and true;")
	require.Equal(t, []byte{
		byte(FALSE),
		byte(JUMPIFFALSE), 0, 2,
		byte(POP),
		byte(TRUE),
		byte(PRINT),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)

	fn = compileString(t, "print false or true;")
	require.Equal(t, []byte{
		byte(FALSE),
		byte(JUMPIFFALSE), 0, 3,
		byte(JUMP), 0, 2,
		byte(POP),
		byte(TRUE),
		byte(PRINT),
		byte(NIL),
		byte(RETURN),
	}, fn.Chunk.Code)
}

func TestCompileFunctionUpvalues(t *testing.T) {
	fn := compileString(t, `
fun outer() {
  var x = 1;
  fun middle() {
    fun inner() {
      return x;
    }
    return inner;
  }
  return middle;
}
`)

	var outer, middle, inner *value.Function
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*value.Function); ok {
			outer = f
		}
	}
	require.NotNil(t, outer)
	require.Equal(t, "outer", outer.Name.Str())
	require.Zero(t, outer.UpvalueCount)

	for _, c := range outer.Chunk.Constants {
		if f, ok := c.(*value.Function); ok {
			middle = f
		}
	}
	require.NotNil(t, middle)
	// middle captures x transitively for inner
	require.Equal(t, 1, middle.UpvalueCount)

	for _, c := range middle.Chunk.Constants {
		if f, ok := c.(*value.Function); ok {
			inner = f
		}
	}
	require.NotNil(t, inner)
	require.Equal(t, 1, inner.UpvalueCount)

	// middle's CLOSURE instruction captures outer's local x (islocal=1,
	// slot 1); inner's captures middle's upvalue 0 (islocal=0, index 0)
	code := outer.Chunk.Code
	i := indexOfOp(t, code, CLOSURE)
	require.Equal(t, []byte{1, 1}, code[i+2:i+4])

	code = middle.Chunk.Code
	i = indexOfOp(t, code, CLOSURE)
	require.Equal(t, []byte{0, 0}, code[i+2:i+4])
}

// indexOfOp scans for the first occurrence of op, decoding operand widths
// so an operand byte cannot be mistaken for the opcode.
func indexOfOp(t *testing.T, code []byte, op Opcode) int {
	t.Helper()
	for i := 0; i < len(code); {
		cur := Opcode(code[i])
		if cur == op {
			return i
		}
		switch opcodeOperands[cur] {
		case opByte, opConst:
			i += 2
		case opShort, opInvoke:
			i += 3
		case opClosure:
			t.Fatal("cannot scan past a closure instruction")
		default:
			i++
		}
	}
	t.Fatalf("opcode %s not found", op)
	return -1
}

func TestCompileDeterministic(t *testing.T) {
	src := `
class Counter {
  init(start) { this.n = start; }
  inc() { this.n = this.n + 1; return this.n; }
}
var c = Counter(10);
for (var i = 0; i < 3; i = i + 1) {
  print c.inc();
}
`
	fn1 := compileString(t, src)
	fn2 := compileString(t, src)
	requireSameCompiled(t, fn1, fn2)
}

func requireSameCompiled(t *testing.T, fn1, fn2 *value.Function) {
	t.Helper()
	require.Equal(t, fn1.Arity, fn2.Arity)
	require.Equal(t, fn1.UpvalueCount, fn2.UpvalueCount)
	require.Equal(t, fn1.Chunk.Code, fn2.Chunk.Code)
	require.Equal(t, fn1.Chunk.Lines, fn2.Chunk.Lines)
	require.Len(t, fn2.Chunk.Constants, len(fn1.Chunk.Constants))
	for i, c1 := range fn1.Chunk.Constants {
		c2 := fn2.Chunk.Constants[i]
		switch c1 := c1.(type) {
		case *value.Function:
			requireSameCompiled(t, c1, c2.(*value.Function))
		case *value.String:
			require.Equal(t, c1.Str(), c2.(*value.String).Str())
		default:
			require.Equal(t, c1, c2)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"a + b = 1;", "Invalid assignment target."},
		{"return 1;", "Can't return from top-level code."},
		{"{ var a = 1; var a = 2; }", "Already a variable with this name in this scope."},
		{"{ var a = a; }", "Can't read local variable in its own initializer."},
		{"this;", "Can't use 'this' outside of a class."},
		{"fun f() { super.m(); }", "Can't use 'super' outside of a class."},
		{"class A { m() { super.m(); } }", "Can't use 'super' in a class with no superclass."},
		{"class A < A {}", "A class can't inherit from itself."},
		{"class A { init() { return 1; } }", "Can't return a value from an initializer."},
		{`var s = "oops`, "Unterminated string."},
		{"print 1 +;", "Expect expression."},
		{"var 1 = 2;", "Expect variable name."},
		{"print 1", "Expect ';' after value."},
	}

	for _, c := range cases {
		fn, err := Compile(value.NewHeap(), []byte(c.src))
		require.Error(t, err, "source %q", c.src)
		require.Nil(t, fn, "source %q", c.src)
		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, err.Error(), c.want, "source %q", c.src)
		assert.Contains(t, err.Error(), "[line ", "source %q", c.src)
	}
}

func TestErrorSynchronizes(t *testing.T) {
	// two independent errors on separate statements are both reported
	fn, err := Compile(value.NewHeap(), []byte("var 1;\nvar 2;\n"))
	require.Nil(t, fn)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Msgs, 2)
	assert.Contains(t, cerr.Msgs[0], "[line 1]")
	assert.Contains(t, cerr.Msgs[1], "[line 2]")
}

func TestDisasm(t *testing.T) {
	fn := compileString(t, "print 1 + 2;")
	var sb strings.Builder
	Disasm(&sb, fn)

	out := sb.String()
	assert.Contains(t, out, "== <script> ==")
	for _, want := range []string{"constant", "add", "print", "nil", "return"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "'1'")
	assert.Contains(t, out, "'2'")
}

func TestDisasmClosure(t *testing.T) {
	fn := compileString(t, "fun f(a, b) { return a + b; }")
	var sb strings.Builder
	Disasm(&sb, fn)

	out := sb.String()
	assert.Contains(t, out, "closure")
	assert.Contains(t, out, "== <fn f> ==")
	assert.Contains(t, out, "getlocal")
}
