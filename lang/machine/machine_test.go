package machine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/calla/internal/filetest"
	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interpret runs src on a fresh machine and returns the result with the
// captured stdout and stderr.
func interpret(t *testing.T, src string, stress bool) (machine.Result, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	m := machine.Machine{Stdout: &out, Stderr: &errb, StressGC: stress}
	defer m.Free()
	res := m.Interpret([]byte(src))
	return res, out.String(), errb.String()
}

var scenarios = []struct {
	name string
	src  string
	want string
}{
	{"arithmetic", `print 1+2;`, "3\n"},
	{"concat", `var s="he"; var t="llo"; print s+t;`, "hello\n"},
	{"interned concat", `print "x"+"y" == "xy";`, "true\n"},
	{"closure counter", `fun mk(){var i=0; fun f(){i=i+1; return i;} return f;} var f=mk(); print f(); print f(); print f();`, "1\n2\n3\n"},
	{"super dispatch", `class A{greet(){print "hi";}} class B<A{greet(){super.greet(); print "there";}} B().greet();`, "hi\nthere\n"},
	{"lists", `var xs=[10,20,30]; append(xs,40); print xs[3]; xs[1]=99; print xs[1];`, "40\n99\n"},
	{"init", `class P{init(x){this.x=x;}} var p=P(7); print p.x;`, "7\n"},
	{"upvalue sharing", `fun mkpair(){var a=0; fun g(){a=a+1; return a;} fun h(){return a;} return [g,h];} var p=mkpair(); print p[0](); print p[1]();`, "1\n1\n"},
	{"closed upvalue", `var f; { var a="captured"; fun g(){return a;} f=g; } print f();`, "captured\n"},
	{"late bound global", `fun f(){return g();} fun g(){return "late";} print f();`, "late\n"},
	{"field shadows method", `fun mk(){return "field";} class C{m(){return "method";}} var c=C(); c.m = mk; print c.m();`, "field\n"},
	{"bound method", `class C{init(){this.v=42;} get(){return this.v;}} var m = C().get; print m();`, "42\n"},
	{"for loop", `for (var i = 0; i < 3; i = i + 1) print i;`, "0\n1\n2\n"},
	{"while loop", `var i = 3; while (i > 0) { print i; i = i - 1; }`, "3\n2\n1\n"},
	{"and or", `print true and "yes"; print false and "no"; print nil or "fallback"; print "first" or "second";`, "yes\nfalse\nfallback\nfirst\n"},
	{"comparison", `print 1 < 2; print 2 <= 2; print 3 > 4; print !nil;`, "true\ntrue\nfalse\ntrue\n"},
	{"inherited method", `class A{m(){return "from A";}} class B<A{} print B().m();`, "from A\n"},
}

func TestInterpretScenarios(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			res, out, errb := interpret(t, sc.src, false)
			require.Equal(t, machine.OK, res, "stderr: %s", errb)
			require.Equal(t, sc.want, out)
		})
	}
}

// TestInterpretScenariosStressGC checks collector soundness: with a full
// collection on every allocation, every scenario produces identical output.
func TestInterpretScenariosStressGC(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			res, out, errb := interpret(t, sc.src, true)
			require.Equal(t, machine.OK, res, "stderr: %s", errb)
			require.Equal(t, sc.want, out)
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"undefined variable", `print missing;`, "Undefined variable 'missing'."},
		{"undefined assign", `missing = 1;`, "Undefined variable 'missing'."},
		{"add mismatch", `print 1 + "a";`, "Operands must be two numbers or two strings."},
		{"sub mismatch", `print "a" - 1;`, "Operands must be numbers."},
		{"negate mismatch", `print -"a";`, "Operand must be a number."},
		{"call non-callable", `var x = 1; x();`, "Can only call functions and classes."},
		{"arity", `fun f(a){} f(1, 2);`, "Expected 1 arguments but got 2."},
		{"init arity", `class P{init(x){this.x=x;}} P();`, "Expected 1 arguments but got 0."},
		{"no init args", `class P{} P(1);`, "Expected 0 arguments but got 1."},
		{"property on number", `var x = 1; print x.y;`, "Only instances have properties."},
		{"field on number", `var x = 1; x.y = 2;`, "Only instances have fields."},
		{"method on number", `var x = 1; x.m();`, "Only instances have methods."},
		{"undefined property", `class C{} print C().missing;`, "Undefined property 'missing'."},
		{"undefined method", `class C{} C().missing();`, "Undefined property 'missing'."},
		{"bad superclass", `var NotAClass = 1; class B < NotAClass {}`, "Superclass must be a class."},
		{"index non-list", `var x = 1; print x[0];`, "Invalid list to index into."},
		{"index not number", `var xs = [1]; print xs["a"];`, "List index is not a number."},
		{"index out of range", `var xs = [1]; print xs[1];`, "List index out of range."},
		{"negative index", `var xs = [1]; print xs[-1];`, "List index out of range."},
		{"store out of range", `var xs = [1]; xs[3] = 2;`, "Invalid list index."},
		{"append argc", `append([1]);`, "Function 'append' requires 2 arguments, received 1"},
		{"append non-list", `append(1, 2);`, "Function 'append' requires first argument to be a list."},
		{"delete argc", `delete([1]);`, "Function 'delete' requires 2 arguments, received 1"},
		{"delete non-list", `delete(1, 0);`, "Function 'delete' requires first argument to be a list"},
		{"delete non-number", `delete([1], "a");`, "Function 'delete' requires second argument to be a number"},
		{"delete out of range", `delete([1], 4);`, "Cannot delete, no element at index 4"},
		{"input argc", `input(1);`, "Function 'input' takes no arguments."},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, out, errb := interpret(t, c.src, false)
			require.Equal(t, machine.RuntimeError, res, "stdout: %s", out)
			assert.Contains(t, errb, c.want)
			assert.Contains(t, errb, "in script")
		})
	}
}

func TestRuntimeErrorTrace(t *testing.T) {
	src := `fun inner() {
  return missing;
}
fun outer() {
  return inner();
}
outer();`

	res, _, errb := interpret(t, src, false)
	require.Equal(t, machine.RuntimeError, res)

	lines := strings.Split(strings.TrimSuffix(errb, "\n"), "\n")
	require.Equal(t, []string{
		"Undefined variable 'missing'.",
		"[line 2] in inner()",
		"[line 5] in outer()",
		"[line 7] in script",
	}, lines)
}

func TestStackOverflow(t *testing.T) {
	res, _, errb := interpret(t, `fun f(){ return f(); } f();`, false)
	require.Equal(t, machine.RuntimeError, res)
	assert.Contains(t, errb, "Stack overflow.")
}

func TestCompileErrorResult(t *testing.T) {
	res, out, errb := interpret(t, `var = 1;`, false)
	require.Equal(t, machine.CompileError, res)
	require.Empty(t, out)
	assert.Contains(t, errb, "[line 1] Error at '=': Expect variable name.")
}

func TestClock(t *testing.T) {
	res, out, errb := interpret(t, `var t = clock(); print t >= 0; print t < 3600;`, false)
	require.Equal(t, machine.OK, res, "stderr: %s", errb)
	require.Equal(t, "true\ntrue\n", out)
}

func TestInput(t *testing.T) {
	var out bytes.Buffer
	m := machine.Machine{
		Stdout: &out,
		Stderr: &out,
		Stdin:  strings.NewReader("first line\nsecond\n"),
	}
	defer m.Free()

	res := m.Interpret([]byte(`var a = input(); var b = input(); print a; print b; print a == "first line";`))
	require.Equal(t, machine.OK, res)
	require.Equal(t, "first line\nsecond\ntrue\n", out.String())
}

func TestInputEOF(t *testing.T) {
	var out bytes.Buffer
	m := machine.Machine{Stdout: &out, Stderr: &out, Stdin: strings.NewReader("no newline")}
	defer m.Free()

	res := m.Interpret([]byte(`print input() + "!";`))
	require.Equal(t, machine.OK, res)
	require.Equal(t, "no newline!\n", out.String())
}

func TestFreeAndReuse(t *testing.T) {
	var out bytes.Buffer
	var m machine.Machine
	m.Stdout = &out
	m.Stderr = &out

	require.Equal(t, machine.OK, m.Interpret([]byte(`print "one";`)))
	m.Free()
	require.Equal(t, machine.OK, m.Interpret([]byte(`print "two";`)))
	m.Free()
	require.Equal(t, "one\ntwo\n", out.String())
}

func TestReplStyleReuse(t *testing.T) {
	// definitions persist across Interpret calls on the same machine
	var out bytes.Buffer
	m := machine.Machine{Stdout: &out, Stderr: &out}
	defer m.Free()

	require.Equal(t, machine.OK, m.Interpret([]byte(`var greeting = "hello";`)))
	require.Equal(t, machine.OK, m.Interpret([]byte(`print greeting;`)))
	require.Equal(t, "hello\n", out.String())
}

func TestRunDecodedFunction(t *testing.T) {
	var out bytes.Buffer
	m := machine.Machine{Stdout: &out, Stderr: &out}
	defer m.Free()

	fn, err := compiler.Compile(m.Heap(), []byte(`print "direct";`))
	require.NoError(t, err)
	data, err := compiler.Encode(fn)
	require.NoError(t, err)

	back, err := compiler.Decode(m.Heap(), data)
	require.NoError(t, err)
	require.Equal(t, machine.OK, m.RunFunction(back))
	require.Equal(t, "direct\n", out.String())
}

// TestExecFiles runs the scripts in testdata/exec and compares stdout and
// stderr against the .want and .err golden files.
func TestExecFiles(t *testing.T) {
	dir := filepath.Join("testdata", "exec")
	for _, name := range filetest.Scripts(t, dir, ".calla") {
		name := name
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)

			var out, errb bytes.Buffer
			m := machine.Machine{Stdout: &out, Stderr: &errb}
			defer m.Free()
			m.Interpret(src)

			filetest.CompareOutputs(t, dir, name, out.String(), errb.String())
		})
	}
}
