// Package machine implements the virtual machine that executes the
// bytecode-compiled form of the source code: the value and frame stacks,
// the call protocol, closures and their upvalues, class and method
// dispatch, and the native built-ins.
package machine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dolthub/swiss"
	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/value"
)

const (
	// FramesMax bounds the depth of the frame stack.
	FramesMax = 64
	// StackMax bounds the value stack: every frame addresses at most 256
	// slots.
	StackMax = FramesMax * 256
)

// Result is the outcome of an interpretation.
type Result int8

const (
	OK Result = iota
	CompileError
	RuntimeError
)

// frame is the activation record of a closure call: the running closure,
// its instruction pointer, and the base of its slots in the value stack.
type frame struct {
	closure *value.Closure
	ip      int
	slots   int
}

// A Machine interprets calla programs. The zero value is usable: exported
// fields may be set before the first call to Interpret (or Init), and the
// machine initializes itself on first use. Init and Free are idempotent
// with each other, so a machine can be reused after Free.
//
// The machine is single-threaded and non-reentrant: Interpret must not be
// called from a native function.
type Machine struct {
	// Stdout, Stderr and Stdin are the standard I/O abstractions for the
	// machine. If nil, os.Stdout, os.Stderr and os.Stdin are used.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// StressGC forces a full collection on every allocation when set before
	// initialization. Reference-correct programs produce identical output
	// with and without it.
	StressGC bool

	// Trace writes the value stack and each instruction to Stderr as it
	// executes.
	Trace bool

	heap    *value.Heap
	stack   []value.Value
	top     int
	frames  [FramesMax]frame
	nframes int

	globals      *swiss.Map[*value.String, value.Value]
	openUpvalues *value.Upvalue
	initString   *value.String

	start       time.Time
	stdinr      *bufio.Reader
	removeRoots func()
}

// Init prepares the machine: fresh heap, empty stacks and globals, and the
// native built-ins clock, append, delete and input. It is a no-op on an
// already initialized machine.
func (m *Machine) Init() {
	if m.heap != nil {
		return
	}
	m.heap = value.NewHeap()
	m.heap.Stress = m.StressGC
	m.stack = make([]value.Value, StackMax)
	m.globals = swiss.NewMap[*value.String, value.Value](32)
	m.removeRoots = m.heap.OnMarkRoots(m.markRoots)
	m.start = time.Now()
	m.resetStack()

	m.initString = m.heap.Intern("init")
	m.defineNative("clock", m.clockNative)
	m.defineNative("append", appendNative)
	m.defineNative("delete", deleteNative)
	m.defineNative("input", m.inputNative)
}

// Free releases every object and table owned by the machine. The machine
// can be initialized again afterwards.
func (m *Machine) Free() {
	if m.heap == nil {
		return
	}
	m.removeRoots()
	m.initString = nil
	m.globals = nil
	m.resetStack()
	m.heap.Free()
	m.heap = nil
	m.stack = nil
}

// Heap returns the machine's heap, initializing the machine if needed. It
// is meant for loading pre-compiled functions into the machine's ownership
// before a RunFunction call.
func (m *Machine) Heap() *value.Heap {
	m.Init()
	return m.heap
}

// Interpret compiles and runs a source buffer. Compile errors are printed
// to Stderr and reported as CompileError; runtime errors print a stack
// trace and report RuntimeError.
func (m *Machine) Interpret(src []byte) Result {
	m.Init()
	fn, err := compiler.Compile(m.heap, src)
	if err != nil {
		fmt.Fprintln(m.stderr(), err)
		return CompileError
	}
	return m.RunFunction(fn)
}

// RunFunction wraps a compiled top-level function in a closure and runs it.
// The function must have been allocated on this machine's heap.
func (m *Machine) RunFunction(fn *value.Function) Result {
	m.Init()
	m.push(fn)
	closure := m.heap.NewClosure(fn)
	m.pop()
	m.push(closure)
	m.call(closure, 0)
	return m.run()
}

func (m *Machine) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *Machine) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

func (m *Machine) stdin() *bufio.Reader {
	if m.stdinr == nil {
		in := m.Stdin
		if in == nil {
			in = os.Stdin
		}
		m.stdinr = bufio.NewReader(in)
	}
	return m.stdinr
}

func (m *Machine) resetStack() {
	m.top = 0
	m.nframes = 0
	m.openUpvalues = nil
}

func (m *Machine) push(v value.Value) {
	m.stack[m.top] = v
	m.top++
}

func (m *Machine) pop() value.Value {
	m.top--
	return m.stack[m.top]
}

func (m *Machine) peek(distance int) value.Value {
	return m.stack[m.top-1-distance]
}

// runtimeError prints the message and the stack trace, newest frame first,
// then unwinds the whole machine by resetting the stacks.
func (m *Machine) runtimeError(format string, args ...interface{}) {
	fmt.Fprintf(m.stderr(), format+"\n", args...)
	for i := m.nframes - 1; i >= 0; i-- {
		fr := &m.frames[i]
		fn := fr.closure.Fn
		line := fn.Chunk.Lines[fr.ip-1]
		if fn.Name == nil {
			fmt.Fprintf(m.stderr(), "[line %d] in script\n", line)
		} else {
			fmt.Fprintf(m.stderr(), "[line %d] in %s()\n", line, fn.Name.Str())
		}
	}
	m.resetStack()
}

// markRoots marks every collector root owned by the machine: the live
// stack slots, the frame closures, the open upvalues, the globals and the
// interned init name.
func (m *Machine) markRoots(h *value.Heap) {
	for i := 0; i < m.top; i++ {
		h.MarkValue(m.stack[i])
	}
	for i := 0; i < m.nframes; i++ {
		h.MarkObject(m.frames[i].closure)
	}
	for uv := m.openUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(uv)
	}
	m.globals.Iter(func(k *value.String, v value.Value) bool {
		h.MarkObject(k)
		h.MarkValue(v)
		return false
	})
	if m.initString != nil {
		h.MarkObject(m.initString)
	}
}

// defineNative installs a built-in in the globals table. Both the name and
// the native value transit through the stack so that they stay rooted
// across each other's allocation.
func (m *Machine) defineNative(name string, fn value.NativeFn) {
	m.push(m.heap.Intern(name))
	m.push(m.heap.NewNative(name, fn))
	m.globals.Put(m.stack[0].(*value.String), m.stack[1])
	m.pop()
	m.pop()
}
