package machine

import (
	"fmt"

	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/value"
)

func (m *Machine) readByte(fr *frame) byte {
	b := fr.closure.Fn.Chunk.Code[fr.ip]
	fr.ip++
	return b
}

func (m *Machine) readShort(fr *frame) int {
	code := fr.closure.Fn.Chunk.Code
	fr.ip += 2
	return int(code[fr.ip-2])<<8 | int(code[fr.ip-1])
}

func (m *Machine) readConstant(fr *frame) value.Value {
	return fr.closure.Fn.Chunk.Constants[m.readByte(fr)]
}

func (m *Machine) readString(fr *frame) *value.String {
	return m.readConstant(fr).(*value.String)
}

// numericOperands pops the two numeric operands of a binary operator,
// reporting a runtime error if either is not a number.
func (m *Machine) numericOperands() (x, y float64, ok bool) {
	yn, oky := value.AsNumber(m.peek(0))
	xn, okx := value.AsNumber(m.peek(1))
	if !okx || !oky {
		m.runtimeError("Operands must be numbers.")
		return 0, 0, false
	}
	m.pop()
	m.pop()
	return xn, yn, true
}

// run is the dispatch loop: one opcode decoded per iteration, with the
// current frame cached and refreshed after every frame change.
func (m *Machine) run() Result {
	fr := &m.frames[m.nframes-1]

	for {
		if m.Trace {
			m.traceInstruction(fr)
		}

		switch op := compiler.Opcode(m.readByte(fr)); op {
		case compiler.CONSTANT:
			m.push(m.readConstant(fr))

		case compiler.NIL:
			m.push(value.Nil)

		case compiler.TRUE:
			m.push(value.True)

		case compiler.FALSE:
			m.push(value.False)

		case compiler.POP:
			m.pop()

		case compiler.GETLOCAL:
			slot := m.readByte(fr)
			m.push(m.stack[fr.slots+int(slot)])

		case compiler.SETLOCAL:
			slot := m.readByte(fr)
			m.stack[fr.slots+int(slot)] = m.peek(0)

		case compiler.GETGLOBAL:
			name := m.readString(fr)
			v, ok := m.globals.Get(name)
			if !ok {
				m.runtimeError("Undefined variable '%s'.", name.Str())
				return RuntimeError
			}
			m.push(v)

		case compiler.DEFINEGLOBAL:
			name := m.readString(fr)
			m.globals.Put(name, m.peek(0))
			m.pop()

		case compiler.SETGLOBAL:
			name := m.readString(fr)
			if !m.globals.Has(name) {
				m.runtimeError("Undefined variable '%s'.", name.Str())
				return RuntimeError
			}
			m.globals.Put(name, m.peek(0))

		case compiler.GETUPVALUE:
			slot := m.readByte(fr)
			uv := fr.closure.Upvalues[slot]
			if uv.Location >= 0 {
				m.push(m.stack[uv.Location])
			} else {
				m.push(uv.Closed)
			}

		case compiler.SETUPVALUE:
			slot := m.readByte(fr)
			uv := fr.closure.Upvalues[slot]
			if uv.Location >= 0 {
				m.stack[uv.Location] = m.peek(0)
			} else {
				uv.Closed = m.peek(0)
			}

		case compiler.GETPROPERTY:
			inst, ok := m.peek(0).(*value.Instance)
			if !ok {
				m.runtimeError("Only instances have properties.")
				return RuntimeError
			}
			name := m.readString(fr)
			if v, ok := inst.Fields.Get(name); ok {
				m.pop() // the instance
				m.push(v)
				break
			}
			if !m.bindMethod(inst.Class, name) {
				return RuntimeError
			}

		case compiler.SETPROPERTY:
			inst, ok := m.peek(1).(*value.Instance)
			if !ok {
				m.runtimeError("Only instances have fields.")
				return RuntimeError
			}
			inst.Fields.Put(m.readString(fr), m.peek(0))
			v := m.pop()
			m.pop()
			m.push(v)

		case compiler.GETSUPER:
			name := m.readString(fr)
			superclass := m.pop().(*value.Class)
			if !m.bindMethod(superclass, name) {
				return RuntimeError
			}

		case compiler.EQUAL:
			y := m.pop()
			x := m.pop()
			m.push(value.Bool(value.Equal(x, y)))

		case compiler.GREATER:
			x, y, ok := m.numericOperands()
			if !ok {
				return RuntimeError
			}
			m.push(value.Bool(x > y))

		case compiler.LESS:
			x, y, ok := m.numericOperands()
			if !ok {
				return RuntimeError
			}
			m.push(value.Bool(x < y))

		case compiler.ADD:
			xs, okx := value.AsString(m.peek(1))
			ys, oky := value.AsString(m.peek(0))
			if okx && oky {
				// operands stay on the stack while the result is interned
				s := m.heap.Intern(xs.Str() + ys.Str())
				m.pop()
				m.pop()
				m.push(s)
				break
			}
			xn, okx := value.AsNumber(m.peek(1))
			yn, oky := value.AsNumber(m.peek(0))
			if !okx || !oky {
				m.runtimeError("Operands must be two numbers or two strings.")
				return RuntimeError
			}
			m.pop()
			m.pop()
			m.push(value.Number(xn + yn))

		case compiler.SUBTRACT:
			x, y, ok := m.numericOperands()
			if !ok {
				return RuntimeError
			}
			m.push(value.Number(x - y))

		case compiler.MULTIPLY:
			x, y, ok := m.numericOperands()
			if !ok {
				return RuntimeError
			}
			m.push(value.Number(x * y))

		case compiler.DIVIDE:
			x, y, ok := m.numericOperands()
			if !ok {
				return RuntimeError
			}
			m.push(value.Number(x / y))

		case compiler.NOT:
			m.push(value.Bool(!value.Truth(m.pop())))

		case compiler.NEGATE:
			n, ok := value.AsNumber(m.peek(0))
			if !ok {
				m.runtimeError("Operand must be a number.")
				return RuntimeError
			}
			m.pop()
			m.push(value.Number(-n))

		case compiler.PRINT:
			fmt.Fprintln(m.stdout(), m.pop())

		case compiler.JUMP:
			fr.ip += m.readShort(fr)

		case compiler.JUMPIFFALSE:
			// the tested value stays on the stack; the compiler emits the pops
			offset := m.readShort(fr)
			if !value.Truth(m.peek(0)) {
				fr.ip += offset
			}

		case compiler.LOOP:
			fr.ip -= m.readShort(fr)

		case compiler.CALL:
			argc := int(m.readByte(fr))
			if !m.callValue(m.peek(argc), argc) {
				return RuntimeError
			}
			fr = &m.frames[m.nframes-1]

		case compiler.INVOKE:
			name := m.readString(fr)
			argc := int(m.readByte(fr))
			if !m.invoke(name, argc) {
				return RuntimeError
			}
			fr = &m.frames[m.nframes-1]

		case compiler.SUPERINVOKE:
			name := m.readString(fr)
			argc := int(m.readByte(fr))
			superclass := m.pop().(*value.Class)
			if !m.invokeFromClass(superclass, name, argc) {
				return RuntimeError
			}
			fr = &m.frames[m.nframes-1]

		case compiler.CLOSURE:
			fn := m.readConstant(fr).(*value.Function)
			closure := m.heap.NewClosure(fn)
			m.push(closure)
			for i := range closure.Upvalues {
				isLocal := m.readByte(fr)
				index := int(m.readByte(fr))
				if isLocal == 1 {
					closure.Upvalues[i] = m.captureUpvalue(fr.slots + index)
				} else {
					closure.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}

		case compiler.CLOSEUPVALUE:
			m.closeUpvalues(m.top - 1)
			m.pop()

		case compiler.RETURN:
			result := m.pop()
			m.closeUpvalues(fr.slots)
			m.nframes--
			if m.nframes == 0 {
				m.pop()
				return OK
			}
			m.top = fr.slots
			m.push(result)
			fr = &m.frames[m.nframes-1]

		case compiler.CLASS:
			m.push(m.heap.NewClass(m.readString(fr)))

		case compiler.INHERIT:
			superclass, ok := m.peek(1).(*value.Class)
			if !ok {
				m.runtimeError("Superclass must be a class.")
				return RuntimeError
			}
			subclass := m.peek(0).(*value.Class)
			superclass.Methods.Iter(func(k *value.String, v *value.Closure) bool {
				subclass.Methods.Put(k, v)
				return false
			})
			m.pop()

		case compiler.METHOD:
			name := m.readString(fr)
			method := m.peek(0).(*value.Closure)
			cls := m.peek(1).(*value.Class)
			cls.Methods.Put(name, method)
			m.pop()

		case compiler.MAKELIST:
			n := int(m.readByte(fr))
			elems := make([]value.Value, n)
			copy(elems, m.stack[m.top-n:m.top])
			// the elements stay rooted on the stack during the allocation
			list := m.heap.NewList(elems)
			m.top -= n
			m.push(list)

		case compiler.INDEX:
			idxv := m.pop()
			listv := m.pop()
			list, ok := listv.(*value.List)
			if !ok {
				m.runtimeError("Invalid list to index into.")
				return RuntimeError
			}
			idx, ok := value.AsNumber(idxv)
			if !ok {
				m.runtimeError("List index is not a number.")
				return RuntimeError
			}
			v, ok := list.Index(int(idx))
			if !ok {
				m.runtimeError("List index out of range.")
				return RuntimeError
			}
			m.push(v)

		case compiler.SETINDEX:
			item := m.pop()
			idxv := m.pop()
			listv := m.pop()
			list, ok := listv.(*value.List)
			if !ok {
				m.runtimeError("Cannot store value in non-list.")
				return RuntimeError
			}
			idx, ok := value.AsNumber(idxv)
			if !ok {
				m.runtimeError("List index is not a number.")
				return RuntimeError
			}
			if !list.SetIndex(int(idx), item) {
				m.runtimeError("Invalid list index.")
				return RuntimeError
			}
			m.push(item)

		default:
			panic(fmt.Sprintf("unimplemented: %s", op))
		}
	}
}

func (m *Machine) traceInstruction(fr *frame) {
	fmt.Fprint(m.stderr(), "          ")
	for i := 0; i < m.top; i++ {
		fmt.Fprintf(m.stderr(), "[ %s ]", m.stack[i])
	}
	fmt.Fprintln(m.stderr())
	compiler.DisasmInstruction(m.stderr(), &fr.closure.Fn.Chunk, fr.ip)
}
