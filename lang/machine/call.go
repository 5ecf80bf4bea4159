package machine

import (
	"github.com/mna/calla/lang/value"
)

// call pushes a new frame for a closure invocation. The callee (or the
// receiver, for methods) sits at slot 0 of the new frame.
func (m *Machine) call(closure *value.Closure, argc int) bool {
	if argc != closure.Fn.Arity {
		m.runtimeError("Expected %d arguments but got %d.", closure.Fn.Arity, argc)
		return false
	}
	if m.nframes == FramesMax {
		m.runtimeError("Stack overflow.")
		return false
	}
	fr := &m.frames[m.nframes]
	m.nframes++
	fr.closure = closure
	fr.ip = 0
	fr.slots = m.top - argc - 1
	return true
}

// callValue applies the call protocol: the callee sits below its argc
// arguments on the stack.
func (m *Machine) callValue(callee value.Value, argc int) bool {
	switch callee := callee.(type) {
	case *value.Closure:
		return m.call(callee, argc)

	case *value.Native:
		res, err := callee.Fn(m.stack[m.top-argc : m.top])
		if err != nil {
			m.runtimeError("%s", err)
			return false
		}
		m.top -= argc + 1
		m.push(res)
		return true

	case *value.Class:
		m.stack[m.top-argc-1] = m.heap.NewInstance(callee)
		if init, ok := callee.Methods.Get(m.initString); ok {
			return m.call(init, argc)
		}
		if argc != 0 {
			m.runtimeError("Expected 0 arguments but got %d.", argc)
			return false
		}
		return true

	case *value.BoundMethod:
		m.stack[m.top-argc-1] = callee.Receiver
		return m.call(callee.Method, argc)
	}

	m.runtimeError("Can only call functions and classes.")
	return false
}

func (m *Machine) invokeFromClass(cls *value.Class, name *value.String, argc int) bool {
	method, ok := cls.Methods.Get(name)
	if !ok {
		m.runtimeError("Undefined property '%s'.", name.Str())
		return false
	}
	return m.call(method, argc)
}

// invoke is the fused property access and call. A field shadowing a method
// name is called as a plain value; otherwise the method is called directly
// without materializing a bound method.
func (m *Machine) invoke(name *value.String, argc int) bool {
	receiver := m.peek(argc)
	inst, ok := receiver.(*value.Instance)
	if !ok {
		m.runtimeError("Only instances have methods.")
		return false
	}
	if v, ok := inst.Fields.Get(name); ok {
		m.stack[m.top-argc-1] = v
		return m.callValue(v, argc)
	}
	return m.invokeFromClass(inst.Class, name, argc)
}

// bindMethod replaces the receiver on top of the stack with a bound method
// for the named method of cls.
func (m *Machine) bindMethod(cls *value.Class, name *value.String) bool {
	method, ok := cls.Methods.Get(name)
	if !ok {
		m.runtimeError("Undefined property '%s'.", name.Str())
		return false
	}
	bound := m.heap.NewBoundMethod(m.peek(0), method)
	m.pop()
	m.push(bound)
	return true
}

// captureUpvalue returns the open upvalue for the given stack slot,
// creating and splicing it into the sorted open list if none exists yet.
// The list is sorted by descending slot so the walk can stop early.
func (m *Machine) captureUpvalue(slot int) *value.Upvalue {
	var prev *value.Upvalue
	cur := m.openUpvalues
	for cur != nil && cur.Location > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Location == slot {
		return cur
	}

	created := m.heap.NewUpvalue(slot)
	created.Next = cur
	if prev == nil {
		m.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above the given slot into
// its own cell, so the captured variable outlives the stack slot.
func (m *Machine) closeUpvalues(last int) {
	for m.openUpvalues != nil && m.openUpvalues.Location >= last {
		uv := m.openUpvalues
		uv.Closed = m.stack[uv.Location]
		uv.Location = -1
		m.openUpvalues = uv.Next
		uv.Next = nil
	}
}
