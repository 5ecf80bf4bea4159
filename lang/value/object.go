package value

import (
	"strings"

	"github.com/dolthub/swiss"
)

// Obj is implemented by every heap-allocated value. All objects share a
// common header carrying the collector's mark bit, the all-objects link and
// the accounted allocation size.
type Obj interface {
	Value
	header() *objHeader
}

type objHeader struct {
	marked bool
	size   int
	next   Obj
}

func (h *objHeader) header() *objHeader { return h }

// A String is an immutable run of bytes with its precomputed FNV-1a hash.
// Strings are interned: two strings with the same content are the same
// object, so identity comparison is value comparison.
type String struct {
	objHeader
	str  string
	hash uint32
}

func (s *String) String() string { return s.str }
func (s *String) Type() string   { return "string" }

// Str returns the string content.
func (s *String) Str() string { return s.str }

// Hash returns the precomputed FNV-1a 32-bit hash of the content.
func (s *String) Hash() uint32 { return s.hash }

// Len returns the length of the string in bytes.
func (s *String) Len() int { return len(s.str) }

// A Function is a compiled code unit: its bytecode chunk, arity, number of
// upvalues and optional name. The top-level script is a Function with a nil
// name.
type Function struct {
	objHeader
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *String // nil for the top-level script
}

func (fn *Function) String() string {
	if fn.Name == nil {
		return "<script>"
	}
	return "<fn " + fn.Name.str + ">"
}
func (fn *Function) Type() string { return "function" }

// NativeFn is the signature of a built-in function: it receives the argument
// values and returns a result. A non-nil error is reported by the machine as
// a runtime error.
type NativeFn func(args []Value) (Value, error)

// A Native wraps a built-in function.
type Native struct {
	objHeader
	Name string
	Fn   NativeFn
}

func (n *Native) String() string { return "<native fn>" }
func (n *Native) Type() string   { return "native" }

// A Closure pairs a function with the upvalues it captured. The upvalue
// array is fully populated before the closure becomes reachable from the
// stack.
type Closure struct {
	objHeader
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return c.Fn.String() }
func (c *Closure) Type() string   { return "closure" }

// An Upvalue is a captured variable. While open it designates a live stack
// slot by index; once closed the value lives in the upvalue's own cell and
// Location is -1. Open upvalues form a list sorted by descending stack slot.
type Upvalue struct {
	objHeader
	Location int // stack slot while open, -1 once closed
	Closed   Value
	Next     *Upvalue // next open upvalue, lower slot
}

func (uv *Upvalue) String() string { return "upvalue" }
func (uv *Upvalue) Type() string   { return "upvalue" }

// A Class holds a name and the table of methods, keyed by interned name.
type Class struct {
	objHeader
	Name    *String
	Methods *swiss.Map[*String, *Closure]
}

func (cls *Class) String() string { return cls.Name.str }
func (cls *Class) Type() string   { return "class" }

// An Instance is an object of a class, with its table of fields keyed by
// interned name.
type Instance struct {
	objHeader
	Class  *Class
	Fields *swiss.Map[*String, Value]
}

func (inst *Instance) String() string { return inst.Class.Name.str + " instance" }
func (inst *Instance) Type() string   { return "instance" }

// A BoundMethod is the result of a method access expression: the method
// closure with its receiver baked in.
type BoundMethod struct {
	objHeader
	Receiver Value
	Method   *Closure
}

func (bm *BoundMethod) String() string { return bm.Method.String() }
func (bm *BoundMethod) Type() string   { return "bound method" }

// A List is a mutable dynamic array of values.
type List struct {
	objHeader
	Elems []Value
}

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range l.Elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
func (l *List) Type() string { return "list" }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.Elems) }

// Index returns the element at index i and whether i is in range.
func (l *List) Index(i int) (Value, bool) {
	if i < 0 || i >= len(l.Elems) {
		return nil, false
	}
	return l.Elems[i], true
}

// SetIndex stores v at index i and reports whether i is in range.
func (l *List) SetIndex(i int, v Value) bool {
	if i < 0 || i >= len(l.Elems) {
		return false
	}
	l.Elems[i] = v
	return true
}

// Append adds v at the end of the list.
func (l *List) Append(v Value) {
	l.Elems = append(l.Elems, v)
}

// Delete removes the element at index i, shifting the remaining elements
// down, and reports whether i is in range.
func (l *List) Delete(i int) bool {
	if i < 0 || i >= len(l.Elems) {
		return false
	}
	copy(l.Elems[i:], l.Elems[i+1:])
	l.Elems[len(l.Elems)-1] = nil
	l.Elems = l.Elems[:len(l.Elems)-1]
	return true
}
