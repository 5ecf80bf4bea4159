// Package value provides the runtime representation of calla values, the
// compiled chunk that functions carry, and the heap that owns every object
// along with its mark-sweep collector.
package value

import "strconv"

// Value is the interface implemented by any value manipulated by the machine.
// Nil, booleans and numbers are immediates; everything else is a heap object
// allocated through a Heap.
type Value interface {
	// String returns the printed form of the value.
	String() string

	// Type returns a short string describing the value's type.
	Type() string
}

// NilType is the type of the Nil value.
type NilType struct{}

// Nil is the nil value of the language.
var Nil Value = NilType{}

func (NilType) String() string { return "nil" }
func (NilType) Type() string   { return "nil" }

// Bool is a boolean value.
type Bool bool

// True and False are the two boolean values.
var (
	True  Value = Bool(true)
	False Value = Bool(false)
)

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Type() string { return "bool" }

// Number is the sole numeric type, an IEEE-754 double.
type Number float64

func (n Number) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (n Number) Type() string   { return "number" }

// Truth reports whether v is truthy: everything except nil and false is.
func Truth(v Value) bool {
	return v != Nil && v != False
}

// Equal reports whether two values are equal. Values of different types are
// never equal; nil equals nil, booleans and numbers compare by value, and
// objects compare by identity. Because strings are interned, identity
// equality on strings is value equality.
func Equal(x, y Value) bool {
	return x == y
}

// AsString returns the string object held by v, if it is one.
func AsString(v Value) (*String, bool) {
	s, ok := v.(*String)
	return s, ok
}

// AsNumber returns the number held by v, if it is one.
func AsNumber(v Value) (float64, bool) {
	n, ok := v.(Number)
	return float64(n), ok
}
