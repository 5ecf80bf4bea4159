package compiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mna/calla/lang/value"
)

// Binary encoding of a compiled top-level function. Only functions, strings
// and the primitive values can appear in a constants pool, so that is all
// the format covers; the machine rebuilds everything else at run time. The
// format is not stable across Version bumps; round-tripping within one
// version is the only guarantee.
//
// Layout, all multi-byte integers big-endian:
//
//	file     = version_byte value
//	value    = TAGNIL | TAGBOOL byte | TAGNUMBER u64(ieee bits) | TAGOBJ object
//	object   = KINDSTRING string | KINDFUNCTION function
//	string   = i32(len) bytes
//	function = i32(arity) i32(upvalues) i32(codelen) code
//	           i32(line)*codelen i32(nconsts) value*nconsts
//	           name_marker_byte [string]

const (
	tagNil byte = iota
	tagBool
	tagNumber
	tagObj
)

const (
	kindString byte = iota
	kindFunction
)

// Encode serializes a compiled top-level function.
func Encode(fn *value.Function) ([]byte, error) {
	e := encoder{b: []byte{Version}}
	if err := e.value(fn); err != nil {
		return nil, err
	}
	return e.b, nil
}

type encoder struct {
	b []byte
}

func (e *encoder) value(v value.Value) error {
	switch v := v.(type) {
	case value.NilType:
		e.b = append(e.b, tagNil)
	case value.Bool:
		e.b = append(e.b, tagBool)
		if v {
			e.b = append(e.b, 1)
		} else {
			e.b = append(e.b, 0)
		}
	case value.Number:
		e.b = append(e.b, tagNumber)
		e.b = binary.BigEndian.AppendUint64(e.b, math.Float64bits(float64(v)))
	case *value.String:
		e.b = append(e.b, tagObj, kindString)
		e.str(v)
	case *value.Function:
		e.b = append(e.b, tagObj)
		return e.function(v)
	default:
		return fmt.Errorf("cannot encode %s value", v.Type())
	}
	return nil
}

func (e *encoder) str(s *value.String) {
	e.i32(s.Len())
	e.b = append(e.b, s.Str()...)
}

func (e *encoder) function(fn *value.Function) error {
	e.b = append(e.b, kindFunction)
	e.i32(fn.Arity)
	e.i32(fn.UpvalueCount)
	e.i32(len(fn.Chunk.Code))
	e.b = append(e.b, fn.Chunk.Code...)
	for _, line := range fn.Chunk.Lines {
		e.i32(line)
	}
	e.i32(len(fn.Chunk.Constants))
	for _, c := range fn.Chunk.Constants {
		if err := e.value(c); err != nil {
			return err
		}
	}
	if fn.Name != nil {
		e.b = append(e.b, 1)
		e.str(fn.Name)
	} else {
		e.b = append(e.b, 0)
	}
	return nil
}

func (e *encoder) i32(n int) {
	e.b = binary.BigEndian.AppendUint32(e.b, uint32(n))
}

// Decode rebuilds a top-level function from its serialized form, allocating
// its strings and functions on h. The decoder roots its partially built
// values for the duration of the decoding.
func Decode(h *value.Heap, b []byte) (*value.Function, error) {
	if len(b) == 0 {
		return nil, errors.New("empty bytecode")
	}
	if b[0] != Version {
		return nil, fmt.Errorf("bytecode version %d, want %d", b[0], Version)
	}

	d := decoder{h: h, b: b, off: 1}
	remove := h.OnMarkRoots(d.markRoots)
	defer remove()

	v, err := d.value()
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*value.Function)
	if !ok {
		return nil, fmt.Errorf("top-level value is a %s, want a function", v.Type())
	}
	return fn, nil
}

type decoder struct {
	h   *value.Heap
	b   []byte
	off int

	// every decoded object, kept rooted until Decode returns
	pending []value.Value
}

func (d *decoder) markRoots(h *value.Heap) {
	for _, v := range d.pending {
		h.MarkValue(v)
	}
}

func (d *decoder) value() (value.Value, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return value.Nil, nil
	case tagBool:
		b, err := d.byte()
		if err != nil {
			return nil, err
		}
		if b != 0 {
			return value.True, nil
		}
		return value.False, nil
	case tagNumber:
		bits, err := d.u64()
		if err != nil {
			return nil, err
		}
		return value.Number(math.Float64frombits(bits)), nil
	case tagObj:
		kind, err := d.byte()
		if err != nil {
			return nil, err
		}
		switch kind {
		case kindString:
			return d.str()
		case kindFunction:
			return d.function()
		}
		return nil, fmt.Errorf("invalid object kind %d", kind)
	}
	return nil, fmt.Errorf("invalid value tag %d", tag)
}

func (d *decoder) str() (*value.String, error) {
	n, err := d.i32()
	if err != nil {
		return nil, err
	}
	if n < 0 || d.off+n > len(d.b) {
		return nil, errors.New("truncated string record")
	}
	s := d.h.Intern(string(d.b[d.off : d.off+n]))
	d.off += n
	d.pending = append(d.pending, s)
	return s, nil
}

func (d *decoder) function() (*value.Function, error) {
	fn := d.h.NewFunction()
	d.pending = append(d.pending, fn)

	var err error
	if fn.Arity, err = d.i32(); err != nil {
		return nil, err
	}
	if fn.UpvalueCount, err = d.i32(); err != nil {
		return nil, err
	}
	codeLen, err := d.i32()
	if err != nil {
		return nil, err
	}
	if codeLen < 0 || d.off+codeLen > len(d.b) {
		return nil, errors.New("truncated code section")
	}
	fn.Chunk.Code = append([]byte(nil), d.b[d.off:d.off+codeLen]...)
	d.off += codeLen

	fn.Chunk.Lines = make([]int, codeLen)
	for i := range fn.Chunk.Lines {
		if fn.Chunk.Lines[i], err = d.i32(); err != nil {
			return nil, err
		}
	}

	nconsts, err := d.i32()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nconsts; i++ {
		c, err := d.value()
		if err != nil {
			return nil, err
		}
		fn.Chunk.Constants = append(fn.Chunk.Constants, c)
	}

	marker, err := d.byte()
	if err != nil {
		return nil, err
	}
	if marker != 0 {
		if fn.Name, err = d.str(); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.b) {
		return 0, errors.New("unexpected end of bytecode")
	}
	b := d.b[d.off]
	d.off++
	return b, nil
}

func (d *decoder) i32() (int, error) {
	if d.off+4 > len(d.b) {
		return 0, errors.New("unexpected end of bytecode")
	}
	n := int(int32(binary.BigEndian.Uint32(d.b[d.off:])))
	d.off += 4
	return n, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.off+8 > len(d.b) {
		return 0, errors.New("unexpected end of bytecode")
	}
	n := binary.BigEndian.Uint64(d.b[d.off:])
	d.off += 8
	return n, nil
}
