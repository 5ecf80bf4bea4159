package value

import (
	"github.com/dolthub/swiss"
)

const (
	// initial collection threshold, doubled after each collection based on
	// the surviving bytes.
	firstGC    = 1 << 20
	growFactor = 2

	// nominal allocation sizes, in bytes. The collector only needs a
	// monotone account of allocation pressure, not exact process memory.
	sizeString      = 56
	sizeFunction    = 120
	sizeNative      = 40
	sizeClosure     = 48
	sizeClosureSlot = 16
	sizeUpvalue     = 56
	sizeClass       = 64
	sizeInstance    = 64
	sizeBoundMethod = 48
	sizeList        = 40
	sizeListSlot    = 16
)

// A Heap owns every object of a machine and collects the unreachable ones
// with a precise mark-sweep pass. Objects are threaded on a single list at
// allocation time and freed only during sweep.
//
// Allocation may trigger a collection, so callers must ensure any object
// they wish to keep alive is reachable through a registered root before the
// next allocation. Transient values are typically pushed on the machine's
// value stack; the compiler keeps its in-progress functions reachable
// through its own root marker.
type Heap struct {
	// Stress forces a full collection on every allocation. Reference-correct
	// programs behave identically with and without it.
	Stress bool

	objects        Obj
	bytesAllocated int
	nextGC         int
	grayStack      []Obj
	strings        *swiss.Map[string, *String]
	markers        []func(*Heap)
}

// NewHeap returns an empty heap with an empty interning table.
func NewHeap() *Heap {
	return &Heap{
		nextGC:  firstGC,
		strings: swiss.NewMap[string, *String](32),
	}
}

// OnMarkRoots registers a root-marking hook called at the start of every
// collection. The hook must call MarkValue/MarkObject for each root it owns.
// The returned function unregisters the hook.
func (h *Heap) OnMarkRoots(f func(*Heap)) (remove func()) {
	h.markers = append(h.markers, f)
	i := len(h.markers) - 1
	return func() { h.markers[i] = nil }
}

// BytesAllocated returns the accounted size of all live objects.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// alloc accounts for a new object, possibly collecting first, then threads
// it on the object list. The object is not reachable by the collection that
// its own allocation triggers, so it always survives until the caller had a
// chance to root it.
func (h *Heap) alloc(o Obj, size int) {
	h.bytesAllocated += size
	if h.Stress || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
	hdr := o.header()
	hdr.size = size
	hdr.next = h.objects
	h.objects = o
}

// Intern returns the unique String object for the given content, allocating
// it on first use.
func (h *Heap) Intern(str string) *String {
	if s, ok := h.strings.Get(str); ok {
		return s
	}
	s := &String{str: str, hash: hashString(str)}
	h.alloc(s, sizeString+len(str))
	h.strings.Put(str, s)
	return s
}

// NewFunction allocates an empty function. The caller fills in arity, chunk
// and name while keeping it rooted.
func (h *Heap) NewFunction() *Function {
	fn := &Function{}
	h.alloc(fn, sizeFunction)
	return fn
}

// NewNative allocates a built-in function value.
func (h *Heap) NewNative(name string, f NativeFn) *Native {
	n := &Native{Name: name, Fn: f}
	h.alloc(n, sizeNative)
	return n
}

// NewClosure allocates a closure over fn with room for its upvalues.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Fn: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.alloc(c, sizeClosure+sizeClosureSlot*fn.UpvalueCount)
	return c
}

// NewUpvalue allocates an open upvalue designating the given stack slot.
func (h *Heap) NewUpvalue(slot int) *Upvalue {
	uv := &Upvalue{Location: slot, Closed: Nil}
	h.alloc(uv, sizeUpvalue)
	return uv
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *String) *Class {
	cls := &Class{Name: name, Methods: swiss.NewMap[*String, *Closure](8)}
	h.alloc(cls, sizeClass)
	return cls
}

// NewInstance allocates an instance of cls with an empty field table.
func (h *Heap) NewInstance(cls *Class) *Instance {
	inst := &Instance{Class: cls, Fields: swiss.NewMap[*String, Value](8)}
	h.alloc(inst, sizeInstance)
	return inst
}

// NewBoundMethod allocates a bound method.
func (h *Heap) NewBoundMethod(recv Value, method *Closure) *BoundMethod {
	bm := &BoundMethod{Receiver: recv, Method: method}
	h.alloc(bm, sizeBoundMethod)
	return bm
}

// NewList allocates a list taking ownership of elems. The elements must be
// rooted by the caller for the duration of the allocation.
func (h *Heap) NewList(elems []Value) *List {
	l := &List{Elems: elems}
	h.alloc(l, sizeList+sizeListSlot*len(elems))
	return l
}

// MarkValue marks v if it is a heap object. Only valid during a collection,
// from a root-marking hook.
func (h *Heap) MarkValue(v Value) {
	if o, ok := v.(Obj); ok {
		h.MarkObject(o)
	}
}

// MarkObject colors o gray and queues it for tracing. Only valid during a
// collection, from a root-marking hook.
func (h *Heap) MarkObject(o Obj) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.grayStack = append(h.grayStack, o)
}

// Collect runs a full mark-sweep collection: mark every root gray, trace
// the gray worklist to a fixpoint, drop unreachable entries from the weak
// interning table, then sweep the object list.
func (h *Heap) Collect() {
	for _, f := range h.markers {
		if f != nil {
			f(h)
		}
	}
	h.traceReferences()
	h.sweepStrings()
	h.sweep()
	h.nextGC = h.bytesAllocated * growFactor
}

func (h *Heap) traceReferences() {
	for len(h.grayStack) > 0 {
		o := h.grayStack[len(h.grayStack)-1]
		h.grayStack = h.grayStack[:len(h.grayStack)-1]
		h.blacken(o)
	}
}

func (h *Heap) blacken(o Obj) {
	switch o := o.(type) {
	case *String, *Native:
		// no outgoing references
	case *Function:
		if o.Name != nil {
			h.MarkObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			h.MarkValue(c)
		}
	case *Closure:
		h.MarkObject(o.Fn)
		for _, uv := range o.Upvalues {
			if uv != nil {
				h.MarkObject(uv)
			}
		}
	case *Upvalue:
		h.MarkValue(o.Closed)
	case *Class:
		h.MarkObject(o.Name)
		o.Methods.Iter(func(k *String, v *Closure) bool {
			h.MarkObject(k)
			h.MarkObject(v)
			return false
		})
	case *Instance:
		h.MarkObject(o.Class)
		o.Fields.Iter(func(k *String, v Value) bool {
			h.MarkObject(k)
			h.MarkValue(v)
			return false
		})
	case *BoundMethod:
		h.MarkValue(o.Receiver)
		h.MarkObject(o.Method)
	case *List:
		for _, e := range o.Elems {
			h.MarkValue(e)
		}
	}
}

// sweepStrings removes interned strings that did not survive the mark
// phase. The interning table is weak-keyed: it never keeps a string alive
// on its own.
func (h *Heap) sweepStrings() {
	var dead []string
	h.strings.Iter(func(k string, v *String) bool {
		if !v.marked {
			dead = append(dead, k)
		}
		return false
	})
	for _, k := range dead {
		h.strings.Delete(k)
	}
}

func (h *Heap) sweep() {
	var prev Obj
	o := h.objects
	for o != nil {
		hdr := o.header()
		next := hdr.next
		if hdr.marked {
			hdr.marked = false
			prev = o
		} else {
			h.bytesAllocated -= hdr.size
			hdr.next = nil
			if prev == nil {
				h.objects = next
			} else {
				prev.header().next = next
			}
		}
		o = next
	}
}

// Free releases every object and the interning table. The heap is unusable
// afterwards until recreated.
func (h *Heap) Free() {
	o := h.objects
	for o != nil {
		hdr := o.header()
		next := hdr.next
		hdr.next = nil
		o = next
	}
	h.objects = nil
	h.bytesAllocated = 0
	h.strings.Clear()
	h.markers = nil
}

// hashString computes the FNV-1a 32-bit hash of s.
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
