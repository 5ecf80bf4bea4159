package compiler

import (
	"fmt"
	"io"

	"github.com/mna/calla/lang/value"
)

// Disasm writes a textual listing of fn's chunk to w, followed by the
// listings of every function found in its constants pool, recursively.
func Disasm(w io.Writer, fn *value.Function) {
	fmt.Fprintf(w, "== %s ==\n", fn)
	for offset := 0; offset < len(fn.Chunk.Code); {
		offset = DisasmInstruction(w, &fn.Chunk, offset)
	}
	for _, c := range fn.Chunk.Constants {
		if sub, ok := c.(*value.Function); ok {
			fmt.Fprintln(w)
			Disasm(w, sub)
		}
	}
}

// DisasmInstruction writes the instruction at offset and returns the offset
// of the next one.
func DisasmInstruction(w io.Writer, ch *value.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && ch.Lines[offset] == ch.Lines[offset-1] {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", ch.Lines[offset])
	}

	op := Opcode(ch.Code[offset])
	if op > OpcodeMax {
		fmt.Fprintf(w, "unknown opcode %d\n", op)
		return offset + 1
	}

	switch opcodeOperands[op] {
	case opByte:
		slot := ch.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d\n", op, slot)
		return offset + 2

	case opConst:
		idx := ch.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, ch.Constants[idx])
		return offset + 2

	case opShort:
		operand := int(ch.Code[offset+1])<<8 | int(ch.Code[offset+2])
		target := offset + 3 + operand
		if op == LOOP {
			target = offset + 3 - operand
		}
		fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, target)
		return offset + 3

	case opInvoke:
		idx := ch.Code[offset+1]
		argc := ch.Code[offset+2]
		fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", op, argc, idx, ch.Constants[idx])
		return offset + 3

	case opClosure:
		idx := ch.Code[offset+1]
		fn := ch.Constants[idx].(*value.Function)
		fmt.Fprintf(w, "%-16s %4d %s\n", op, idx, fn)
		offset += 2
		for i := 0; i < fn.UpvalueCount; i++ {
			kind := "upvalue"
			if ch.Code[offset] == 1 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, ch.Code[offset+1])
			offset += 2
		}
		return offset

	default:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}
