package compiler

import "fmt"

// Increment this to force recompilation of saved bytecode files.
const Version = 1

type Opcode uint8

// "x ADD y" is a "stack picture" that describes the state of the stack
// before and after execution of the instruction.
//
// OP<const> indicates an immediate operand that is an index into the
// chunk's constants pool; OP<slot> a frame-relative stack or upvalue slot.
// Jump operands are unsigned 16-bit offsets, big-endian. All other operands
// are single bytes.
const ( //nolint:revive
	CONSTANT Opcode = iota //            - CONSTANT<const>  value

	NIL   //                             - NIL              nil
	TRUE  //                             - TRUE             true
	FALSE //                             - FALSE            false
	POP   //                           x POP                -

	GETLOCAL     //                    - GETLOCAL<slot>     value
	SETLOCAL     //                value SETLOCAL<slot>     value
	GETGLOBAL    //                    - GETGLOBAL<const>   value
	DEFINEGLOBAL //                value DEFINEGLOBAL<const> -
	SETGLOBAL    //                value SETGLOBAL<const>   value
	GETUPVALUE   //                    - GETUPVALUE<slot>   value
	SETUPVALUE   //                value SETUPVALUE<slot>   value
	GETPROPERTY  //             instance GETPROPERTY<const> value
	SETPROPERTY  //       instance value SETPROPERTY<const> value
	GETSUPER     //           this class GETSUPER<const>    method

	EQUAL    //                      x y EQUAL              bool
	GREATER  //                      x y GREATER            bool
	LESS     //                      x y LESS               bool
	ADD      //                      x y ADD                x+y
	SUBTRACT //                      x y SUBTRACT           x-y
	MULTIPLY //                      x y MULTIPLY           x*y
	DIVIDE   //                      x y DIVIDE             x/y
	NOT      //                        x NOT                bool
	NEGATE   //                        x NEGATE             -x

	PRINT //                           x PRINT              -

	JUMP        //                     - JUMP<offset>       -
	JUMPIFFALSE //                  cond JUMPIFFALSE<offset> cond  (cond stays)
	LOOP        //                     - LOOP<offset>       -     (backward)

	CALL        //         fn a1 ... an CALL<n>             result
	INVOKE      //       inst a1 ... an INVOKE<const><n>    result
	SUPERINVOKE // this a1 ... an cls SUPERINVOKE<const><n> result

	CLOSURE      //                    - CLOSURE<const>...  closure  (pairs of islocal,index follow)
	CLOSEUPVALUE //                value CLOSEUPVALUE       -        (hoists slot to heap)
	RETURN       //                value RETURN             -        (frame exit)

	CLASS   //                         - CLASS<const>       class
	INHERIT //                 super cls INHERIT            super
	METHOD  //               cls closure METHOD<const>      cls

	MAKELIST //               x1 ... xn MAKELIST<n>         list
	INDEX    //                     list i INDEX            elem
	SETINDEX //               list i value SETINDEX         value

	OpcodeMax = SETINDEX
)

var opcodeNames = [...]string{
	ADD:          "add",
	CALL:         "call",
	CLASS:        "class",
	CLOSEUPVALUE: "closeupvalue",
	CLOSURE:      "closure",
	CONSTANT:     "constant",
	DEFINEGLOBAL: "defineglobal",
	DIVIDE:       "divide",
	EQUAL:        "equal",
	FALSE:        "false",
	GETGLOBAL:    "getglobal",
	GETLOCAL:     "getlocal",
	GETPROPERTY:  "getproperty",
	GETSUPER:     "getsuper",
	GETUPVALUE:   "getupvalue",
	GREATER:      "greater",
	INDEX:        "index",
	INHERIT:      "inherit",
	INVOKE:       "invoke",
	JUMP:         "jump",
	JUMPIFFALSE:  "jumpiffalse",
	LESS:         "less",
	LOOP:         "loop",
	MAKELIST:     "makelist",
	METHOD:       "method",
	MULTIPLY:     "multiply",
	NEGATE:       "negate",
	NIL:          "nil",
	NOT:          "not",
	POP:          "pop",
	PRINT:        "print",
	RETURN:       "return",
	SETGLOBAL:    "setglobal",
	SETINDEX:     "setindex",
	SETLOCAL:     "setlocal",
	SETPROPERTY:  "setproperty",
	SETUPVALUE:   "setupvalue",
	SUPERINVOKE:  "superinvoke",
	TRUE:         "true",
	SUBTRACT:     "subtract",
}

func (op Opcode) String() string {
	if op <= OpcodeMax {
		if name := opcodeNames[op]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

// operand kinds, used by the disassembler.
type operands int8

const (
	opNone    operands = iota
	opByte             // slot or argument count
	opConst            // constants pool index
	opShort            // 16-bit jump offset
	opInvoke           // constants index followed by argument count
	opClosure          // constants index followed by upvalue pairs
)

var opcodeOperands = [...]operands{
	CONSTANT:     opConst,
	GETLOCAL:     opByte,
	SETLOCAL:     opByte,
	GETGLOBAL:    opConst,
	DEFINEGLOBAL: opConst,
	SETGLOBAL:    opConst,
	GETUPVALUE:   opByte,
	SETUPVALUE:   opByte,
	GETPROPERTY:  opConst,
	SETPROPERTY:  opConst,
	GETSUPER:     opConst,
	JUMP:         opShort,
	JUMPIFFALSE:  opShort,
	LOOP:         opShort,
	CALL:         opByte,
	INVOKE:       opInvoke,
	SUPERINVOKE:  opInvoke,
	CLOSURE:      opClosure,
	CLASS:        opConst,
	METHOD:       opConst,
	MAKELIST:     opByte,
	SETINDEX:     opNone,
}
