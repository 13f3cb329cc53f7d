package compiler

import "fmt"

// Opcode is a single operation of a compiled program.
type Opcode byte

const (
	OpNop Opcode = iota

	// values
	OpConst // push consts[A]
	OpThis  // push env.This()
	OpParam // push env.Parameter(A)
	OpPop   // discard top

	// slots
	OpLoad     // push slot A, resolving name C on the object in slot B on first use
	OpLoadTemp // push slot A, 0 when never stored
	OpStore    // pop into slot A and mark it written
	OpHas      // push 1 if the object in slot B has name C, cached in slot A
	OpFlush    // write slot A back to name C of the object in slot B, if written

	// calls
	OpCall // call name B on the object in slot A with C arguments from the stack

	// arithmetic / compare / unary
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpNeg
	OpNot

	// control flow
	OpJump        // ip = A
	OpJumpIfFalse // pop cond; if cond == 0 => ip = A
	OpResult      // pop into the program result
)

var opcodeNames = [...]string{
	OpNop:         "NOP",
	OpConst:       "CONST",
	OpThis:        "THIS",
	OpParam:       "PARAM",
	OpPop:         "POP",
	OpLoad:        "LOAD",
	OpLoadTemp:    "LOAD_TEMP",
	OpStore:       "STORE",
	OpHas:         "HAS",
	OpFlush:       "FLUSH",
	OpCall:        "CALL",
	OpAdd:         "ADD",
	OpSub:         "SUB",
	OpMul:         "MUL",
	OpDiv:         "DIV",
	OpLt:          "LT",
	OpLe:          "LE",
	OpGt:          "GT",
	OpGe:          "GE",
	OpEq:          "EQ",
	OpNe:          "NE",
	OpNeg:         "NEG",
	OpNot:         "NOT",
	OpJump:        "JUMP",
	OpJumpIfFalse: "JUMP_IF_FALSE",
	OpResult:      "RESULT",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

// Instruction is an opcode with up to three integer operands.
type Instruction struct {
	Op      Opcode
	A, B, C int
}

// Label is a jump target. Jumps emitted before the label is marked are
// patched when it is.
type Label struct {
	pos  int
	refs []int
}

// Marked reports whether the label position is known.
func (l *Label) Marked() bool { return l.pos >= 0 }
