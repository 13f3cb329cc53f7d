package ast

import (
	"fmt"
	"strings"

	"github.com/podhmo/molang/compiler"
	"github.com/podhmo/molang/object"
)

// Const is a literal number.
type Const struct {
	Value float32
}

func (n *Const) IsConstant() bool { return true }
func (n *Const) HasValue() bool   { return true }
func (n *Const) String() string   { return object.FormatFloat(n.Value) }

func (n *Const) Emit(env *compiler.Environment, _, _ *compiler.Label) error {
	env.EmitConst(n.Value)
	return nil
}

// This is the implicit value the expression is evaluated about.
type This struct{}

func (n *This) IsConstant() bool { return false }
func (n *This) HasValue() bool   { return true }
func (n *This) String() string   { return "this" }

func (n *This) Emit(env *compiler.Environment, _, _ *compiler.Label) error {
	env.Emit(compiler.OpThis)
	return nil
}

// Parameter reads a positional argument of the current call.
type Parameter struct {
	Index int
}

func (n *Parameter) IsConstant() bool { return false }
func (n *Parameter) HasValue() bool   { return true }
func (n *Parameter) String() string   { return fmt.Sprintf("param.%d", n.Index) }

func (n *Parameter) Emit(env *compiler.Environment, _, _ *compiler.Label) error {
	env.Emit(compiler.OpParam, n.Index)
	return nil
}

// BinaryOp is the operator of a Binary node.
type BinaryOp string

const (
	Add          BinaryOp = "+"
	Sub          BinaryOp = "-"
	Mul          BinaryOp = "*"
	Div          BinaryOp = "/"
	Less         BinaryOp = "<"
	LessEqual    BinaryOp = "<="
	Greater      BinaryOp = ">"
	GreaterEqual BinaryOp = ">="
	Equals       BinaryOp = "=="
	NotEquals    BinaryOp = "!="
	And          BinaryOp = "&&"
	Or           BinaryOp = "||"
)

var binaryOpcodes = map[BinaryOp]compiler.Opcode{
	Add:          compiler.OpAdd,
	Sub:          compiler.OpSub,
	Mul:          compiler.OpMul,
	Div:          compiler.OpDiv,
	Less:         compiler.OpLt,
	LessEqual:    compiler.OpLe,
	Greater:      compiler.OpGt,
	GreaterEqual: compiler.OpGe,
	Equals:       compiler.OpEq,
	NotEquals:    compiler.OpNe,
}

// Binary applies Op to Left and Right. && and || short-circuit and yield 1 or 0.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
}

func (n *Binary) IsConstant() bool { return n.Left.IsConstant() && n.Right.IsConstant() }
func (n *Binary) HasValue() bool   { return true }
func (n *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

func (n *Binary) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	switch n.Op {
	case And:
		return n.emitAnd(env, brk, cont)
	case Or:
		return n.emitOr(env, brk, cont)
	}
	op, ok := binaryOpcodes[n.Op]
	if !ok {
		return fmt.Errorf("unknown binary operator %q", n.Op)
	}
	if err := emitValue(env, n.Left, brk, cont); err != nil {
		return err
	}
	if err := emitValue(env, n.Right, brk, cont); err != nil {
		return err
	}
	env.Emit(op)
	return nil
}

func (n *Binary) emitAnd(env *compiler.Environment, brk, cont *compiler.Label) error {
	falseLabel, end := env.NewLabel(), env.NewLabel()
	if err := emitValue(env, n.Left, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJumpIfFalse, falseLabel)
	if err := emitValue(env, n.Right, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJumpIfFalse, falseLabel)
	env.EmitConst(1)
	env.Jump(compiler.OpJump, end)
	env.Mark(falseLabel)
	env.EmitConst(0)
	env.Mark(end)
	return nil
}

func (n *Binary) emitOr(env *compiler.Environment, brk, cont *compiler.Label) error {
	trueLabel, falseLabel, end := env.NewLabel(), env.NewLabel(), env.NewLabel()
	if err := emitValue(env, n.Left, brk, cont); err != nil {
		return err
	}
	env.Emit(compiler.OpNot)
	env.Jump(compiler.OpJumpIfFalse, trueLabel)
	if err := emitValue(env, n.Right, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJumpIfFalse, falseLabel)
	env.Mark(trueLabel)
	env.EmitConst(1)
	env.Jump(compiler.OpJump, end)
	env.Mark(falseLabel)
	env.EmitConst(0)
	env.Mark(end)
	return nil
}

// UnaryOp is the operator of a Unary node.
type UnaryOp string

const (
	Negate UnaryOp = "-"
	Not    UnaryOp = "!"
)

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

func (n *Unary) IsConstant() bool { return n.Operand.IsConstant() }
func (n *Unary) HasValue() bool   { return true }
func (n *Unary) String() string   { return string(n.Op) + n.Operand.String() }

func (n *Unary) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	if err := emitValue(env, n.Operand, brk, cont); err != nil {
		return err
	}
	switch n.Op {
	case Negate:
		env.Emit(compiler.OpNeg)
	case Not:
		env.Emit(compiler.OpNot)
	default:
		return fmt.Errorf("unknown unary operator %q", n.Op)
	}
	return nil
}

// Ternary is Cond ? True : False.
type Ternary struct {
	Cond, True, False Node
}

func (n *Ternary) IsConstant() bool {
	return n.Cond.IsConstant() && n.True.IsConstant() && n.False.IsConstant()
}
func (n *Ternary) HasValue() bool { return n.True.HasValue() && n.False.HasValue() }
func (n *Ternary) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", n.Cond, n.True, n.False)
}

func (n *Ternary) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	branch := emitStatement
	if n.HasValue() {
		branch = emitValue
	}

	if env.Optimize() && n.Cond.IsConstant() {
		cond, err := Evaluate(n.Cond)
		if err != nil {
			return err
		}
		if cond != 0 {
			return branch(env, n.True, brk, cont)
		}
		return branch(env, n.False, brk, cont)
	}

	elseLabel, end := env.NewLabel(), env.NewLabel()
	if err := emitValue(env, n.Cond, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJumpIfFalse, elseLabel)
	if err := branch(env, n.True, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJump, end)
	env.Mark(elseLabel)
	if err := branch(env, n.False, brk, cont); err != nil {
		return err
	}
	env.Mark(end)
	return nil
}

// BinaryCondition is Cond ? Value, yielding 0 when Cond is false.
type BinaryCondition struct {
	Cond, Value Node
}

func (n *BinaryCondition) IsConstant() bool { return n.Cond.IsConstant() && n.Value.IsConstant() }
func (n *BinaryCondition) HasValue() bool   { return n.Value.HasValue() }
func (n *BinaryCondition) String() string {
	return fmt.Sprintf("(%s ? %s)", n.Cond, n.Value)
}

func (n *BinaryCondition) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	if env.Optimize() && n.Cond.IsConstant() {
		cond, err := Evaluate(n.Cond)
		if err != nil {
			return err
		}
		switch {
		case cond != 0 && n.HasValue():
			return emitValue(env, n.Value, brk, cont)
		case cond != 0:
			return emitStatement(env, n.Value, brk, cont)
		case n.HasValue():
			env.EmitConst(0)
		}
		return nil
	}

	elseLabel, end := env.NewLabel(), env.NewLabel()
	if err := emitValue(env, n.Cond, brk, cont); err != nil {
		return err
	}
	if !n.HasValue() {
		env.Jump(compiler.OpJumpIfFalse, end)
		if err := emitStatement(env, n.Value, brk, cont); err != nil {
			return err
		}
		env.Mark(end)
		return nil
	}
	env.Jump(compiler.OpJumpIfFalse, elseLabel)
	if err := emitValue(env, n.Value, brk, cont); err != nil {
		return err
	}
	env.Jump(compiler.OpJump, end)
	env.Mark(elseLabel)
	env.EmitConst(0)
	env.Mark(end)
	return nil
}

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}
