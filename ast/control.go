package ast

import (
	"fmt"

	"github.com/podhmo/molang/compiler"
	"github.com/podhmo/molang/object"
)

// Loop runs Body Count times. Count is evaluated once, before the first iteration.
type Loop struct {
	Count Node
	Body  Node
}

func (n *Loop) IsConstant() bool { return false }
func (n *Loop) HasValue() bool   { return false }
func (n *Loop) String() string   { return fmt.Sprintf("loop(%s, %s)", n.Count, n.Body) }

func (n *Loop) Emit(env *compiler.Environment, _, _ *compiler.Label) error {
	if env.Optimize() && n.Count.IsConstant() {
		count, err := Evaluate(n.Count)
		if err != nil {
			return err
		}
		if count <= 0 {
			return nil
		}
	}

	countSlot := env.AllocateHidden("loop_count")
	indexSlot := env.AllocateHidden("loop_index")
	start, next, end := env.NewLabel(), env.NewLabel(), env.NewLabel()

	if err := emitValue(env, n.Count, nil, nil); err != nil {
		return err
	}
	env.Emit(compiler.OpStore, countSlot)
	env.EmitConst(0)
	env.Emit(compiler.OpStore, indexSlot)

	env.Mark(start)
	env.Emit(compiler.OpLoadTemp, indexSlot)
	env.Emit(compiler.OpLoadTemp, countSlot)
	env.Emit(compiler.OpLt)
	env.Jump(compiler.OpJumpIfFalse, end)

	if err := emitStatement(env, n.Body, end, next); err != nil {
		return err
	}

	env.Mark(next)
	env.Emit(compiler.OpLoadTemp, indexSlot)
	env.EmitConst(1)
	env.Emit(compiler.OpAdd)
	env.Emit(compiler.OpStore, indexSlot)
	env.Jump(compiler.OpJump, start)
	env.Mark(end)
	return nil
}

// Break leaves the innermost loop.
type Break struct{}

func (n *Break) IsConstant() bool { return false }
func (n *Break) HasValue() bool   { return false }
func (n *Break) String() string   { return "break" }

func (n *Break) Emit(env *compiler.Environment, brk, _ *compiler.Label) error {
	if brk == nil {
		return object.NewCompileError(object.ErrInvalidControlFlow, "break", "outside of a loop")
	}
	env.Jump(compiler.OpJump, brk)
	return nil
}

// Continue skips to the next iteration of the innermost loop.
type Continue struct{}

func (n *Continue) IsConstant() bool { return false }
func (n *Continue) HasValue() bool   { return false }
func (n *Continue) String() string   { return "continue" }

func (n *Continue) Emit(env *compiler.Environment, _, cont *compiler.Label) error {
	if cont == nil {
		return object.NewCompileError(object.ErrInvalidControlFlow, "continue", "outside of a loop")
	}
	env.Jump(compiler.OpJump, cont)
	return nil
}

// Block is a sequence of statements.
type Block struct {
	Statements []Node
}

func (n *Block) IsConstant() bool {
	for _, s := range n.Statements {
		if !s.IsConstant() {
			return false
		}
	}
	return true
}
func (n *Block) HasValue() bool { return false }
func (n *Block) String() string {
	if len(n.Statements) == 0 {
		return "{}"
	}
	return "{" + joinNodes(n.Statements, "; ") + ";}"
}

func (n *Block) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	for _, s := range n.Statements {
		if err := emitStatement(env, s, brk, cont); err != nil {
			return err
		}
	}
	return nil
}

// Return ends the compiled unit with Value as its result. Pending
// write-backs still happen.
type Return struct {
	Value Node
}

func (n *Return) IsConstant() bool { return false }
func (n *Return) HasValue() bool   { return false }
func (n *Return) String() string   { return "return " + n.Value.String() }

func (n *Return) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	if err := emitValue(env, n.Value, brk, cont); err != nil {
		return err
	}
	env.EmitReturn()
	return nil
}
