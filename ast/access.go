package ast

import (
	"fmt"

	"github.com/podhmo/molang/compiler"
)

// VariableGet reads Scope.Name. Build it with Factory.Get so the scope
// alias and domain routing are applied.
type VariableGet struct {
	Scope string
	Name  string
}

// scope contents may change between and within evaluations
func (n *VariableGet) IsConstant() bool { return false }
func (n *VariableGet) HasValue() bool   { return true }
func (n *VariableGet) String() string   { return n.Scope + "." + n.Name }

func (n *VariableGet) Emit(env *compiler.Environment, _, _ *compiler.Label) error {
	env.Resolve(n.Scope, n.Name)
	return nil
}

// VariableSet assigns Value to Scope.Name. The write reaches the scope
// object once, when the compiled unit returns.
type VariableSet struct {
	Scope string
	Name  string
	Value Node
}

func (n *VariableSet) IsConstant() bool { return false }
func (n *VariableSet) HasValue() bool   { return false }
func (n *VariableSet) String() string {
	return fmt.Sprintf("%s.%s = %s", n.Scope, n.Name, n.Value)
}

func (n *VariableSet) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	if err := emitValue(env, n.Value, brk, cont); err != nil {
		return err
	}
	env.Store(n.Scope, n.Name)
	return nil
}

// NullCoalescing yields Scope.Name when the scope has it, Fallback otherwise.
type NullCoalescing struct {
	Scope    string
	Name     string
	Fallback Node
}

func (n *NullCoalescing) IsConstant() bool { return false }
func (n *NullCoalescing) HasValue() bool   { return true }
func (n *NullCoalescing) String() string {
	return fmt.Sprintf("(%s.%s ?? %s)", n.Scope, n.Name, n.Fallback)
}

func (n *NullCoalescing) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	fallback, end := env.NewLabel(), env.NewLabel()
	env.ResolveHas(n.Scope, n.Name)
	env.Jump(compiler.OpJumpIfFalse, fallback)
	env.Resolve(n.Scope, n.Name)
	env.Jump(compiler.OpJump, end)
	env.Mark(fallback)
	if err := emitValue(env, n.Fallback, brk, cont); err != nil {
		return err
	}
	env.Mark(end)
	return nil
}

// Call invokes the function Scope.Name with Args as positional parameters.
// Results are never cached: the same call may yield different values.
type Call struct {
	Scope string
	Name  string
	Args  []Node
}

func (n *Call) IsConstant() bool { return false }
func (n *Call) HasValue() bool   { return true }
func (n *Call) String() string {
	return fmt.Sprintf("%s.%s(%s)", n.Scope, n.Name, joinNodes(n.Args, ", "))
}

func (n *Call) Emit(env *compiler.Environment, brk, cont *compiler.Label) error {
	for _, arg := range n.Args {
		if err := emitValue(env, arg, brk, cont); err != nil {
			return err
		}
	}
	env.EmitCall(n.Scope, n.Name, len(n.Args))
	return nil
}
