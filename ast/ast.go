// Package ast defines the expression tree handed over by the parser and
// how each node emits itself into a compiled program.
package ast

import (
	"reflect"
	"strings"

	"github.com/podhmo/molang/compiler"
	"github.com/podhmo/molang/object"
	"github.com/podhmo/molang/registry"
)

// Node is a single expression or statement.
type Node interface {
	// IsConstant reports whether evaluating the node can never observe or
	// mutate runtime state and always yields the same value.
	IsConstant() bool
	// HasValue reports whether the node yields a float once evaluated.
	// It is false only for statements evaluated for their effect.
	HasValue() bool
	// Emit appends the evaluation of the node to env. brk and cont are the
	// targets of break and continue, and are nil outside a loop body.
	Emit(env *compiler.Environment, brk, cont *compiler.Label) error
	String() string
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Node) bool {
	return reflect.DeepEqual(a, b)
}

// Factory builds access nodes, applying alias resolution and domain routing
// at construction time.
type Factory struct {
	aliases *registry.Aliases
	domains *registry.Domains
}

// NewFactory creates a factory. nil arguments fall back to the built-in
// aliases and an empty domain registry.
func NewFactory(aliases *registry.Aliases, domains *registry.Domains) *Factory {
	if aliases == nil {
		aliases = registry.NewAliases()
	}
	if domains == nil {
		domains = registry.NewDomains()
	}
	return &Factory{aliases: aliases, domains: domains}
}

// Route returns the canonical scope and property name of scope.name:
// the name is lowercased, the scope alias resolved, and query properties
// registered to a domain are moved to that domain.
func (f *Factory) Route(scope, name string) (string, string, error) {
	name = strings.ToLower(name)
	scope, err := f.aliases.Resolve(strings.ToLower(scope))
	if err != nil {
		return "", "", err
	}
	if scope == "query" {
		if domain, ok := f.domains.Domain(name); ok {
			scope = domain
		}
	}
	return scope, name, nil
}

// Get builds a read of scope.name.
func (f *Factory) Get(scope, name string) (*VariableGet, error) {
	scope, name, err := f.Route(scope, name)
	if err != nil {
		return nil, err
	}
	return &VariableGet{Scope: scope, Name: name}, nil
}

// Set builds an assignment of value to scope.name.
func (f *Factory) Set(scope, name string, value Node) (*VariableSet, error) {
	scope, name, err := f.Route(scope, name)
	if err != nil {
		return nil, err
	}
	return &VariableSet{Scope: scope, Name: name, Value: value}, nil
}

// Coalesce builds scope.name ?? fallback.
func (f *Factory) Coalesce(scope, name string, fallback Node) (*NullCoalescing, error) {
	scope, name, err := f.Route(scope, name)
	if err != nil {
		return nil, err
	}
	return &NullCoalescing{Scope: scope, Name: name, Fallback: fallback}, nil
}

// Call builds a call of the function scope.name.
func (f *Factory) Call(scope, name string, args ...Node) (*Call, error) {
	scope, name, err := f.Route(scope, name)
	if err != nil {
		return nil, err
	}
	return &Call{Scope: scope, Name: name, Args: args}, nil
}

// emitValue emits n, replacing constant subtrees by their folded value
// when the environment optimizes.
func emitValue(env *compiler.Environment, n Node, brk, cont *compiler.Label) error {
	if !n.HasValue() {
		return object.NewCompileError(object.ErrInvalidControlFlow, n.String(), "statement used as a value")
	}
	if env.Optimize() && n.IsConstant() {
		if _, ok := n.(*Const); !ok {
			v, err := Evaluate(n)
			if err != nil {
				return err
			}
			env.EmitConst(v)
			return nil
		}
	}
	return n.Emit(env, brk, cont)
}

// emitStatement emits n for its effect, discarding any value. Constant
// statements have no effect and are dropped when optimizing.
func emitStatement(env *compiler.Environment, n Node, brk, cont *compiler.Label) error {
	if env.Optimize() && n.IsConstant() {
		return nil
	}
	if err := n.Emit(env, brk, cont); err != nil {
		return err
	}
	if n.HasValue() {
		env.Emit(compiler.OpPop)
	}
	return nil
}

// Evaluate computes the value of a constant node without a runtime.
func Evaluate(n Node) (float32, error) {
	return compiler.Fold(func(env *compiler.Environment) error {
		return n.Emit(env, nil, nil)
	})
}

// EmitRoot emits root as a whole compiled unit: its value, if any,
// becomes the program result.
func EmitRoot(env *compiler.Environment, root Node) error {
	if !root.HasValue() {
		return emitStatement(env, root, nil, nil)
	}
	if err := emitValue(env, root, nil, nil); err != nil {
		return err
	}
	env.Emit(compiler.OpResult)
	return nil
}
