// Package runtime provides the environment compiled programs run against:
// named scope objects, aliases, call parameters and the implicit this value.
//
// A Runtime is not safe for concurrent mutation. Hosts that evaluate the
// same runtime from several goroutines must serialize edits and the
// parameter and this setters.
package runtime

import (
	"fmt"
	"strings"

	"github.com/podhmo/molang/object"
)

// Runtime is a finalized environment.
type Runtime struct {
	core       *core
	this       float32
	parameters []float32
}

var _ object.Environment = (*Runtime)(nil)

// Get returns the scope object registered under name, chasing aliases.
func (r *Runtime) Get(name string) (object.Object, error) { return r.core.get(name) }

// Has reports whether a scope object is registered under name.
func (r *Runtime) Has(name string) bool { return r.core.has(name) }

// Objects returns the names of all scope objects in sorted order.
func (r *Runtime) Objects() []string { return r.core.names() }

// Resolve returns the canonical name of a scope name or alias.
func (r *Runtime) Resolve(name string) (string, error) { return r.core.resolve(name) }

func (r *Runtime) Parameter(i int) (float32, error) {
	if i < 0 || i >= len(r.parameters) {
		return 0, object.NewRuntimeError(object.ErrMissingParameter, fmt.Sprint(i), "no parameter loaded in slot %d", i)
	}
	return r.parameters[i], nil
}

func (r *Runtime) ParameterCount() int     { return len(r.parameters) }
func (r *Runtime) LoadParameter(v float32) { r.parameters = append(r.parameters, v) }
func (r *Runtime) ClearParameters()        { r.parameters = r.parameters[:0] }
func (r *Runtime) This() float32           { return r.this }
func (r *Runtime) SetThis(v float32)       { r.this = v }

// Edit returns a view that mutates this runtime in place.
func (r *Runtime) Edit() Editor {
	return &editor{core: r.core, runtime: r}
}

// Dump renders every scope object and the loaded parameters, for diagnostics.
func (r *Runtime) Dump() string {
	var b strings.Builder
	b.WriteString("==Start MoLang Runtime Dump==\n\n")
	b.WriteString("==Start Objects==\n")
	for _, name := range r.core.names() {
		fmt.Fprintf(&b, "%s=%s\n", name, r.core.objects[name])
	}
	b.WriteString("==End Objects==\n\n")
	b.WriteString("==Start Parameters==\n")
	for i, p := range r.parameters {
		fmt.Fprintf(&b, "\tParameter %d=%s\n", i, object.FormatFloat(p))
	}
	b.WriteString("==End Parameters==\n\n")
	b.WriteString("==End MoLang Runtime Dump==")
	return b.String()
}
