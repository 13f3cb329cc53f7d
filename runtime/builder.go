package runtime

import "github.com/podhmo/molang/object"

// Editor is the set of operations shared by a Builder and the edit view of
// a finalized Runtime.
type Editor interface {
	LoadLibrary(name string, obj object.Object, aliases ...string) error
	UnloadLibrary(name string) error
	LoadAlias(name string, aliases ...string) error

	SetQuery(name string, value object.Expression) error
	SetGlobal(name string, value object.Expression) error
	SetVariable(name string, value object.Expression) error
	RemoveQuery(name string) error
	RemoveGlobal(name string) error
	RemoveVariable(name string) error

	ClearLibraries()
	ClearQuery()
	ClearGlobal()
	ClearVariable()

	Copy(src object.Environment) error

	// Build returns the runtime the edits apply to.
	Build() *Runtime
}

// Builder accumulates scope objects and initial properties, then finalizes
// them into a Runtime where query and global are read-only.
type Builder struct {
	*core
}

var _ Editor = (*Builder)(nil)

// NewBuilder creates an empty builder.
func NewBuilder(options ...Option) *Builder {
	c := newCore(object.NewStorage(true), object.NewStorage(true), object.NewStorage(true), nil)
	for _, opt := range options {
		opt(c)
	}
	if c.logger == nil {
		c.logger = defaultLogger()
	}
	return &Builder{core: c}
}

// NewBuilderFrom creates a builder holding deep copies of the query, global
// and variable properties of b. Libraries are shared with b, but libraries
// loaded later are not.
func NewBuilderFrom(b *Builder) *Builder {
	c := newCore(b.query.Clone(), b.global.Clone(), b.variable.Clone(), b.logger)
	for name, obj := range b.objects {
		if !isProtected(name) {
			c.objects[name] = obj
		}
	}
	for alias, target := range b.aliases {
		c.aliases[alias] = target
	}
	return &Builder{core: c}
}

// Build finalizes the builder. The runtime shares the builder's storage:
// properties set later through the builder stay visible to it.
func (b *Builder) Build() *Runtime {
	return &Runtime{
		core:       b.fork(),
		parameters: make([]float32, 0, 8),
	}
}

// Query returns a read-only view of the query properties.
func (b *Builder) Query() object.Object { return b.objects[Query] }

// Global returns a read-only view of the global properties.
func (b *Builder) Global() object.Object { return b.objects[Global] }

// Variable returns the variable properties.
func (b *Builder) Variable() object.Object { return b.variable }

// editor applies edits directly to a live runtime.
type editor struct {
	*core
	runtime *Runtime
}

var _ Editor = (*editor)(nil)

func (e *editor) Build() *Runtime { return e.runtime }
