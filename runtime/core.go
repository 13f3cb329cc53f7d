package runtime

import (
	"log/slog"
	"os"
	"sort"

	"github.com/podhmo/molang/object"
	"github.com/podhmo/molang/registry"
)

// Canonical names of the protected scopes.
const (
	Query    = "query"
	Context  = "context"
	Global   = "global"
	Variable = "variable"
)

func isProtected(name string) bool {
	switch name {
	case Query, Context, Global, Variable:
		return true
	}
	return false
}

// Option configures a Builder.
type Option func(*core)

// WithLogger sets the logger used for library and alias changes. A nil
// logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		c.logger = logger
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// core is the state shared by the builder, the runtime and its edit view.
// query and global are only ever exposed as read-only views of their storage.
type core struct {
	query    *object.Storage
	global   *object.Storage
	variable *object.Storage

	objects map[string]object.Object
	aliases map[string]string
	logger  *slog.Logger
}

func newCore(query, global, variable *object.Storage, logger *slog.Logger) *core {
	if logger == nil {
		logger = defaultLogger()
	}
	queryView := object.ReadOnly(query)
	return &core{
		query:    query,
		global:   global,
		variable: variable,
		objects: map[string]object.Object{
			Context:  queryView,
			Query:    queryView,
			Global:   object.ReadOnly(global),
			Variable: variable,
		},
		aliases: map[string]string{
			"c": Context,
			"q": Query,
			"v": Variable,
		},
		logger: logger,
	}
}

// fork returns a core sharing the storages and the loaded objects, but
// with its own object and alias maps.
func (c *core) fork() *core {
	f := newCore(c.query, c.global, c.variable, c.logger)
	for name, obj := range c.objects {
		if !isProtected(name) {
			f.objects[name] = obj
		}
	}
	for alias, target := range c.aliases {
		f.aliases[alias] = target
	}
	return f
}

func (c *core) resolve(name string) (string, error) {
	return registry.Chase(c.aliases, name)
}

func (c *core) get(name string) (object.Object, error) {
	resolved, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	if obj, ok := c.objects[resolved]; ok {
		return obj, nil
	}
	return nil, object.NewRuntimeError(object.ErrUnknownScope, resolved, "")
}

func (c *core) has(name string) bool {
	_, err := c.get(name)
	return err == nil
}

func (c *core) names() []string {
	names := make([]string, 0, len(c.objects))
	for name := range c.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *core) storage(name string) (*object.Storage, bool) {
	switch name {
	case Query, Context:
		return c.query, true
	case Global:
		return c.global, true
	case Variable:
		return c.variable, true
	}
	return nil, false
}

// --- operations shared by Builder and the edit view ---

func (c *core) LoadLibrary(name string, obj object.Object, aliases ...string) error {
	if isProtected(name) {
		return object.NewRuntimeError(object.ErrProtectedScope, name, "cannot replace query, context, global, or variable")
	}
	if target, ok := c.aliases[name]; ok {
		return object.NewRuntimeError(object.ErrProtectedScope, name, "already an alias of %s", target)
	}
	for _, alias := range aliases {
		if err := c.checkAlias(name, alias); err != nil {
			return err
		}
	}
	c.objects[name] = obj
	c.logger.Debug("load library", "name", name, "aliases", aliases)
	return c.LoadAlias(name, aliases...)
}

func (c *core) UnloadLibrary(name string) error {
	obj, ok := c.objects[name]
	if isProtected(name) || (ok && c.isProtectedObject(obj)) {
		return object.NewRuntimeError(object.ErrProtectedScope, name, "cannot remove query, global, or variable")
	}
	delete(c.objects, name)
	for alias, target := range c.aliases {
		if target == name {
			delete(c.aliases, alias)
		}
	}
	c.logger.Debug("unload library", "name", name)
	return nil
}

func (c *core) isProtectedObject(obj object.Object) bool {
	for _, name := range []string{Query, Global, Variable} {
		if c.objects[name] == obj {
			return true
		}
	}
	return false
}

// LoadAlias makes every alias resolve to the loaded object name. An alias
// can neither be an object name nor redirect c, q or v.
func (c *core) LoadAlias(name string, aliases ...string) error {
	if _, ok := c.objects[name]; !ok {
		return object.NewRuntimeError(object.ErrUnknownScope, name, "invalid library")
	}
	for _, alias := range aliases {
		if err := c.checkAlias(name, alias); err != nil {
			return err
		}
	}
	for _, alias := range aliases {
		c.aliases[alias] = name
		c.logger.Debug("load alias", "alias", alias, "name", name)
	}
	return nil
}

func (c *core) checkAlias(name, alias string) error {
	if alias == name {
		return object.NewRuntimeError(object.ErrAliasCycle, alias, "%s -> %s", alias, name)
	}
	if isProtected(alias) {
		return object.NewRuntimeError(object.ErrProtectedScope, alias, "cannot alias a protected scope name")
	}
	if _, ok := c.objects[alias]; ok {
		return object.NewRuntimeError(object.ErrProtectedScope, alias, "already a loaded object")
	}
	if target, ok := c.aliases[alias]; ok && isProtected(target) {
		return object.NewRuntimeError(object.ErrProtectedScope, alias, "already an alias of %s", target)
	}
	return nil
}

func (c *core) SetQuery(name string, value object.Expression) error {
	return c.query.Set(name, value)
}

func (c *core) SetGlobal(name string, value object.Expression) error {
	return c.global.Set(name, value)
}

func (c *core) SetVariable(name string, value object.Expression) error {
	return c.variable.Set(name, value)
}

func (c *core) RemoveQuery(name string) error    { return c.query.Remove(name) }
func (c *core) RemoveGlobal(name string) error   { return c.global.Remove(name) }
func (c *core) RemoveVariable(name string) error { return c.variable.Remove(name) }

// ClearLibraries unloads everything but the protected scopes.
func (c *core) ClearLibraries() {
	for name := range c.objects {
		if !isProtected(name) {
			delete(c.objects, name)
		}
	}
	for alias, target := range c.aliases {
		if !isProtected(target) {
			delete(c.aliases, alias)
		}
	}
}

func (c *core) ClearQuery()    { c.query.Clear() }
func (c *core) ClearGlobal()   { c.global.Clear() }
func (c *core) ClearVariable() { c.variable.Clear() }

// Copy installs deep copies of every scope of src. Protected scopes and
// mutable objects already present are merged field by field, keeping
// their identity; anything else is replaced wholesale.
func (c *core) Copy(src object.Environment) error {
	for _, name := range src.Objects() {
		obj, err := src.Get(name)
		if err != nil {
			return err
		}
		cp := obj.Copy()

		if storage, ok := c.storage(name); ok {
			if err := merge(storage, cp); err != nil {
				return err
			}
			continue
		}
		if target, ok := c.aliases[name]; ok {
			return object.NewRuntimeError(object.ErrProtectedScope, name, "already an alias of %s", target)
		}
		if existing, ok := c.objects[name]; ok && existing.Mutable() {
			if err := merge(existing, cp); err != nil {
				return err
			}
			continue
		}
		c.objects[name] = cp
	}
	return nil
}

func merge(dst, src object.Object) error {
	for _, key := range src.Keys() {
		expr, err := src.Get(key)
		if err != nil {
			return err
		}
		if err := dst.Set(key, expr.Copy()); err != nil {
			return err
		}
	}
	return nil
}
