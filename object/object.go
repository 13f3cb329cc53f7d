package object

import (
	"sort"
	"strconv"
	"strings"
)

// Expression is a property value. It is resolved to a float against the
// environment each time a compiled program reads it.
type Expression interface {
	// Resolve computes the value of the expression.
	Resolve(env Environment) (float32, error)
	// Copy returns a deep copy suitable for installing into another environment.
	Copy() Expression
	String() string
}

// Object is a named container of properties, such as "query" or "variable".
type Object interface {
	// Get returns the expression stored under name.
	Get(name string) (Expression, error)
	// Set stores value under name. It fails with ErrImmutableTarget on read-only objects.
	Set(name string, value Expression) error
	// Remove deletes name. It fails with ErrImmutableTarget on read-only objects.
	Remove(name string) error
	// Has reports whether name is present.
	Has(name string) bool
	// Keys returns the property names in sorted order.
	Keys() []string
	// Mutable reports whether Set and Remove are allowed.
	Mutable() bool
	// Copy returns a deep copy with the same mutability.
	Copy() Object
	String() string
}

// Environment is what a compiled program consults while it runs.
type Environment interface {
	// Get returns the scope object registered under name or one of its aliases.
	Get(name string) (Object, error)
	// Has reports whether a scope object is registered under name or one of its aliases.
	Has(name string) bool
	// Objects returns the canonical names of all scope objects.
	Objects() []string

	Parameter(i int) (float32, error)
	ParameterCount() int
	LoadParameter(v float32)
	ClearParameters()

	This() float32
	SetThis(v float32)
}

// --- Expressions ---

// Constant is a fixed float value.
type Constant float32

func (c Constant) Resolve(Environment) (float32, error) { return float32(c), nil }
func (c Constant) Copy() Expression                     { return c }
func (c Constant) String() string                       { return FormatFloat(float32(c)) }

// ExpressionFunc adapts a Go function to Expression. It is used for
// computed properties and for library functions reading call parameters.
type ExpressionFunc func(env Environment) (float32, error)

func (f ExpressionFunc) Resolve(env Environment) (float32, error) { return f(env) }
func (f ExpressionFunc) Copy() Expression                         { return f }
func (f ExpressionFunc) String() string                           { return "<func>" }

// FormatFloat renders v the way dumps and node strings show numbers.
func FormatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// --- Storage ---

// Storage is the standard Object implementation, backed by a map.
type Storage struct {
	mutable bool
	store   map[string]Expression
}

// NewStorage creates an empty storage.
func NewStorage(mutable bool) *Storage {
	return &Storage{mutable: mutable, store: make(map[string]Expression)}
}

// NewLibrary creates a read-only object holding props, for host libraries
// that compiled code may read but never write.
func NewLibrary(props map[string]Expression) Object {
	s := NewStorage(true)
	for k, v := range props {
		s.store[normalize(k)] = v
	}
	return ReadOnly(s)
}

func normalize(name string) string {
	return strings.ToLower(name)
}

func (s *Storage) Get(name string) (Expression, error) {
	if v, ok := s.store[normalize(name)]; ok {
		return v, nil
	}
	return nil, NewRuntimeError(ErrUnknownProperty, name, "")
}

func (s *Storage) Set(name string, value Expression) error {
	if !s.mutable {
		return NewRuntimeError(ErrImmutableTarget, name, "")
	}
	s.store[normalize(name)] = value
	return nil
}

func (s *Storage) Remove(name string) error {
	if !s.mutable {
		return NewRuntimeError(ErrImmutableTarget, name, "")
	}
	delete(s.store, normalize(name))
	return nil
}

// Clear removes every property, regardless of mutability.
// Only the owner of the storage can reach it.
func (s *Storage) Clear() {
	clear(s.store)
}

func (s *Storage) Has(name string) bool {
	_, ok := s.store[normalize(name)]
	return ok
}

func (s *Storage) Keys() []string {
	keys := make([]string, 0, len(s.store))
	for k := range s.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Storage) Mutable() bool { return s.mutable }

func (s *Storage) Copy() Object {
	return s.Clone()
}

// Clone is Copy with the concrete type preserved.
func (s *Storage) Clone() *Storage {
	c := &Storage{mutable: s.mutable, store: make(map[string]Expression, len(s.store))}
	for k, v := range s.store {
		c.store[k] = v.Copy()
	}
	return c
}

func (s *Storage) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range s.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.store[k].String())
	}
	b.WriteString("}")
	return b.String()
}

// --- Read-only view ---

// readOnly forwards reads to its parent and rejects writes. It shares the
// parent's storage, so writes made by the owner stay visible through it.
type readOnly struct {
	parent Object
}

// ReadOnly returns a view of o that cannot be written through.
func ReadOnly(o Object) Object {
	if r, ok := o.(*readOnly); ok {
		return r
	}
	return &readOnly{parent: o}
}

func (r *readOnly) Get(name string) (Expression, error) { return r.parent.Get(name) }

func (r *readOnly) Set(name string, _ Expression) error {
	return NewRuntimeError(ErrImmutableTarget, name, "")
}

func (r *readOnly) Remove(name string) error {
	return NewRuntimeError(ErrImmutableTarget, name, "")
}

func (r *readOnly) Has(name string) bool { return r.parent.Has(name) }
func (r *readOnly) Keys() []string       { return r.parent.Keys() }
func (r *readOnly) Mutable() bool        { return false }
func (r *readOnly) Copy() Object         { return ReadOnly(r.parent.Copy()) }
func (r *readOnly) String() string       { return r.parent.String() }
