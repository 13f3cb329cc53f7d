package object

import (
	"errors"
	"fmt"
)

// Compile-time error kinds.
var (
	// ErrUnresolvedSlot means a dirty property has no allocated slot.
	// It indicates a defect in the compiler, never bad user input.
	ErrUnresolvedSlot = errors.New("unresolved slot")
	// ErrMalformedKey means a dirty key is not of the form "scope.property".
	ErrMalformedKey = errors.New("malformed key")
	// ErrInvalidControlFlow is returned for break/continue outside a loop.
	ErrInvalidControlFlow = errors.New("invalid control flow")
	// ErrDuplicateDomainRegistration is returned when a property is routed twice.
	ErrDuplicateDomainRegistration = errors.New("duplicate domain registration")
)

// Runtime error kinds.
var (
	ErrUnknownScope     = errors.New("unknown scope")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrImmutableTarget  = errors.New("immutable target")
	ErrProtectedScope   = errors.New("protected scope")
	ErrMissingParameter = errors.New("missing parameter")
	ErrAliasCycle       = errors.New("alias cycle")
)

// CompileError is the single failure value surfaced by compilation.
type CompileError struct {
	Kind    error
	Key     string
	Message string
}

func (e *CompileError) Error() string {
	msg := "compile error: " + e.Kind.Error()
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Kind }

// NewCompileError creates a CompileError of the given kind.
func NewCompileError(kind error, key string, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Key: key, Message: fmt.Sprintf(format, args...)}
}

// RuntimeError is returned by evaluation and by environment configuration.
type RuntimeError struct {
	Kind    error
	Name    string
	Message string
}

func (e *RuntimeError) Error() string {
	msg := "runtime error: " + e.Kind.Error()
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Kind }

// NewRuntimeError creates a RuntimeError of the given kind.
func NewRuntimeError(kind error, name string, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Name: name, Message: fmt.Sprintf(format, args...)}
}
