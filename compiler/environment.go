package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/podhmo/molang/object"
)

const (
	// RuntimeSlot is reserved for the runtime reference.
	RuntimeSlot = 0
	// ReservedSlots is the number of slots allocated before any key.
	ReservedSlots = 1

	// TempScope is the pseudo-scope of compile-unit locals.
	TempScope = "temp"

	hasSuffix = "$has"
)

// Environment is the per-compilation state: which scope objects and which
// properties already own a slot, which properties must be written back,
// and the operations emitted so far.
type Environment struct {
	optimize bool
	logger   *slog.Logger

	slots    map[string]int
	keys     []string // insertion order; keys[i] owns slot i+ReservedSlots
	dirty    []string
	dirtySet map[string]bool
	scopes   map[int]int // object slot -> name index

	code       []Instruction
	consts     []float32
	constIndex map[float32]int
	names      []string
	nameIndex  map[string]int

	end      *Label
	hidden   int
	returned bool
}

// NewEnvironment creates an empty compilation environment.
func NewEnvironment(optimize bool, logger *slog.Logger) *Environment {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	e := &Environment{optimize: optimize, logger: logger}
	e.Reset()
	return e
}

// Clone returns an environment sharing this one's slot plan but with no
// dirty properties and no emitted code, for nested compilation.
func (e *Environment) Clone() *Environment {
	c := NewEnvironment(e.optimize, e.logger)
	for _, key := range e.keys {
		c.Allocate(key)
	}
	for slot, name := range e.scopes {
		c.scopes[slot] = c.name(e.names[name])
	}
	c.hidden = e.hidden
	return c
}

// Reset clears all state so the environment can compile another unit.
func (e *Environment) Reset() {
	e.slots = make(map[string]int)
	e.keys = nil
	e.dirty = nil
	e.dirtySet = make(map[string]bool)
	e.scopes = make(map[int]int)
	e.code = nil
	e.consts = nil
	e.constIndex = make(map[float32]int)
	e.names = nil
	e.nameIndex = make(map[string]int)
	e.end = e.NewLabel()
	e.hidden = 0
	e.returned = false
}

// Optimize reports whether constant folding and dead-code elision apply.
func (e *Environment) Optimize() bool { return e.optimize }

// Logger returns the logger used by this environment.
func (e *Environment) Logger() *slog.Logger { return e.logger }

// Slot returns the slot allocated for key, if any.
func (e *Environment) Slot(key string) (int, bool) {
	slot, ok := e.slots[key]
	return slot, ok
}

// Keys returns the allocated keys in allocation order.
func (e *Environment) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Dirty returns the keys pending write-back in the order they were marked.
func (e *Environment) Dirty() []string {
	return append([]string(nil), e.dirty...)
}

// Allocate returns the slot of key, allocating the next one if needed.
func (e *Environment) Allocate(key string) int {
	if slot, ok := e.slots[key]; ok {
		return slot
	}
	slot := len(e.keys) + ReservedSlots
	e.slots[key] = slot
	e.keys = append(e.keys, key)
	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("allocate slot", "key", key, "slot", slot)
	}
	return slot
}

// AllocateHidden allocates a slot no source expression can name, for
// loop counters and other compiler-internal temporaries.
func (e *Environment) AllocateHidden(prefix string) int {
	e.hidden++
	return e.Allocate(fmt.Sprintf("$%s%d", prefix, e.hidden))
}

// ObjectSlot returns the slot holding the scope object named scope.
// The object is looked up on the runtime the first time an invocation needs it.
func (e *Environment) ObjectSlot(scope string) int {
	if slot, ok := e.slots[scope]; ok {
		return slot
	}
	slot := e.Allocate(scope)
	e.scopes[slot] = e.name(scope)
	return slot
}

// Resolve emits a read of scope.property and returns its slot. Every
// read of the same property in one unit shares the slot, so the runtime
// lookup happens at most once per invocation.
func (e *Environment) Resolve(scope, property string) int {
	key := scope + "." + property
	if scope == TempScope {
		slot := e.Allocate(key)
		e.Emit(OpLoadTemp, slot)
		return slot
	}
	objSlot := e.ObjectSlot(scope)
	slot := e.Allocate(key)
	e.Emit(OpLoad, slot, objSlot, e.name(property))
	return slot
}

// ResolveHas emits a test for the presence of scope.property, pushing 1 or 0.
// For the temp scope the answer is fixed at compile time: whether the
// local was allocated so far in this unit.
func (e *Environment) ResolveHas(scope, property string) int {
	if scope == TempScope {
		if _, ok := e.slots[TempScope+"."+property]; ok {
			e.EmitConst(1)
		} else {
			e.EmitConst(0)
		}
		return -1
	}
	key := scope + "." + property + hasSuffix
	objSlot := e.ObjectSlot(scope)
	slot := e.Allocate(key)
	e.Emit(OpHas, slot, objSlot, e.name(property))
	return slot
}

// Store emits a write of the top of the stack to scope.property and marks
// it dirty.
func (e *Environment) Store(scope, property string) int {
	slot := e.Allocate(scope + "." + property)
	e.Emit(OpStore, slot)
	e.MarkDirty(scope, property)
	return slot
}

// MarkDirty records that scope.property must be written back before the
// unit returns. Temporaries have no backing object and are never recorded.
func (e *Environment) MarkDirty(scope, property string) {
	if scope == TempScope {
		return
	}
	key := scope + "." + property
	if e.dirtySet[key] {
		return
	}
	e.dirtySet[key] = true
	e.dirty = append(e.dirty, key)
	e.logger.Debug("mark dirty", "key", key)
}

// FlushDirty emits the write-back of every dirty property, in the order
// they were marked, and clears the dirty set.
func (e *Environment) FlushDirty() error {
	for _, key := range e.dirty {
		slot, ok := e.slots[key]
		if !ok {
			return object.NewCompileError(object.ErrUnresolvedSlot, key, "no slot allocated")
		}
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return object.NewCompileError(object.ErrMalformedKey, key, "expected 2 parts, got %d", len(parts))
		}
		objSlot := e.ObjectSlot(parts[0])
		e.Emit(OpFlush, slot, objSlot, e.name(parts[1]))
	}
	e.dirty = nil
	e.dirtySet = make(map[string]bool)
	return nil
}

// --- emission ---

// Emit appends an instruction and returns its position.
func (e *Environment) Emit(op Opcode, args ...int) int {
	ins := Instruction{Op: op}
	switch len(args) {
	case 0:
	case 1:
		ins.A = args[0]
	case 2:
		ins.A, ins.B = args[0], args[1]
	case 3:
		ins.A, ins.B, ins.C = args[0], args[1], args[2]
	default:
		panic("too many arguments")
	}
	e.code = append(e.code, ins)
	return len(e.code) - 1
}

// EmitConst pushes v.
func (e *Environment) EmitConst(v float32) {
	idx, ok := e.constIndex[v]
	if !ok {
		idx = len(e.consts)
		e.consts = append(e.consts, v)
		e.constIndex[v] = idx
	}
	e.Emit(OpConst, idx)
}

// EmitCall calls function name of scope with argc arguments already on the stack.
func (e *Environment) EmitCall(scope, name string, argc int) {
	e.Emit(OpCall, e.ObjectSlot(scope), e.name(name), argc)
}

// NewLabel creates an unmarked label.
func (e *Environment) NewLabel() *Label {
	return &Label{pos: -1}
}

// Mark places l at the next instruction.
func (e *Environment) Mark(l *Label) {
	l.pos = len(e.code)
	for _, ref := range l.refs {
		e.code[ref].A = l.pos
	}
	l.refs = nil
}

// Jump emits a jump-like op targeting l.
func (e *Environment) Jump(op Opcode, l *Label) {
	at := e.Emit(op, l.pos)
	if !l.Marked() {
		l.refs = append(l.refs, at)
	}
}

// End is the label of the write-back sequence that ends the unit.
func (e *Environment) End() *Label { return e.end }

// EmitReturn pops the result and jumps to the write-back sequence.
func (e *Environment) EmitReturn() {
	e.Emit(OpResult)
	e.Jump(OpJump, e.end)
	e.returned = true
}

func (e *Environment) name(s string) int {
	if idx, ok := e.nameIndex[s]; ok {
		return idx
	}
	idx := len(e.names)
	e.names = append(e.names, s)
	e.nameIndex[s] = idx
	return idx
}

// Build finishes the unit: it places the end label, emits the write-back
// sequence and returns the program. A unit that emitted a return has a
// value even when its root does not. The environment must not be reused
// without Reset.
func (e *Environment) Build(hasValue bool) (*Program, error) {
	hasValue = hasValue || e.returned
	e.Mark(e.end)
	if err := e.FlushDirty(); err != nil {
		return nil, err
	}

	scopes := make(map[int]string, len(e.scopes))
	for slot, name := range e.scopes {
		scopes[slot] = e.names[name]
	}
	p := &Program{
		code:     append([]Instruction(nil), e.code...),
		consts:   append([]float32(nil), e.consts...),
		names:    append([]string(nil), e.names...),
		scopes:   scopes,
		keys:     append([]string(nil), e.keys...),
		slots:    len(e.keys) + ReservedSlots,
		hasValue: hasValue,
	}
	e.logger.Debug("build program", "instructions", len(p.code), "slots", p.slots, "has_value", hasValue)
	return p, nil
}

// foldLogger is shared by every scratch environment Fold creates.
var foldLogger = slog.New(slog.DiscardHandler)

// Fold compiles the value emitted by fn in a scratch environment and
// evaluates it without a runtime. fn must only emit constant operations.
func Fold(fn func(*Environment) error) (float32, error) {
	scratch := NewEnvironment(true, foldLogger)
	if err := fn(scratch); err != nil {
		return 0, err
	}
	scratch.Emit(OpResult)
	p, err := scratch.Build(true)
	if err != nil {
		return 0, err
	}
	return p.Run(nil)
}
