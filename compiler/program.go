package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/podhmo/molang/object"
)

// Program is a compiled unit. Its slot plan is fixed at compile time and
// it holds no state between invocations, so one Program can run against
// distinct environments concurrently.
type Program struct {
	code     []Instruction
	consts   []float32
	names    []string
	scopes   map[int]string // object slot -> scope name
	keys     []string
	slots    int
	hasValue bool
}

// HasValue reports whether the program produces a value.
func (p *Program) HasValue() bool { return p.hasValue }

// Slots returns the number of local slots an invocation uses.
func (p *Program) Slots() int { return p.slots }

// Keys returns the resolution keys in slot order, starting at ReservedSlots.
func (p *Program) Keys() []string { return append([]string(nil), p.keys...) }

// Instructions returns a copy of the operation sequence.
func (p *Program) Instructions() []Instruction {
	return append([]Instruction(nil), p.code...)
}

const (
	stateLoaded uint8 = 1 << iota
	stateWritten
)

type cell struct {
	value float32
	obj   object.Object
	state uint8
}

// frame is the state of one invocation. Caches never outlive it.
type frame struct {
	p     *Program
	env   object.Environment
	cells []cell
	stack []float32
}

func (f *frame) push(v float32) { f.stack = append(f.stack, v) }

func (f *frame) pop() float32 {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) object(slot int) (object.Object, error) {
	c := &f.cells[slot]
	if c.state&stateLoaded != 0 {
		return c.obj, nil
	}
	name := f.p.scopes[slot]
	if f.env == nil {
		return nil, object.NewRuntimeError(object.ErrUnknownScope, name, "no environment")
	}
	obj, err := f.env.Get(name)
	if err != nil {
		return nil, err
	}
	c.obj = obj
	c.state |= stateLoaded
	return obj, nil
}

func (f *frame) load(slot, objSlot, nameIdx int) (float32, error) {
	c := &f.cells[slot]
	if c.state&stateLoaded != 0 {
		return c.value, nil
	}
	obj, err := f.object(objSlot)
	if err != nil {
		return 0, err
	}
	name := f.p.names[nameIdx]
	key := f.p.scopes[objSlot] + "." + name
	expr, err := obj.Get(name)
	if err != nil {
		if errors.Is(err, object.ErrUnknownProperty) {
			return 0, object.NewRuntimeError(object.ErrUnknownProperty, key, "")
		}
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	v, err := expr.Resolve(f.env)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", key, err)
	}
	c.value = v
	c.state |= stateLoaded
	return v, nil
}

func (f *frame) call(objSlot, nameIdx, argc int) (float32, error) {
	args := make([]float32, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = f.pop()
	}
	obj, err := f.object(objSlot)
	if err != nil {
		return 0, err
	}
	name := f.p.names[nameIdx]
	key := f.p.scopes[objSlot] + "." + name
	fn, err := obj.Get(name)
	if err != nil {
		if errors.Is(err, object.ErrUnknownProperty) {
			return 0, object.NewRuntimeError(object.ErrUnknownProperty, key, "")
		}
		return 0, fmt.Errorf("get %s: %w", key, err)
	}

	// the caller's parameters are restored once the call returns
	saved := make([]float32, f.env.ParameterCount())
	for i := range saved {
		saved[i], _ = f.env.Parameter(i)
	}
	f.env.ClearParameters()
	for _, arg := range args {
		f.env.LoadParameter(arg)
	}
	v, err := fn.Resolve(f.env)
	f.env.ClearParameters()
	for _, s := range saved {
		f.env.LoadParameter(s)
	}
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", key, err)
	}
	return v, nil
}

func (f *frame) flush(slot, objSlot, nameIdx int) error {
	c := &f.cells[slot]
	if c.state&stateWritten == 0 {
		return nil
	}
	obj, err := f.object(objSlot)
	if err != nil {
		return err
	}
	name := f.p.names[nameIdx]
	if err := obj.Set(name, object.Constant(c.value)); err != nil {
		if errors.Is(err, object.ErrImmutableTarget) {
			return object.NewRuntimeError(object.ErrImmutableTarget, f.p.scopes[objSlot]+"."+name, "")
		}
		return fmt.Errorf("write back %s.%s: %w", f.p.scopes[objSlot], name, err)
	}
	return nil
}

func boolValue(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// Run executes the program against env. Referenced properties are read at
// most once and written back at most once per call. When the program has
// no value the result is the value of the last executed return, or 0.
func (p *Program) Run(env object.Environment) (float32, error) {
	f := &frame{
		p:     p,
		env:   env,
		cells: make([]cell, p.slots),
		stack: make([]float32, 0, 16),
	}
	var result float32

	for ip := 0; ip < len(p.code); ip++ {
		ins := p.code[ip]
		switch ins.Op {
		case OpNop:
		case OpConst:
			f.push(p.consts[ins.A])
		case OpThis:
			if env == nil {
				f.push(0)
				continue
			}
			f.push(env.This())
		case OpParam:
			if env == nil {
				return 0, object.NewRuntimeError(object.ErrMissingParameter, fmt.Sprint(ins.A), "no environment")
			}
			v, err := env.Parameter(ins.A)
			if err != nil {
				return 0, err
			}
			f.push(v)
		case OpPop:
			f.pop()

		case OpLoad:
			v, err := f.load(ins.A, ins.B, ins.C)
			if err != nil {
				return 0, err
			}
			f.push(v)
		case OpLoadTemp:
			f.push(f.cells[ins.A].value)
		case OpStore:
			c := &f.cells[ins.A]
			c.value = f.pop()
			c.state |= stateLoaded | stateWritten
		case OpHas:
			c := &f.cells[ins.A]
			if c.state&stateLoaded == 0 {
				obj, err := f.object(ins.B)
				if err != nil {
					return 0, err
				}
				c.value = boolValue(obj.Has(p.names[ins.C]))
				c.state |= stateLoaded
			}
			f.push(c.value)
		case OpFlush:
			if err := f.flush(ins.A, ins.B, ins.C); err != nil {
				return 0, err
			}

		case OpCall:
			v, err := f.call(ins.A, ins.B, ins.C)
			if err != nil {
				return 0, err
			}
			f.push(v)

		case OpAdd, OpSub, OpMul, OpDiv, OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
			r := f.pop()
			l := f.pop()
			f.push(binary(ins.Op, l, r))
		case OpNeg:
			f.push(-f.pop())
		case OpNot:
			f.push(boolValue(f.pop() == 0))

		case OpJump:
			ip = ins.A - 1
		case OpJumpIfFalse:
			if f.pop() == 0 {
				ip = ins.A - 1
			}
		case OpResult:
			result = f.pop()
		default:
			return 0, fmt.Errorf("unknown opcode %s at %d", ins.Op, ip)
		}
	}
	return result, nil
}

func binary(op Opcode, l, r float32) float32 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		return l / r
	case OpLt:
		return boolValue(l < r)
	case OpLe:
		return boolValue(l <= r)
	case OpGt:
		return boolValue(l > r)
	case OpGe:
		return boolValue(l >= r)
	case OpEq:
		return boolValue(l == r)
	case OpNe:
		return boolValue(l != r)
	}
	panic("unreachable: " + op.String())
}

// String renders the program for diagnostics.
func (p *Program) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "slots=%d has_value=%t\n", p.slots, p.hasValue)
	for i, key := range p.keys {
		fmt.Fprintf(&b, "  slot %d: %s\n", i+ReservedSlots, key)
	}
	for i, ins := range p.code {
		fmt.Fprintf(&b, "%04d %s", i, ins.Op)
		switch ins.Op {
		case OpConst:
			fmt.Fprintf(&b, " %s", object.FormatFloat(p.consts[ins.A]))
		case OpParam, OpLoadTemp, OpStore, OpJump, OpJumpIfFalse:
			fmt.Fprintf(&b, " %d", ins.A)
		case OpLoad, OpHas, OpFlush:
			fmt.Fprintf(&b, " %d %s.%s", ins.A, p.scopes[ins.B], p.names[ins.C])
		case OpCall:
			fmt.Fprintf(&b, " %s.%s/%d", p.scopes[ins.A], p.names[ins.B], ins.C)
		}
		b.WriteString("\n")
	}
	return b.String()
}
