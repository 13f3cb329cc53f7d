package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/molang/object"
)

// countingObject records how often the program touches its backing storage.
type countingObject struct {
	*object.Storage
	gets map[string]int
	sets map[string]int
	has  map[string]int
}

func newCountingObject(mutable bool) *countingObject {
	return &countingObject{
		Storage: object.NewStorage(mutable),
		gets:    map[string]int{},
		sets:    map[string]int{},
		has:     map[string]int{},
	}
}

func (o *countingObject) Get(name string) (object.Expression, error) {
	o.gets[name]++
	return o.Storage.Get(name)
}

func (o *countingObject) Set(name string, v object.Expression) error {
	o.sets[name]++
	return o.Storage.Set(name, v)
}

func (o *countingObject) Has(name string) bool {
	o.has[name]++
	return o.Storage.Has(name)
}

func (o *countingObject) value(t *testing.T, name string) float32 {
	t.Helper()
	expr, err := o.Storage.Get(name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	v, err := expr.Resolve(nil)
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return v
}

// testEnv is a minimal object.Environment.
type testEnv struct {
	objects map[string]object.Object
	params  []float32
	this    float32
	lookups map[string]int
}

func newTestEnv(objects map[string]object.Object) *testEnv {
	return &testEnv{objects: objects, lookups: map[string]int{}}
}

func (e *testEnv) Get(name string) (object.Object, error) {
	e.lookups[name]++
	if o, ok := e.objects[name]; ok {
		return o, nil
	}
	return nil, object.NewRuntimeError(object.ErrUnknownScope, name, "")
}
func (e *testEnv) Has(name string) bool { _, ok := e.objects[name]; return ok }
func (e *testEnv) Objects() []string {
	var names []string
	for k := range e.objects {
		names = append(names, k)
	}
	return names
}
func (e *testEnv) Parameter(i int) (float32, error) {
	if i < 0 || i >= len(e.params) {
		return 0, object.NewRuntimeError(object.ErrMissingParameter, "", "slot %d", i)
	}
	return e.params[i], nil
}
func (e *testEnv) ParameterCount() int     { return len(e.params) }
func (e *testEnv) LoadParameter(v float32) { e.params = append(e.params, v) }
func (e *testEnv) ClearParameters()        { e.params = e.params[:0] }
func (e *testEnv) This() float32           { return e.this }
func (e *testEnv) SetThis(v float32)       { e.this = v }

func TestEnvironment_ResolveAllocatesOnce(t *testing.T) {
	env := NewEnvironment(false, nil)

	a := env.Resolve("variable", "health")
	b := env.Resolve("variable", "health")
	c := env.Resolve("variable", "speed")
	has := env.ResolveHas("variable", "speed")

	if a != b {
		t.Errorf("repeated resolve must return the same slot: %d != %d", a, b)
	}
	want := []string{"variable", "variable.health", "variable.speed", "variable.speed$has"}
	if diff := cmp.Diff(want, env.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if a != ReservedSlots+1 || c != ReservedSlots+2 || has != ReservedSlots+3 {
		t.Errorf("unexpected slot numbers: %d %d %d", a, c, has)
	}
	if slot, _ := env.Slot("variable"); slot != ReservedSlots {
		t.Errorf("scope object should take the first free slot, got %d", slot)
	}
}

func TestEnvironment_Temp(t *testing.T) {
	env := NewEnvironment(false, nil)

	if slot := env.ResolveHas(TempScope, "x"); slot != -1 {
		t.Errorf("temp has-check must not allocate, got slot %d", slot)
	}
	env.EmitConst(3)
	env.Store(TempScope, "x")
	env.ResolveHas(TempScope, "x")
	env.Emit(OpResult)

	if len(env.Dirty()) != 0 {
		t.Errorf("temporaries must never be dirty: %v", env.Dirty())
	}
	if _, ok := env.Slot(TempScope); ok {
		t.Errorf("temp scope must not be looked up as an object")
	}

	p, err := env.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := p.Run(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("has-check after allocation should be 1, got %v", got)
	}
}

func TestEnvironment_MarkDirtyOrder(t *testing.T) {
	env := NewEnvironment(false, nil)
	env.MarkDirty("variable", "b")
	env.MarkDirty("variable", "a")
	env.MarkDirty("variable", "b")
	env.MarkDirty(TempScope, "c")

	if diff := cmp.Diff([]string{"variable.b", "variable.a"}, env.Dirty()); diff != "" {
		t.Errorf("dirty mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironment_FlushDirtyErrors(t *testing.T) {
	t.Run("unresolved slot", func(t *testing.T) {
		env := NewEnvironment(false, nil)
		env.MarkDirty("variable", "x")
		err := env.FlushDirty()
		if !errors.Is(err, object.ErrUnresolvedSlot) {
			t.Errorf("expected ErrUnresolvedSlot, got %v", err)
		}
		var cerr *object.CompileError
		if !errors.As(err, &cerr) || cerr.Key != "variable.x" {
			t.Errorf("expected CompileError for variable.x, got %#v", err)
		}
	})
	t.Run("malformed key", func(t *testing.T) {
		env := NewEnvironment(false, nil)
		env.Allocate(".x")
		env.MarkDirty("", "x")
		if err := env.FlushDirty(); !errors.Is(err, object.ErrMalformedKey) {
			t.Errorf("expected ErrMalformedKey, got %v", err)
		}
	})
}

func TestEnvironment_CloneAndReset(t *testing.T) {
	env := NewEnvironment(true, nil)
	env.Resolve("variable", "x")
	env.EmitConst(1)
	env.Store("variable", "y")

	clone := env.Clone()
	if diff := cmp.Diff(env.Keys(), clone.Keys()); diff != "" {
		t.Errorf("clone keys mismatch (-want +got):\n%s", diff)
	}
	if len(clone.Dirty()) != 0 {
		t.Errorf("clone must start with no dirty keys")
	}
	if !clone.Optimize() {
		t.Errorf("clone must keep the optimize flag")
	}

	// a clone resolving an already planned property reuses its slot
	want, _ := env.Slot("variable.x")
	if got := clone.Resolve("variable", "x"); got != want {
		t.Errorf("got slot %d, want %d", got, want)
	}

	env.Reset()
	if len(env.Keys()) != 0 || len(env.Dirty()) != 0 {
		t.Errorf("reset should clear state: keys=%v dirty=%v", env.Keys(), env.Dirty())
	}
}

func TestFold(t *testing.T) {
	got, err := Fold(func(env *Environment) error {
		if env.Logger() != foldLogger {
			t.Errorf("scratch environments must share one logger")
		}
		env.EmitConst(2)
		env.EmitConst(3)
		env.Emit(OpMul)
		env.EmitConst(1)
		env.Emit(OpSub)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Errorf("got %v, want 5", got)
	}
}

func TestEnvironment_EmitReturn(t *testing.T) {
	env := NewEnvironment(false, nil)
	env.EmitConst(4)
	env.EmitReturn()
	env.EmitConst(5)
	env.Emit(OpResult)
	if env.End().Marked() {
		t.Errorf("the end label is placed by Build")
	}

	p, err := env.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.End().Marked() {
		t.Errorf("Build must place the end label")
	}
	if !p.HasValue() {
		t.Errorf("a unit with a return has a value")
	}
	got, err := p.Run(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 4 {
		t.Errorf("got %v, want 4", got)
	}
}
