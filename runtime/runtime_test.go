package runtime

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/molang/object"
)

func value(t *testing.T, env object.Environment, scope, name string) float32 {
	t.Helper()
	obj, err := env.Get(scope)
	if err != nil {
		t.Fatalf("get %s: %v", scope, err)
	}
	expr, err := obj.Get(name)
	if err != nil {
		t.Fatalf("get %s.%s: %v", scope, name, err)
	}
	v, err := expr.Resolve(env)
	if err != nil {
		t.Fatalf("resolve %s.%s: %v", scope, name, err)
	}
	return v
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	b := NewBuilder()
	b.SetQuery("life_time", object.Constant(2))
	b.SetGlobal("frame", object.Constant(3))
	b.SetVariable("health", object.Constant(10))
	return b.Build()
}

func TestRuntime_ProtectedScopes(t *testing.T) {
	rt := newTestRuntime(t)

	for _, scope := range []string{"query", "q", "context", "c", "global"} {
		t.Run(scope, func(t *testing.T) {
			obj, err := rt.Get(scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if obj.Mutable() {
				t.Errorf("%s must be read-only", scope)
			}
			if err := obj.Set("x", object.Constant(5)); !errors.Is(err, object.ErrImmutableTarget) {
				t.Errorf("expected ErrImmutableTarget, got %v", err)
			}
		})
	}

	variable, err := rt.Get("v")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := variable.Set("x", object.Constant(5)); err != nil {
		t.Errorf("variable must accept writes: %v", err)
	}
	if got := value(t, rt, "variable", "x"); got != 5 {
		t.Errorf("got %v, want 5", got)
	}

	if got := value(t, rt, "c", "life_time"); got != 2 {
		t.Errorf("context must share the query properties, got %v", got)
	}
}

func TestRuntime_UnknownScope(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.Get("g"); !errors.Is(err, object.ErrUnknownScope) {
		t.Errorf("global has no runtime alias, expected ErrUnknownScope, got %v", err)
	}
	if rt.Has("math") {
		t.Errorf("math is not loaded")
	}
}

func TestRuntime_BuilderStorageIsShared(t *testing.T) {
	b := NewBuilder()
	rt := b.Build()
	b.SetQuery("speed", object.Constant(4))

	if got := value(t, rt, "query", "speed"); got != 4 {
		t.Errorf("query view must see builder writes, got %v", got)
	}
	if !b.Query().Has("speed") || b.Query().Mutable() {
		t.Errorf("builder query view must be read-only and populated")
	}

	b.SetGlobal("frame", object.Constant(1))
	if !b.Global().Has("frame") || b.Global().Mutable() {
		t.Errorf("builder global view must be read-only and populated")
	}
	if err := b.Variable().Set("health", object.Constant(3)); err != nil {
		t.Fatalf("variable must accept writes: %v", err)
	}
	if got := value(t, rt, "v", "health"); got != 3 {
		t.Errorf("runtime must see variable writes made through the builder, got %v", got)
	}
}

func TestRuntime_Parameters(t *testing.T) {
	rt := newTestRuntime(t)
	rt.LoadParameter(1)
	rt.LoadParameter(2)

	if got := rt.ParameterCount(); got != 2 {
		t.Errorf("got %d parameters", got)
	}
	if v, err := rt.Parameter(1); err != nil || v != 2 {
		t.Errorf("got %v, %v", v, err)
	}
	if _, err := rt.Parameter(2); !errors.Is(err, object.ErrMissingParameter) {
		t.Errorf("expected ErrMissingParameter, got %v", err)
	}
	if _, err := rt.Parameter(-1); !errors.Is(err, object.ErrMissingParameter) {
		t.Errorf("expected ErrMissingParameter, got %v", err)
	}
	rt.ClearParameters()
	if rt.ParameterCount() != 0 {
		t.Errorf("parameters should be cleared")
	}

	rt.SetThis(0.5)
	if rt.This() != 0.5 {
		t.Errorf("got this=%v", rt.This())
	}
}

func TestEditor_UnloadProtected(t *testing.T) {
	b := NewBuilder()
	rt := b.Build()

	for name, ed := range map[string]Editor{"builder": b, "edit": rt.Edit()} {
		for _, scope := range []string{"query", "context", "global", "variable"} {
			if err := ed.UnloadLibrary(scope); !errors.Is(err, object.ErrProtectedScope) {
				t.Errorf("%s: unload %s: expected ErrProtectedScope, got %v", name, scope, err)
			}
		}
		if err := ed.LoadLibrary("query", object.NewStorage(true)); !errors.Is(err, object.ErrProtectedScope) {
			t.Errorf("%s: replacing query: expected ErrProtectedScope, got %v", name, err)
		}
	}
}

func TestEditor_Libraries(t *testing.T) {
	rt := newTestRuntime(t)
	ed := rt.Edit()

	math := object.NewLibrary(map[string]object.Expression{"pi": object.Constant(3.14)})
	if err := ed.LoadLibrary("math", math, "m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := value(t, rt, "m", "pi"); got != 3.14 {
		t.Errorf("got %v", got)
	}
	if err := ed.LoadAlias("maths", "mm"); !errors.Is(err, object.ErrUnknownScope) {
		t.Errorf("alias to an unknown library: expected ErrUnknownScope, got %v", err)
	}

	if err := ed.UnloadLibrary("math"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.Has("m") || rt.Has("math") {
		t.Errorf("math and its alias should be gone")
	}

	ed.LoadLibrary("a", object.NewStorage(true))
	ed.LoadLibrary("b", object.NewStorage(true))
	ed.ClearLibraries()
	if diff := cmp.Diff([]string{"context", "global", "query", "variable"}, rt.Objects()); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
	if !rt.Has("v") || !rt.Has("q") {
		t.Errorf("protected aliases must survive ClearLibraries")
	}

	if ed.Build() != rt {
		t.Errorf("the edit view must build the runtime it edits")
	}
}

func TestEditor_AliasCycle(t *testing.T) {
	b := NewBuilder()
	if err := b.LoadLibrary("x", object.NewStorage(true), "y"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.LoadAlias("x", "x"); !errors.Is(err, object.ErrAliasCycle) {
		t.Fatalf("expected ErrAliasCycle, got %v", err)
	}
	if err := b.LoadLibrary("z", object.NewStorage(true), "z"); !errors.Is(err, object.ErrAliasCycle) {
		t.Fatalf("expected ErrAliasCycle, got %v", err)
	}
	if b.objects["z"] != nil {
		t.Errorf("a rejected library must not be loaded")
	}

	rt := b.Build()
	got, err := rt.Resolve("y")
	if err != nil {
		t.Fatalf("a rejected alias must leave the table intact: %v", err)
	}
	if got != "x" {
		t.Errorf("got %q, want x", got)
	}
}

func TestEditor_ProtectedNames(t *testing.T) {
	tests := []struct {
		name string
		edit func(ed Editor) error
	}{
		{"alias named global", func(ed Editor) error { return ed.LoadAlias("lib", "global") }},
		{"alias named query", func(ed Editor) error { return ed.LoadAlias("lib", "query") }},
		{"alias named context", func(ed Editor) error { return ed.LoadAlias("lib", "context") }},
		{"alias named variable", func(ed Editor) error { return ed.LoadAlias("lib", "variable") }},
		{"redirect v", func(ed Editor) error { return ed.LoadAlias("lib", "v") }},
		{"redirect q", func(ed Editor) error { return ed.LoadAlias("lib", "q") }},
		{"alias named like a library", func(ed Editor) error { return ed.LoadAlias("lib", "other") }},
		{"library named like an alias", func(ed Editor) error { return ed.LoadLibrary("v", object.NewStorage(true)) }},
		{"library aliased as global", func(ed Editor) error { return ed.LoadLibrary("extra", object.NewStorage(true), "global") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			ed := rt.Edit()
			if err := ed.LoadLibrary("lib", object.NewStorage(true)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := ed.LoadLibrary("other", object.NewStorage(true)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := tt.edit(ed); !errors.Is(err, object.ErrProtectedScope) {
				t.Fatalf("expected ErrProtectedScope, got %v", err)
			}

			global, err := rt.Get("global")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if global.Mutable() {
				t.Errorf("global must stay read-only")
			}
			if err := global.Set("x", object.Constant(5)); !errors.Is(err, object.ErrImmutableTarget) {
				t.Errorf("expected ErrImmutableTarget, got %v", err)
			}
			for alias, want := range map[string]string{"c": "context", "q": "query", "v": "variable", "global": "global"} {
				if got, _ := rt.Resolve(alias); got != want {
					t.Errorf("%s resolves to %q, want %q", alias, got, want)
				}
			}
			if rt.Has("extra") {
				t.Errorf("a library with a rejected alias must not be loaded")
			}
		})
	}
}

func TestCopy_ObjectNamedLikeAlias(t *testing.T) {
	src := NewBuilder()
	src.LoadLibrary("m", object.NewStorage(true))

	dst := NewBuilder()
	dst.LoadLibrary("math", object.NewStorage(true), "m")
	if err := dst.Copy(src.Build()); !errors.Is(err, object.ErrProtectedScope) {
		t.Errorf("expected ErrProtectedScope, got %v", err)
	}
}

func TestNewBuilder_Logger(t *testing.T) {
	b := NewBuilder(WithLogger(nil))
	if err := b.LoadLibrary("lib", object.NewStorage(true), "l"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	b = NewBuilder(WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	if err := b.LoadLibrary("lib", object.NewStorage(true), "l"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`msg="load library" name=lib`, `msg="load alias" alias=l name=lib`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output %q does not contain %q", buf.String(), want)
		}
	}
}

func TestEditor_SetRemoveClear(t *testing.T) {
	rt := newTestRuntime(t)
	ed := rt.Edit()

	ed.SetQuery("speed", object.Constant(1))
	ed.SetGlobal("gravity", object.Constant(9))
	ed.SetVariable("mana", object.Constant(5))
	if got := value(t, rt, "query", "speed"); got != 1 {
		t.Errorf("got %v", got)
	}
	if got := value(t, rt, "global", "gravity"); got != 9 {
		t.Errorf("got %v", got)
	}

	ed.RemoveVariable("mana")
	ed.RemoveQuery("speed")
	ed.RemoveGlobal("gravity")
	variable, _ := rt.Get("variable")
	query, _ := rt.Get("query")
	global, _ := rt.Get("global")
	if variable.Has("mana") || query.Has("speed") || global.Has("gravity") {
		t.Errorf("removed properties are still present")
	}

	ed.ClearQuery()
	ed.ClearGlobal()
	ed.ClearVariable()
	if len(variable.Keys())+len(query.Keys())+len(global.Keys()) != 0 {
		t.Errorf("clear should empty every protected scope")
	}
}

func TestCopy_RoundTrip(t *testing.T) {
	src := NewBuilder()
	src.SetQuery("life_time", object.Constant(2))
	src.SetGlobal("frame", object.Constant(3))
	src.SetVariable("health", object.Constant(10))
	lib := object.NewStorage(true)
	lib.Set("count", object.Constant(1))
	src.LoadLibrary("stats", lib)
	src.LoadLibrary("math", object.NewLibrary(map[string]object.Expression{"pi": object.Constant(3)}))
	srcRuntime := src.Build()

	dst := NewBuilder()
	dstStats := object.NewStorage(true)
	dstStats.Set("other", object.Constant(7))
	dst.LoadLibrary("stats", dstStats)
	protectedQuery := dst.Query()

	if err := dst.Copy(srcRuntime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt := dst.Build()

	for _, tc := range []struct {
		scope, name string
		want        float32
	}{
		{"query", "life_time", 2},
		{"context", "life_time", 2},
		{"global", "frame", 3},
		{"variable", "health", 10},
		{"stats", "count", 1},
		{"stats", "other", 7},
		{"math", "pi", 3},
	} {
		if got := value(t, rt, tc.scope, tc.name); got != tc.want {
			t.Errorf("%s.%s: got %v, want %v", tc.scope, tc.name, got, tc.want)
		}
	}

	stats, _ := rt.Get("stats")
	if stats != object.Object(dstStats) {
		t.Errorf("a mutable library must be merged, not replaced")
	}
	query, _ := rt.Get("query")
	if query.Mutable() || dst.Query() != protectedQuery {
		t.Errorf("query must stay the protected view")
	}

	// the copy is deep
	lib.Set("count", object.Constant(100))
	if got := value(t, rt, "stats", "count"); got != 1 {
		t.Errorf("copy must not alias the source, got %v", got)
	}
}

func TestCopy_EditView(t *testing.T) {
	src := newTestRuntime(t)
	rt := NewBuilder().Build()
	if err := rt.Edit().Copy(src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(src.Dump(), rt.Dump()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestNewBuilderFrom(t *testing.T) {
	b := NewBuilder()
	b.SetVariable("health", object.Constant(10))
	lib := object.NewStorage(true)
	b.LoadLibrary("stats", lib, "s")

	c := NewBuilderFrom(b)
	c.SetVariable("health", object.Constant(1))
	c.LoadLibrary("extra", object.NewStorage(true))

	rt := b.Build()
	if got := value(t, rt, "variable", "health"); got != 10 {
		t.Errorf("properties of the copied builder must be independent, got %v", got)
	}
	if rt.Has("extra") {
		t.Errorf("libraries loaded on the copy must not leak into the original")
	}
	crt := c.Build()
	stats, err := crt.Get("s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != object.Object(lib) {
		t.Errorf("libraries are shared with the original builder")
	}
}

func TestRuntime_Dump(t *testing.T) {
	rt := newTestRuntime(t)
	rt.LoadParameter(1.5)

	want := `==Start MoLang Runtime Dump==

==Start Objects==
context={life_time=2}
global={frame=3}
query={life_time=2}
variable={health=10}
==End Objects==

==Start Parameters==
	Parameter 0=1.5
==End Parameters==

==End MoLang Runtime Dump==`
	if diff := cmp.Diff(want, rt.Dump()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}
