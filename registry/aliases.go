package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/podhmo/molang/object"
)

// builtinAliases are the short scope prefixes every table starts with.
var builtinAliases = map[string]string{
	"q": "query",
	"c": "context",
	"g": "global",
	"v": "variable",
	"t": "temp",
}

// Aliases maps short scope prefixes to canonical scope names.
// Cycles are rejected at registration, so Resolve always terminates.
type Aliases struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewAliases creates a table holding the built-in aliases.
func NewAliases() *Aliases {
	a := NewEmptyAliases()
	for k, v := range builtinAliases {
		a.table[k] = v
	}
	return a
}

// NewEmptyAliases creates a table without any alias.
func NewEmptyAliases() *Aliases {
	return &Aliases{table: make(map[string]string)}
}

// canonicalScopes are the scope names an alias can never shadow.
var canonicalScopes = map[string]bool{
	"query":    true,
	"context":  true,
	"global":   true,
	"variable": true,
	"temp":     true,
}

// Register maps alias to target. An alias may point to another alias.
// Both names are lowercased, matching how access nodes are built.
func (a *Aliases) Register(alias, target string) error {
	alias, target = strings.ToLower(alias), strings.ToLower(target)
	if canonicalScopes[alias] {
		return object.NewRuntimeError(object.ErrProtectedScope, alias, "cannot alias a canonical scope name")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// follow target; reaching alias again would close a loop
	seen := map[string]bool{}
	for name := target; ; {
		if name == alias {
			return object.NewRuntimeError(object.ErrAliasCycle, alias, "%s -> %s", alias, target)
		}
		if seen[name] {
			break
		}
		seen[name] = true
		next, ok := a.table[name]
		if !ok {
			break
		}
		name = next
	}
	a.table[alias] = target
	return nil
}

// Resolve substitutes name through the table until it reaches a name that
// is not an alias. The chase is bounded by the table size.
func (a *Aliases) Resolve(name string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return chase(a.table, name)
}

// MustResolve is Resolve for tables known to be acyclic.
func (a *Aliases) MustResolve(name string) string {
	resolved, err := a.Resolve(name)
	if err != nil {
		panic(err)
	}
	return resolved
}

// Names returns the registered aliases in sorted order.
func (a *Aliases) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.table))
	for k := range a.table {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func chase(table map[string]string, name string) (string, error) {
	start := name
	for i := 0; i <= len(table); i++ {
		next, ok := table[name]
		if !ok {
			return name, nil
		}
		name = next
	}
	return "", object.NewRuntimeError(object.ErrAliasCycle, start, "")
}

// Chase resolves name through an arbitrary alias map with the same bound
// as Aliases.Resolve.
func Chase(table map[string]string, name string) (string, error) {
	return chase(table, name)
}
