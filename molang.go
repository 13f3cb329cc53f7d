// Package molang compiles MoLang expression trees into programs that hosts
// evaluate repeatedly against a runtime environment.
package molang

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"

	"github.com/podhmo/molang/ast"
	"github.com/podhmo/molang/compiler"
	"github.com/podhmo/molang/object"
	"github.com/podhmo/molang/registry"
	"golang.org/x/sync/errgroup"
)

// Re-export core types for convenience.
type (
	Program      = compiler.Program
	Node         = ast.Node
	Environment  = object.Environment
	CompileError = object.CompileError
	RuntimeError = object.RuntimeError
)

// Compiler turns expression trees into programs. It is safe for
// concurrent use once configured.
type Compiler struct {
	optimize    bool
	concurrency int
	logger      *slog.Logger
	aliases     *registry.Aliases
	domains     *registry.Domains
	factory     *ast.Factory
}

// Option is a functional option for configuring the Compiler.
type Option func(*Compiler)

// WithLogger sets the logger for the compiler and the environments it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithOptimize enables constant folding and dead-code elision.
func WithOptimize(optimize bool) Option {
	return func(c *Compiler) {
		c.optimize = optimize
	}
}

// WithAliases sets the scope alias table used when building access nodes.
func WithAliases(aliases *registry.Aliases) Option {
	return func(c *Compiler) {
		c.aliases = aliases
	}
}

// WithDomains sets the domain registry used when building access nodes.
func WithDomains(domains *registry.Domains) Option {
	return func(c *Compiler) {
		c.domains = domains
	}
}

// WithConcurrency bounds the number of units CompileAll compiles at once.
func WithConcurrency(n int) Option {
	return func(c *Compiler) {
		c.concurrency = n
	}
}

// New creates a compiler.
func New(options ...Option) *Compiler {
	c := &Compiler{
		optimize:    true,
		concurrency: goruntime.GOMAXPROCS(0),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if c.aliases == nil {
		c.aliases = registry.NewAliases()
	}
	if c.domains == nil {
		c.domains = registry.NewDomains()
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	c.factory = ast.NewFactory(c.aliases, c.domains)
	return c
}

// Factory returns the node factory bound to the compiler's aliases and
// domains. Parsers use it to build access nodes.
func (c *Compiler) Factory() *ast.Factory { return c.factory }

// Aliases returns the scope alias table.
func (c *Compiler) Aliases() *registry.Aliases { return c.aliases }

// Domains returns the domain registry.
func (c *Compiler) Domains() *registry.Domains { return c.domains }

// Compile compiles root into a program. Compilation either fully succeeds
// or returns a single error.
func (c *Compiler) Compile(root ast.Node) (*Program, error) {
	env := compiler.NewEnvironment(c.optimize, c.logger)
	if err := ast.EmitRoot(env, root); err != nil {
		c.logger.Error("compile failed", "node", root.String(), "error", err)
		return nil, err
	}
	p, err := env.Build(root.HasValue())
	if err != nil {
		c.logger.Error("compile failed", "node", root.String(), "error", err)
		return nil, err
	}
	return p, nil
}

// CompileAll compiles every named tree, at most WithConcurrency at a time.
// The first failure cancels the rest and is returned.
func (c *Compiler) CompileAll(ctx context.Context, nodes map[string]ast.Node) (map[string]*Program, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	var mu sync.Mutex
	programs := make(map[string]*Program, len(nodes))
	for name, node := range nodes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := c.Compile(node)
			if err != nil {
				return fmt.Errorf("compiling %s: %w", name, err)
			}
			mu.Lock()
			programs[name] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("compiled batch", "count", len(programs))
	return programs, nil
}

// Evaluate runs p against env.
func Evaluate(p *Program, env object.Environment) (float32, error) {
	return p.Run(env)
}
