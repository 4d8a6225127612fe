package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/panbanda/locksmith/pkg/analyzer/resolve"
	"github.com/panbanda/locksmith/pkg/model"
)

const tracerName = "locksmith.analysis"

// BuildError reports a failure while building one function's sequence.
type BuildError struct {
	Function string
	File     string
	Line     int
	Value    any
	Stack    []byte
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("callgraph: building %s (%s:%d): %v", e.Function, e.File, e.Line, e.Value)
}

// Unwrap returns the underlying error when the failure carried one.
func (e *BuildError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Builder builds a Graph from a Program.
type Builder struct {
	prog          *model.Program
	resolver      *resolve.Resolver
	logger        *slog.Logger
	inlineLambdas bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger for the builder and its resolver.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithInlineLambdas controls whether a lambda expression is treated as a
// call to the lambda body at its definition site.
func WithInlineLambdas(inline bool) Option {
	return func(b *Builder) {
		b.inlineLambdas = inline
	}
}

// NewBuilder creates a Builder for prog.
func NewBuilder(prog *model.Program, opts ...Option) *Builder {
	b := &Builder{
		prog:          prog,
		logger:        slog.Default(),
		inlineLambdas: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.resolver = resolve.New(prog, resolve.WithLogger(b.logger))
	return b
}

// ResolverStats returns the resolution counters of the last Build.
func (b *Builder) ResolverStats() resolve.Stats {
	return b.resolver.Stats()
}

// Build infers untyped locals, then emits the entry sequence of every
// function in id order.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	funcs := b.prog.Functions()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "callgraph.Builder.Build")
	defer span.End()
	span.SetAttributes(attribute.Int("functions", len(funcs)))

	for _, fn := range funcs {
		b.resolver.InferLocals(fn)
	}

	g := NewGraph(funcs)
	for i, fn := range funcs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := b.buildFunction(g, fn); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	stats := g.Stats()
	span.SetAttributes(
		attribute.Int("entries", stats.Entries),
		attribute.Int("split_points", stats.SplitPoints),
		attribute.Int("recursive_groups", stats.RecursiveGroups),
	)
	b.logger.Info("call graph built",
		slog.Int("functions", stats.Functions),
		slog.Int("entries", stats.Entries),
		slog.Int("split_points", stats.SplitPoints),
		slog.Int("opaque", stats.OpaqueNodes))
	return g, nil
}

func (b *Builder) buildFunction(g *Graph, fn *model.Function) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &BuildError{
				Function: fn.QualifiedName(),
				File:     fn.File,
				Line:     fn.Line,
				Value:    v,
				Stack:    debug.Stack(),
			}
		}
	}()
	if fn.Abstract {
		return nil
	}

	em := &emitter{graph: g, fn: fn.ID, inline: b.inlineLambdas, line: fn.Line}
	var sync model.LockID
	if fn.Synchronized {
		sync = b.prog.SyncLock(fn)
		em.Lock(nil, sync)
	}
	b.walk(em, fn, fn.Body)
	if fn.Synchronized {
		em.Unlock(nil, sync)
	}
	return nil
}

func (b *Builder) walk(em *emitter, fn *model.Function, body []*model.Stmt) {
	sc := resolve.ScopeOf(fn)
	for _, s := range body {
		if s == nil {
			continue
		}
		switch s.Kind {
		case model.StmtExpr, model.StmtLocal:
			if s.Expr != nil {
				b.resolver.Resolve(s.Expr, sc, em)
			}
		case model.StmtSync:
			if s.Expr != nil {
				b.resolver.Resolve(s.Expr, sc, em)
			}
			monitor := b.prog.MonitorLock(s)
			em.line = s.Line
			em.Lock(nil, monitor)
			b.walk(em, fn, s.Body)
			em.line = s.Line
			em.Unlock(nil, monitor)
		}
	}
}

// emitter appends resolver effects to one function's sequence.
type emitter struct {
	graph  *Graph
	fn     model.FunctionID
	inline bool
	line   int
}

func (e *emitter) at(site *model.Expr, n Node) Node {
	if site != nil {
		n.Line = site.Line
	} else {
		n.Line = e.line
	}
	return n
}

func (e *emitter) Call(site *model.Expr, targets []*model.Function) {
	nodes := make([]Node, 0, len(targets))
	for _, t := range targets {
		nodes = append(nodes, e.at(site, CallNode(t.ID)))
	}
	e.graph.Add(e.fn, nodes...)
}

func (e *emitter) Lock(site *model.Expr, id model.LockID) {
	e.graph.Add(e.fn, e.at(site, LockNode(id)))
}

func (e *emitter) Unlock(site *model.Expr, id model.LockID) {
	e.graph.Add(e.fn, e.at(site, UnlockNode(id)))
}

func (e *emitter) Opaque(site *model.Expr) {
	e.graph.Add(e.fn, e.at(site, OpaqueNode()))
}

func (e *emitter) Lambda(site *model.Expr, fn *model.Function) {
	if e.inline {
		e.graph.Add(e.fn, e.at(site, CallNode(fn.ID)))
	}
}
