package locktrace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/panbanda/locksmith/pkg/analyzer/callgraph"
	"github.com/panbanda/locksmith/pkg/model"
)

const tracerName = "locksmith.analysis"

// DefaultMaxDepth bounds nested expansions.
const DefaultMaxDepth = 10000

// ErrDepthExceeded is returned when nested expansion goes deeper than the
// configured limit. Recursion is cut by the on-stack check, so reaching the
// limit means a call chain longer than any real program should have.
var ErrDepthExceeded = errors.New("locktrace: maximum expansion depth exceeded")

// Stats counts propagation work.
type Stats struct {
	EntryPoints     int `json:"entry_points"`
	Expansions      int `json:"expansions"`
	Skipped         int `json:"skipped"`
	RecursiveCalls  int `json:"recursive_calls"`
	SplitPoints     int `json:"split_points"`
	OpaqueWhileHeld int `json:"opaque_while_held"`
	Traces          int `json:"traces"`
}

// Result holds the traces of every function reached from the entry points.
type Result struct {
	Traces      []*FunctionTrace
	EntryPoints []model.FunctionID
	Stats       Stats

	byFunction map[model.FunctionID]*FunctionTrace
}

// Trace returns the trace of fn, or nil when fn was never reached.
func (r *Result) Trace(fn model.FunctionID) *FunctionTrace {
	return r.byFunction[fn]
}

// Propagator expands functions depth first from entry points.
type Propagator struct {
	graph    *callgraph.Graph
	logger   *slog.Logger
	maxDepth int
	lockName func(model.LockID) string

	milestones map[model.FunctionID]*roaring.Bitmap
	traces     map[model.FunctionID]*FunctionTrace
	onStack    *roaring.Bitmap
	depth      int
	stats      Stats
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) {
		p.logger = l
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(p *Propagator) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// WithLockNames supplies lock names for diagnostics.
func WithLockNames(name func(model.LockID) string) Option {
	return func(p *Propagator) {
		p.lockName = name
	}
}

// New creates a Propagator over g.
func New(g *callgraph.Graph, opts ...Option) *Propagator {
	p := &Propagator{
		graph:    g,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		lockName: func(id model.LockID) string { return fmt.Sprint(uint32(id)) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run expands every entry point with an empty lock window. Each run starts
// from fresh state.
func (p *Propagator) Run(ctx context.Context, entries []model.FunctionID) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "locktrace.Propagator.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("entry_points", len(entries)))

	p.milestones = make(map[model.FunctionID]*roaring.Bitmap)
	p.traces = make(map[model.FunctionID]*FunctionTrace)
	p.onStack = roaring.New()
	p.depth = 0
	p.stats = Stats{EntryPoints: len(entries)}

	for _, fn := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := p.expand(fn, nil); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	res := &Result{
		EntryPoints: append([]model.FunctionID(nil), entries...),
		byFunction:  p.traces,
	}
	for _, t := range p.traces {
		res.Traces = append(res.Traces, t)
	}
	sort.Slice(res.Traces, func(i, j int) bool { return res.Traces[i].Function < res.Traces[j].Function })
	p.stats.Traces = len(res.Traces)
	res.Stats = p.stats

	span.SetAttributes(
		attribute.Int("traces", p.stats.Traces),
		attribute.Int("expansions", p.stats.Expansions),
	)
	p.logger.Info("lock traces propagated",
		slog.Int("entry_points", len(entries)),
		slog.Int("traces", p.stats.Traces),
		slog.Int("expansions", p.stats.Expansions),
		slog.Int("skipped", p.stats.Skipped))
	return res, nil
}

// expand walks fn with the caller's open locks and returns the locks open
// when fn returns.
func (p *Propagator) expand(fn model.FunctionID, open []hold) ([]hold, error) {
	if p.onStack.Contains(uint32(fn)) {
		p.stats.RecursiveCalls++
		return open, nil
	}

	held := heldSet(open)
	milestone, seen := p.milestones[fn]
	if seen && roaring.AndNot(held, milestone).IsEmpty() {
		p.stats.Skipped++
		if t := p.traces[fn]; t != nil {
			return replay(open, t), nil
		}
		return open, nil
	}
	if p.depth >= p.maxDepth {
		return nil, fmt.Errorf("%w: at %s", ErrDepthExceeded, p.funcName(fn))
	}
	if !seen {
		milestone = roaring.New()
		p.milestones[fn] = milestone
	}
	milestone.Or(held)
	p.stats.Expansions++

	p.onStack.Add(uint32(fn))
	p.depth++
	defer func() {
		p.onStack.Remove(uint32(fn))
		p.depth--
	}()

	local := &FunctionTrace{
		Function: fn,
		Held:     held,
		Events:   make([]Event, 0, len(open)+8),
		Origin:   make([]model.FunctionID, 0, len(open)+8),
		Seed:     len(open),
	}
	for _, h := range open {
		local.push(Acquire(h.lock), h.by)
	}

	cur := clone(open)
	var err error
	for _, entry := range p.graph.Entries(fn) {
		switch len(entry) {
		case 0:
			continue
		case 1:
			cur, err = p.step(fn, entry[0], cur, local, local.Held)
		default:
			cur, err = p.split(fn, entry, cur, local)
		}
		if err != nil {
			return nil, err
		}
	}
	p.record(local)
	return cur, nil
}

// split explores every alternative from the same window and continues with
// the one leaving the most locks open.
func (p *Propagator) split(fn model.FunctionID, entry callgraph.Entry, cur []hold, local *FunctionTrace) ([]hold, error) {
	p.stats.SplitPoints++
	var (
		best    []hold
		bestAlt *FunctionTrace
	)
	for i, n := range entry {
		alt := &FunctionTrace{Function: fn}
		next, err := p.step(fn, n, clone(cur), alt, local.Held)
		if err != nil {
			return nil, err
		}
		if i == 0 || len(next) > len(best) {
			best, bestAlt = next, alt
		}
	}
	local.Events = append(local.Events, bestAlt.Events...)
	local.Origin = append(local.Origin, bestAlt.Origin...)
	return best, nil
}

// step applies one node to cur and appends its events to out.
func (p *Propagator) step(fn model.FunctionID, n callgraph.Node, cur []hold, out *FunctionTrace, held *roaring.Bitmap) ([]hold, error) {
	switch n.Kind {
	case callgraph.NodeLock:
		cur = append(cur, hold{lock: n.Lock, by: fn})
		out.push(Acquire(n.Lock), fn)
		if n.Lock != model.UnknownLock {
			held.Add(uint32(n.Lock))
		}
	case callgraph.NodeUnlock:
		cur = releaseLast(cur, n.Lock)
		out.push(Release(n.Lock), fn)
	case callgraph.NodeOpaque:
		if len(cur) > 0 {
			p.stats.OpaqueWhileHeld++
			names := make([]string, len(cur))
			for i, h := range cur {
				names[i] = p.lockName(h.lock)
			}
			p.logger.Warn("dynamic invocation while holding locks",
				slog.String("function", p.funcName(fn)),
				slog.Int("line", n.Line),
				slog.Any("locks", names))
		}
	case callgraph.NodeCall:
		after, err := p.expand(n.Target, cur)
		if err != nil {
			return nil, err
		}
		effect := netEffect(cur, after, n.Target)
		out.Events = append(out.Events, effect.Events...)
		out.Origin = append(out.Origin, effect.Origin...)
		for _, h := range after {
			if h.lock != model.UnknownLock {
				held.Add(uint32(h.lock))
			}
		}
		cur = after
	}
	return cur, nil
}

func (p *Propagator) record(local *FunctionTrace) {
	if existing, ok := p.traces[local.Function]; ok {
		existing.merge(local)
		return
	}
	p.traces[local.Function] = local
}

func (p *Propagator) funcName(fn model.FunctionID) string {
	if f := p.graph.Function(fn); f != nil {
		return f.QualifiedName()
	}
	return fmt.Sprintf("function#%d", fn)
}
