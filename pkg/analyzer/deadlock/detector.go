// Package deadlock derives the lock nesting relation from per-function lock
// traces and reports pairs of locks acquired in both orders.
package deadlock

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/model"
)

const tracerName = "locksmith.analysis"

// Nested is one lock observed acquired inside another lock's critical
// section.
type Nested struct {
	Lock model.LockID `json:"lock"`
	// Acquires and Releases count the nested acquisitions and their matching
	// releases inside the outer windows. Count is their difference and is
	// zero when every nested acquisition was released inside the window.
	Acquires int `json:"acquires"`
	Releases int `json:"releases"`
	// Witness is the first function seen holding the outer lock while the
	// nested one was acquired.
	Witness model.FunctionID `json:"witness"`
	// Outlives is set when some nested acquisition stayed held after the
	// outer lock was released.
	Outlives bool `json:"outlives"`
}

// Count returns the unbalanced nested acquisitions.
func (n Nested) Count() int { return n.Acquires - n.Releases }

// Dependency lists the locks nested under Lock, ordered by id.
type Dependency struct {
	Lock   model.LockID `json:"lock"`
	Nested []Nested     `json:"nested"`
}

// Deadlock is a pair of locks nested in both directions. Forward held First
// while Second was acquired, Backward held Second while First was acquired.
type Deadlock struct {
	First    model.LockID     `json:"first"`
	Second   model.LockID     `json:"second"`
	Forward  model.FunctionID `json:"forward"`
	Backward model.FunctionID `json:"backward"`
}

type pair struct {
	outer, inner model.LockID
}

// Detector accumulates nesting from traces. The zero value is not usable;
// call New.
type Detector struct {
	logger *slog.Logger

	nested    map[model.LockID]map[model.LockID]*Nested
	witnesses map[pair]map[model.FunctionID]struct{}
	traces    int
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// New creates an empty Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		logger:    slog.Default(),
		nested:    make(map[model.LockID]map[model.LockID]*Nested),
		witnesses: make(map[pair]map[model.FunctionID]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect feeds every trace into a new Detector.
func Detect(ctx context.Context, traces []*locktrace.FunctionTrace, opts ...Option) (*Detector, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "deadlock.Detect")
	defer span.End()

	d := New(opts...)
	for i, t := range traces {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
		d.Add(t)
	}
	deadlocks := d.Deadlocks()
	span.SetAttributes(
		attribute.Int("traces", len(traces)),
		attribute.Int("nesting_edges", d.Edges()),
		attribute.Int("deadlocks", len(deadlocks)),
	)
	d.logger.Info("lock nesting derived",
		slog.Int("traces", len(traces)),
		slog.Int("nesting_edges", d.Edges()),
		slog.Int("deadlocks", len(deadlocks)))
	return d, nil
}

// Add scans one trace. For every acquisition of a known lock L the window
// runs to the first later release of L, or to the end of the trace. Each
// acquisition of another known lock inside that window is nested under L,
// witnessed by the function that acquired L.
//
// Seeded locks and callee effects show up in several traces, so only the
// events a trace performed itself are counted. Every acquisition and
// release is then counted once across all traces.
func (d *Detector) Add(t *locktrace.FunctionTrace) {
	d.traces++
	ev := t.Events
	for i, e := range ev {
		outer := e.Lock()
		if !e.IsAcquire() || outer == model.UnknownLock {
			continue
		}
		holder := t.By(i)
		j := releaseAfter(ev, i, outer)
		open := make(map[model.LockID]int)
		for h := i + 1; h < j; h++ {
			inner := ev[h].Lock()
			if inner == outer || inner == model.UnknownLock {
				continue
			}
			if !ev[h].IsAcquire() {
				if open[inner] > 0 {
					open[inner]--
					if t.Performed(h) {
						d.entry(outer, inner, holder).Releases++
					}
				}
				continue
			}
			open[inner]++
			n := d.entry(outer, inner, holder)
			if t.Performed(h) {
				n.Acquires++
			}
			if j < len(ev) && releaseAfter(ev, h, inner) > j {
				n.Outlives = true
			}
		}
	}
}

func (d *Detector) entry(outer, inner model.LockID, fn model.FunctionID) *Nested {
	under, ok := d.nested[outer]
	if !ok {
		under = make(map[model.LockID]*Nested)
		d.nested[outer] = under
	}
	n, ok := under[inner]
	if !ok {
		n = &Nested{Lock: inner, Witness: fn}
		under[inner] = n
	}
	key := pair{outer, inner}
	w, ok := d.witnesses[key]
	if !ok {
		w = make(map[model.FunctionID]struct{})
		d.witnesses[key] = w
	}
	w[fn] = struct{}{}
	return n
}

// releaseAfter returns the index of the first release of id after i, or
// len(ev) when there is none.
func releaseAfter(ev []locktrace.Event, i int, id model.LockID) int {
	for k := i + 1; k < len(ev); k++ {
		if !ev[k].IsAcquire() && ev[k].Lock() == id {
			return k
		}
	}
	return len(ev)
}

// NestedUnder reports whether inner was seen acquired while outer was held.
func (d *Detector) NestedUnder(outer, inner model.LockID) (Nested, bool) {
	n, ok := d.nested[outer][inner]
	if !ok {
		return Nested{}, false
	}
	return *n, true
}

// Witnesses returns every function that held outer while inner was
// acquired, in id order.
func (d *Detector) Witnesses(outer, inner model.LockID) []model.FunctionID {
	return sortedFuncs(d.witnesses[pair{outer, inner}])
}

// Traces returns how many traces were added.
func (d *Detector) Traces() int { return d.traces }

// Edges returns the number of (outer, inner) nesting relations.
func (d *Detector) Edges() int {
	n := 0
	for _, under := range d.nested {
		n += len(under)
	}
	return n
}

// Dependencies returns the nesting relation ordered by lock id.
func (d *Detector) Dependencies() []Dependency {
	out := make([]Dependency, 0, len(d.nested))
	for _, outer := range sortedLocks(d.nested) {
		under := d.nested[outer]
		dep := Dependency{Lock: outer, Nested: make([]Nested, 0, len(under))}
		for _, inner := range sortedLocks(under) {
			dep.Nested = append(dep.Nested, *under[inner])
		}
		out = append(out, dep)
	}
	return out
}

// Pairs returns the lock pairs nested in both directions, First < Second.
func (d *Detector) Pairs() [][2]model.LockID {
	var out [][2]model.LockID
	for _, a := range sortedLocks(d.nested) {
		for _, b := range sortedLocks(d.nested[a]) {
			if a >= b {
				continue
			}
			if _, ok := d.nested[b][a]; ok {
				out = append(out, [2]model.LockID{a, b})
			}
		}
	}
	return out
}

// Deadlocks returns one entry per combination of a forward and a backward
// witness for every pair from Pairs. Witnesses are the functions that
// acquired the outer lock, so a callee running under a caller's locks is
// never implicated for them.
func (d *Detector) Deadlocks() []Deadlock {
	var out []Deadlock
	for _, p := range d.Pairs() {
		for _, fwd := range d.Witnesses(p[0], p[1]) {
			for _, bwd := range d.Witnesses(p[1], p[0]) {
				out = append(out, Deadlock{First: p[0], Second: p[1], Forward: fwd, Backward: bwd})
			}
		}
	}
	return out
}

func sortedLocks[V any](m map[model.LockID]V) []model.LockID {
	out := make([]model.LockID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedFuncs(m map[model.FunctionID]struct{}) []model.FunctionID {
	out := make([]model.FunctionID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
