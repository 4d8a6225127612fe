package deadlock

import (
	"sort"

	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/model"
)

// FunctionRef names a function and where it is declared.
type FunctionRef struct {
	Name string `json:"name" toon:"name"`
	File string `json:"file,omitempty" toon:"file,omitempty"`
	Line int    `json:"line,omitempty" toon:"line,omitempty"`
}

// Finding is one reported deadlock entry.
type Finding struct {
	LockA string `json:"lock_a" toon:"lock_a"`
	LockB string `json:"lock_b" toon:"lock_b"`
	// AThenB acquired LockB while LockA was held, BThenA the reverse.
	AThenB FunctionRef `json:"a_then_b" toon:"a_then_b"`
	BThenA FunctionRef `json:"b_then_a" toon:"b_then_a"`
}

// LockInfo is one entry of the lock name table.
type LockInfo struct {
	ID   uint32 `json:"id" toon:"id"`
	Name string `json:"name" toon:"name"`
}

// Edge is one nesting relation: Inner acquired while Outer was held.
type Edge struct {
	Outer    string `json:"outer" toon:"outer"`
	Inner    string `json:"inner" toon:"inner"`
	Acquires int    `json:"acquires" toon:"acquires"`
	Releases int    `json:"releases" toon:"releases"`
	Witness  string `json:"witness" toon:"witness"`
	Outlives bool   `json:"outlives,omitempty" toon:"outlives,omitempty"`
}

// TraceInfo is a function trace with lock names substituted.
type TraceInfo struct {
	Function string   `json:"function" toon:"function"`
	Seed     int      `json:"seed" toon:"seed"`
	Events   []string `json:"events" toon:"events"`
	Held     []string `json:"held" toon:"held"`
}

// Summary counts the analysis outcome.
type Summary struct {
	Files             int `json:"files" toon:"files"`
	Classes           int `json:"classes" toon:"classes"`
	Functions         int `json:"functions" toon:"functions"`
	EntryPoints       int `json:"entry_points" toon:"entry_points"`
	FunctionsExpanded int `json:"functions_expanded" toon:"functions_expanded"`
	Locks             int `json:"locks" toon:"locks"`
	NestingEdges      int `json:"nesting_edges" toon:"nesting_edges"`
	Pairs             int `json:"pairs" toon:"pairs"`
	Deadlocks         int `json:"deadlocks" toon:"deadlocks"`
}

// Report is the reporter-facing view of one analysis run.
type Report struct {
	Summary      Summary     `json:"summary" toon:"summary"`
	Deadlocks    []Finding   `json:"deadlocks" toon:"deadlocks"`
	Locks        []LockInfo  `json:"locks" toon:"locks"`
	Dependencies []Edge      `json:"dependencies" toon:"dependencies"`
	Traces       []TraceInfo `json:"traces,omitempty" toon:"traces,omitempty"`
}

// HasDeadlocks reports whether any pair was found.
func (r *Report) HasDeadlocks() bool { return len(r.Deadlocks) > 0 }

// NewReport resolves ids against prog. Traces are included when
// withTraces is set.
func NewReport(prog *model.Program, res *locktrace.Result, d *Detector, withTraces bool) *Report {
	r := &Report{
		Deadlocks:    []Finding{},
		Locks:        []LockInfo{},
		Dependencies: []Edge{},
	}
	ref := func(id model.FunctionID) FunctionRef {
		fn := prog.Function(id)
		if fn == nil {
			return FunctionRef{Name: "<unknown>"}
		}
		return FunctionRef{Name: fn.QualifiedName(), File: fn.File, Line: fn.Line}
	}
	name := prog.Locks.Name

	for _, l := range prog.Locks.Locks() {
		r.Locks = append(r.Locks, LockInfo{ID: uint32(l.ID), Name: l.Name})
	}
	for _, dep := range d.Dependencies() {
		for _, n := range dep.Nested {
			r.Dependencies = append(r.Dependencies, Edge{
				Outer:    name(dep.Lock),
				Inner:    name(n.Lock),
				Acquires: n.Acquires,
				Releases: n.Releases,
				Witness:  ref(n.Witness).Name,
				Outlives: n.Outlives,
			})
		}
	}
	for _, dl := range d.Deadlocks() {
		r.Deadlocks = append(r.Deadlocks, Finding{
			LockA:  name(dl.First),
			LockB:  name(dl.Second),
			AThenB: ref(dl.Forward),
			BThenA: ref(dl.Backward),
		})
	}
	sort.SliceStable(r.Deadlocks, func(i, j int) bool {
		a, b := r.Deadlocks[i], r.Deadlocks[j]
		if a.LockA != b.LockA {
			return a.LockA < b.LockA
		}
		if a.LockB != b.LockB {
			return a.LockB < b.LockB
		}
		if a.AThenB.Name != b.AThenB.Name {
			return a.AThenB.Name < b.AThenB.Name
		}
		return a.BThenA.Name < b.BThenA.Name
	})

	if withTraces {
		for _, t := range res.Traces {
			ti := TraceInfo{Function: ref(t.Function).Name, Seed: t.Seed, Events: make([]string, len(t.Events))}
			for i, e := range t.Events {
				sign := "+"
				if !e.IsAcquire() {
					sign = "-"
				}
				ti.Events[i] = sign + name(e.Lock())
			}
			it := t.Held.Iterator()
			for it.HasNext() {
				ti.Held = append(ti.Held, name(model.LockID(it.Next())))
			}
			r.Traces = append(r.Traces, ti)
		}
	}

	r.Summary = Summary{
		Classes:           len(prog.Classes()),
		Functions:         len(prog.Functions()),
		EntryPoints:       len(res.EntryPoints),
		FunctionsExpanded: len(res.Traces),
		Locks:             prog.Locks.Len(),
		NestingEdges:      d.Edges(),
		Pairs:             len(d.Pairs()),
		Deadlocks:         len(r.Deadlocks),
	}
	return r
}
