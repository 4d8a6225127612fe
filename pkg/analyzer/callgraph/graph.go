// Package callgraph turns function bodies into ordered sequences of call
// and lock-operation nodes.
package callgraph

import (
	"fmt"

	"github.com/panbanda/locksmith/pkg/model"
)

// NodeKind is the kind of a call-graph node.
type NodeKind uint8

const (
	NodeCall NodeKind = iota + 1
	NodeLock
	NodeUnlock
	NodeOpaque
)

func (k NodeKind) String() string {
	switch k {
	case NodeCall:
		return "call"
	case NodeLock:
		return "lock"
	case NodeUnlock:
		return "unlock"
	case NodeOpaque:
		return "opaque"
	}
	return "invalid"
}

// Node is one step of a function body.
type Node struct {
	Kind   NodeKind
	Target model.FunctionID
	Lock   model.LockID
	Line   int
}

// CallNode targets fn.
func CallNode(fn model.FunctionID) Node { return Node{Kind: NodeCall, Target: fn} }

// LockNode acquires id.
func LockNode(id model.LockID) Node { return Node{Kind: NodeLock, Lock: id} }

// UnlockNode releases id.
func UnlockNode(id model.LockID) Node { return Node{Kind: NodeUnlock, Lock: id} }

// OpaqueNode is a dynamic invocation.
func OpaqueNode() Node { return Node{Kind: NodeOpaque} }

func (n Node) String() string {
	switch n.Kind {
	case NodeCall:
		return fmt.Sprintf("call(%d)", n.Target)
	case NodeLock, NodeUnlock:
		return fmt.Sprintf("%s(%d)", n.Kind, n.Lock)
	}
	return n.Kind.String()
}

// Entry is one position in a function's sequence. An entry with more than
// one node is a split point: exactly one alternative executes.
type Entry []Node

// IsSplit reports whether the entry has several alternatives.
func (e Entry) IsSplit() bool {
	return len(e) > 1
}

// Graph maps every function to its ordered entries.
type Graph struct {
	funcs   []*model.Function
	entries [][]Entry
}

// NewGraph creates an empty graph over funcs, indexed by FunctionID.
func NewGraph(funcs []*model.Function) *Graph {
	return &Graph{
		funcs:   funcs,
		entries: make([][]Entry, len(funcs)),
	}
}

// Add appends an entry to fn's sequence. Empty entries are dropped.
func (g *Graph) Add(fn model.FunctionID, nodes ...Node) {
	if len(nodes) == 0 || !g.valid(fn) {
		return
	}
	g.entries[fn] = append(g.entries[fn], Entry(nodes))
}

// Entries returns fn's sequence.
func (g *Graph) Entries(fn model.FunctionID) []Entry {
	if !g.valid(fn) {
		return nil
	}
	return g.entries[fn]
}

// Function returns the function with id fn.
func (g *Graph) Function(fn model.FunctionID) *model.Function {
	if !g.valid(fn) {
		return nil
	}
	return g.funcs[fn]
}

// Functions returns every function in the graph.
func (g *Graph) Functions() []*model.Function {
	return g.funcs
}

// Len returns the number of functions.
func (g *Graph) Len() int {
	return len(g.funcs)
}

func (g *Graph) valid(fn model.FunctionID) bool {
	return fn >= 0 && int(fn) < len(g.entries)
}
