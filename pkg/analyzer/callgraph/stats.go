package callgraph

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Stats summarizes a graph.
type Stats struct {
	Functions       int `json:"functions"`
	Entries         int `json:"entries"`
	SplitPoints     int `json:"split_points"`
	CallNodes       int `json:"call_nodes"`
	LockNodes       int `json:"lock_nodes"`
	UnlockNodes     int `json:"unlock_nodes"`
	OpaqueNodes     int `json:"opaque_nodes"`
	RecursiveGroups int `json:"recursive_groups"`
}

// Stats counts nodes and recursive call groups. A recursive group is a
// strongly connected component with more than one function, or a function
// that calls itself.
func (g *Graph) Stats() Stats {
	s := Stats{Functions: g.Len()}
	directed := simple.NewDirectedGraph()
	for i := range g.funcs {
		directed.AddNode(simple.Node(int64(i)))
	}
	selfLoops := make(map[int]bool)

	for from, entries := range g.entries {
		s.Entries += len(entries)
		for _, e := range entries {
			if e.IsSplit() {
				s.SplitPoints++
			}
			for _, n := range e {
				switch n.Kind {
				case NodeCall:
					s.CallNodes++
					to := int(n.Target)
					if to == from {
						selfLoops[from] = true
						continue
					}
					if to >= 0 && to < len(g.funcs) {
						directed.SetEdge(simple.Edge{F: simple.Node(int64(from)), T: simple.Node(int64(to))})
					}
				case NodeLock:
					s.LockNodes++
				case NodeUnlock:
					s.UnlockNodes++
				case NodeOpaque:
					s.OpaqueNodes++
				}
			}
		}
	}

	for _, scc := range topo.TarjanSCC(directed) {
		switch {
		case len(scc) > 1:
			s.RecursiveGroups++
		case len(scc) == 1 && selfLoops[int(scc[0].ID())]:
			s.RecursiveGroups++
		}
	}
	return s
}
