// Package callgraph links X$ tables to their implementing structs,
// callbacks and the functions those callbacks call directly.
package callgraph

import (
	"github.com/zboralski/lattice"
)

// Callback is one attachment callback and its direct callees.
type Callback struct {
	Name    string
	Callees []string
}

// TableLinks is everything hanging off one X$ table.
type TableLinks struct {
	Table     string
	Struct    string
	Callbacks []Callback
}

// BuildTableGraph constructs a lattice.Graph with edges table -> struct,
// table -> callback and callback -> callee. Duplicate nodes and edges are
// collapsed by Dedup, keeping first-seen order.
func BuildTableGraph(tables []TableLinks) *lattice.Graph {
	g := &lattice.Graph{}
	node := func(name string) { g.Nodes = append(g.Nodes, name) }
	edge := func(caller, callee string) {
		node(callee)
		g.Edges = append(g.Edges, lattice.Edge{Caller: caller, Callee: callee})
	}

	for _, t := range tables {
		node(t.Table)
		if t.Struct != "" {
			edge(t.Table, t.Struct)
		}
		for _, cb := range t.Callbacks {
			edge(t.Table, cb.Name)
			for _, callee := range cb.Callees {
				if callee != "" {
					edge(cb.Name, callee)
				}
			}
		}
	}
	g.Dedup()
	return g
}
