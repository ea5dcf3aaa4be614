package render

import (
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"xinfo/internal/callgraph"
)

// Node kinds, also used as DOT identifier prefixes.
const (
	KindTable    = "t"
	KindStruct   = "s"
	KindCallback = "cb"
	KindCallee   = "fn"
)

const maxLabel = 50

func funcLabel(name string) string {
	return truncLabel(demangle.Filter(name, demangle.NoParams), maxLabel)
}

// TableGraphDOT renders tables, their columns structs, their callbacks and
// the callbacks' direct callees as DOT. A function reached both as a
// callback and as a callee is drawn once, as a callback.
func TableGraphDOT(tables []callgraph.TableLinks, title string, t Theme) string {
	callbacks := make(map[string]bool)
	for _, tl := range tables {
		for _, cb := range tl.Callbacks {
			callbacks[cb.Name] = true
		}
	}
	funcID := func(name string) string {
		if callbacks[name] {
			return dotID(KindCallback, name)
		}
		return dotID(KindCallee, name)
	}

	var b strings.Builder
	b.WriteString("digraph xtables {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.8;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeBorder, t.TextColor)
	b.WriteString("  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		b.WriteString("  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	seen := make(map[string]bool)
	node := func(id, label, attrs string) {
		if seen[id] {
			return
		}
		seen[id] = true
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, dotEscape(label), attrs)
	}
	edges := make(map[[2]string]bool)
	edge := func(from, to, color string) {
		k := [2]string{from, to}
		if edges[k] {
			return
		}
		edges[k] = true
		fmt.Fprintf(&b, "  %s -> %s [color=%q];\n", from, to, color)
	}

	for _, tl := range tables {
		tid := dotID(KindTable, tl.Table)
		node(tid, tl.Table, fmt.Sprintf(", fillcolor=%q, penwidth=1.0", t.TableFill))
		if tl.Struct != "" {
			sid := dotID(KindStruct, tl.Struct)
			node(sid, tl.Struct, fmt.Sprintf(", shape=note, fillcolor=%q", t.StructFill))
			edge(tid, sid, t.EdgeStruct)
		}
		for _, cb := range tl.Callbacks {
			cid := funcID(cb.Name)
			node(cid, funcLabel(cb.Name), fmt.Sprintf(", shape=box, style=\"rounded,filled\", fillcolor=%q", t.CallbackFill))
			edge(tid, cid, t.EdgeCallback)
			for _, callee := range cb.Callees {
				fid := funcID(callee)
				if !callbacks[callee] {
					node(fid, funcLabel(callee), fmt.Sprintf(", shape=plaintext, style=\"\", fontcolor=%q", t.CalleeText))
				}
				edge(cid, fid, t.EdgeCall)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}
