package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	latticerender "github.com/zboralski/lattice/render"

	"xinfo/internal/callgraph"
	"xinfo/internal/render"
	"xinfo/internal/xtab"
)

type graphOpts struct {
	out       string
	callees   bool
	plain     bool
	maxTables int
	maxInsts  int
}

// tableLinks joins the matched tables, cut to maxTables, with their
// attachments and, when asked, with the direct callees of every callback.
// Each callback is disassembled once however many tables share it.
func (s *session) tableLinks(pattern string, g graphOpts) ([]callgraph.TableLinks, error) {
	ls, err := s.cat.List(pattern, false)
	if err != nil {
		return nil, err
	}
	if g.maxTables > 0 && len(ls) > g.maxTables {
		ls = ls[:g.maxTables]
	}
	if len(ls) == 0 {
		return nil, nil
	}
	atts, err := s.cat.Attachments()
	if err != nil {
		return nil, err
	}

	callees := make(map[uint64][]string)
	out := make([]callgraph.TableLinks, 0, len(ls))
	for _, l := range ls {
		a, err := xtab.AttachmentAt(atts, l.Index)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.Name, err)
		}
		tl := callgraph.TableLinks{Table: l.Name, Struct: a.StructName()}
		for _, cb := range a.Callbacks() {
			c := callgraph.Callback{Name: cb.DisplayName()}
			if g.callees && cb.IsResolved() {
				names, ok := callees[cb.Addr]
				if !ok {
					code, err := s.disassemble(cb, g.maxInsts)
					if err != nil {
						return nil, err
					}
					names = code.calleeNames()
					callees[cb.Addr] = names
				}
				c.Callees = names
			}
			tl.Callbacks = append(tl.Callbacks, c)
		}
		out = append(out, tl)
	}
	return out, nil
}

func newGraphCmd(o *options) *cobra.Command {
	var g graphOpts
	cmd := &cobra.Command{
		Use:   "graph [pattern]",
		Short: "Write a Graphviz DOT graph of tables, structs and callbacks",
		Example: `  xinfo graph 'X$KSL*' --callees --out ksl.dot
  dot -Tsvg ksl.dot > ksl.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.Close()

			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			tables, err := s.tableLinks(pattern, g)
			if err != nil {
				return err
			}

			title := "X$ tables"
			if pattern != "" {
				title += " " + pattern
			}
			var dot string
			var lg *lattice.Graph
			if g.plain {
				lg = callgraph.BuildTableGraph(tables)
				dot = latticerender.DOT(lg, title)
			} else {
				dot = render.TableGraphDOT(tables, title, render.NASA)
			}

			if g.out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), dot)
				return err
			}
			if err := os.WriteFile(g.out, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", g.out, err)
			}
			ev := s.logger.Info().Str("path", g.out).Int("tables", len(tables))
			if lg != nil {
				ev = ev.Int("nodes", len(lg.Nodes)).Int("edges", len(lg.Edges))
			}
			ev.Msg("wrote graph")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&g.out, "out", "", "write DOT to this file instead of stdout")
	f.BoolVar(&g.callees, "callees", false, "disassemble callbacks and add their direct callees")
	f.BoolVar(&g.plain, "plain", false, "emit an unstyled call graph")
	f.IntVar(&g.maxTables, "max-tables", 0, "limit the number of tables rendered (0 = all)")
	f.IntVar(&g.maxInsts, "max-insts", 200, "maximum instructions decoded per callback")
	return cmd
}
