package main

import (
	"github.com/spf13/cobra"

	"xinfo/internal/output"
)

func newListCmd(o *options) *cobra.Command {
	var withKqftap bool
	cmd := &cobra.Command{
		Use:   "list [pattern]",
		Short: "List X$ tables, optionally filtered by a shell pattern",
		Example: `  xinfo list
  xinfo list 'X$KSL*' --with-kqftap -o json`,
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
			ls, err := s.cat.List(pattern, withKqftap)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), s.cfg.Output, output.ListDocument(ls, withKqftap))
		},
	}
	cmd.Flags().BoolVar(&withKqftap, "with-kqftap", false,
		"join each table with its kqftap attachment (columns struct and callbacks)")
	return cmd
}
