package main

import (
	"github.com/spf13/cobra"

	"xinfo/internal/output"
)

func newDescCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "desc <table>",
		Aliases: []string{"describe"},
		Short:   "Describe the columns of an X$ table",
		Example: "  xinfo desc 'X$KSLLT'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.cat.Describe(args[0])
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), s.cfg.Output, output.DescDocument(d))
		},
	}
}
