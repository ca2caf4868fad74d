package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newParseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "parse CODE...",
		Short: "Parse reference designations",
		Example: `  rdsgraph parse =TA001.BJ01.PP01
  rdsgraph parse ===DY1.AH1.H01 ++B1.R101`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := newParser(c.cfg)
			if err != nil {
				return err
			}
			results := parser.ParseBatch(args)
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d codes not parseable", failed, len(results))
			}
			return nil
		},
	}
}

func newExpandCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "expand CODE",
		Short: "List a code's hierarchy chain, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := newParser(c.cfg)
			if err != nil {
				return err
			}
			chain := parser.Expand(args[0])
			if len(chain) == 0 {
				_, err := parser.Parse(args[0])
				return err
			}
			return writeJSON(cmd.OutOrStdout(), chain)
		},
	}
}
