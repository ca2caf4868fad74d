package main

import (
	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/ingest"
	"github.com/WessleyAI/rdsgraph/engine/sheets"
	"github.com/WessleyAI/rdsgraph/internal/config"
	"github.com/spf13/cobra"
)

// withApp opens the backends for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd.Context(), c.cfg, c.log, nil)
	if err != nil {
		return err
	}
	defer a.close()
	if c.cfg.Store.Backend != config.BackendPostgres && cmd.Name() != "serve" {
		c.log.Warn("in-memory store: results are discarded when the command exits")
	}
	return fn(a)
}

func newImportCmd(c *cli) *cobra.Command {
	var (
		scope string
		opts  ingest.Options
	)
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import equipment sheets into a scope",
		Long: `Import reads CSV (one sheet per file, named after the file), JSON or
YAML workbooks and writes their objects, aspects, relations and power
graph into scope in one transaction. Per-row problems are reported in the
result's errors list and do not abort the import.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := sheets.LoadFiles(args...)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app) error {
				stats, err := a.importer.Import(cmd.Context(), scope, rows, opts)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "target scope (required)")
	cmd.Flags().BoolVar(&opts.ClearExisting, "clear", false, "clear the scope before importing")
	cmd.Flags().BoolVar(&opts.CreateRelations, "relations", true, "derive parent/child relations")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newClearCmd(c *cli) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete everything stored under a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app) error {
				stats, err := a.importer.Clear(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope to clear (required)")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	var (
		scope      string
		projection bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count what a scope holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app) error {
				stats, err := a.importer.Stats(cmd.Context(), scope)
				if err != nil {
					return err
				}
				if !projection {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				proj, err := a.projectionCounts(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"store": stats, "projection": proj})
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope to count (required)")
	cmd.Flags().BoolVar(&projection, "projection", false, "also count the Neo4j projection")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newTreeCmd(c *cli) *cobra.Command {
	var (
		scope    string
		aspect   string
		maxLevel int
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "List a scope's aspect tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app) error {
				entries, err := a.importer.Tree(cmd.Context(), scope, codes.AspectType(aspect), maxLevel)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope to list (required)")
	cmd.Flags().StringVar(&aspect, "aspect-type", "", "only this aspect type: function, location or power")
	cmd.Flags().IntVar(&maxLevel, "level", 0, "deepest level to list; 0 lists all")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newLookupCmd(c *cli) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "lookup CODE",
		Short: "Find the objects carrying a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				res, err := a.importer.Lookup(cmd.Context(), scope, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope to search (required)")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}
