package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/WessleyAI/rdsgraph/internal/config"
	"github.com/spf13/cobra"
)

// cli carries the resolved configuration from the root command to its
// subcommands.
type cli struct {
	configPath string
	cfg        config.Config
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "rdsgraph",
		Short: "RDS reference designation parser, importer and topology engine",
		Long: `rdsgraph parses IEC 81346 style reference designations, imports
equipment sheets into an object graph with a derived power-distribution
graph, and traces supply chains upstream and downstream.

Configuration is read from defaults, an optional YAML file (--config),
RDSGRAPH_* environment variables and finally command-line flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML configuration file")
	pf.String("store", "", "store backend: memory or postgres")
	pf.String("postgres-url", "", "Postgres connection URL")
	pf.String("neo4j-url", "", "Neo4j URL; enables the power graph projection")
	pf.String("nats-url", "", "NATS URL; enables import events")
	pf.String("level-rule", "", "hierarchy level rule: flat or entity-container")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.Int("max-depth", 0, "traversal depth cap")

	cmd.AddCommand(
		newParseCmd(c),
		newExpandCmd(c),
		newImportCmd(c),
		newClearCmd(c),
		newStatsCmd(c),
		newTreeCmd(c),
		newLookupCmd(c),
		newTraceCmd(c),
		newPathCmd(c),
		newServeCmd(c),
		newWatchCmd(c),
	)
	return cmd
}

// load resolves configuration for cmd and sets up logging. Logs go to
// stderr so command output on stdout stays machine-readable.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.log = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(c.log)
	return nil
}

// applyFlags overlays flags the user set explicitly. Flags a command does
// not define are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	strs := map[string]*string{
		"store":        &cfg.Store.Backend,
		"postgres-url": &cfg.Store.PostgresURL,
		"neo4j-url":    &cfg.Neo4j.URL,
		"nats-url":     &cfg.NATS.URL,
		"level-rule":   &cfg.LevelRule,
		"log-level":    &cfg.LogLevel,
		"cors-origin":  &cfg.HTTP.CORSOrigin,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	ints := map[string]*int{
		"max-depth":    &cfg.Traversal.MaxDepth,
		"port":         &cfg.HTTP.Port,
		"metrics-port": &cfg.HTTP.MetricsPort,
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}
	if fs.Changed("rate-limit") {
		cfg.HTTP.RateLimit, _ = fs.GetFloat64("rate-limit")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
