package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/WessleyAI/rdsgraph/engine/events"
	"github.com/WessleyAI/rdsgraph/pkg/natsutil"
	"github.com/spf13/cobra"
)

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print import-completed events as they arrive",
		Long: `Watch subscribes to ` + events.SubjectImportCompleted + ` and prints one JSON
document per line until interrupted. It needs a NATS URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.NATS.URL == "" {
				return errors.New("watch: no NATS URL configured (--nats-url or RDSGRAPH_NATS_URL)")
			}
			nc, err := natsutil.Connect(c.cfg.NATS.URL, "rdsgraph-watch", c.log)
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			sub, err := natsutil.Subscribe(nc, events.SubjectImportCompleted, c.log,
				func(_ context.Context, ev events.ImportCompleted) {
					mu.Lock()
					defer mu.Unlock()
					if err := enc.Encode(ev); err != nil {
						c.log.Warn("watch: write event", "error", err)
					}
				})
			if err != nil {
				return fmt.Errorf("watch: subscribe: %w", err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			c.log.Info("watching import events", "subject", events.SubjectImportCompleted)
			<-ctx.Done()
			return nil
		},
	}
}
