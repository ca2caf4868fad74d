// Package events announces committed imports on NATS.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/pkg/natsutil"
	"github.com/WessleyAI/rdsgraph/pkg/resilience"
)

// SubjectImportCompleted carries one ImportCompleted per committed import.
const SubjectImportCompleted = "rds.import.completed"

// ImportCompleted is the payload of SubjectImportCompleted.
type ImportCompleted struct {
	Scope       string             `json:"scope"`
	Stats       domain.ImportStats `json:"stats"`
	ErrorCount  int                `json:"error_count"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Options configures a Notifier.
type Options struct {
	Breaker *resilience.Breaker
	Logger  *slog.Logger
}

// Notifier publishes ImportCompleted events. It satisfies ingest.Notifier.
type Notifier struct {
	pub     natsutil.Publisher
	breaker *resilience.Breaker
	log     *slog.Logger
	now     func() time.Time
}

// NewNotifier creates a Notifier publishing through pub, usually a *nats.Conn.
func NewNotifier(pub natsutil.Publisher, opts Options) *Notifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker("nats", resilience.BreakerOpts{})
	}
	return &Notifier{pub: pub, breaker: opts.Breaker, log: opts.Logger, now: time.Now}
}

// ImportCompleted publishes the outcome of a committed import.
func (n *Notifier) ImportCompleted(ctx context.Context, scope string, stats domain.ImportStats) error {
	ev := ImportCompleted{
		Scope:       scope,
		Stats:       stats,
		ErrorCount:  len(stats.Errors),
		CompletedAt: n.now().UTC(),
	}
	err := n.breaker.Call(ctx, func(ctx context.Context) error {
		return natsutil.Publish(ctx, n.pub, SubjectImportCompleted, ev)
	})
	if err != nil {
		return err
	}
	n.log.Debug("events: published", "subject", SubjectImportCompleted, "scope", scope)
	return nil
}
