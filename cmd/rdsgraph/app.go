package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/events"
	"github.com/WessleyAI/rdsgraph/engine/graph"
	"github.com/WessleyAI/rdsgraph/engine/ingest"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"github.com/WessleyAI/rdsgraph/engine/store/memstore"
	"github.com/WessleyAI/rdsgraph/engine/store/pgstore"
	"github.com/WessleyAI/rdsgraph/engine/topology"
	"github.com/WessleyAI/rdsgraph/internal/config"
	"github.com/WessleyAI/rdsgraph/pkg/fn"
	"github.com/WessleyAI/rdsgraph/pkg/metrics"
	"github.com/WessleyAI/rdsgraph/pkg/natsutil"
	"github.com/WessleyAI/rdsgraph/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var errNoProjection = errors.New("neo4j projection is not configured")

// app is the wired service graph shared by the CLI commands and the HTTP
// server.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	reg       *metrics.Registry
	parser    codes.Parser
	store     store.Store
	importer  *ingest.Importer
	traverser *topology.Traverser
	projector *graph.Projector
	closers   []func()
}

func newParser(cfg config.Config) (codes.Parser, error) {
	rule, err := codes.ParseRule(cfg.LevelRule)
	if err != nil {
		return codes.Parser{}, err
	}
	return codes.Parser{Rule: rule}, nil
}

// openApp connects the configured backends. Postgres is retried with
// backoff; Neo4j and NATS are optional and only dialled when their URL is
// set.
func openApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg *metrics.Registry) (*app, error) {
	parser, err := newParser(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, reg: reg, parser: parser}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[*pgstore.Store] {
			pg, err := pgstore.New(ctx, cfg.Store.PostgresURL, pgstore.Config{MaxConns: cfg.Store.MaxConns})
			if err != nil {
				log.Warn("postgres not ready", "error", err)
			}
			return fn.FromPair(pg, err)
		}).Unwrap()
		if err != nil {
			return nil, err
		}
		a.store = pg
	default:
		log.Debug("using in-memory store")
		a.store = memstore.New()
	}
	a.closers = append(a.closers, a.store.Close)

	deps := ingest.Deps{Store: a.store, Parser: parser, Metrics: reg, Logger: log}

	if cfg.Neo4j.URL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		a.closers = append(a.closers, func() { _ = driver.Close(context.Background()) })
		a.projector = graph.New(driver, graph.Options{
			Database: cfg.Neo4j.Database,
			Breaker:  a.breaker("neo4j"),
			Logger:   log,
		})
		deps.Projector = a.projector
	}

	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "rdsgraph", log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = nc.Drain() })
		deps.Notifier = events.NewNotifier(nc, events.Options{Breaker: a.breaker("nats"), Logger: log})
	}

	a.importer = ingest.New(deps)
	a.traverser = topology.New(a.store, topology.Options{
		MaxDepth: cfg.Traversal.MaxDepth,
		Logger:   log,
		Metrics:  reg,
	})
	return a, nil
}

// breaker creates a circuit breaker whose state is logged and exported as
// a gauge (0 closed, 1 open, 2 half-open).
func (a *app) breaker(name string) *resilience.Breaker {
	var gauge *metrics.Gauge
	if a.reg != nil {
		gauge = a.reg.Gauge(metrics.WithLabels("rdsgraph_breaker_state", "name", name), "Circuit breaker state.")
	}
	return resilience.NewBreaker(name, resilience.BreakerOpts{
		OnStateChange: func(name string, from, to resilience.State) {
			a.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if gauge != nil {
				gauge.Set(int64(to))
			}
		},
	})
}

// close releases backends in reverse order of opening.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// projectionCounts reports node and relationship counts of the Neo4j
// projection of scope.
func (a *app) projectionCounts(ctx context.Context, scope string) (map[string]map[string]int64, error) {
	if a.projector == nil {
		return nil, errNoProjection
	}
	nodes, rels, err := a.projector.Counts(ctx, scope)
	if err != nil {
		return nil, err
	}
	return map[string]map[string]int64{"nodes": nodes, "relationships": rels}, nil
}
