package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/rdsgraph/pkg/metrics"
	"github.com/WessleyAI/rdsgraph/pkg/mid"
	"github.com/WessleyAI/rdsgraph/pkg/resilience"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := metrics.New()
			a, err := openApp(ctx, c.cfg, c.log, reg)
			if err != nil {
				return err
			}
			defer a.close()
			return newServer(a).run(ctx)
		},
	}
	fs := cmd.Flags()
	fs.Int("port", 0, "API listen port")
	fs.Int("metrics-port", 0, "metrics listen port; 0 disables the metrics listener")
	fs.String("cors-origin", "", "allowed CORS origin")
	fs.Float64("rate-limit", 0, "requests per second per client; 0 disables limiting")
	return cmd
}

// server exposes an app over HTTP.
type server struct {
	app     *app
	log     *slog.Logger
	maxBody int64
}

func newServer(a *app) *server {
	return &server{app: a, log: a.log, maxBody: int64(a.cfg.HTTP.MaxBodyMB) << 20}
}

// run serves the API, and metrics when a metrics port is set, until ctx is
// cancelled or a listener fails. Both servers are shut down gracefully.
func (s *server) run(ctx context.Context) error {
	cfg := s.app.cfg.HTTP
	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
	if cfg.MetricsPort > 0 && s.app.reg != nil {
		servers = append(servers, s.app.reg.Server(fmt.Sprintf(":%d", cfg.MetricsPort)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.log.Info("http server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// handler builds the routed API with its middleware.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/parse/code", s.handleParseCode)
	mux.HandleFunc("POST /api/parse/hierarchy", s.handleParseHierarchy)
	mux.HandleFunc("POST /api/parse/batch", s.handleParseBatch)
	mux.HandleFunc("POST /api/parse/excel", s.handleParseWorkbook)

	mux.HandleFunc("POST /api/import/{scope}", s.handleImport)
	mux.HandleFunc("DELETE /api/import/{scope}", s.handleClear)
	mux.HandleFunc("GET /api/import/{scope}/stats", s.handleStats)
	mux.HandleFunc("GET /api/tree/{scope}", s.handleTree)
	mux.HandleFunc("GET /api/lookup/{scope}", s.handleLookup)
	mux.HandleFunc("GET /api/power-graph/{scope}", s.handlePowerGraph)

	mux.HandleFunc("POST /api/topology/trace", s.handleTrace)
	mux.HandleFunc("POST /api/topology/path", s.handlePath)
	mux.HandleFunc("GET /api/topology/relation-types", s.handleRelationTypes)

	cfg := s.app.cfg.HTTP
	limiter := resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst})
	mw := []mid.Middleware{
		mid.Recover(s.log),
		mid.OTel("rdsgraph"),
		mid.Logger(s.log),
	}
	if s.app.reg != nil {
		mw = append(mw, mid.Metrics(s.app.reg))
	}
	mw = append(mw, mid.CORS(cfg.CORSOrigin), mid.RateLimit(limiter))
	return mid.Chain(mux, mw...)
}
