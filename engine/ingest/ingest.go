// Package ingest imports tabular RDS records into a store: it builds
// objects and their aspect codes, synthesizes missing ancestors, derives
// feeds_power_to relations and writes the power-distribution graph, all in
// one transaction with a savepoint per object.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/powergraph"
	"github.com/WessleyAI/rdsgraph/engine/sheets"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"github.com/WessleyAI/rdsgraph/pkg/fn"
	"github.com/WessleyAI/rdsgraph/pkg/metrics"
)

// Projector mirrors a committed power graph into a secondary store.
type Projector interface {
	ProjectPowerGraph(ctx context.Context, g *powergraph.Graph) error
	DropScope(ctx context.Context, scope string) error
}

// Notifier announces committed imports.
type Notifier interface {
	ImportCompleted(ctx context.Context, scope string, stats domain.ImportStats) error
}

// Deps holds the importer's collaborators. Store is required.
type Deps struct {
	Store     store.Store
	Parser    codes.Parser
	Projector Projector
	Notifier  Notifier
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Options controls one import.
type Options struct {
	ClearExisting   bool
	CreateRelations bool
}

// Importer runs imports and scope queries against a store.
type Importer struct {
	deps    Deps
	log     *slog.Logger
	metrics *importMetrics
}

// New creates an Importer.
func New(deps Deps) *Importer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Importer{deps: deps, log: deps.Logger, metrics: newImportMetrics(deps.Metrics)}
}

// run carries one import through the pipeline stages.
type run struct {
	scope     string
	opts      Options
	rows      []sheets.Row
	tx        store.Tx
	built     Built
	persisted []domain.Object
	graph     *powergraph.Graph
	stats     domain.ImportStats
}

// Import writes rows into scope. Per-row failures are collected in
// ImportStats.Errors; any other failure rolls the whole run back and is
// returned.
func (im *Importer) Import(ctx context.Context, scope string, rows []sheets.Row, opts Options) (domain.ImportStats, error) {
	if err := domain.ValidateScope(scope); err != nil {
		return domain.ImportStats{}, err
	}
	start := time.Now()
	tx, err := im.deps.Store.Begin(ctx)
	if err != nil {
		return domain.ImportStats{}, fmt.Errorf("import: begin: %w", err)
	}
	r := &run{scope: scope, opts: opts, rows: rows, tx: tx, stats: domain.ImportStats{Errors: []domain.RowError{}}}

	res := im.pipeline()(ctx, r)
	if res.IsErr() {
		_, perr := res.Unwrap()
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			im.log.Error("import: rollback failed", "scope", scope, "error", rbErr)
		}
		im.metrics.failed()
		im.log.Error("import: aborted", "scope", scope, "error", perr)
		return domain.ImportStats{}, fmt.Errorf("import: %s: %w", scope, perr)
	}
	if err := tx.Commit(ctx); err != nil {
		im.metrics.failed()
		return domain.ImportStats{}, fmt.Errorf("import: commit %s: %w", scope, err)
	}

	im.afterCommit(ctx, r)
	im.metrics.record(r.stats, start)
	im.log.Info("import: done", "scope", scope,
		"rows", r.stats.TotalRows,
		"objects", r.stats.ObjectsCreated,
		"virtual", r.stats.VirtualObjectsCreated,
		"relations", r.stats.RelationsCreated,
		"power_nodes", r.stats.PowerNodesCreated,
		"errors", len(r.stats.Errors),
		"duration", time.Since(start))
	return r.stats, nil
}

func (im *Importer) pipeline() fn.Stage[*run, *run] {
	stage := func(name string, s fn.Stage[*run, *run]) fn.Stage[*run, *run] {
		return Logged(name, im.log, fn.TracedStage("ingest."+name, s))
	}
	return fn.Pipeline(
		stage("clear", im.clearStage),
		stage("build", im.buildStage),
		stage("objects", im.objectsStage),
		stage("relations", im.relationsStage),
		stage("power_graph", im.powerGraphStage),
	)
}

func (im *Importer) clearStage(ctx context.Context, r *run) fn.Result[*run] {
	if !r.opts.ClearExisting {
		return fn.Ok(r)
	}
	cleared, err := r.tx.ClearScope(ctx, r.scope)
	if err != nil {
		return fn.Err[*run](fmt.Errorf("clear: %w", err))
	}
	im.log.Info("import: cleared scope", "scope", r.scope, "objects", cleared.ObjectsDeleted)
	return fn.Ok(r)
}

func (im *Importer) buildStage(_ context.Context, r *run) fn.Result[*run] {
	r.built = BuildObjects(r.scope, r.rows, im.deps.Parser)
	r.stats.TotalRows = r.built.TotalRows
	r.stats.ParsedObjects = len(r.built.Explicit)
	r.stats.Errors = append(r.stats.Errors, r.built.Errors...)
	return fn.Ok(r)
}

// objectsStage writes each object and its aspects inside its own savepoint.
func (im *Importer) objectsStage(ctx context.Context, r *run) fn.Result[*run] {
	for _, o := range r.built.Objects() {
		if err := ctx.Err(); err != nil {
			return fn.Err[*run](err)
		}
		aspects, err := writeObject(ctx, r.tx, o)
		var rf *rowFailure
		if errors.As(err, &rf) {
			im.log.Warn("import: object skipped", "scope", r.scope, "ref", o.RefCode, "error", rf.err)
			r.stats.Errors = append(r.stats.Errors, domain.RowError{
				Sheet: o.Metadata.Sheet, Row: o.Metadata.RowIndex, Code: o.RefCode, Err: rf.err,
			})
			continue
		}
		if err != nil {
			return fn.Err[*run](fmt.Errorf("object %s: %w", o.RefCode, err))
		}
		r.persisted = append(r.persisted, o)
		r.stats.ObjectsCreated++
		r.stats.AspectsCreated += aspects
		if o.Origin == domain.OriginVirtual {
			r.stats.VirtualObjectsCreated++
		}
	}
	return fn.Ok(r)
}

// rowFailure marks an error the savepoint isolated from the rest of the run.
type rowFailure struct{ err error }

func (f *rowFailure) Error() string { return f.err.Error() }
func (f *rowFailure) Unwrap() error { return f.err }

// writeObject returns a *rowFailure when the savepoint absorbed the error,
// and any other error when the transaction itself is no longer usable.
func writeObject(ctx context.Context, tx store.Tx, o domain.Object) (int, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	rowErr := sp.UpsertObject(ctx, o)
	for i := 0; rowErr == nil && i < len(o.Aspects); i++ {
		if err := sp.InsertAspect(ctx, o.Aspects[i]); err != nil {
			rowErr = fmt.Errorf("aspect %s: %w", o.Aspects[i].FullCode, err)
		}
	}
	if rowErr != nil {
		if err := sp.Rollback(ctx); err != nil {
			return 0, errors.Join(rowErr, err)
		}
		if ctx.Err() != nil {
			return 0, rowErr
		}
		return 0, &rowFailure{err: rowErr}
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return len(o.Aspects), nil
}

func (im *Importer) relationsStage(ctx context.Context, r *run) fn.Result[*run] {
	if !r.opts.CreateRelations {
		return fn.Ok(r)
	}
	aspects, err := r.tx.ScopeAspects(ctx, r.scope, codes.AspectPower)
	if err != nil {
		return fn.Err[*run](fmt.Errorf("relations: %w", err))
	}
	for _, rel := range DeriveRelations(aspects) {
		if err := r.tx.InsertRelation(ctx, rel); err != nil {
			return fn.Err[*run](fmt.Errorf("relation %s: %w", rel.ID, err))
		}
		r.stats.RelationsCreated++
	}
	return fn.Ok(r)
}

func (im *Importer) powerGraphStage(ctx context.Context, r *run) fn.Result[*run] {
	feeds, links := powerInputs(r.persisted, r.built.Feeds)
	r.graph = powergraph.Build(r.scope, feeds, links)
	for _, n := range r.graph.Nodes {
		if err := r.tx.UpsertPowerNode(ctx, n); err != nil {
			return fn.Err[*run](fmt.Errorf("power node %s: %w", n.Key, err))
		}
		r.stats.PowerNodesCreated++
	}
	for _, e := range r.graph.Edges {
		if err := r.tx.InsertPowerEdge(ctx, e); err != nil {
			return fn.Err[*run](fmt.Errorf("power edge %s: %w", e.ID, err))
		}
		r.stats.PowerEdgesCreated++
	}
	return fn.Ok(r)
}

// powerInputs keeps the feeds of objects that were persisted and resolves
// the object links for graph nodes. A code owned by an explicit object links
// there in preference to its virtual placeholder.
func powerInputs(persisted []domain.Object, feeds []SourcedFeed) ([]powergraph.Feed, powergraph.Links) {
	type ref struct {
		origin domain.Origin
		ref    string
	}
	written := map[ref]bool{}
	links := powergraph.Links{ByCode: map[string]string{}, ByAsset: map[string]string{}}
	for _, origin := range []domain.Origin{domain.OriginExplicit, domain.OriginVirtual} {
		for _, o := range persisted {
			if o.Origin != origin {
				continue
			}
			written[ref{o.Origin, o.RefCode}] = true
			if o.AssetCode != "" {
				links.ByAsset[o.AssetCode] = o.ID
			}
			for _, a := range o.Aspects {
				if _, taken := links.ByCode[a.FullCode]; !taken && a.AspectType == codes.AspectPower {
					links.ByCode[a.FullCode] = o.ID
				}
			}
		}
	}
	out := make([]powergraph.Feed, 0, len(feeds))
	for _, f := range feeds {
		if written[ref{f.Origin, f.Ref}] {
			out = append(out, f.Feed)
		}
	}
	return out, links
}

// afterCommit runs side effects that must not undo a committed import.
// Failures become soft errors.
func (im *Importer) afterCommit(ctx context.Context, r *run) {
	if im.deps.Projector != nil && r.graph != nil {
		if err := im.deps.Projector.ProjectPowerGraph(ctx, r.graph); err != nil {
			im.log.Warn("import: projection failed", "scope", r.scope, "error", err)
			r.stats.Errors = append(r.stats.Errors, domain.RowError{Sheet: domain.SystemSheet, Row: -1, Err: fmt.Errorf("projection: %w", err)})
		}
	}
	if im.deps.Notifier != nil {
		if err := im.deps.Notifier.ImportCompleted(ctx, r.scope, r.stats); err != nil {
			im.log.Warn("import: notify failed", "scope", r.scope, "error", err)
			r.stats.Errors = append(r.stats.Errors, domain.RowError{Sheet: domain.SystemSheet, Row: -1, Err: fmt.Errorf("notify: %w", err)})
		}
	}
}

// Clear deletes everything imported into scope.
func (im *Importer) Clear(ctx context.Context, scope string) (domain.ClearStats, error) {
	if err := domain.ValidateScope(scope); err != nil {
		return domain.ClearStats{}, err
	}
	tx, err := im.deps.Store.Begin(ctx)
	if err != nil {
		return domain.ClearStats{}, fmt.Errorf("clear: begin: %w", err)
	}
	st, err := tx.ClearScope(ctx, scope)
	if err != nil {
		_ = tx.Rollback(ctx)
		return domain.ClearStats{}, fmt.Errorf("clear: %s: %w", scope, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ClearStats{}, fmt.Errorf("clear: commit %s: %w", scope, err)
	}
	if im.deps.Projector != nil {
		if err := im.deps.Projector.DropScope(ctx, scope); err != nil {
			im.log.Warn("clear: projection drop failed", "scope", scope, "error", err)
		}
	}
	im.log.Info("clear: done", "scope", scope, "objects", st.ObjectsDeleted, "power_nodes", st.PowerNodesDeleted)
	return st, nil
}

// Logged wraps a stage with entry/exit logging and its duration.
func Logged[In, Out any](name string, log *slog.Logger, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		res := stage(ctx, in)
		if res.IsErr() {
			_, err := res.Unwrap()
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start), "error", err)
		} else {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}
		return res
	}
}
