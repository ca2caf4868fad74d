// Package pgstore is a PostgreSQL store.Store on pgx. Nested transactions
// map onto savepoints.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config tunes the connection pool. Zero values keep pgx defaults.
type Config struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// New connects, pings, and creates the schema when missing.
func New(ctx context.Context, databaseURL string, cfg Config) (*Store, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: database unreachable: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Begin opens a top-level transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	t, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	return &tx{tx: t}, nil
}

func (s *Store) Object(ctx context.Context, id string) (domain.Object, error) {
	return readObject(ctx, s.pool, id)
}

func (s *Store) Edges(ctx context.Context, id, relType string, dir domain.Direction) ([]domain.Relation, error) {
	q := selectDownstreamSQL
	if dir == domain.Upstream {
		q = selectUpstreamSQL
	}
	rows, err := s.pool.Query(ctx, q, id, relType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Relation, error) {
		var r domain.Relation
		err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type)
		return r, err
	})
}

func (s *Store) ScopeAspects(ctx context.Context, scope string, aspectType codes.AspectType) ([]store.OwnedAspect, error) {
	return readScopeAspects(ctx, s.pool, scope, aspectType)
}

func (s *Store) ObjectsByCode(ctx context.Context, scope, code string) ([]domain.Object, error) {
	rows, err := s.pool.Query(ctx, selectObjectIDsByCodeSQL, scope, code)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id, ref string
		err := row.Scan(&id, &ref)
		return id, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Object, 0, len(ids))
	for _, id := range ids {
		o, err := readObject(ctx, s.pool, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) PowerGraph(ctx context.Context, scope string) ([]domain.PowerNode, []domain.PowerEdge, error) {
	rows, err := s.pool.Query(ctx, selectPowerNodesSQL, scope)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PowerNode, error) {
		var n domain.PowerNode
		err := row.Scan(&n.ID, &n.Scope, &n.Key, &n.ShortCode, &n.ParentCode, &n.Label, &n.Level, &n.NodeType, &n.ObjectID)
		return n, err
	})
	if err != nil {
		return nil, nil, err
	}
	rows, err = s.pool.Query(ctx, selectPowerEdgesSQL, scope)
	if err != nil {
		return nil, nil, err
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PowerEdge, error) {
		var e domain.PowerEdge
		err := row.Scan(&e.ID, &e.Scope, &e.SourceID, &e.TargetID, &e.Type)
		return e, err
	})
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

func (s *Store) Stats(ctx context.Context, scope string) (domain.ScopeStats, error) {
	out := store.NewScopeStats(scope)
	for q, dst := range map[string]map[string]int{
		countObjectsSQL:    out.Objects,
		countAspectsSQL:    out.Aspects,
		countRelationsSQL:  out.Relations,
		countPowerNodesSQL: out.PowerNodes,
		countPowerEdgesSQL: out.PowerEdges,
	} {
		if err := countInto(ctx, s.pool, q, scope, dst); err != nil {
			return out, err
		}
	}
	return out, nil
}

func countInto(ctx context.Context, q querier, sql, scope string, dst map[string]int) error {
	rows, err := q.Query(ctx, sql, scope)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		dst[k] = n
	}
	return rows.Err()
}

func readObject(ctx context.Context, q querier, id string) (domain.Object, error) {
	var o domain.Object
	var origin string
	var meta []byte
	err := q.QueryRow(ctx, selectObjectSQL, id).Scan(
		&o.ID, &o.Scope, &o.RefCode, &o.Name, &o.ObjectType, &origin, &o.AssetCode, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Object{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Object{}, err
	}
	o.Origin = domain.Origin(origin)
	if err := json.Unmarshal(meta, &o.Metadata); err != nil {
		return domain.Object{}, fmt.Errorf("pgstore: object %s metadata: %w", id, err)
	}

	rows, err := q.Query(ctx, selectObjectAspectsSQL, id)
	if err != nil {
		return domain.Object{}, err
	}
	o.Aspects, err = pgx.CollectRows(rows, scanAspect)
	return o, err
}

func scanAspect(row pgx.CollectableRow) (domain.Aspect, error) {
	var a domain.Aspect
	var t string
	err := row.Scan(&a.ObjectID, &t, &a.FullCode, &a.Prefix, &a.ParentCode, &a.Level)
	a.AspectType = codes.AspectType(t)
	return a, err
}

func readScopeAspects(ctx context.Context, q querier, scope string, aspectType codes.AspectType) ([]store.OwnedAspect, error) {
	rows, err := q.Query(ctx, selectScopeAspectsSQL, scope, string(aspectType))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.OwnedAspect, error) {
		var a store.OwnedAspect
		var t string
		err := row.Scan(&a.ObjectID, &t, &a.FullCode, &a.Prefix, &a.ParentCode, &a.Level,
			&a.RefCode, &a.Name, &a.ObjectType)
		a.AspectType = codes.AspectType(t)
		return a, err
	})
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ store.Store = (*Store)(nil)
