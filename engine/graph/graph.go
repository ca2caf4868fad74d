// Package graph mirrors committed power graphs into Neo4j as PowerNode
// nodes joined by HIERARCHY and POWER_SUPPLY relationships, one scope at a
// time.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/powergraph"
	"github.com/WessleyAI/rdsgraph/pkg/repo"
	"github.com/WessleyAI/rdsgraph/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NodeLabel is the label of projected power nodes.
const NodeLabel = "PowerNode"

// Options configures a Projector.
type Options struct {
	Database string
	Breaker  *resilience.Breaker
	Logger   *slog.Logger
}

// Projector writes power graphs to Neo4j. It satisfies ingest.Projector.
type Projector struct {
	opener  SessionOpener
	breaker *resilience.Breaker
	log     *slog.Logger
	nodes   *repo.Neo4jRepo[domain.PowerNode, string]
}

// New creates a Projector on a driver.
func New(driver neo4j.DriverWithContext, opts Options) *Projector {
	return NewWithOpener(driverOpener{driver: driver, database: opts.Database}, opts)
}

// NewWithOpener creates a Projector on any session source.
func NewWithOpener(opener SessionOpener, opts Options) *Projector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker("neo4j", resilience.BreakerOpts{})
	}
	return &Projector{
		opener:  opener,
		breaker: opts.Breaker,
		log:     opts.Logger,
		nodes:   newNodeRepo(opener),
	}
}

const (
	pruneNodesCypher = `MATCH (n:PowerNode {scope: $scope}) WHERE NOT n.id IN $ids DETACH DELETE n`

	mergeNodesCypher = `UNWIND $nodes AS row
MERGE (n:PowerNode {id: row.id})
SET n += row`

	// %s is a sanitized relationship type.
	mergeEdgesCypher = `UNWIND $edges AS row
MATCH (a:PowerNode {id: row.source}), (b:PowerNode {id: row.target})
MERGE (a)-[r:%s {id: row.id}]->(b)
SET r.scope = row.scope`

	dropScopeCypher = `MATCH (n:PowerNode {scope: $scope}) DETACH DELETE n`
)

// ProjectPowerGraph replaces the projection of g.Scope with g in one write
// transaction. Nodes no longer in g are removed.
func (p *Projector) ProjectPowerGraph(ctx context.Context, g *powergraph.Graph) error {
	ids := make([]string, len(g.Nodes))
	rows := make([]map[string]any, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
		rows[i] = nodeToMap(n)
	}
	edges := edgesByType(g.Edges)

	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		sess := p.opener.OpenSession(ctx)
		defer sess.Close(ctx)
		_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
			if _, err := tx.Run(ctx, pruneNodesCypher, map[string]any{"scope": g.Scope, "ids": ids}); err != nil {
				return nil, fmt.Errorf("prune: %w", err)
			}
			if _, err := tx.Run(ctx, mergeNodesCypher, map[string]any{"nodes": rows}); err != nil {
				return nil, fmt.Errorf("nodes: %w", err)
			}
			for _, group := range edges {
				cypher := fmt.Sprintf(mergeEdgesCypher, sanitizeRelType(group.relType))
				if _, err := tx.Run(ctx, cypher, map[string]any{"edges": group.rows}); err != nil {
					return nil, fmt.Errorf("edges %s: %w", group.relType, err)
				}
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("graph: project %s: %w", g.Scope, err)
	}
	p.log.Info("graph: projected", "scope", g.Scope, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// DropScope removes every projected node of scope.
func (p *Projector) DropScope(ctx context.Context, scope string) error {
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		sess := p.opener.OpenSession(ctx)
		defer sess.Close(ctx)
		_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
			return tx.Run(ctx, dropScopeCypher, map[string]any{"scope": scope})
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("graph: drop %s: %w", scope, err)
	}
	return nil
}

type edgeGroup struct {
	relType string
	rows    []map[string]any
}

// edgesByType groups edges by type in first-seen order, since a
// relationship type cannot be a query parameter.
func edgesByType(edges []domain.PowerEdge) []edgeGroup {
	var groups []edgeGroup
	index := map[string]int{}
	for _, e := range edges {
		i, ok := index[e.Type]
		if !ok {
			i = len(groups)
			index[e.Type] = i
			groups = append(groups, edgeGroup{relType: e.Type})
		}
		groups[i].rows = append(groups[i].rows, map[string]any{
			"id":     e.ID,
			"source": e.SourceID,
			"target": e.TargetID,
			"scope":  e.Scope,
		})
	}
	return groups
}

// sanitizeRelType turns an edge type into an upper-case Cypher identifier.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case c >= 'a' && c <= 'z':
			safe = append(safe, c-'a'+'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_':
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	return string(safe)
}
