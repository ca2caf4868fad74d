package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func newNodeRepo(opener SessionOpener) *repo.Neo4jRepo[domain.PowerNode, string] {
	return repo.NewNeo4jRepo[domain.PowerNode, string](
		nil,
		NodeLabel,
		nodeFromRecord,
		repo.WithSessions[domain.PowerNode, string](func(ctx context.Context) repo.Runner {
			return repoSession{sess: opener.OpenSession(ctx)}
		}),
	)
}

// repoSession adapts a CypherSession to the repository's runner.
type repoSession struct {
	sess CypherSession
}

func (s repoSession) Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s repoSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

func nodeToMap(n domain.PowerNode) map[string]any {
	return map[string]any{
		"id":          n.ID,
		"scope":       n.Scope,
		"full_code":   n.Key,
		"short_code":  n.ShortCode,
		"parent_code": n.ParentCode,
		"label":       n.Label,
		"level":       int64(n.Level),
		"node_type":   n.NodeType,
		"object_id":   n.ObjectID,
	}
}

func nodeFromRecord(rec *neo4j.Record) (domain.PowerNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.PowerNode{}, fmt.Errorf("graph: decode node: %w", err)
	}
	return nodeFromProps(node.Props), nil
}

func nodeFromProps(props map[string]any) domain.PowerNode {
	return domain.PowerNode{
		ID:         strProp(props, "id"),
		Scope:      strProp(props, "scope"),
		Key:        strProp(props, "full_code"),
		ShortCode:  strProp(props, "short_code"),
		ParentCode: strProp(props, "parent_code"),
		Label:      strProp(props, "label"),
		Level:      int(intProp(props, "level")),
		NodeType:   strProp(props, "node_type"),
		ObjectID:   strProp(props, "object_id"),
	}
}

func strProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Node reads one projected node by id.
func (p *Projector) Node(ctx context.Context, id string) (domain.PowerNode, error) {
	return p.nodes.Get(ctx, id)
}

// Nodes lists the projected nodes of scope ordered by id. An empty
// nodeType lists every type.
func (p *Projector) Nodes(ctx context.Context, scope, nodeType string, offset, limit int) ([]domain.PowerNode, error) {
	filter := map[string]any{"scope": scope}
	if nodeType != "" {
		filter["node_type"] = nodeType
	}
	return p.nodes.List(ctx, repo.ListOpts{Offset: offset, Limit: limit, Filter: filter})
}

const (
	nodeCountsCypher = `MATCH (n:PowerNode {scope: $scope}) RETURN n.node_type AS key, count(n) AS count`
	relCountsCypher  = `MATCH (:PowerNode {scope: $scope})-[r]->(:PowerNode) RETURN type(r) AS key, count(r) AS count`
)

// Counts tallies the projection of scope: nodes by node type and
// relationships by type.
func (p *Projector) Counts(ctx context.Context, scope string) (nodes, rels map[string]int64, err error) {
	sess := p.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	if nodes, err = countBy(ctx, sess, nodeCountsCypher, scope); err != nil {
		return nil, nil, fmt.Errorf("graph: node counts %s: %w", scope, err)
	}
	if rels, err = countBy(ctx, sess, relCountsCypher, scope); err != nil {
		return nil, nil, fmt.Errorf("graph: relationship counts %s: %w", scope, err)
	}
	return nodes, rels, nil
}

func countBy(ctx context.Context, r CypherRunner, cypher, scope string) (map[string]int64, error) {
	res, err := r.Run(ctx, cypher, map[string]any{"scope": scope})
	if err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for res.Next(ctx) {
		rec := res.Record()
		key, _ := rec.Get("key")
		cnt, _ := rec.Get("count")
		if k, ok := key.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[k] = c
			}
		}
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
