package graph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/powergraph"
	"github.com/WessleyAI/rdsgraph/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func newMockResult(recs ...*neo4j.Record) *mockResult { return &mockResult{records: recs} }

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }

func (m *mockResult) Err() error { return m.err }

// mockSession records every statement and answers from results in order.
type mockSession struct {
	queries []string
	params  []map[string]any
	results []*mockResult
	failOn  string
	closed  int
	writes  int
}

func (s *mockSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.queries = append(s.queries, cypher)
	s.params = append(s.params, params)
	if s.failOn != "" && strings.Contains(cypher, s.failOn) {
		return nil, errors.New("neo4j unavailable")
	}
	if len(s.results) == 0 {
		return newMockResult(), nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, nil
}

func (s *mockSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	s.writes++
	return work(s)
}

func (s *mockSession) Close(context.Context) error { s.closed++; return nil }

type mockOpener struct{ session *mockSession }

func (o *mockOpener) OpenSession(context.Context) CypherSession { return o.session }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestProjector(sess *mockSession, b *resilience.Breaker) *Projector {
	return NewWithOpener(&mockOpener{session: sess}, Options{Logger: quiet, Breaker: b})
}

func dualFedGraph() *powergraph.Graph {
	return powergraph.Build("f1", []powergraph.Feed{
		{Code: "===DY1.AH1.H01", AssetCode: "P-1", Name: "循环水泵"},
		{Code: "===DY2.AH3.H07", AssetCode: "P-1", Name: "循环水泵"},
	}, powergraph.Links{})
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{NodeLabel}, Props: props}}}
}

func TestProjectPowerGraph(t *testing.T) {
	sess := &mockSession{}
	p := newTestProjector(sess, nil)
	g := dualFedGraph()

	require.NoError(t, p.ProjectPowerGraph(context.Background(), g))
	assert.Equal(t, 1, sess.writes)
	assert.Equal(t, 1, sess.closed)
	require.Len(t, sess.queries, 4)

	assert.Equal(t, pruneNodesCypher, sess.queries[0])
	assert.Equal(t, "f1", sess.params[0]["scope"])
	assert.Len(t, sess.params[0]["ids"], len(g.Nodes))

	assert.Equal(t, mergeNodesCypher, sess.queries[1])
	rows := sess.params[1]["nodes"].([]map[string]any)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.Equal(t, "f1", r["scope"])
	}

	assert.Contains(t, sess.queries[2], "[r:HIERARCHY {id: row.id}]")
	assert.Len(t, sess.params[2]["edges"], 2)
	assert.Contains(t, sess.queries[3], "[r:POWER_SUPPLY {id: row.id}]")
	supply := sess.params[3]["edges"].([]map[string]any)
	require.Len(t, supply, 2)
	dev := domain.PowerNodeID("f1", domain.DeviceKeyPrefix+"P-1")
	assert.Equal(t, dev, supply[0]["target"])
	assert.Equal(t, dev, supply[1]["target"])
}

func TestProjectPowerGraphFailures(t *testing.T) {
	sess := &mockSession{failOn: "POWER_SUPPLY"}
	b := resilience.NewBreaker("neo4j", resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour})
	p := newTestProjector(sess, b)
	g := dualFedGraph()
	ctx := context.Background()

	err := p.ProjectPowerGraph(ctx, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph: project f1: edges power_supply")

	require.Error(t, p.ProjectPowerGraph(ctx, g))
	err = p.ProjectPowerGraph(ctx, g)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, sess.writes)
}

func TestDropScope(t *testing.T) {
	sess := &mockSession{}
	require.NoError(t, newTestProjector(sess, nil).DropScope(context.Background(), "f1"))
	assert.Equal(t, []string{dropScopeCypher}, sess.queries)
	assert.Equal(t, "f1", sess.params[0]["scope"])

	sess = &mockSession{failOn: "DETACH DELETE"}
	err := newTestProjector(sess, nil).DropScope(context.Background(), "f1")
	assert.ErrorContains(t, err, "graph: drop f1")
}

func TestNodeAndNodes(t *testing.T) {
	props := nodeToMap(domain.PowerNode{
		ID: "n1", Scope: "f1", Key: "===DY1.AH1", ShortCode: "AH1", ParentCode: "===DY1",
		Label: "1#配电柜", Level: 2, NodeType: domain.NodeBus,
	})
	sess := &mockSession{results: []*mockResult{newMockResult(nodeRecord(props)), newMockResult(nodeRecord(props))}}
	p := newTestProjector(sess, nil)
	ctx := context.Background()

	n, err := p.Node(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "===DY1.AH1", n.Key)
	assert.Equal(t, 2, n.Level)
	assert.Equal(t, "1#配电柜", n.Label)

	list, err := p.Nodes(ctx, "f1", domain.NodeBus, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, sess.queries[1], "MATCH (n:PowerNode) WHERE n.node_type = $f_node_type AND n.scope = $f_scope")
	assert.Equal(t, "f1", sess.params[1]["f_scope"])

	_, err = p.Nodes(ctx, "f1", "", 0, 0)
	require.NoError(t, err)
	assert.NotContains(t, sess.queries[2], "node_type")
}

func TestNodeDecodeError(t *testing.T) {
	bad := &neo4j.Record{Keys: []string{"n"}, Values: []any{"not-a-node"}}
	sess := &mockSession{results: []*mockResult{newMockResult(bad)}}
	_, err := newTestProjector(sess, nil).Node(context.Background(), "n1")
	assert.ErrorContains(t, err, "decode node")
}

func TestCounts(t *testing.T) {
	row := func(k string, c int64) *neo4j.Record {
		return &neo4j.Record{Keys: []string{"key", "count"}, Values: []any{k, c}}
	}
	sess := &mockSession{results: []*mockResult{
		newMockResult(row("source", 2), row("device", 1)),
		newMockResult(row("HIERARCHY", 2), row("POWER_SUPPLY", 2)),
	}}
	nodes, rels, err := newTestProjector(sess, nil).Counts(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"source": 2, "device": 1}, nodes)
	assert.Equal(t, map[string]int64{"HIERARCHY": 2, "POWER_SUPPLY": 2}, rels)

	sess = &mockSession{failOn: "type(r)"}
	_, _, err = newTestProjector(sess, nil).Counts(context.Background(), "f1")
	assert.ErrorContains(t, err, "relationship counts")

	cut := newMockResult(row("source", 2))
	cut.err = errors.New("connection reset")
	sess = &mockSession{results: []*mockResult{cut}}
	nodes, _, err = newTestProjector(sess, nil).Counts(context.Background(), "f1")
	assert.ErrorContains(t, err, "connection reset")
	assert.Nil(t, nodes)
}

func TestSanitizeRelType(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"power_supply", "POWER_SUPPLY"},
		{"hierarchy", "HIERARCHY"},
		{"", "RELATED_TO"},
		{"has-wire", "HASWIRE"},
		{"x]->() DELETE n //", "XDELETEN"},
	}
	for _, tt := range tests {
		if got := sanitizeRelType(tt.input); got != tt.want {
			t.Errorf("sanitizeRelType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIntProp(t *testing.T) {
	props := map[string]any{"a": int64(3), "b": 4, "c": 5.0, "d": "x"}
	assert.Equal(t, int64(3), intProp(props, "a"))
	assert.Equal(t, int64(4), intProp(props, "b"))
	assert.Equal(t, int64(5), intProp(props, "c"))
	assert.Equal(t, int64(0), intProp(props, "d"))
}
