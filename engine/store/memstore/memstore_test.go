package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func object(scope, ref string) domain.Object {
	return domain.Object{
		ID:         domain.ObjectID(scope, domain.TypeEquipment, ref),
		Scope:      scope,
		RefCode:    ref,
		Name:       ref,
		ObjectType: domain.TypeEquipment,
		Origin:     domain.OriginExplicit,
	}
}

func seed(t *testing.T, s *Store, objs ...domain.Object) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, o := range objs {
		require.NoError(t, tx.UpsertObject(ctx, o))
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestCommitPublishes(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := object("f1", "A")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertObject(ctx, a))

	_, err = s.Object(ctx, a.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "uncommitted write visible")

	require.NoError(t, tx.Commit(ctx))
	got, err := s.Object(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.RefCode)
}

func TestRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertObject(ctx, object("f1", "A")))
	require.NoError(t, tx.Rollback(ctx))

	st, err := s.Stats(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, st.Objects)

	// the writer lock was released
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestNestedRollbackKeepsOuterWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := object("f1", "A"), object("f1", "B")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertObject(ctx, a))

	sp, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sp.UpsertObject(ctx, b))
	renamed := a
	renamed.Name = "renamed"
	require.NoError(t, sp.UpsertObject(ctx, renamed))
	require.NoError(t, sp.InsertAspect(ctx, domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectPower, FullCode: "===X"}))
	require.NoError(t, sp.Rollback(ctx))

	sp2, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sp2.InsertAspect(ctx, domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectFunction, FullCode: "=F"}))
	require.NoError(t, sp2.Commit(ctx))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Object(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	require.Len(t, got.Aspects, 1)
	assert.Equal(t, "=F", got.Aspects[0].FullCode)

	_, err = s.Object(ctx, b.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCommittedSavepointUndoneByOuterSavepoint(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := object("f1", "A")

	tx, _ := s.Begin(ctx)
	outer, _ := tx.Begin(ctx)
	inner, _ := outer.Begin(ctx)
	require.NoError(t, inner.UpsertObject(ctx, a))
	require.NoError(t, inner.Commit(ctx))
	require.NoError(t, outer.Rollback(ctx))
	require.NoError(t, tx.Commit(ctx))

	_, err := s.Object(ctx, a.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFinishedTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, _ := s.Begin(ctx)
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	assert.ErrorIs(t, tx.UpsertObject(ctx, object("f1", "A")), ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx))
}

func TestAspectsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := object("f1", "A")
	seed(t, s, a)

	tx, _ := s.Begin(ctx)
	asp := domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectPower, FullCode: "===DY1", Level: 1}
	require.NoError(t, tx.InsertAspect(ctx, asp))
	require.NoError(t, tx.InsertAspect(ctx, asp))
	assert.Error(t, tx.InsertAspect(ctx, domain.Aspect{ObjectID: "missing", FullCode: "=X"}))
	require.NoError(t, tx.Commit(ctx))

	st, _ := s.Stats(ctx, "f1")
	assert.Equal(t, 1, st.Aspects["power"])
}

func TestRelationsAndEdges(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b, c := object("f1", "A"), object("f1", "B"), object("f1", "C")
	seed(t, s, a, b, c)

	tx, _ := s.Begin(ctx)
	ab, _ := domain.NewRelation(a.ID, b.ID, "")
	bc, _ := domain.NewRelation(b.ID, c.ID, "")
	part, _ := domain.NewRelation(b.ID, a.ID, domain.RelPartOf)
	for _, r := range []domain.Relation{ab, bc, ab, part} {
		require.NoError(t, tx.InsertRelation(ctx, r))
	}
	assert.True(t, errors.Is(tx.InsertRelation(ctx, domain.Relation{ID: "x", SourceID: a.ID, TargetID: a.ID}), domain.ErrSelfRelation))
	require.NoError(t, tx.Commit(ctx))

	down, err := s.Edges(ctx, b.ID, domain.RelFeedsPowerTo, domain.Downstream)
	require.NoError(t, err)
	require.Len(t, down, 1)
	assert.Equal(t, c.ID, down[0].TargetID)

	up, _ := s.Edges(ctx, b.ID, domain.RelFeedsPowerTo, domain.Upstream)
	require.Len(t, up, 1)
	assert.Equal(t, a.ID, up[0].SourceID)

	all, _ := s.Edges(ctx, b.ID, "", domain.Downstream)
	assert.Len(t, all, 2)

	st, _ := s.Stats(ctx, "f1")
	assert.Equal(t, 2, st.Relations[domain.RelFeedsPowerTo])
	assert.Equal(t, 1, st.Relations[domain.RelPartOf])
}

func TestPowerNodeUpsertMerges(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := domain.PowerNodeID("f1", "DY1.AH1.H01")
	tx, _ := s.Begin(ctx)
	require.NoError(t, tx.UpsertPowerNode(ctx, domain.PowerNode{ID: id, Scope: "f1", Key: "DY1.AH1.H01", ShortCode: "H01", Label: "Pump", NodeType: domain.NodeDevice}))
	require.NoError(t, tx.UpsertPowerNode(ctx, domain.PowerNode{ID: id, Scope: "f1", Key: "DY1.AH1.H01", ShortCode: "H01", Label: "H01", NodeType: domain.NodeFeeder}))
	require.NoError(t, tx.UpsertPowerNode(ctx, domain.PowerNode{ID: id, Scope: "f1", Key: "DY1.AH1.H01", ShortCode: "H01", Label: "H01", NodeType: domain.NodeDevice}))
	assert.Error(t, tx.InsertPowerEdge(ctx, domain.PowerEdge{ID: "e", Scope: "f1", SourceID: id, TargetID: "nope"}))
	require.NoError(t, tx.Commit(ctx))

	nodes, edges, err := s.PowerGraph(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Empty(t, edges)
	assert.Equal(t, "Pump", nodes[0].Label)
	assert.Equal(t, domain.NodeFeeder, nodes[0].NodeType)
}

func TestClearScope(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b, other := object("f1", "A"), object("f1", "B"), object("f2", "A")
	seed(t, s, a, b, other)

	tx, _ := s.Begin(ctx)
	r, _ := domain.NewRelation(a.ID, b.ID, "")
	require.NoError(t, tx.InsertRelation(ctx, r))
	require.NoError(t, tx.InsertAspect(ctx, domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectPower, FullCode: "===DY1"}))
	n1 := domain.PowerNode{ID: domain.PowerNodeID("f1", "DY1"), Scope: "f1", Key: "DY1", NodeType: domain.NodeSource}
	n2 := domain.PowerNode{ID: domain.PowerNodeID("f1", "DY1.AH1"), Scope: "f1", Key: "DY1.AH1", NodeType: domain.NodeBus}
	require.NoError(t, tx.UpsertPowerNode(ctx, n1))
	require.NoError(t, tx.UpsertPowerNode(ctx, n2))
	require.NoError(t, tx.InsertPowerEdge(ctx, domain.PowerEdge{ID: domain.PowerEdgeID(n1.ID, n2.ID, domain.EdgeHierarchy), Scope: "f1", SourceID: n1.ID, TargetID: n2.ID, Type: domain.EdgeHierarchy}))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = s.Begin(ctx)
	sp, _ := tx.Begin(ctx)
	got, err := sp.ClearScope(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClearStats{ObjectsDeleted: 2, AspectsDeleted: 1, RelationsDeleted: 1, PowerNodesDeleted: 2, PowerEdgesDeleted: 1}, got)
	require.NoError(t, sp.Rollback(ctx))
	require.NoError(t, tx.Commit(ctx))

	st, _ := s.Stats(ctx, "f1")
	assert.Equal(t, 2, st.Objects[domain.TypeEquipment], "rolled back clear restores objects")
	down, _ := s.Edges(ctx, a.ID, "", domain.Downstream)
	assert.Len(t, down, 1)

	tx, _ = s.Begin(ctx)
	_, err = tx.ClearScope(ctx, "f1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	st, _ = s.Stats(ctx, "f1")
	assert.Empty(t, st.Objects)
	st, _ = s.Stats(ctx, "f2")
	assert.Equal(t, 1, st.Objects[domain.TypeEquipment])
}

func TestObjectsByCodeAndScopeAspects(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := object("f1", "A"), object("f1", "B")
	seed(t, s, a, b)

	tx, _ := s.Begin(ctx)
	require.NoError(t, tx.InsertAspect(ctx, domain.Aspect{ObjectID: b.ID, AspectType: codes.AspectLocation, FullCode: "++B1", Level: 1}))
	require.NoError(t, tx.InsertAspect(ctx, domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectLocation, FullCode: "++B1", Level: 1}))
	require.NoError(t, tx.InsertAspect(ctx, domain.Aspect{ObjectID: a.ID, AspectType: codes.AspectPower, FullCode: "===DY1", Level: 1}))
	inTx, err := tx.ScopeAspects(ctx, "f1", codes.AspectLocation)
	require.NoError(t, err)
	assert.Len(t, inTx, 2)
	require.NoError(t, tx.Commit(ctx))

	objs, err := s.ObjectsByCode(ctx, "f1", "++B1")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "A", objs[0].RefCode)
	assert.Len(t, objs[0].Aspects, 2)

	all, _ := s.ScopeAspects(ctx, "f1", "")
	assert.Len(t, all, 3)
	none, _ := s.ScopeAspects(ctx, "f2", "")
	assert.Empty(t, none)
}

func TestBeginHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBeginWaitsForWriterUntilContextDone(t *testing.T) {
	s := New()
	held, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Rollback(context.Background()))
	next, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, next.Commit(context.Background()))
}
