package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"github.com/jackc/pgx/v5"
)

type tx struct {
	tx pgx.Tx
}

// Begin opens a savepoint.
func (t *tx) Begin(ctx context.Context) (store.Tx, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: savepoint: %w", err)
	}
	return &tx{tx: sp}, nil
}

func (t *tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (t *tx) UpsertObject(ctx context.Context, o domain.Object) error {
	if err := domain.ValidateObject(o); err != nil {
		return err
	}
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, upsertObjectSQL,
		o.ID, o.Scope, o.RefCode, o.Name, o.ObjectType, string(o.Origin), o.AssetCode, meta)
	return err
}

func (t *tx) InsertAspect(ctx context.Context, a domain.Aspect) error {
	_, err := t.tx.Exec(ctx, insertAspectSQL,
		a.ObjectID, string(a.AspectType), a.FullCode, a.Prefix, a.ParentCode, a.Level)
	return err
}

func (t *tx) InsertRelation(ctx context.Context, r domain.Relation) error {
	if err := domain.ValidateRelation(r); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, insertRelationSQL, r.ID, r.SourceID, r.TargetID, r.Type)
	return err
}

func (t *tx) UpsertPowerNode(ctx context.Context, n domain.PowerNode) error {
	_, err := t.tx.Exec(ctx, upsertPowerNodeSQL,
		n.ID, n.Scope, n.Key, n.ShortCode, n.ParentCode, n.Label, n.Level, n.NodeType, nullable(n.ObjectID))
	return err
}

func (t *tx) InsertPowerEdge(ctx context.Context, e domain.PowerEdge) error {
	_, err := t.tx.Exec(ctx, insertPowerEdgeSQL, e.ID, e.Scope, e.SourceID, e.TargetID, e.Type)
	return err
}

func (t *tx) ScopeAspects(ctx context.Context, scope string, aspectType codes.AspectType) ([]store.OwnedAspect, error) {
	return readScopeAspects(ctx, t.tx, scope, aspectType)
}

func (t *tx) ClearScope(ctx context.Context, scope string) (domain.ClearStats, error) {
	var st domain.ClearStats
	for _, step := range []struct {
		sql string
		n   *int
	}{
		{deleteRelationsSQL, &st.RelationsDeleted},
		{deleteAspectsSQL, &st.AspectsDeleted},
		{deleteObjectsSQL, &st.ObjectsDeleted},
		{deletePowerEdgesSQL, &st.PowerEdgesDeleted},
		{deletePowerNodesSQL, &st.PowerNodesDeleted},
	} {
		tag, err := t.tx.Exec(ctx, step.sql, scope)
		if err != nil {
			return st, fmt.Errorf("pgstore: clear %s: %w", scope, err)
		}
		*step.n = int(tag.RowsAffected())
	}
	return st, nil
}
