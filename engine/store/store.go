// Package store defines persistence for imported objects, their aspects and
// relations, and the power-distribution graph.
package store

import (
	"context"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
)

// Store is a transactional backend.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is a write transaction. Begin on a Tx opens a nested transaction
// (a savepoint) whose rollback discards only its own writes.
type Tx interface {
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// UpsertObject inserts or refreshes an object row. Aspects on o are
	// ignored; write them with InsertAspect.
	UpsertObject(ctx context.Context, o domain.Object) error
	// InsertAspect is a no-op when the aspect already exists.
	InsertAspect(ctx context.Context, a domain.Aspect) error
	InsertRelation(ctx context.Context, r domain.Relation) error
	UpsertPowerNode(ctx context.Context, n domain.PowerNode) error
	InsertPowerEdge(ctx context.Context, e domain.PowerEdge) error

	// ScopeAspects reads through the transaction, so it sees uncommitted writes.
	ScopeAspects(ctx context.Context, scope string, aspectType codes.AspectType) ([]OwnedAspect, error)
	ClearScope(ctx context.Context, scope string) (domain.ClearStats, error)
}

// Reader serves committed state.
type Reader interface {
	// Object returns the object with its aspects, or domain.ErrNotFound.
	Object(ctx context.Context, id string) (domain.Object, error)
	// Edges lists relations leaving (Downstream) or entering (Upstream) id.
	// An empty relType matches every type.
	Edges(ctx context.Context, id, relType string, dir domain.Direction) ([]domain.Relation, error)
	ScopeAspects(ctx context.Context, scope string, aspectType codes.AspectType) ([]OwnedAspect, error)
	ObjectsByCode(ctx context.Context, scope, code string) ([]domain.Object, error)
	PowerGraph(ctx context.Context, scope string) ([]domain.PowerNode, []domain.PowerEdge, error)
	Stats(ctx context.Context, scope string) (domain.ScopeStats, error)
}

// OwnedAspect is an aspect joined with its owning object. An empty aspect
// type in a query matches every type.
type OwnedAspect struct {
	domain.Aspect
	RefCode    string `json:"ref_code"`
	Name       string `json:"name"`
	ObjectType string `json:"object_type"`
}

// NewScopeStats returns stats with every map allocated.
func NewScopeStats(scope string) domain.ScopeStats {
	return domain.ScopeStats{
		Scope:      scope,
		Objects:    map[string]int{},
		Aspects:    map[string]int{},
		Relations:  map[string]int{},
		PowerNodes: map[string]int{},
		PowerEdges: map[string]int{},
	}
}
