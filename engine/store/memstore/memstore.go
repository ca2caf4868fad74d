// Package memstore is an in-process store.Store. Writers are serialized;
// readers see the last committed state.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"golang.org/x/sync/semaphore"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memstore: transaction already finished")

// Store holds everything in maps.
type Store struct {
	writer *semaphore.Weighted

	mu    sync.RWMutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{writer: semaphore.NewWeighted(1), state: newState()}
}

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Begin starts a top-level transaction, blocking while another is open or
// until ctx is done.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &tx{store: s, work: s.snapshot().clone()}, nil
}

func (s *Store) Object(_ context.Context, id string) (domain.Object, error) {
	return s.snapshot().object(id)
}

func (s *Store) Edges(_ context.Context, id, relType string, dir domain.Direction) ([]domain.Relation, error) {
	return s.snapshot().relationEdges(id, relType, dir), nil
}

func (s *Store) ScopeAspects(_ context.Context, scope string, aspectType codes.AspectType) ([]store.OwnedAspect, error) {
	return s.snapshot().scopeAspects(scope, aspectType), nil
}

func (s *Store) ObjectsByCode(_ context.Context, scope, code string) ([]domain.Object, error) {
	st := s.snapshot()
	seen := map[string]bool{}
	var out []domain.Object
	for _, a := range st.scopeAspects(scope, "") {
		if a.FullCode != code || seen[a.ObjectID] {
			continue
		}
		seen[a.ObjectID] = true
		o, err := st.object(a.ObjectID)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefCode < out[j].RefCode })
	return out, nil
}

func (s *Store) PowerGraph(_ context.Context, scope string) ([]domain.PowerNode, []domain.PowerEdge, error) {
	st := s.snapshot()
	var nodes []domain.PowerNode
	for _, n := range st.nodes {
		if n.Scope == scope {
			nodes = append(nodes, n)
		}
	}
	var edges []domain.PowerEdge
	for _, e := range st.edges {
		if e.Scope == scope {
			edges = append(edges, e)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Level != nodes[j].Level {
			return nodes[i].Level < nodes[j].Level
		}
		return nodes[i].Key < nodes[j].Key
	})
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return nodes, edges, nil
}

func (s *Store) Stats(_ context.Context, scope string) (domain.ScopeStats, error) {
	st := s.snapshot()
	out := store.NewScopeStats(scope)
	for _, o := range st.objects {
		if o.Scope == scope {
			out.Objects[o.ObjectType]++
		}
	}
	for _, a := range st.scopeAspects(scope, "") {
		out.Aspects[string(a.AspectType)]++
	}
	for _, r := range st.relations {
		if src, ok := st.objects[r.SourceID]; ok && src.Scope == scope {
			out.Relations[r.Type]++
		}
	}
	for _, n := range st.nodes {
		if n.Scope == scope {
			out.PowerNodes[n.NodeType]++
		}
	}
	for _, e := range st.edges {
		if e.Scope == scope {
			out.PowerEdges[e.Type]++
		}
	}
	return out, nil
}

// tx writes to a private copy of the state. Nested transactions share the
// copy and keep an undo log so a rollback can restore what they changed.
type tx struct {
	store  *Store
	parent *tx
	work   *state
	undo   []func()
	done   bool
}

func (t *tx) Begin(ctx context.Context) (store.Tx, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: t.store, parent: t, work: t.work}, nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if t.parent != nil {
		t.parent.undo = append(t.parent.undo, t.undo...)
		return nil
	}
	t.store.mu.Lock()
	t.store.state = t.work
	t.store.mu.Unlock()
	t.store.writer.Release(1)
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if t.parent != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return nil
	}
	t.store.writer.Release(1)
	return nil
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (t *tx) UpsertObject(ctx context.Context, o domain.Object) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if err := domain.ValidateObject(o); err != nil {
		return err
	}
	o.Aspects = nil
	t.record(t.work.putObject(o))
	return nil
}

func (t *tx) InsertAspect(ctx context.Context, a domain.Aspect) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.work.objects[a.ObjectID]; !ok {
		return domain.NewValidationError("object_id", a.ObjectID, domain.ErrNotFound)
	}
	t.record(t.work.putAspect(a))
	return nil
}

func (t *tx) InsertRelation(ctx context.Context, r domain.Relation) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if err := domain.ValidateRelation(r); err != nil {
		return err
	}
	for _, id := range []string{r.SourceID, r.TargetID} {
		if _, ok := t.work.objects[id]; !ok {
			return domain.NewValidationError("object_id", id, domain.ErrNotFound)
		}
	}
	t.record(t.work.putRelation(r))
	return nil
}

func (t *tx) UpsertPowerNode(ctx context.Context, n domain.PowerNode) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if prev, ok := t.work.nodes[n.ID]; ok {
		n = prev.Merge(n)
	}
	t.record(t.work.putNode(n))
	return nil
}

func (t *tx) InsertPowerEdge(ctx context.Context, e domain.PowerEdge) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	for _, id := range []string{e.SourceID, e.TargetID} {
		if _, ok := t.work.nodes[id]; !ok {
			return domain.NewValidationError("node_id", id, domain.ErrNotFound)
		}
	}
	t.record(t.work.putEdge(e))
	return nil
}

func (t *tx) ScopeAspects(ctx context.Context, scope string, aspectType codes.AspectType) ([]store.OwnedAspect, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return t.work.scopeAspects(scope, aspectType), nil
}

func (t *tx) ClearScope(ctx context.Context, scope string) (domain.ClearStats, error) {
	if err := t.check(ctx); err != nil {
		return domain.ClearStats{}, err
	}
	stats, undo := t.work.clearScope(scope)
	t.record(undo)
	return stats, nil
}

func (t *tx) record(undo func()) {
	if t.parent != nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
}

var _ store.Store = (*Store)(nil)
