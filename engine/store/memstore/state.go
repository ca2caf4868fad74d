package memstore

import (
	"sort"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/store"
)

type aspectKey struct {
	objectID   string
	aspectType codes.AspectType
	fullCode   string
}

type state struct {
	objects   map[string]domain.Object
	aspects   map[aspectKey]domain.Aspect
	relations map[string]domain.Relation
	nodes     map[string]domain.PowerNode
	edges     map[string]domain.PowerEdge

	// relation adjacency: object id -> relation ids
	out map[string]map[string]struct{}
	in  map[string]map[string]struct{}
}

func newState() *state {
	return &state{
		objects:   map[string]domain.Object{},
		aspects:   map[aspectKey]domain.Aspect{},
		relations: map[string]domain.Relation{},
		nodes:     map[string]domain.PowerNode{},
		edges:     map[string]domain.PowerEdge{},
		out:       map[string]map[string]struct{}{},
		in:        map[string]map[string]struct{}{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.objects {
		c.objects[k] = v
	}
	for k, v := range s.aspects {
		c.aspects[k] = v
	}
	for k, v := range s.relations {
		c.relations[k] = v
	}
	for k, v := range s.nodes {
		c.nodes[k] = v
	}
	for k, v := range s.edges {
		c.edges[k] = v
	}
	for k, v := range s.out {
		c.out[k] = copySet(v)
	}
	for k, v := range s.in {
		c.in[k] = copySet(v)
	}
	return c
}

func copySet(m map[string]struct{}) map[string]struct{} {
	c := make(map[string]struct{}, len(m))
	for k := range m {
		c[k] = struct{}{}
	}
	return c
}

// put* helpers return a closure that undoes the write.

func (s *state) putObject(o domain.Object) func() {
	prev, had := s.objects[o.ID]
	s.objects[o.ID] = o
	return func() {
		if had {
			s.objects[o.ID] = prev
		} else {
			delete(s.objects, o.ID)
		}
	}
}

func (s *state) putAspect(a domain.Aspect) func() {
	k := aspectKey{a.ObjectID, a.AspectType, a.FullCode}
	if _, ok := s.aspects[k]; ok {
		return nil
	}
	s.aspects[k] = a
	return func() { delete(s.aspects, k) }
}

func (s *state) putRelation(r domain.Relation) func() {
	if _, ok := s.relations[r.ID]; ok {
		return nil
	}
	s.relations[r.ID] = r
	addLink(s.out, r.SourceID, r.ID)
	addLink(s.in, r.TargetID, r.ID)
	return func() { s.dropRelation(r) }
}

func (s *state) dropRelation(r domain.Relation) {
	delete(s.relations, r.ID)
	delete(s.out[r.SourceID], r.ID)
	delete(s.in[r.TargetID], r.ID)
}

func addLink(idx map[string]map[string]struct{}, from, relID string) {
	set, ok := idx[from]
	if !ok {
		set = map[string]struct{}{}
		idx[from] = set
	}
	set[relID] = struct{}{}
}

func (s *state) putNode(n domain.PowerNode) func() {
	prev, had := s.nodes[n.ID]
	s.nodes[n.ID] = n
	return func() {
		if had {
			s.nodes[n.ID] = prev
		} else {
			delete(s.nodes, n.ID)
		}
	}
}

func (s *state) putEdge(e domain.PowerEdge) func() {
	if _, ok := s.edges[e.ID]; ok {
		return nil
	}
	s.edges[e.ID] = e
	return func() { delete(s.edges, e.ID) }
}

// clearScope deletes relations, aspects, objects, power edges and power
// nodes of scope, in that order.
func (s *state) clearScope(scope string) (domain.ClearStats, func()) {
	var stats domain.ClearStats
	var undo []func()

	inScope := map[string]bool{}
	for id, o := range s.objects {
		if o.Scope == scope {
			inScope[id] = true
		}
	}
	for _, r := range s.relations {
		if inScope[r.SourceID] || inScope[r.TargetID] {
			s.dropRelation(r)
			undo = append(undo, func() { s.putRelation(r) })
			stats.RelationsDeleted++
		}
	}
	for k, a := range s.aspects {
		if inScope[a.ObjectID] {
			delete(s.aspects, k)
			undo = append(undo, func() { s.aspects[k] = a })
			stats.AspectsDeleted++
		}
	}
	for id := range inScope {
		o := s.objects[id]
		delete(s.objects, id)
		undo = append(undo, func() { s.objects[o.ID] = o })
		stats.ObjectsDeleted++
	}
	for id, e := range s.edges {
		if e.Scope == scope {
			delete(s.edges, id)
			undo = append(undo, func() { s.edges[e.ID] = e })
			stats.PowerEdgesDeleted++
		}
	}
	for id, n := range s.nodes {
		if n.Scope == scope {
			delete(s.nodes, id)
			undo = append(undo, func() { s.nodes[n.ID] = n })
			stats.PowerNodesDeleted++
		}
	}
	return stats, func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
}

func (s *state) object(id string) (domain.Object, error) {
	o, ok := s.objects[id]
	if !ok {
		return domain.Object{}, domain.ErrNotFound
	}
	for _, a := range s.aspects {
		if a.ObjectID == id {
			o.Aspects = append(o.Aspects, a)
		}
	}
	sortAspects(o.Aspects)
	return o, nil
}

func (s *state) relationEdges(id, relType string, dir domain.Direction) []domain.Relation {
	idx := s.out
	if dir == domain.Upstream {
		idx = s.in
	}
	var out []domain.Relation
	for relID := range idx[id] {
		r := s.relations[relID]
		if relType == "" || r.Type == relType {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) scopeAspects(scope string, aspectType codes.AspectType) []store.OwnedAspect {
	var out []store.OwnedAspect
	for _, a := range s.aspects {
		if aspectType != "" && a.AspectType != aspectType {
			continue
		}
		o, ok := s.objects[a.ObjectID]
		if !ok || o.Scope != scope {
			continue
		}
		out = append(out, store.OwnedAspect{Aspect: a, RefCode: o.RefCode, Name: o.Name, ObjectType: o.ObjectType})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AspectType != b.AspectType {
			return a.AspectType < b.AspectType
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.FullCode != b.FullCode {
			return a.FullCode < b.FullCode
		}
		return a.RefCode < b.RefCode
	})
	return out
}

func sortAspects(as []domain.Aspect) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].AspectType != as[j].AspectType {
			return as[i].AspectType < as[j].AspectType
		}
		return as[i].FullCode < as[j].FullCode
	})
}
