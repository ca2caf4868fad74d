package ingest

import (
	"sort"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/store"
)

// DeriveRelations links owners of power aspects: wherever one aspect's
// parent code is another aspect's full code, the parent's owner feeds the
// child's owner. Self-loops are skipped and duplicates collapse.
func DeriveRelations(aspects []store.OwnedAspect) []domain.Relation {
	owners := map[string][]string{}
	for _, a := range aspects {
		if a.AspectType == codes.AspectPower {
			owners[a.FullCode] = append(owners[a.FullCode], a.ObjectID)
		}
	}

	seen := map[string]bool{}
	var out []domain.Relation
	for _, a := range aspects {
		if a.AspectType != codes.AspectPower || a.ParentCode == "" {
			continue
		}
		for _, parent := range owners[a.ParentCode] {
			r, err := domain.NewRelation(parent, a.ObjectID, domain.RelFeedsPowerTo)
			if err != nil || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
