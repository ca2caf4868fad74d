package ingest

import (
	"context"
	"fmt"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
)

// Stats counts what scope holds, by object, aspect, relation and node type.
func (im *Importer) Stats(ctx context.Context, scope string) (domain.ScopeStats, error) {
	if err := domain.ValidateScope(scope); err != nil {
		return domain.ScopeStats{}, err
	}
	return im.deps.Store.Stats(ctx, scope)
}

// Tree lists the aspects of scope ordered by aspect type, level and code.
// An empty aspectType lists every dimension; maxLevel <= 0 means no limit.
// HasChildren considers every level, not only the listed ones.
func (im *Importer) Tree(ctx context.Context, scope string, aspectType codes.AspectType, maxLevel int) ([]domain.TreeEntry, error) {
	if err := domain.ValidateScope(scope); err != nil {
		return nil, err
	}
	if aspectType != "" && !codes.ValidAspectType(aspectType) {
		return nil, domain.NewValidationError("aspect_type", string(aspectType), domain.ErrUnknownAspect)
	}
	aspects, err := im.deps.Store.ScopeAspects(ctx, scope, aspectType)
	if err != nil {
		return nil, err
	}

	parents := map[string]bool{}
	for _, a := range aspects {
		if a.ParentCode != "" {
			parents[string(a.AspectType)+"|"+a.ParentCode] = true
		}
	}
	out := make([]domain.TreeEntry, 0, len(aspects))
	for _, a := range aspects {
		if maxLevel > 0 && a.Level > maxLevel {
			continue
		}
		out = append(out, domain.TreeEntry{
			Code:        a.FullCode,
			ParentCode:  a.ParentCode,
			AspectType:  a.AspectType,
			Level:       a.Level,
			Name:        a.Name,
			ObjectID:    a.ObjectID,
			HasChildren: parents[string(a.AspectType)+"|"+a.FullCode],
		})
	}
	return out, nil
}

// LookupResult lists the objects owning one code.
type LookupResult struct {
	Code    codes.Code     `json:"code"`
	Objects []LookupObject `json:"objects"`
}

// LookupObject is an owning object with its codes grouped by aspect type.
type LookupObject struct {
	ID         string                        `json:"id"`
	RefCode    string                        `json:"ref_code"`
	Name       string                        `json:"name"`
	ObjectType string                        `json:"object_type"`
	Origin     domain.Origin                 `json:"origin"`
	Aspects    map[codes.AspectType][]string `json:"aspects"`
}

// Lookup finds the objects in scope that carry code. The code is parsed
// first so any accepted spelling of it matches.
func (im *Importer) Lookup(ctx context.Context, scope, code string) (LookupResult, error) {
	if err := domain.ValidateScope(scope); err != nil {
		return LookupResult{}, err
	}
	c, err := im.deps.Parser.Parse(code)
	if err != nil {
		return LookupResult{}, err
	}
	objs, err := im.deps.Store.ObjectsByCode(ctx, scope, c.FullCode)
	if err != nil {
		return LookupResult{}, fmt.Errorf("lookup %s: %w", c.FullCode, err)
	}
	res := LookupResult{Code: c, Objects: make([]LookupObject, 0, len(objs))}
	for _, o := range objs {
		lo := LookupObject{
			ID:         o.ID,
			RefCode:    o.RefCode,
			Name:       o.Name,
			ObjectType: o.ObjectType,
			Origin:     o.Origin,
			Aspects:    map[codes.AspectType][]string{},
		}
		for _, a := range o.Aspects {
			lo.Aspects[a.AspectType] = append(lo.Aspects[a.AspectType], a.FullCode)
		}
		res.Objects = append(res.Objects, lo)
	}
	return res, nil
}
