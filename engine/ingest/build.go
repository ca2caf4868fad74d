package ingest

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/powergraph"
	"github.com/WessleyAI/rdsgraph/engine/sheets"
)

// Built is the object set derived from input rows, ready to persist.
type Built struct {
	TotalRows int
	Explicit  []domain.Object
	Virtual   []domain.Object
	Errors    []domain.RowError
	// Feeds holds every parsed power code of every contributing row,
	// including rows later overwritten by a row with the same ref code, so a
	// device listed under several power paths keeps all of its feeds.
	Feeds []SourcedFeed
}

// SourcedFeed is a power feed tagged with the object that produced it.
type SourcedFeed struct {
	powergraph.Feed
	Ref    string
	Origin domain.Origin
}

// Objects returns explicit objects followed by virtual ones.
func (b Built) Objects() []domain.Object {
	out := make([]domain.Object, 0, len(b.Explicit)+len(b.Virtual))
	out = append(out, b.Explicit...)
	return append(out, b.Virtual...)
}

// buildState is the accumulator threaded through one build.
type buildState struct {
	scope       string
	parser      codes.Parser
	known       map[string]bool // full codes owned by explicit rows
	synthesized map[string]bool // full codes given a virtual object
	byRef       map[string]int  // ref code -> index into explicit
	out         Built
}

// BuildObjects turns rows into explicit objects, coalescing rows that share
// a ref code (last write wins), and synthesizes one virtual object for
// every implied ancestor code that no row defines.
func BuildObjects(scope string, rows []sheets.Row, parser codes.Parser) Built {
	st := &buildState{
		scope:       scope,
		parser:      parser,
		known:       map[string]bool{},
		synthesized: map[string]bool{},
		byRef:       map[string]int{},
	}
	st.out.TotalRows = len(rows)
	for _, r := range rows {
		st.addRow(r)
	}
	for _, o := range st.out.Explicit {
		for _, a := range o.Aspects {
			st.addAncestors(a.FullCode)
		}
	}
	return st.out
}

// RefCode is the asset code when present, else name_sheet_index.
func RefCode(r sheets.Row) string {
	if a := strings.TrimSpace(r.AssetCode); a != "" {
		return a
	}
	if n := strings.TrimSpace(r.Name); n != "" {
		return fmt.Sprintf("%s_%s_%d", n, r.Sheet, r.Index)
	}
	return ""
}

func (st *buildState) addRow(r sheets.Row) {
	ref := RefCode(r)
	if ref == "" {
		if len(r.Codes) > 0 {
			st.out.Errors = append(st.out.Errors, domain.RowError{Sheet: r.Sheet, Row: r.Index, Err: domain.ErrEmptyRow})
		}
		return
	}

	name := strings.TrimSpace(r.Name)
	objectType := domain.Classify(name)
	o := domain.Object{
		ID:         domain.ObjectID(st.scope, objectType, ref),
		Scope:      st.scope,
		RefCode:    ref,
		Name:       name,
		ObjectType: objectType,
		Origin:     domain.OriginExplicit,
		AssetCode:  strings.TrimSpace(r.AssetCode),
		Metadata:   domain.ObjectMetadata{Sheet: r.Sheet, RowIndex: r.Index, Source: "import"},
	}
	for _, t := range codes.AspectTypes() {
		cell := strings.TrimSpace(r.Codes[t])
		if cell == "" {
			continue
		}
		c, err := st.parser.Parse(cell)
		if err != nil {
			st.out.Errors = append(st.out.Errors, domain.RowError{Sheet: r.Sheet, Row: r.Index, Code: cell, Err: err})
			continue
		}
		st.known[c.FullCode] = true
		if !hasAspect(o.Aspects, c) {
			o.Aspects = append(o.Aspects, domain.AspectFromCode(o.ID, c))
		}
	}
	if len(o.Aspects) == 0 {
		return
	}
	for _, a := range o.Aspects {
		if a.AspectType == codes.AspectPower {
			st.out.Feeds = append(st.out.Feeds, SourcedFeed{
				Feed:   powergraph.Feed{Code: a.FullCode, AssetCode: o.AssetCode, Name: o.Name},
				Ref:    ref,
				Origin: domain.OriginExplicit,
			})
		}
	}

	if idx, ok := st.byRef[ref]; ok {
		st.out.Explicit[idx] = o
		return
	}
	st.byRef[ref] = len(st.out.Explicit)
	st.out.Explicit = append(st.out.Explicit, o)
}

// addAncestors synthesizes virtual objects for the missing ancestors of code.
func (st *buildState) addAncestors(code string) {
	chain := st.parser.Expand(code)
	if len(chain) == 0 {
		return
	}
	for _, anc := range chain[:len(chain)-1] {
		if st.known[anc.FullCode] || st.synthesized[anc.FullCode] {
			continue
		}
		st.synthesized[anc.FullCode] = true
		id := domain.ObjectID(st.scope, domain.ObjectTypeSystem, anc.FullCode)
		st.out.Virtual = append(st.out.Virtual, domain.Object{
			ID:         id,
			Scope:      st.scope,
			RefCode:    anc.FullCode,
			Name:       anc.FullCode,
			ObjectType: domain.ObjectTypeSystem,
			Origin:     domain.OriginVirtual,
			Metadata:   domain.ObjectMetadata{Sheet: domain.SystemSheet, RowIndex: -1, Source: "hierarchy"},
			Aspects:    []domain.Aspect{domain.AspectFromCode(id, anc)},
		})
		if anc.AspectType == codes.AspectPower {
			st.out.Feeds = append(st.out.Feeds, SourcedFeed{
				Feed:   powergraph.Feed{Code: anc.FullCode},
				Ref:    anc.FullCode,
				Origin: domain.OriginVirtual,
			})
		}
	}
}

func hasAspect(as []domain.Aspect, c codes.Code) bool {
	for _, a := range as {
		if a.AspectType == c.AspectType && a.FullCode == c.FullCode {
			return true
		}
	}
	return false
}
