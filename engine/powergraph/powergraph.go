// Package powergraph derives the power-distribution graph from the power
// codes of an import. Positional codes become source, bus and feeder nodes;
// rows carrying an asset code collapse onto one device node per asset, so a
// dual-fed device ends up with several incoming power_supply edges.
package powergraph

import (
	"sort"
	"strings"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
)

// Feed is one power code collected from an input row.
type Feed struct {
	Code      string
	AssetCode string
	Name      string
}

// Links resolves the objects that own graph nodes. Either map may be nil.
type Links struct {
	ByCode  map[string]string // power full code -> object id
	ByAsset map[string]string // asset code -> object id
}

// Graph is an arena of nodes addressed by index. Edges refer to nodes by
// index as well; ids and keys are only used at the boundary.
type Graph struct {
	Scope string
	Nodes []domain.PowerNode
	Edges []domain.PowerEdge

	byKey  map[string]int
	edgeID map[string]int
	src    []int // per edge: source node index
	out    [][]int
	in     [][]int
}

func newGraph(scope string) *Graph {
	return &Graph{Scope: scope, byKey: map[string]int{}, edgeID: map[string]int{}}
}

// Build derives the graph for scope. Feeds whose code is not a power code
// are ignored.
func Build(scope string, feeds []Feed, links Links) *Graph {
	g := newGraph(scope)
	for _, f := range sortFeeds(feeds) {
		g.add(f, links)
	}
	return g
}

// sortFeeds orders feeds by code length, then codes without a trailing
// separator first, so ancestors are placed before their variants.
func sortFeeds(feeds []Feed) []Feed {
	out := make([]Feed, len(feeds))
	copy(out, feeds)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.TrimSpace(out[i].Code), strings.TrimSpace(out[j].Code)
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return !strings.HasSuffix(a, codes.Separator) && strings.HasSuffix(b, codes.Separator)
	})
	return out
}

func (g *Graph) add(f Feed, links Links) {
	segments, ok := powerSegments(f.Code)
	if !ok {
		return
	}
	asset := strings.TrimSpace(f.AssetCode)
	name := strings.TrimSpace(f.Name)

	chain := segments
	if asset != "" && len(segments) > 1 {
		chain = segments[:len(segments)-1]
	}

	prefix := codes.PrefixFor(codes.AspectPower)
	prev := -1
	for i, seg := range chain {
		key := prefix + strings.Join(chain[:i+1], codes.Separator)
		leaf := i == len(chain)-1
		n := domain.PowerNode{
			ID:        domain.PowerNodeID(g.Scope, key),
			Scope:     g.Scope,
			Key:       key,
			ShortCode: seg,
			Label:     seg,
			Level:     i + 1,
			NodeType:  nodeType(i+1, leaf && asset == ""),
			ObjectID:  links.ByCode[key],
		}
		if prev >= 0 {
			n.ParentCode = g.Nodes[prev].Key
		}
		if leaf && asset == "" && usableName(name) {
			n.Label = name
		}
		idx := g.upsert(n)
		if prev >= 0 {
			g.link(prev, idx, domain.EdgeHierarchy)
		}
		prev = idx
	}

	if asset == "" {
		return
	}
	label := asset
	if usableName(name) {
		label = name
	}
	key := domain.DeviceKeyPrefix + asset
	dev := g.upsert(domain.PowerNode{
		ID:        domain.PowerNodeID(g.Scope, key),
		Scope:     g.Scope,
		Key:       key,
		ShortCode: asset,
		Label:     label,
		Level:     len(chain) + 1,
		NodeType:  domain.NodeDevice,
		ObjectID:  links.ByAsset[asset],
	})
	g.link(prev, dev, domain.EdgePowerSupply)
}

// powerSegments strips the power prefix and trailing separator and splits
// the rest, dropping empty segments.
func powerSegments(code string) ([]string, bool) {
	code = strings.TrimSpace(code)
	prefix := codes.PrefixFor(codes.AspectPower)
	if !strings.HasPrefix(code, prefix) {
		return nil, false
	}
	body := strings.TrimSuffix(code[len(prefix):], codes.Separator)
	var segs []string
	for _, s := range strings.Split(body, codes.Separator) {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs, len(segs) > 0
}

func nodeType(level int, device bool) string {
	switch {
	case level == 1:
		return domain.NodeSource
	case level == 2:
		return domain.NodeBus
	case device:
		return domain.NodeDevice
	default:
		return domain.NodeFeeder
	}
}

// usableName reports whether a display name can serve as a label. Names
// that are themselves codes are not.
func usableName(name string) bool {
	return name != "" && !codes.LooksLikeCode(name)
}

func (g *Graph) upsert(n domain.PowerNode) int {
	if idx, ok := g.byKey[n.Key]; ok {
		g.Nodes[idx] = g.Nodes[idx].Merge(n)
		return idx
	}
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.byKey[n.Key] = idx
	return idx
}

func (g *Graph) link(from, to int, edgeType string) {
	id := domain.PowerEdgeID(g.Nodes[from].ID, g.Nodes[to].ID, edgeType)
	if _, ok := g.edgeID[id]; ok {
		return
	}
	e := len(g.Edges)
	g.Edges = append(g.Edges, domain.PowerEdge{
		ID:       id,
		Scope:    g.Scope,
		SourceID: g.Nodes[from].ID,
		TargetID: g.Nodes[to].ID,
		Type:     edgeType,
	})
	g.edgeID[id] = e
	g.src = append(g.src, from)
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
}

// Node returns the node stored under key.
func (g *Graph) Node(key string) (domain.PowerNode, bool) {
	idx, ok := g.byKey[key]
	if !ok {
		return domain.PowerNode{}, false
	}
	return g.Nodes[idx], true
}

// OutEdges lists edges leaving the node under key.
func (g *Graph) OutEdges(key string) []domain.PowerEdge {
	idx, ok := g.byKey[key]
	if !ok {
		return nil
	}
	return g.collect(g.out[idx])
}

// InEdges lists edges entering the node under key.
func (g *Graph) InEdges(key string) []domain.PowerEdge {
	idx, ok := g.byKey[key]
	if !ok {
		return nil
	}
	return g.collect(g.in[idx])
}

// Feeders returns the nodes feeding the node under key, in edge order.
func (g *Graph) Feeders(key string) []domain.PowerNode {
	idx, ok := g.byKey[key]
	if !ok {
		return nil
	}
	out := make([]domain.PowerNode, 0, len(g.in[idx]))
	for _, e := range g.in[idx] {
		out = append(out, g.Nodes[g.src[e]])
	}
	return out
}

// Roots returns nodes without incoming edges.
func (g *Graph) Roots() []domain.PowerNode {
	var out []domain.PowerNode
	for i, n := range g.Nodes {
		if len(g.in[i]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) collect(idx []int) []domain.PowerEdge {
	out := make([]domain.PowerEdge, 0, len(idx))
	for _, e := range idx {
		out = append(out, g.Edges[e])
	}
	return out
}
