// Package topology answers supply-chain questions over persisted objects and
// relations: who feeds a node, what a node feeds, and how two nodes connect.
// Every traversal is an iterative breadth-first search with a visited set
// and a depth cap, so malformed cyclic data still terminates.
package topology

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/pkg/metrics"
)

// DefaultMaxDepth bounds every traversal.
const DefaultMaxDepth = 20

// Graph is the read side a traversal needs. Object returns
// domain.ErrNotFound for unknown ids.
type Graph interface {
	Object(ctx context.Context, id string) (domain.Object, error)
	Edges(ctx context.Context, id, relType string, dir domain.Direction) ([]domain.Relation, error)
}

// Options configures a Traverser.
type Options struct {
	MaxDepth int
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Node is one object reached by a traversal. Level is the number of edges
// from the start node.
type Node struct {
	ID         string `json:"id"`
	RefCode    string `json:"ref_code"`
	Name       string `json:"name"`
	ObjectType string `json:"object_type"`
	Level      int    `json:"level"`
}

// PathResult is the outcome of FindPath. Length counts edges.
type PathResult struct {
	Found  bool   `json:"found"`
	Length int    `json:"length"`
	Nodes  []Node `json:"nodes"`
}

// Traverser runs bounded traversals against a Graph.
type Traverser struct {
	graph    Graph
	maxDepth int
	logger   *slog.Logger
	metrics  *metrics.Registry
}

// New creates a Traverser.
func New(g Graph, opts Options) *Traverser {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Traverser{graph: g, maxDepth: opts.MaxDepth, logger: opts.Logger, metrics: opts.Metrics}
}

// Upstream lists the start node and everything feeding it, root-most first.
func (t *Traverser) Upstream(ctx context.Context, start, relType string) ([]Node, error) {
	return t.Trace(ctx, start, domain.Upstream, relType)
}

// Downstream lists the start node and everything it feeds, nearest first.
func (t *Traverser) Downstream(ctx context.Context, start, relType string) ([]Node, error) {
	return t.Trace(ctx, start, domain.Downstream, relType)
}

// Trace walks from start in dir. The start node is included at level 0; an
// unknown start yields an empty result. An empty relType means
// feeds_power_to.
func (t *Traverser) Trace(ctx context.Context, start string, dir domain.Direction, relType string) ([]Node, error) {
	if dir != domain.Upstream && dir != domain.Downstream {
		return nil, domain.NewValidationError("direction", string(dir), ErrDirection)
	}
	relType = relationOrDefault(relType)
	t.count("trace", string(dir))

	root, err := t.graph.Object(ctx, start)
	if errors.Is(err, domain.ErrNotFound) {
		return []Node{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []Node{nodeOf(root, 0)}
	seen := map[string]bool{start: true}
	frontier := []string{start}
	for depth := 1; depth <= t.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			rels, err := t.graph.Edges(ctx, id, relType, dir)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				other := r.TargetID
				if dir == domain.Upstream {
					other = r.SourceID
				}
				if seen[other] {
					continue
				}
				seen[other] = true
				o, err := t.graph.Object(ctx, other)
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				out = append(out, nodeOf(o, depth))
				next = append(next, other)
			}
		}
		if depth == t.maxDepth && len(next) > 0 {
			t.logger.Debug("traversal hit depth cap", "start", start, "direction", dir, "depth", depth)
		}
		frontier = next
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			if dir == domain.Upstream {
				return out[i].Level > out[j].Level
			}
			return out[i].Level < out[j].Level
		}
		return out[i].RefCode < out[j].RefCode
	})
	return out, nil
}

// FindPath searches forward from source for target. Each frontier entry
// carries its path; a node already on that path is never revisited, and a
// node reached once is not expanded again, so the first path found is a
// shortest one. No path yields Found=false.
func (t *Traverser) FindPath(ctx context.Context, source, target, relType string) (PathResult, error) {
	relType = relationOrDefault(relType)
	t.count("path", "forward")
	notFound := PathResult{Nodes: []Node{}}

	if _, err := t.graph.Object(ctx, source); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound, nil
		}
		return PathResult{}, err
	}
	if source == target {
		return t.resolve(ctx, []string{source})
	}

	reached := map[string]bool{source: true}
	queue := [][]string{{source}}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if len(path)-1 >= t.maxDepth {
			continue
		}
		rels, err := t.graph.Edges(ctx, path[len(path)-1], relType, domain.Downstream)
		if err != nil {
			return PathResult{}, err
		}
		for _, r := range rels {
			next := r.TargetID
			if reached[next] || onPath(path, next) {
				continue
			}
			reached[next] = true
			extended := make([]string, len(path)+1)
			copy(extended, path)
			extended[len(path)] = next
			if next == target {
				return t.resolve(ctx, extended)
			}
			queue = append(queue, extended)
		}
	}
	return notFound, nil
}

func (t *Traverser) resolve(ctx context.Context, ids []string) (PathResult, error) {
	res := PathResult{Found: true, Length: len(ids) - 1, Nodes: make([]Node, 0, len(ids))}
	for i, id := range ids {
		o, err := t.graph.Object(ctx, id)
		if err != nil {
			return PathResult{}, err
		}
		res.Nodes = append(res.Nodes, nodeOf(o, i))
	}
	return res, nil
}

func (t *Traverser) count(kind, dir string) {
	if t.metrics == nil {
		return
	}
	t.metrics.Counter(metrics.WithLabels("rdsgraph_traversals_total", "kind", kind, "direction", dir),
		"Topology traversals served.").Inc()
}

func onPath(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func nodeOf(o domain.Object, level int) Node {
	return Node{ID: o.ID, RefCode: o.RefCode, Name: o.Name, ObjectType: o.ObjectType, Level: level}
}

func relationOrDefault(relType string) string {
	if relType == "" {
		return domain.RelFeedsPowerTo
	}
	return relType
}
