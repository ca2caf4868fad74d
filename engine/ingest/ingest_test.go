package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/powergraph"
	"github.com/WessleyAI/rdsgraph/engine/sheets"
	"github.com/WessleyAI/rdsgraph/engine/store"
	"github.com/WessleyAI/rdsgraph/engine/store/memstore"
	"github.com/WessleyAI/rdsgraph/engine/topology"
	"github.com/WessleyAI/rdsgraph/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// flakyStore fails selected writes so error isolation can be observed.
type flakyStore struct {
	*memstore.Store
	failRefs  map[string]bool
	failNodes bool
}

func (s *flakyStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{Tx: tx, s: s}, nil
}

type flakyTx struct {
	store.Tx
	s *flakyStore
}

func (t *flakyTx) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := t.Tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{Tx: tx, s: t.s}, nil
}

var errBoom = errors.New("boom")

func (t *flakyTx) UpsertObject(ctx context.Context, o domain.Object) error {
	if t.s.failRefs[o.RefCode] {
		return errBoom
	}
	return t.Tx.UpsertObject(ctx, o)
}

func (t *flakyTx) UpsertPowerNode(ctx context.Context, n domain.PowerNode) error {
	if t.s.failNodes {
		return errBoom
	}
	return t.Tx.UpsertPowerNode(ctx, n)
}

type recordingProjector struct {
	graphs  []*powergraph.Graph
	dropped []string
	err     error
}

func (p *recordingProjector) ProjectPowerGraph(_ context.Context, g *powergraph.Graph) error {
	p.graphs = append(p.graphs, g)
	return p.err
}

func (p *recordingProjector) DropScope(_ context.Context, scope string) error {
	p.dropped = append(p.dropped, scope)
	return p.err
}

type recordingNotifier struct {
	scopes []string
	stats  []domain.ImportStats
	err    error
}

func (n *recordingNotifier) ImportCompleted(_ context.Context, scope string, st domain.ImportStats) error {
	n.scopes = append(n.scopes, scope)
	n.stats = append(n.stats, st)
	return n.err
}

func newImporter(s store.Store) *Importer {
	return New(Deps{Store: s, Parser: codes.Default, Logger: quiet})
}

var withRelations = Options{CreateRelations: true}

func TestImport(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	im := newImporter(mem)

	st, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	assert.Equal(t, 6, st.TotalRows)
	assert.Equal(t, 3, st.ParsedObjects)
	assert.Equal(t, 6, st.ObjectsCreated)
	assert.Equal(t, 3, st.VirtualObjectsCreated)
	assert.Equal(t, 7, st.AspectsCreated)
	assert.Equal(t, 4, st.RelationsCreated)
	assert.Equal(t, 7, st.PowerNodesCreated)
	assert.Equal(t, 6, st.PowerEdgesCreated)
	assert.Len(t, st.Errors, 2)

	ss, err := im.Stats(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{domain.TypePanel: 1, domain.TypeEquipment: 2, domain.ObjectTypeSystem: 3}, ss.Objects)
	assert.Equal(t, map[string]int{"power": 6, "function": 1}, ss.Aspects)
	assert.Equal(t, map[string]int{domain.RelFeedsPowerTo: 4}, ss.Relations)
	assert.Equal(t, map[string]int{domain.NodeSource: 2, domain.NodeBus: 2, domain.NodeDevice: 3}, ss.PowerNodes)
	assert.Equal(t, map[string]int{domain.EdgeHierarchy: 3, domain.EdgePowerSupply: 3}, ss.PowerEdges)
}

func TestImport_DualFedDevice(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	_, err := newImporter(mem).Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	nodes, edges, err := mem.PowerGraph(ctx, "f1")
	require.NoError(t, err)
	byID := map[string]domain.PowerNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	dev := domain.PowerNodeID("f1", domain.DeviceKeyPrefix+"P-1")
	require.Contains(t, byID, dev)
	assert.Equal(t, "循环水泵", byID[dev].Label)
	assert.Equal(t, domain.ObjectID("f1", domain.TypeEquipment, "P-1"), byID[dev].ObjectID)

	var feeders []string
	for _, e := range edges {
		if e.TargetID == dev {
			assert.Equal(t, domain.EdgePowerSupply, e.Type)
			feeders = append(feeders, byID[e.SourceID].Key)
		}
	}
	assert.ElementsMatch(t, []string{"===DY1.AH1", "===DY2.AH3"}, feeders)

	// the lighting circuit has no asset code so its leaf is a positional device
	h02 := byID[domain.PowerNodeID("f1", "===DY1.AH1.H02")]
	assert.Equal(t, domain.NodeDevice, h02.NodeType)
	assert.Equal(t, "照明", h02.Label)
	assert.Equal(t, "===DY1.AH1", h02.ParentCode)
}

func TestImport_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	im := newImporter(mem)

	first, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	before, err := im.Stats(ctx, "f1")
	require.NoError(t, err)

	second, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	after, err := im.Stats(ctx, "f1")
	require.NoError(t, err)

	assert.Equal(t, first.ObjectsCreated, second.ObjectsCreated)
	assert.Equal(t, first.PowerNodesCreated, second.PowerNodesCreated)
	assert.Equal(t, before, after)
}

func TestImport_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	im := newImporter(mem)

	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	_, err = im.Import(ctx, "f2", sampleRows()[:1], withRelations)
	require.NoError(t, err)

	f1, _ := im.Stats(ctx, "f1")
	f2, _ := im.Stats(ctx, "f2")
	assert.Equal(t, 3, f1.Objects[domain.ObjectTypeSystem])
	assert.Equal(t, 1, f2.Objects[domain.ObjectTypeSystem])
	assert.NotEqual(t, domain.ObjectID("f1", domain.TypePanel, "AH1"), domain.ObjectID("f2", domain.TypePanel, "AH1"))
}

func TestImport_WithoutRelations(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	st, err := newImporter(mem).Import(ctx, "f1", sampleRows(), Options{})
	require.NoError(t, err)
	assert.Zero(t, st.RelationsCreated)
	assert.Equal(t, 7, st.PowerNodesCreated)
}

func TestImport_ClearExisting(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	im := newImporter(mem)

	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	st, err := im.Import(ctx, "f1", []sheets.Row{
		row(0, "柜", "X1", "power", "===Z1.X1"),
	}, Options{ClearExisting: true, CreateRelations: true})
	require.NoError(t, err)
	assert.Equal(t, 2, st.ObjectsCreated)

	ss, _ := im.Stats(ctx, "f1")
	assert.Equal(t, map[string]int{domain.TypePanel: 1, domain.ObjectTypeSystem: 1}, ss.Objects)
	assert.Equal(t, map[string]int{domain.RelFeedsPowerTo: 1}, ss.Relations)
}

func TestImport_InvalidScope(t *testing.T) {
	_, err := newImporter(memstore.New()).Import(context.Background(), "bad scope!", nil, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestImport_RowFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memstore.New(), failRefs: map[string]bool{"P-1": true}}
	im := newImporter(fs)

	st, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	assert.Equal(t, 5, st.ObjectsCreated)
	require.Len(t, st.Errors, 3)
	last := st.Errors[2]
	assert.Equal(t, "P-1", last.Code)
	assert.Equal(t, 2, last.Row)
	assert.ErrorIs(t, last, errBoom)

	_, err = fs.Object(ctx, domain.ObjectID("f1", domain.TypeEquipment, "P-1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	nodes, _, err := fs.PowerGraph(ctx, "f1")
	require.NoError(t, err)
	for _, n := range nodes {
		assert.NotEqual(t, domain.DeviceKeyPrefix+"P-1", n.Key)
	}
}

func TestImport_FatalFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memstore.New(), failNodes: true}
	reg := metrics.New()
	notifier := &recordingNotifier{}
	im := New(Deps{Store: fs, Parser: codes.Default, Logger: quiet, Metrics: reg, Notifier: notifier})

	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "f1")

	ss, err := im.Stats(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, ss.Objects)
	assert.Empty(t, ss.Relations)
	assert.Empty(t, notifier.scopes)
	assert.Contains(t, reg.Render(), "rdsgraph_import_failures_total 1")
}

func TestImport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newImporter(memstore.New()).Import(ctx, "f1", sampleRows(), withRelations)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImport_SideEffects(t *testing.T) {
	ctx := context.Background()
	proj := &recordingProjector{}
	notifier := &recordingNotifier{}
	reg := metrics.New()
	im := New(Deps{Store: memstore.New(), Parser: codes.Default, Logger: quiet, Projector: proj, Notifier: notifier, Metrics: reg})

	st, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	require.Len(t, proj.graphs, 1)
	assert.Len(t, proj.graphs[0].Nodes, 7)
	assert.Equal(t, []string{"f1"}, notifier.scopes)
	assert.Equal(t, st.ObjectsCreated, notifier.stats[0].ObjectsCreated)

	out := reg.Render()
	assert.Contains(t, out, "rdsgraph_imports_total 1")
	assert.Contains(t, out, "rdsgraph_import_objects_total 6")
	assert.Contains(t, out, "rdsgraph_import_row_errors_total 2")
}

func TestImport_SideEffectFailuresAreSoft(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	proj := &recordingProjector{err: errors.New("neo4j down")}
	notifier := &recordingNotifier{err: errors.New("nats down")}
	im := New(Deps{Store: mem, Parser: codes.Default, Logger: quiet, Projector: proj, Notifier: notifier})

	st, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)
	require.Len(t, st.Errors, 4)
	for _, e := range st.Errors[2:] {
		assert.Equal(t, domain.SystemSheet, e.Sheet)
		assert.Equal(t, -1, e.Row)
	}
	assert.Contains(t, st.Errors[2].Error(), "projection")
	assert.Contains(t, st.Errors[3].Error(), "notify")

	ss, _ := im.Stats(ctx, "f1")
	assert.Equal(t, 6, ss.Objects[domain.TypePanel]+ss.Objects[domain.TypeEquipment]+ss.Objects[domain.ObjectTypeSystem])
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	proj := &recordingProjector{}
	im := New(Deps{Store: memstore.New(), Parser: codes.Default, Logger: quiet, Projector: proj})

	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	cs, err := im.Clear(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClearStats{
		ObjectsDeleted: 6, AspectsDeleted: 7, RelationsDeleted: 4, PowerNodesDeleted: 7, PowerEdgesDeleted: 6,
	}, cs)
	assert.Equal(t, []string{"f1"}, proj.dropped)

	cs, err = im.Clear(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClearStats{}, cs)

	_, err = im.Clear(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestTree(t *testing.T) {
	ctx := context.Background()
	im := newImporter(memstore.New())
	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	all, err := im.Tree(ctx, "f1", codes.AspectPower, 0)
	require.NoError(t, err)
	require.Len(t, all, 6)

	top, err := im.Tree(ctx, "f1", codes.AspectPower, 1)
	require.NoError(t, err)
	require.Len(t, top, 2)
	for _, e := range top {
		assert.Equal(t, 1, e.Level)
		assert.True(t, e.HasChildren, e.Code)
	}

	var leaf domain.TreeEntry
	for _, e := range all {
		if e.Code == "===DY1.AH1.H02" {
			leaf = e
		}
	}
	assert.Equal(t, "照明", leaf.Name)
	assert.False(t, leaf.HasChildren)

	_, err = im.Tree(ctx, "f1", "bogus", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownAspect)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	im := newImporter(memstore.New())
	_, err := im.Import(ctx, "f1", sampleRows(), withRelations)
	require.NoError(t, err)

	res, err := im.Lookup(ctx, "f1", " ===DY1.AH1. ")
	require.NoError(t, err)
	assert.Equal(t, "===DY1.AH1", res.Code.FullCode)
	require.Len(t, res.Objects, 1)
	obj := res.Objects[0]
	assert.Equal(t, "AH1", obj.RefCode)
	assert.Equal(t, domain.OriginExplicit, obj.Origin)
	assert.Equal(t, []string{"=TA001"}, obj.Aspects[codes.AspectFunction])

	res, err = im.Lookup(ctx, "f1", "===DY9.Q1")
	require.NoError(t, err)
	assert.Empty(t, res.Objects)

	_, err = im.Lookup(ctx, "f1", "XYZ")
	assert.ErrorIs(t, err, codes.ErrNotParseable)
}

func TestImportedChainTraversal(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	_, err := newImporter(mem).Import(ctx, "f1", []sheets.Row{
		row(0, "母线", "", "power", "===DY1.AH1.H01.ZB1"),
	}, withRelations)
	require.NoError(t, err)

	start := domain.ObjectID("f1", domain.TypeEquipment, "母线_S1_0")
	nodes, err := topology.New(mem, topology.Options{Logger: quiet}).Upstream(ctx, start, "")
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	refs := make([]string, len(nodes))
	for i, n := range nodes {
		refs[i] = n.RefCode
	}
	assert.Equal(t, "===DY1", refs[0])
	assert.Equal(t, "母线_S1_0", refs[3])
	assert.Equal(t, 0, nodes[3].Level)
	assert.True(t, strings.HasPrefix(refs[1], "===DY1.AH1"))
}

func TestLogged(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	im := New(Deps{Store: memstore.New(), Parser: codes.Default, Logger: log})
	_, err := im.Import(context.Background(), "f1", sampleRows()[:1], Options{})
	require.NoError(t, err)
	out := buf.String()
	for _, stage := range []string{"clear", "build", "objects", "relations", "power_graph"} {
		assert.Contains(t, out, "stage="+stage)
	}
}
