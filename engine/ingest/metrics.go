package ingest

import (
	"time"

	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/pkg/metrics"
)

type importMetrics struct {
	runs       *metrics.Counter
	failures   *metrics.Counter
	objects    *metrics.Counter
	virtual    *metrics.Counter
	aspects    *metrics.Counter
	relations  *metrics.Counter
	powerNodes *metrics.Counter
	powerEdges *metrics.Counter
	rowErrors  *metrics.Counter
	duration   *metrics.Histogram
}

// newImportMetrics registers import metrics. A nil registry disables them.
func newImportMetrics(r *metrics.Registry) *importMetrics {
	if r == nil {
		return nil
	}
	return &importMetrics{
		runs:       r.Counter("rdsgraph_imports_total", "Committed imports."),
		failures:   r.Counter("rdsgraph_import_failures_total", "Imports rolled back."),
		objects:    r.Counter("rdsgraph_import_objects_total", "Objects written by imports."),
		virtual:    r.Counter("rdsgraph_import_virtual_objects_total", "Virtual ancestor objects written by imports."),
		aspects:    r.Counter("rdsgraph_import_aspects_total", "Aspects written by imports."),
		relations:  r.Counter("rdsgraph_import_relations_total", "Relations written by imports."),
		powerNodes: r.Counter("rdsgraph_import_power_nodes_total", "Power graph nodes written by imports."),
		powerEdges: r.Counter("rdsgraph_import_power_edges_total", "Power graph edges written by imports."),
		rowErrors:  r.Counter("rdsgraph_import_row_errors_total", "Soft per-row import errors."),
		duration:   r.Histogram("rdsgraph_import_duration_seconds", "Import wall time.", nil),
	}
}

func (m *importMetrics) record(st domain.ImportStats, start time.Time) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.objects.Add(int64(st.ObjectsCreated))
	m.virtual.Add(int64(st.VirtualObjectsCreated))
	m.aspects.Add(int64(st.AspectsCreated))
	m.relations.Add(int64(st.RelationsCreated))
	m.powerNodes.Add(int64(st.PowerNodesCreated))
	m.powerEdges.Add(int64(st.PowerEdgesCreated))
	m.rowErrors.Add(int64(len(st.Errors)))
	m.duration.Since(start)
}

func (m *importMetrics) failed() {
	if m == nil {
		return
	}
	m.failures.Inc()
}
