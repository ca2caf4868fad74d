package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/WessleyAI/rdsgraph/engine/codes"
	"github.com/WessleyAI/rdsgraph/engine/domain"
	"github.com/WessleyAI/rdsgraph/engine/ingest"
	"github.com/WessleyAI/rdsgraph/engine/sheets"
	"github.com/WessleyAI/rdsgraph/engine/topology"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps err onto a status. Internal errors are logged and their text
// is not returned to the client.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  = http.StatusInternalServerError
		verr    *domain.ValidationError
		tooBig  *http.MaxBytesError
		message = err.Error()
	)
	switch {
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.As(err, &verr),
		errors.Is(err, domain.ErrInvalidScope), errors.Is(err, codes.ErrNotParseable):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errNoProjection):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	respond(w, status, map[string]string{"error": message})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("%s must be a boolean", key)
	}
	return b, nil
}

// --- Health ---

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"store":      s.app.cfg.Store.Backend,
		"projection": s.app.projector != nil,
		"level_rule": s.app.parser.Rule.String(),
	}
	if p, ok := s.app.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Warn("store ping failed", "error", err)
			body["status"] = "degraded"
			respond(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	respond(w, http.StatusOK, body)
}

// --- Parsing ---

// CodeRequest is the body of the single-code parse endpoints.
type CodeRequest struct {
	Code string `json:"code"`
}

// BatchRequest is the body of POST /api/parse/batch.
type BatchRequest struct {
	Codes []string `json:"codes"`
}

// BatchResponse reports every input of a batch parse.
type BatchResponse struct {
	Results []codes.BatchResult `json:"results"`
	Total   int                 `json:"total"`
	Failed  int                 `json:"failed"`
}

func (s *server) handleParseCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.app.parser.Parse(req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (s *server) handleParseHierarchy(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chain := s.app.parser.Expand(req.Code)
	if len(chain) == 0 {
		_, err := s.app.parser.Parse(req.Code)
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, chain)
}

func (s *server) handleParseBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Codes) == 0 {
		s.fail(w, r, badRequest("codes is required"))
		return
	}
	res := BatchResponse{Results: s.app.parser.ParseBatch(req.Codes), Total: len(req.Codes)}
	for _, br := range res.Results {
		if br.Error != "" {
			res.Failed++
		}
	}
	respond(w, http.StatusOK, res)
}

// --- Import and scope queries ---

// readRows decodes an import body by content type: an Excel workbook, CSV
// (one sheet, named by the sheet query parameter), YAML, or JSON by default.
func (s *server) readRows(w http.ResponseWriter, r *http.Request) ([]sheets.Row, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		rows []sheets.Row
		err  error
	)
	switch mt {
	case sheets.XLSXContentType:
		rows, err = sheets.ReadXLSX(body)
	case "text/csv":
		sheet := r.URL.Query().Get("sheet")
		if sheet == "" {
			sheet = "Sheet1"
		}
		rows, err = sheets.ReadCSV(body, sheet)
	case "application/yaml", "application/x-yaml", "text/yaml":
		var wb sheets.Workbook
		wb, err = sheets.DecodeYAML(body)
		rows = wb.Rows()
	default:
		var wb sheets.Workbook
		wb, err = sheets.DecodeJSON(body)
		rows = wb.Rows()
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
		return nil, badRequest("%v", err)
	}
	return rows, nil
}

// ParsePreview is what a workbook would import as, without persisting it.
type ParsePreview struct {
	TotalRows      int               `json:"total_rows"`
	Objects        []domain.Object   `json:"parsed_objects"`
	VirtualObjects int               `json:"virtual_objects"`
	Errors         []domain.RowError `json:"errors"`
}

func (s *server) handleParseWorkbook(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "preview"
	}
	if err := domain.ValidateScope(scope); err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.readRows(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	built := ingest.BuildObjects(scope, rows, s.app.parser)
	errs := built.Errors
	if errs == nil {
		errs = []domain.RowError{}
	}
	respond(w, http.StatusOK, ParsePreview{
		TotalRows:      built.TotalRows,
		Objects:        built.Objects(),
		VirtualObjects: len(built.Virtual),
		Errors:         errs,
	})
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	var (
		opts ingest.Options
		err  error
	)
	if opts.ClearExisting, err = queryBool(r, "clear_existing", false); err != nil {
		s.fail(w, r, err)
		return
	}
	if opts.CreateRelations, err = queryBool(r, "create_relations", true); err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.readRows(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.app.importer.Import(r.Context(), r.PathValue("scope"), rows, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.importer.Clear(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.importer.Stats(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *server) handleTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level := 0
	if v := q.Get("level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, r, badRequest("level must be an integer"))
			return
		}
		level = n
	}
	entries, err := s.app.importer.Tree(r.Context(), r.PathValue("scope"), codes.AspectType(q.Get("aspect_type")), level)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"nodes": entries, "total": len(entries)})
}

func (s *server) handleLookup(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		s.fail(w, r, badRequest("code is required"))
		return
	}
	res, err := s.app.importer.Lookup(r.Context(), r.PathValue("scope"), code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// PowerGraphResponse is the stored power graph of one scope.
type PowerGraphResponse struct {
	Scope string             `json:"scope"`
	Nodes []domain.PowerNode `json:"nodes"`
	Edges []domain.PowerEdge `json:"edges"`
}

func (s *server) handlePowerGraph(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	if err := domain.ValidateScope(scope); err != nil {
		s.fail(w, r, err)
		return
	}
	nodes, edges, err := s.app.store.PowerGraph(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if nodes == nil {
		nodes = []domain.PowerNode{}
	}
	if edges == nil {
		edges = []domain.PowerEdge{}
	}
	respond(w, http.StatusOK, PowerGraphResponse{Scope: scope, Nodes: nodes, Edges: edges})
}

// --- Topology ---

// TraceRequest is the body of POST /api/topology/trace. With Scope set,
// ObjectID may be a reference designation.
type TraceRequest struct {
	ObjectID     string `json:"object_id"`
	Direction    string `json:"direction"`
	RelationType string `json:"relation_type"`
	Scope        string `json:"scope,omitempty"`
}

// PathRequest is the body of POST /api/topology/path.
type PathRequest struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	RelationType string `json:"relation_type"`
	Scope        string `json:"scope,omitempty"`
}

func (s *server) handleTrace(w http.ResponseWriter, r *http.Request) {
	var req TraceRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ObjectID == "" {
		s.fail(w, r, badRequest("object_id is required"))
		return
	}
	if req.Direction == "" {
		req.Direction = string(domain.Upstream)
	}
	res, err := s.app.trace(r.Context(), req.Scope, req.ObjectID, req.Direction, req.RelationType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (s *server) handlePath(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		s.fail(w, r, badRequest("source_id and target_id are required"))
		return
	}
	res, err := s.app.path(r.Context(), req.Scope, req.SourceID, req.TargetID, req.RelationType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (s *server) handleRelationTypes(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{"relation_types": topology.RelationTypes()})
}
