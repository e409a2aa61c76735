package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/index"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/orbit"
)

const maxRequestBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	engine *orbit.Engine
	idx    index.RelationIndex
}

// NewHandler creates a new Handler.
func NewHandler(engine *orbit.Engine, idx index.RelationIndex) *Handler {
	return &Handler{engine: engine, idx: idx}
}

// ListCategories handles GET /api/categories.
//
//	@Summary		List taxonomy categories
//	@Tags			taxonomy
//	@Produce		json
//	@Success		200	{object}	CategoryListResponse
//	@Security		BearerAuth
//	@Router			/categories [get]
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := h.engine.Registry().Categories()
	items := make([]CategoryItem, 0, len(cats))
	for _, c := range cats {
		items = append(items, CategoryItem{Number: c.Number, Name: c.Name, Folder: c.Folder()})
	}
	writeJSON(w, http.StatusOK, CategoryListResponse{Categories: items})
}

// ResolveGroup handles GET /api/resolve.
//
//	@Summary		Resolve an orbit token to a grouping without touching the vault
//	@Tags			taxonomy
//	@Produce		json
//	@Param			token		query		string	true	"Orbit token"
//	@Param			hint		query		string	false	"Domain hint"
//	@Param			referrer	query		string	false	"Referring document path"
//	@Success		200			{object}	GroupingResponse
//	@Failure		400			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) ResolveGroup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	g, err := h.engine.ResolveGroup(token, q.Get("hint"), q.Get("referrer"))
	if err != nil {
		h.fail(w, "resolve group", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Process handles POST /api/process.
//
//	@Summary		Reconcile a single document
//	@Tags			reconcile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Document path"
//	@Success		200		{object}	ProcessResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePath(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Process(r.Context(), p)
	if err != nil {
		h.fail(w, "process", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Promote handles POST /api/promote.
//
//	@Summary		Promote a floating grouping to a designated one
//	@Tags			reconcile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Floating grouping directory"
//	@Success		200		{object}	GroupingResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/promote [post]
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePath(w, r)
	if !ok {
		return
	}
	g, err := h.engine.Promote(p)
	if err != nil {
		h.fail(w, "promote", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Audit handles GET /api/audit.
//
//	@Summary		Report structural drift without changing the vault
//	@Tags			reconcile
//	@Produce		json
//	@Success		200	{object}	AuditResponse
//	@Security		BearerAuth
//	@Router			/audit [get]
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	issues, err := h.engine.Audit()
	if err != nil {
		h.fail(w, "audit", err)
		return
	}
	if issues == nil {
		issues = []orbit.Issue{}
	}
	writeJSON(w, http.StatusOK, AuditResponse{Issues: issues})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the orbit and satellite relationship graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	docs, edges, err := h.idx.Graph()
	if err != nil {
		h.fail(w, "graph", err)
		return
	}

	nodes := make([]GraphNode, 0, len(docs))
	byName := make(map[string]string, len(docs))
	for _, d := range docs {
		nodes = append(nodes, GraphNode{ID: d.Path, Name: d.Name, Kind: d.Kind})
		key := strings.ToLower(d.Name)
		// Dashboards win over same-named plain documents.
		if _, taken := byName[key]; !taken || isDashboard(d) {
			byName[key] = d.Path
		}
	}

	links := make([]GraphLink, 0, len(edges))
	for _, e := range edges {
		target, ok := byName[strings.ToLower(e.Target)]
		if !ok {
			continue
		}
		links = append(links, GraphLink{Source: e.Source, Target: target, Type: e.Type})
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Orbiters handles GET /api/groupings/{name}/orbiters.
//
//	@Summary		List documents that orbit a grouping
//	@Tags			graph
//	@Produce		json
//	@Param			name	path		string	true	"Grouping name"
//	@Success		200		{object}	OrbitersResponse
//	@Security		BearerAuth
//	@Router			/groupings/{name}/orbiters [get]
func (h *Handler) Orbiters(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	paths, err := h.idx.Orbiters(name)
	if err != nil {
		h.fail(w, "orbiters", err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, OrbitersResponse{Name: name, Orbiters: paths})
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrUnresolved):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFloating):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return "", false
	}
	p := strings.TrimSpace(req.Path)
	if p == "" || path.IsAbs(p) || strings.HasPrefix(path.Clean(p), "..") {
		writeJSON(w, http.StatusBadRequest, errorBody("path must be a relative vault path"))
		return "", false
	}
	return path.Clean(p), true
}

func isDashboard(d index.DocumentRow) bool {
	k := models.Kind(d.Kind)
	return k == models.KindProject || k == models.KindDomain
}
