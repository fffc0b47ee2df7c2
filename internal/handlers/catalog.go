package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/catalog"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"github.com/gorilla/mux"
)

// CatalogHandler serves external field suggestions from the catalog snapshot
type CatalogHandler struct {
	cache *catalog.Cache
	// refreshCtx outlives individual requests so background fetches are not cut short
	refreshCtx context.Context
}

// NewCatalogHandler creates a catalog handler. Background refreshes run under ctx.
func NewCatalogHandler(ctx context.Context, cache *catalog.Cache) *CatalogHandler {
	return &CatalogHandler{cache: cache, refreshCtx: ctx}
}

// RegisterRoutes registers catalog routes on an /api/v1 subrouter
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/catalog/fields", h.ListFields).Methods("GET")
	r.HandleFunc("/catalog/refresh", h.Refresh).Methods("POST")
}

// CatalogResponse is the current snapshot as offered to the editor
type CatalogResponse struct {
	Project   string                 `json:"project"`
	Direction models.Direction       `json:"direction"`
	Fields    []models.ExternalField `json:"fields"`
	FetchedAt string                 `json:"fetchedAt,omitempty"`
	Loading   bool                   `json:"loading"`
}

// ListFields returns suggestions for the requested direction (import by default).
// An empty snapshot triggers a background fetch; the caller sees an empty list until it lands.
func (h *CatalogHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = string(models.DirectionImport)
	}
	if err := validation.ValidateDirection(direction); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	loading := false
	if h.cache.Empty() {
		h.cache.RefreshAsync(h.refreshCtx)
		loading = true
	}

	resp := CatalogResponse{
		Project:   h.cache.Project(),
		Direction: models.Direction(direction),
		Fields:    h.cache.Suggest(models.Direction(direction)),
		Loading:   loading,
	}
	if at := h.cache.FetchedAt(); !at.IsZero() {
		resp.FetchedAt = at.UTC().Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, resp)
}

// Refresh starts a catalog fetch and returns immediately
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.cache.RefreshAsync(h.refreshCtx)
	respondJSON(w, http.StatusAccepted, map[string]any{"refreshing": true})
}
