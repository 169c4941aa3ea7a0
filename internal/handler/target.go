package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/service"
)

// TargetHandler receives the target registry and path aliases pushed by the host site.
type TargetHandler struct {
	svc        *service.TargetService
	shortlinks *service.ShortlinkService
	siteURL    string
	logger     *zap.Logger
}

// NewTargetHandler creates a new TargetHandler.
func NewTargetHandler(svc *service.TargetService, shortlinks *service.ShortlinkService, siteURL string, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{
		svc:        svc,
		shortlinks: shortlinks,
		siteURL:    siteURL,
		logger:     logger.With(zap.String("component", "handler.target")),
	}
}

// Upsert handles PUT /api/v1/targets/{type}/{id}.
func (h *TargetHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req dto.TargetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.svc.Upsert(r.Context(), &model.Target{
		EntityType:   chi.URLParam(r, "type"),
		EntityID:     chi.URLParam(r, "id"),
		Bundle:       req.Bundle,
		Label:        req.Label,
		Published:    req.Published,
		CanonicalURL: req.CanonicalURL,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Get handles GET /api/v1/targets/{type}/{id}.
func (h *TargetHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Shortlinks handles GET /api/v1/targets/{type}/{id}/shortlinks.
func (h *TargetHandler) Shortlinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.shortlinks.ForTarget(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": dto.ToShortlinkList(links, h.siteURL)})
}

// Delete handles DELETE /api/v1/targets/{type}/{id}. The target's shortlinks are deleted with it.
func (h *TargetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Delete(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DeletedResponse{Deleted: n})
}

// UpsertAlias handles PUT /api/v1/aliases.
func (h *TargetHandler) UpsertAlias(w http.ResponseWriter, r *http.Request) {
	var req dto.AliasRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.svc.UpsertAlias(r.Context(), &model.PathAlias{Alias: req.Alias, SystemPath: req.SystemPath})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAlias handles DELETE /api/v1/aliases?alias=/about-us.
func (h *TargetHandler) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	alias := r.URL.Query().Get("alias")
	if alias == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ALIAS", "query parameter 'alias' is required")
		return
	}
	if err := h.svc.DeleteAlias(r.Context(), alias); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
