package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/service"
)

// ParameterSetHandler handles the parameter set admin endpoints.
type ParameterSetHandler struct {
	svc    *service.ParameterSetService
	logger *zap.Logger
}

// NewParameterSetHandler creates a new ParameterSetHandler.
func NewParameterSetHandler(svc *service.ParameterSetService, logger *zap.Logger) *ParameterSetHandler {
	return &ParameterSetHandler{
		svc:    svc,
		logger: logger.With(zap.String("component", "handler.parameter_set")),
	}
}

// Create handles POST /api/v1/parameter-sets.
func (h *ParameterSetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ParameterSetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	set, err := h.svc.Create(r.Context(), req.ToModel())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

// List handles GET /api/v1/parameter-sets.
func (h *ParameterSetHandler) List(w http.ResponseWriter, r *http.Request) {
	sets, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if sets == nil {
		sets = []*model.ParameterSet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sets})
}

// Get handles GET /api/v1/parameter-sets/{id}.
func (h *ParameterSetHandler) Get(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// Update handles PUT /api/v1/parameter-sets/{id}. The machine name comes from the URL.
func (h *ParameterSetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.ParameterSetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	set := req.ToModel()
	set.ID = chi.URLParam(r, "id")

	updated, err := h.svc.Update(r.Context(), set)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/parameter-sets/{id}.
func (h *ParameterSetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles GET /api/v1/parameter-sets/{id}/preview?slug=.
func (h *ParameterSetHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pairs, err := h.svc.Preview(r.Context(), id, r.URL.Query().Get("slug"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PreviewResponse{ParameterSetID: id, Parameters: pairs})
}
