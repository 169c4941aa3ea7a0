package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
	"github.com/penshort/shortlink/internal/service"
)

// ShortlinkHandler handles the shortlink admin endpoints.
type ShortlinkHandler struct {
	svc     *service.ShortlinkService
	clicks  ClickReporter
	siteURL string
	logger  *zap.Logger
}

// NewShortlinkHandler creates a new ShortlinkHandler.
func NewShortlinkHandler(svc *service.ShortlinkService, clicks ClickReporter, siteURL string, logger *zap.Logger) *ShortlinkHandler {
	return &ShortlinkHandler{
		svc:     svc,
		clicks:  clicks,
		siteURL: siteURL,
		logger:  logger.With(zap.String("component", "handler.shortlink")),
	}
}

// Create handles POST /api/v1/shortlinks.
func (h *ShortlinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateShortlinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.svc.Create(r.Context(), service.CreateShortlinkInput{
		Label:                req.Label,
		Description:          req.Description,
		TargetEntityType:     req.TargetEntityType,
		TargetEntityID:       req.TargetEntityID,
		DestinationOverride:  req.DestinationOverride,
		ParameterSetID:       req.ParameterSetID,
		CustomSlug:           req.CustomSlug,
		Enabled:              req.Enabled,
		ExpiresAt:            req.ExpiresAt,
		MaxClicks:            req.MaxClicks,
		ExpireIfInactiveDays: req.ExpireIfInactiveDays,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToShortlinkResponse(link, h.siteURL))
}

// Get handles GET /api/v1/shortlinks/{id}.
func (h *ShortlinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	link, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToShortlinkResponse(link, h.siteURL))
}

// List handles GET /api/v1/shortlinks.
// Filters: enabled, broken, target_type with target_id, parameter_set.
func (h *ShortlinkHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := service.ListShortlinksInput{
		Filter: repository.ShortlinkFilter{
			Enabled:          boolQuery(query.Get("enabled")),
			Broken:           boolQuery(query.Get("broken")),
			TargetEntityType: query.Get("target_type"),
			TargetEntityID:   query.Get("target_id"),
			ParameterSetID:   query.Get("parameter_set"),
		},
		Limit: intQuery(r, "limit", 0),
	}
	if c := query.Get("cursor"); c != "" {
		cursor, err := strconv.ParseInt(c, 10, 64)
		if err != nil || cursor < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "The cursor must be a shortlink id")
			return
		}
		input.Cursor = cursor
	}

	out, err := h.svc.List(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ShortlinkListResponse{
		Data: dto.ToShortlinkList(out.Shortlinks, h.siteURL),
		Pagination: &dto.Pagination{
			NextCursor: out.NextCursor,
			HasMore:    out.HasMore,
		},
	})
}

// Update handles PATCH /api/v1/shortlinks/{id}.
func (h *ShortlinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req dto.UpdateShortlinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.svc.Update(r.Context(), service.UpdateShortlinkInput{
		ID:                   id,
		Label:                req.Label,
		Description:          req.Description,
		TargetEntityType:     req.TargetEntityType,
		TargetEntityID:       req.TargetEntityID,
		DestinationOverride:  req.DestinationOverride,
		ParameterSetID:       req.ParameterSetID,
		CustomSlug:           req.CustomSlug,
		Enabled:              req.Enabled,
		ExpiresAt:            req.ExpiresAt,
		ClearExpiry:          req.ClearExpiry,
		MaxClicks:            req.MaxClicks,
		ExpireIfInactiveDays: req.ExpireIfInactiveDays,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToShortlinkResponse(link, h.siteURL))
}

// Delete handles DELETE /api/v1/shortlinks/{id}.
func (h *ShortlinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clicks handles GET /api/v1/shortlinks/{id}/clicks?from=&to=.
func (h *ShortlinkHandler) Clicks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	tr, ok := timeRange(w, r)
	if !ok {
		return
	}

	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	events, err := h.clicks.ClicksFor(r.Context(), id, tr)
	if err != nil {
		writeServiceError(w, h.logger, errx.E("shortlink.clicks", errx.Persistence, err))
		return
	}
	if events == nil {
		events = []*model.ClickEvent{}
	}

	writeJSON(w, http.StatusOK, dto.ClickListResponse{Data: events})
}

// GeneratePath handles POST /api/v1/generate-path.
func (h *ShortlinkHandler) GeneratePath(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.GeneratePath(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GeneratedPathResponse{Path: path, ShortURL: dto.ShortURL(h.siteURL, path)})
}

// ValidateSlug handles GET /api/v1/validate-slug?slug=&exclude_id=.
func (h *ShortlinkHandler) ValidateSlug(w http.ResponseWriter, r *http.Request) {
	excludeID, _ := strconv.ParseInt(r.URL.Query().Get("exclude_id"), 10, 64)

	msgs, err := h.svc.ValidateSlug(r.Context(), r.URL.Query().Get("slug"), excludeID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    len(msgs) == 0,
		"messages": msgs,
	})
}

func boolQuery(raw string) *bool {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
