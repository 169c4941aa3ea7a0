package handler

import (
	"net/http"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/service"
)

// MaintenanceHandler exposes the periodic jobs so a scheduler can trigger them over HTTP.
type MaintenanceHandler struct {
	svc    *service.MaintenanceService
	logger *zap.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(svc *service.MaintenanceService, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		svc:    svc,
		logger: logger.With(zap.String("component", "handler.maintenance")),
	}
}

// Expire handles POST /api/v1/maintenance/expire.
func (h *MaintenanceHandler) Expire(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Expire(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PurgeClicks handles POST /api/v1/maintenance/purge-clicks.
func (h *MaintenanceHandler) PurgeClicks(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.PurgeExpiredClicks(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckDestinations handles POST /api/v1/maintenance/check-destinations?flag=true.
// With flag set, the broken-destination flags are rewritten from the findings.
func (h *MaintenanceHandler) CheckDestinations(w http.ResponseWriter, r *http.Request) {
	flag, _ := strconv.ParseBool(r.URL.Query().Get("flag"))

	issues, err := h.svc.CheckDestinations(r.Context(), flag)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	data := make([]model.DestinationIssue, 0, len(issues))
	for _, issue := range issues {
		data = append(data, issue)
	}
	slices.SortFunc(data, func(a, b model.DestinationIssue) int {
		return cmpID(a.ShortlinkID, b.ShortlinkID)
	})

	writeJSON(w, http.StatusOK, dto.IssueListResponse{Data: data, Flagged: flag})
}

// CheckRedirectChains handles POST /api/v1/maintenance/check-redirect-chains.
func (h *MaintenanceHandler) CheckRedirectChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.svc.CheckRedirectChains(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	data := make([]model.RedirectChain, 0, len(chains))
	for _, c := range chains {
		data = append(data, c)
	}
	slices.SortFunc(data, func(a, b model.RedirectChain) int {
		return cmpID(a.ShortlinkID, b.ShortlinkID)
	})

	writeJSON(w, http.StatusOK, dto.RedirectChainListResponse{Data: data})
}

// AddMissingLinks handles POST /api/v1/maintenance/add-missing-links.
func (h *MaintenanceHandler) AddMissingLinks(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.AddMissingLinks(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SettingsHandler reads and writes the module settings.
type SettingsHandler struct {
	settings *config.SettingsStore
	logger   *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings *config.SettingsStore, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger.With(zap.String("component", "handler.settings")),
	}
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.SettingsResponse{Settings: h.settings.Current()})
}

// Update handles PUT /api/v1/settings. Fields absent from the body keep their current values.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	next := h.settings.Current().Clone()
	if !decodeJSON(w, r, &next) {
		return
	}

	next.Normalize()
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", err.Error())
		return
	}

	saved, err := h.settings.Update(next)
	if err != nil {
		writeServiceError(w, h.logger, errx.E("settings.update", errx.Persistence, err))
		return
	}

	h.logger.Info("settings_updated",
		zap.String("path_prefix", saved.PathPrefix),
		zap.Int("path_length", saved.PathLength),
		zap.Int("redirect_status", saved.RedirectStatus),
	)
	writeJSON(w, http.StatusOK, dto.SettingsResponse{Settings: saved})
}
