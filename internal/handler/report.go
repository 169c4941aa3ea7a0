package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/model"
)

const (
	defaultReportLimit = 10
	maxReportLimit     = 100
)

// ClickReporter answers click reporting queries. *analytics.Tracker implements it.
type ClickReporter interface {
	TotalClicks(ctx context.Context, r model.TimeRange) (int64, error)
	TopShortlinks(ctx context.Context, limit int, r model.TimeRange) ([]model.ShortlinkClicks, error)
	RecentClicks(ctx context.Context, limit int) ([]*model.ClickEvent, error)
	ClicksFor(ctx context.Context, shortlinkID int64, r model.TimeRange) ([]*model.ClickEvent, error)
}

// ReportHandler serves the click reports.
type ReportHandler struct {
	clicks ClickReporter
	logger *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(clicks ClickReporter, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		clicks: clicks,
		logger: logger.With(zap.String("component", "handler.report")),
	}
}

// Total handles GET /api/v1/reports/total?from=&to=.
func (h *ReportHandler) Total(w http.ResponseWriter, r *http.Request) {
	tr, ok := timeRange(w, r)
	if !ok {
		return
	}

	total, err := h.clicks.TotalClicks(r.Context(), tr)
	if err != nil {
		writeServiceError(w, h.logger, errx.E("report.total", errx.Persistence, err))
		return
	}

	writeJSON(w, http.StatusOK, dto.TotalClicksResponse{Clicks: total, From: tr.From, To: tr.To})
}

// Top handles GET /api/v1/reports/top?limit=&from=&to=.
func (h *ReportHandler) Top(w http.ResponseWriter, r *http.Request) {
	tr, ok := timeRange(w, r)
	if !ok {
		return
	}

	top, err := h.clicks.TopShortlinks(r.Context(), reportLimit(r), tr)
	if err != nil {
		writeServiceError(w, h.logger, errx.E("report.top", errx.Persistence, err))
		return
	}
	if top == nil {
		top = []model.ShortlinkClicks{}
	}

	writeJSON(w, http.StatusOK, dto.TopShortlinksResponse{Data: top})
}

// Recent handles GET /api/v1/reports/recent?limit=.
func (h *ReportHandler) Recent(w http.ResponseWriter, r *http.Request) {
	events, err := h.clicks.RecentClicks(r.Context(), reportLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, errx.E("report.recent", errx.Persistence, err))
		return
	}
	if events == nil {
		events = []*model.ClickEvent{}
	}

	writeJSON(w, http.StatusOK, dto.ClickListResponse{Data: events})
}

func reportLimit(r *http.Request) int {
	limit := intQuery(r, "limit", defaultReportLimit)
	if limit <= 0 {
		return defaultReportLimit
	}
	return min(limit, maxReportLimit)
}

// timeRange parses the optional from/to query parameters.
// Both RFC 3339 timestamps and YYYY-MM-DD dates are accepted; a date "to" covers the whole day.
func timeRange(w http.ResponseWriter, r *http.Request) (model.TimeRange, bool) {
	var tr model.TimeRange
	for _, p := range []struct {
		key    string
		dst    **time.Time
		endDay bool
	}{
		{"from", &tr.From, false},
		{"to", &tr.To, true},
	} {
		raw := r.URL.Query().Get(p.key)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw, p.endDay)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TIME_RANGE",
				"'"+p.key+"' must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return model.TimeRange{}, false
		}
		*p.dst = &t
	}

	if tr.From != nil && tr.To != nil && tr.To.Before(*tr.From) {
		writeError(w, http.StatusBadRequest, "INVALID_TIME_RANGE", "'to' must not be before 'from'")
		return model.TimeRange{}, false
	}
	return tr, true
}

func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
