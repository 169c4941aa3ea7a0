package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/analytics"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/middleware"
	"github.com/penshort/shortlink/internal/service"
)

// Redirector resolves a slug to a redirect. *service.RedirectService implements it.
type Redirector interface {
	Handle(ctx context.Context, slug string, meta analytics.RequestMeta) (*service.Redirect, error)
}

// RedirectHandler serves GET /{prefix}/{slug}.
type RedirectHandler struct {
	svc      Redirector
	settings *config.SettingsStore
	logger   *zap.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(svc Redirector, settings *config.SettingsStore, logger *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		svc:      svc,
		settings: settings,
		logger:   logger.With(zap.String("component", "handler.redirect")),
	}
}

// Redirect handles GET /{prefix}/{slug}.
// Only the currently configured prefix resolves; every miss is a plain 404.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	slug := chi.URLParam(r, "slug")

	w.Header().Set("X-Robots-Tag", "noindex, nofollow")
	w.Header().Set("Cache-Control", "private, max-age=0")

	if prefix != h.settings.Current().PathPrefix {
		writeError(w, http.StatusNotFound, "SHORTLINK_NOT_FOUND", "Shortlink not found")
		return
	}

	start := time.Now()
	meta := analytics.RequestMeta{
		IP:        middleware.ClientIP(r),
		Referrer:  r.Referer(),
		UserAgent: r.UserAgent(),
	}

	redirect, err := h.svc.Handle(r.Context(), slug, meta)
	duration := time.Since(start)
	if err != nil {
		h.handleRedirectError(w, slug, err, duration)
		return
	}

	h.logger.Info("redirect_success",
		zap.Int64("shortlink_id", redirect.ShortlinkID),
		zap.String("path", redirect.Path),
		zap.Int("status", redirect.Status),
		zap.Bool("external", redirect.External),
		zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)

	http.Redirect(w, r, redirect.URL, redirect.Status)
}

func (h *RedirectHandler) handleRedirectError(w http.ResponseWriter, slug string, err error, duration time.Duration) {
	if errx.KindOf(err) == errx.NotFound {
		reason := "not_found"
		if errors.Is(err, service.ErrExpired) {
			reason = "expired"
		}
		h.logger.Info("redirect_not_found",
			zap.String("slug", slug),
			zap.String("reason", reason),
			zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
		)
		writeError(w, http.StatusNotFound, "SHORTLINK_NOT_FOUND", "Shortlink not found")
		return
	}

	h.logger.Error("redirect_error",
		zap.String("slug", slug),
		zap.Error(err),
		zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}
