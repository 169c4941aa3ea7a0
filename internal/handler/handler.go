// Package handler provides the HTTP handlers for redirects and the admin API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/cache"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/handler/dto"
	"github.com/penshort/shortlink/internal/repository"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, messages ...string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code, Messages: messages})
}

// writeServiceError maps a service error to its HTTP status by errx kind.
// Storage and internal failures are logged and answered without detail.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch errx.KindOf(err) {
	case errx.Invalid:
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", errx.MessagesOf(err)...)
	case errx.NotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errx.Conflict:
		writeError(w, http.StatusConflict, "CONFLICT", conflictMessage(err))
	case errx.Exhausted:
		writeError(w, http.StatusConflict, "PATH_SPACE_EXHAUSTED",
			"No free path could be generated; increase the path length.")
	case errx.Unavailable:
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable")
	default:
		logger.Error("request_failed", zap.String("op", errx.OpOf(err)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrParameterSetExists):
		return "A parameter set with this machine name already exists."
	case errors.Is(err, repository.ErrPathExists):
		return "The path is already in use by another shortlink."
	case errors.Is(err, cache.ErrLockHeld):
		return "Another expiration sweep is running."
	default:
		return "Conflict"
	}
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err.Error())
		return false
	}
	return true
}

// idParam parses the {id} URL parameter as a shortlink id.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "A numeric id is required")
		return 0, false
	}
	return id, true
}

// intQuery returns the integer query parameter key, or def when absent or malformed.
func intQuery(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}
