package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const adminKey contextKey = "admin_key"

type apiKey struct {
	digest [blake2b.Size256]byte
	name   string
}

// APIKeyAuth protects the admin API with static keys (key -> name).
// Keys are compared as digests in constant time, and every configured key is
// checked so the response time does not reveal which one matched.
// With no keys configured every request is rejected.
func APIKeyAuth(keys map[string]string, logger *zap.Logger) func(http.Handler) http.Handler {
	configured := make([]apiKey, 0, len(keys))
	for key, name := range keys {
		configured = append(configured, apiKey{digest: blake2b.Sum256([]byte(key)), name: name})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := extractAPIKey(r)
			if presented == "" {
				logger.Warn("authentication_failed",
					zap.String("reason", "missing_key"),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			digest := blake2b.Sum256([]byte(presented))
			matched := ""
			for _, k := range configured {
				if subtle.ConstantTimeCompare(digest[:], k.digest[:]) == 1 {
					matched = k.name
				}
			}
			if matched == "" {
				logger.Warn("authentication_failed",
					zap.String("reason", "unknown_key"),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			ctx := context.WithValue(r.Context(), adminKey, matched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyName returns the name of the API key that authenticated the request.
func KeyName(ctx context.Context) string {
	name, _ := ctx.Value(adminKey).(string)
	return name
}

// extractAPIKey reads "Authorization: Bearer <key>" or "X-API-Key: <key>".
func extractAPIKey(r *http.Request) string {
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
