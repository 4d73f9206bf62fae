package handlers

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// RequireCronSecret authorizes cron-triggered endpoints with a bearer token.
// An empty secret allows every request, intended for local development only;
// that state is flagged loudly at startup.
func RequireCronSecret(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("CRON_SECRET not set, allowing all requests (development only)")
	}

	expected := []byte("Bearer " + secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				logger.Warn("invalid authorization", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
