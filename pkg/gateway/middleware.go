package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// APIKeyHeader is the HTTP header clients present their key in
const APIKeyHeader = "X-API-Key"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// requestIDContextKey is the context key for the per-request identifier
const requestIDContextKey contextKey = "requestID"

// RequestIDFromContext returns the request identifier assigned by the
// middleware, or "" when none was assigned.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// APIKeyMiddleware rejects requests whose X-API-Key header does not match the
// configured key. Both sides are hashed before the constant-time comparison
// so response timing reveals neither the key's content nor its length.
type APIKeyMiddleware struct {
	keyDigest [sha256.Size]byte
	logger    *slog.Logger
	metrics   *Metrics
}

// NewAPIKeyMiddleware creates an API key validation middleware
func NewAPIKeyMiddleware(key string, logger *slog.Logger, metrics *Metrics) *APIKeyMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyMiddleware{
		keyDigest: sha256.Sum256([]byte(key)),
		logger:    logger,
		metrics:   metrics,
	}
}

// Wrap wraps an HTTP handler with API key validation and request ID
// assignment
func (m *APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := sha256.Sum256([]byte(r.Header.Get(APIKeyHeader)))
		if subtle.ConstantTimeCompare(presented[:], m.keyDigest[:]) != 1 {
			m.logger.Warn("request rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			if m.metrics != nil {
				m.metrics.RecordAuthFailure()
			}
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
