package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyMiddlewareAssignsRequestID(t *testing.T) {
	var gotID string
	mw := NewAPIKeyMiddleware("secret", nil, nil)
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/answer/docs", nil)
	req.Header.Set(APIKeyHeader, "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, gotID)
}

func TestAPIKeyMiddlewareRejectsAnyLength(t *testing.T) {
	const secret = "secret-key"
	mw := NewAPIKeyMiddleware(secret, nil, nil)
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with a bad key")
	}))

	// Shorter, equal, and longer candidates must all be rejected the same
	// way regardless of how much of the secret they share.
	for n := 0; n <= len(secret)+4; n++ {
		candidate := strings.Repeat("x", n)
		if n <= len(secret) {
			candidate = secret[:n]
			if n == len(secret) {
				candidate = secret[:n-1] + "?"
			}
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/answer/docs", nil)
		req.Header.Set(APIKeyHeader, candidate)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "candidate %q", candidate)
	}
}
