package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/citegate/citegate/pkg/domain"
)

// answerPathPrefix is the route prefix for the answer endpoint; the data
// store identifier follows it.
const answerPathPrefix = "/v1/answer/"

const maxRequestBody = 1 << 20 // 1 MiB

// handleAnswer serves POST /v1/answer/{dataStore}.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(ctx, w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is supported")
		return
	}

	dataStore := strings.TrimPrefix(r.URL.Path, answerPathPrefix)
	if dataStore == "" || strings.Contains(dataStore, "/") {
		writeError(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", "missing or malformed data store identifier")
		return
	}

	var query domain.Query
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&query); err != nil {
		writeError(ctx, w, http.StatusUnprocessableEntity, "INVALID_REQUEST", fmt.Sprintf("malformed request body: %v", err))
		return
	}
	if err := validateQuery(query); err != nil {
		writeError(ctx, w, http.StatusUnprocessableEntity, "INVALID_REQUEST", err.Error())
		return
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	answer, err := s.pipeline.Answer(ctx, RequestIDFromContext(ctx), dataStore, query)
	if err != nil {
		status, code := statusForError(err)
		writeError(ctx, w, status, code, clientMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleHealth serves GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func validateQuery(q domain.Query) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: prompt text is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query text is required", domain.ErrInvalidRequest)
	}
	return nil
}

// statusForError maps pipeline errors to an HTTP status plus a stable
// machine-readable code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusUnprocessableEntity, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrUpstreamRejected):
		return http.StatusBadRequest, "UPSTREAM_REJECTED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.Is(err, context.Canceled):
		// Client went away; the status is moot but pick something sane.
		return http.StatusBadGateway, "CANCELLED"
	default:
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	}
}

// clientMessage returns the error text safe to expose to clients. Gateway
// errors carry a curated message; anything else collapses to its sentinel.
func clientMessage(err error) string {
	var gerr *domain.GatewayError
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	for _, sentinel := range []error{
		domain.ErrInvalidRequest,
		domain.ErrUpstreamRejected,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return domain.ErrUpstreamUnavailable.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Nothing useful to do about a failed response write
	json.NewEncoder(w).Encode(body)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	resp := domain.ErrorResponse{Code: code, Message: message}
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		resp.TraceID = span.TraceID().String()
	}
	writeJSON(w, status, resp)
}
