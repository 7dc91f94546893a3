package domain

import "errors"

// Common domain errors
var (
	ErrUnauthorized        = errors.New("missing or invalid API key")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrUpstreamTimeout     = errors.New("upstream request timed out")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// GatewayError wraps a domain sentinel with additional context. The Message
// is safe to return to clients; upstream details stay in the wrapped error.
type GatewayError struct {
	Err     error
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the gateway.
// It intentionally avoids exposing upstream internals while providing a stable
// machine-readable code. TraceID carries the current OpenTelemetry trace
// identifier when available to aid diagnostics.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., UNAUTHORIZED, UPSTREAM_TIMEOUT)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}

// OutcomeForError maps a pipeline error to its audit outcome.
func OutcomeForError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrUpstreamRejected):
		return OutcomeUpstreamRejected
	case errors.Is(err, ErrUpstreamTimeout):
		return OutcomeUpstreamTimeout
	default:
		return OutcomeUpstreamUnavailable
	}
}
