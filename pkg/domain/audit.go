package domain

import "time"

// Outcome classifies how a request finished, for audit and metrics purposes.
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeInvalidRequest      Outcome = "invalid_request"
	OutcomeUpstreamRejected    Outcome = "upstream_rejected"
	OutcomeUpstreamUnavailable Outcome = "upstream_unavailable"
	OutcomeUpstreamTimeout     Outcome = "upstream_timeout"
)

// AuditRecord is a persisted copy of one request/response pair. It is
// write-once: constructed by the pipeline after the response is built and
// owned by the audit logger from the moment it is enqueued.
type AuditRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId"`
	DataStore string          `json:"dataStore,omitempty"`
	Query     Query           `json:"query"`
	Answer    *EnrichedAnswer `json:"answer,omitempty"`
	LatencyMS int64           `json:"latencyMs"`
	Outcome   Outcome         `json:"outcome"`
}
