package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/citegate/citegate/pkg/domain"
)

// AnswerService forwards a query to the upstream answer engine.
type AnswerService interface {
	Answer(ctx context.Context, dataStore string, query domain.Query, sessionID string) (domain.RawAnswer, error)
}

// SessionResolver turns a client session reference into a concrete upstream
// session name, creating one when the reference is empty.
type SessionResolver interface {
	Resolve(ctx context.Context, dataStore string, ref domain.SessionRef) (string, error)
}

// CitationEnricher attaches object metadata to an answer's citations.
type CitationEnricher interface {
	Enrich(ctx context.Context, raw domain.RawAnswer) domain.EnrichedAnswer
}

// AuditRecorder accepts audit records without blocking.
type AuditRecorder interface {
	Record(rec domain.AuditRecord)
}

// Pipeline runs one answer request end to end: session resolution, upstream
// forwarding, citation enrichment, and audit emission. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	sessions        SessionResolver
	answers         AnswerService
	enricher        CitationEnricher
	audit           AuditRecorder
	metrics         *Metrics
	logger          *slog.Logger
	defaultLanguage string
}

// PipelineConfig holds the collaborators for creating a Pipeline.
type PipelineConfig struct {
	Sessions        SessionResolver
	Answers         AnswerService
	Enricher        CitationEnricher
	Audit           AuditRecorder
	Metrics         *Metrics
	Logger          *slog.Logger
	DefaultLanguage string
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "es"
	}
	return &Pipeline{
		sessions:        cfg.Sessions,
		answers:         cfg.Answers,
		enricher:        cfg.Enricher,
		audit:           cfg.Audit,
		metrics:         cfg.Metrics,
		logger:          logger,
		defaultLanguage: cfg.DefaultLanguage,
	}
}

// Answer processes one validated query against the named data store. The
// returned answer carries the upstream session name so clients can continue
// the conversation. An audit record is emitted for every call, success or
// not, without ever blocking the response.
func (p *Pipeline) Answer(ctx context.Context, requestID, dataStore string, query domain.Query) (domain.EnrichedAnswer, error) {
	start := time.Now()

	if query.LanguageCode == "" {
		query.LanguageCode = p.defaultLanguage
	}

	enriched, err := p.run(ctx, dataStore, query)

	outcome := domain.OutcomeForError(err)
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordAnswer(string(outcome), elapsed)
	}

	rec := domain.AuditRecord{
		Timestamp: start.UTC(),
		RequestID: requestID,
		DataStore: dataStore,
		Query:     query,
		LatencyMS: elapsed.Milliseconds(),
		Outcome:   outcome,
	}
	if err == nil {
		rec.Answer = &enriched
	}
	if p.audit != nil {
		p.audit.Record(rec)
	}

	if err != nil {
		p.logger.Error("answer request failed",
			"request_id", requestID,
			"data_store", dataStore,
			"outcome", outcome,
			"error", err,
		)
		return domain.EnrichedAnswer{}, err
	}

	p.logger.Info("answer request served",
		"request_id", requestID,
		"data_store", dataStore,
		"session", enriched.Session,
		"citations", len(enriched.Citations),
		"latency_ms", rec.LatencyMS,
	)
	return enriched, nil
}

func (p *Pipeline) run(ctx context.Context, dataStore string, query domain.Query) (domain.EnrichedAnswer, error) {
	created := query.Session.Name == ""
	sessionID, err := p.sessions.Resolve(ctx, dataStore, query.Session)
	if err != nil {
		return domain.EnrichedAnswer{}, err
	}
	if created && p.metrics != nil {
		p.metrics.RecordSessionCreated()
	}

	raw, err := p.answers.Answer(ctx, dataStore, query, sessionID)
	if err != nil {
		return domain.EnrichedAnswer{}, err
	}
	if raw.Session == "" {
		raw.Session = sessionID
	}

	enriched := p.enricher.Enrich(ctx, raw)
	if p.metrics != nil {
		for _, cit := range enriched.Citations {
			p.metrics.RecordCitation(string(cit.Status))
		}
	}
	return enriched, nil
}
