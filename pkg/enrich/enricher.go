// Package enrich implements best-effort citation enrichment: a bounded
// concurrent fan-out of object metadata lookups merged back into the answer
// in original citation order.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/citegate/citegate/internal/governance"
	"github.com/citegate/citegate/pkg/domain"
	"github.com/citegate/citegate/pkg/storage"
	"github.com/citegate/citegate/pkg/telemetry"
)

// Enricher resolves metadata for every citation in a raw answer. It never
// fails as a whole: each citation independently ends up ok, unavailable, or
// skipped.
type Enricher struct {
	resolver      storage.MetadataResolver
	sem           *governance.Semaphore
	retry         *governance.RetryPolicy
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// Config holds configuration for creating an Enricher.
type Config struct {
	Resolver storage.MetadataResolver
	// Semaphore bounds concurrent lookups process-wide. It is shared across
	// requests so total outbound load stays capped.
	Semaphore     *governance.Semaphore
	LookupTimeout time.Duration
	// MaxRetries is the number of additional attempts after a transient
	// lookup failure. Not-found and permission-denied are never retried.
	MaxRetries int
	Logger     *slog.Logger
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	if cfg.Semaphore == nil {
		cfg.Semaphore = governance.NewSemaphore(16)
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		resolver:      cfg.Resolver,
		sem:           cfg.Semaphore,
		lookupTimeout: cfg.LookupTimeout,
		logger:        logger,
		retry: governance.NewRetryPolicy(governance.RetryConfig{
			MaxAttempts:       cfg.MaxRetries + 1,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}),
	}
}

// Enrich fans out metadata lookups for raw's citations and merges the results
// in input order. Lookups respect ctx: when the request deadline expires,
// outstanding citations are marked unavailable rather than waited for.
func (e *Enricher) Enrich(ctx context.Context, raw domain.RawAnswer) domain.EnrichedAnswer {
	out := domain.EnrichedAnswer{
		Text:             raw.Text,
		Citations:        make([]domain.EnrichedCitation, len(raw.Citations)),
		RelatedQuestions: raw.RelatedQuestions,
		Session:          raw.Session,
	}

	var wg sync.WaitGroup
	for i, cit := range raw.Citations {
		out.Citations[i] = domain.EnrichedCitation{Citation: cit}

		loc, err := storage.ParseObjectURI(cit.DocumentRef)
		if err != nil {
			out.Citations[i].Status = domain.EnrichmentSkipped
			continue
		}

		wg.Add(1)
		go func(i int, loc storage.ObjectLocation) {
			defer wg.Done()
			md, status := e.lookup(ctx, loc)
			out.Citations[i].Status = status
			out.Citations[i].Metadata = md
		}(i, loc)
	}
	wg.Wait()

	return out
}

// lookup fetches metadata for one object, honoring the shared concurrency
// limit and the per-lookup timeout.
func (e *Enricher) lookup(ctx context.Context, loc storage.ObjectLocation) (*domain.ObjectMetadata, domain.EnrichmentStatus) {
	start := time.Now()
	attempts := 0
	var md domain.ObjectMetadata

	err := e.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		if err := e.sem.Acquire(ctx); err != nil {
			return err
		}
		defer e.sem.Release()

		lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
		defer cancel()

		var err error
		md, err = e.resolver.GetObjectMetadata(lookupCtx, loc)
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrPermissionDenied) {
			return governance.Permanent(err)
		}
		return err
	})

	status := domain.EnrichmentOK
	if err != nil {
		status = domain.EnrichmentUnavailable
		e.logger.Debug("citation lookup failed",
			"object", loc.String(),
			"attempts", attempts,
			"error", err,
		)
	}

	telemetry.RecordLookup(ctx, telemetry.LookupMetrics{
		Bucket:   loc.Bucket,
		Status:   status,
		Duration: time.Since(start),
		Retries:  attempts - 1,
	})

	if err != nil {
		return nil, domain.EnrichmentUnavailable
	}
	return &md, domain.EnrichmentOK
}
