// Package upstream implements the Discovery Engine answer API client: session
// creation and query forwarding with bounded retries.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/citegate/citegate/internal/governance"
	"github.com/citegate/citegate/pkg/domain"
	"github.com/citegate/citegate/pkg/telemetry"
)

// errAttemptTimeout tags attempt failures that were timeouts so retry
// exhaustion can be reported as ErrUpstreamTimeout instead of unavailable.
var errAttemptTimeout = errors.New("attempt timed out")

// Client talks to the Discovery Engine answer API.
type Client struct {
	endpoint       string
	project        string
	location       string
	collection     string
	tokens         TokenSource
	httpClient     *http.Client
	retry          *governance.RetryPolicy
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// Config holds configuration for creating a Client.
type Config struct {
	Endpoint       string
	Project        string
	Location       string
	Collection     string
	Tokens         TokenSource
	Retry          governance.RetryConfig
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

// NewClient creates an answer engine client.
func NewClient(cfg Config) *Client {
	if cfg.Location == "" {
		cfg.Location = "global"
	}
	if cfg.Collection == "" {
		cfg.Collection = "default_collection"
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:       cfg.Endpoint,
		project:        cfg.Project,
		location:       cfg.Location,
		collection:     cfg.Collection,
		tokens:         cfg.Tokens,
		retry:          governance.NewRetryPolicy(cfg.Retry),
		attemptTimeout: cfg.AttemptTimeout,
		logger:         logger,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) dataStoreURL(dataStore, suffix string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/collections/%s/dataStores/%s%s",
		c.endpoint, c.project, c.location, c.collection, dataStore, suffix)
}

// CreateSession mints a new upstream session for the given user.
func (c *Client) CreateSession(ctx context.Context, dataStore, userPseudoID string) (string, error) {
	var res createSessionResponse
	err := c.call(ctx, c.dataStoreURL(dataStore, "/sessions"), createSessionRequest{UserPseudoID: userPseudoID}, &res)
	if err != nil {
		return "", err
	}
	return res.Name, nil
}

// Answer forwards the query to the upstream answer engine and returns the raw
// answer. Transient failures are retried per the configured policy; a 4xx
// response surfaces immediately as ErrUpstreamRejected.
func (c *Client) Answer(ctx context.Context, dataStore string, query domain.Query, sessionID string) (domain.RawAnswer, error) {
	body := answerRequest{
		Query:                queryInput{Text: query.Query},
		Session:              sessionID,
		SafetySpec:           safetySpec{Enable: false},
		RelatedQuestionsSpec: relatedQuestionsSpec{Enable: true},
		QueryUnderstandingSpec: queryUnderstandingSpec{
			QueryClassificationSpec: queryClassificationSpec{
				Types: []string{"ADVERSARIAL_QUERY", "NON_ANSWER_SEEKING_QUERY"},
			},
			QueryRephraserSpec: queryRephraserSpec{Disable: false, MaxRephraseSteps: 5},
		},
		SearchSpec: searchSpec{SearchParams: searchParams{MaxReturnResults: 10}},
		AnswerGenerationSpec: answerGenerationSpec{
			IncludeCitations:            true,
			AnswerLanguageCode:          query.LanguageCode,
			ModelSpec:                   modelSpec{ModelVersion: "preview"},
			PromptSpec:                  promptSpec{Preamble: query.Prompt},
			IgnoreAdversarialQuery:      true,
			IgnoreNonAnswerSeekingQuery: false,
		},
		GroundingSpec: groundingSpec{FilterLowGroundingAnswer: true},
	}

	var res answerResponse
	err := c.call(ctx, c.dataStoreURL(dataStore, "/servingConfigs/default_search:answer"), body, &res)
	if err != nil {
		return domain.RawAnswer{}, err
	}
	return res.toRawAnswer(), nil
}

// call POSTs payload to url under the retry policy and decodes the response
// into out.
func (c *Client) call(ctx context.Context, url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode upstream request: %w", err)
	}

	attempts := 0
	err = c.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return c.attempt(ctx, url, data, out)
	})
	telemetry.RecordUpstreamRetries(ctx, attempts-1)
	if err == nil {
		return nil
	}

	c.logger.Warn("upstream call failed",
		"url", url,
		"attempts", attempts,
		"error", err,
	)
	return classify(err)
}

func (c *Client) attempt(ctx context.Context, url string, data []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return governance.Permanent(fmt.Errorf("build upstream request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch upstream token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			// Client went away; not a timeout, and never worth retrying.
			return governance.Permanent(context.Canceled)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", errAttemptTimeout, err)
		}
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return governance.Permanent(fmt.Errorf("decode upstream response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		drain(resp.Body)
		return fmt.Errorf("%w: status %d", errAttemptTimeout, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		drain(resp.Body)
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	default:
		// 4xx: the request itself is bad, retrying cannot help.
		drain(resp.Body)
		return governance.Permanent(fmt.Errorf("%w: status %d", domain.ErrUpstreamRejected, resp.StatusCode))
	}
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

// classify maps retry-loop failures onto the domain error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrUpstreamRejected):
		return err
	case errors.Is(err, governance.ErrBudgetExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errAttemptTimeout):
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
}
