package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citegate/citegate/internal/governance"
	"github.com/citegate/citegate/pkg/domain"
)

func newTestClient(t *testing.T, handler http.Handler, maxAttempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		Endpoint: srv.URL + "/v1alpha",
		Project:  "test-project",
		Tokens:   StaticTokenSource("upstream-token"),
		Retry: governance.RetryConfig{
			MaxAttempts:       maxAttempts,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        2 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		AttemptTimeout: time.Second,
	})
}

func answerPayload() map[string]any {
	return map[string]any{
		"answer": map[string]any{
			"answerText": "Paris",
			"citations": []map[string]any{
				{"endIndex": "5", "sources": []map[string]any{{"referenceId": "0"}}},
			},
			"references": []map[string]any{
				{"chunkInfo": map[string]any{
					"content":        "Paris is the capital of France.",
					"relevanceScore": 0.97,
					"documentMetadata": map[string]any{
						"uri":   "gs://bucket/doc1",
						"title": "France",
					},
				}},
			},
			"relatedQuestions": []string{"What is the capital of Spain?"},
		},
		"session": map[string]any{"name": "projects/p/sessions/123"},
	}
}

func TestAnswerMapsWireFormat(t *testing.T) {
	var gotPath string
	var gotBody answerRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		require.Equal(t, "Bearer upstream-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(answerPayload()))
	}), 3)

	query := domain.Query{
		Prompt:       "Answer briefly.",
		Query:        "capital of France",
		LanguageCode: "en",
	}
	raw, err := client.Answer(context.Background(), "docs", query, "projects/p/sessions/123")
	require.NoError(t, err)

	assert.Equal(t, "/v1alpha/projects/test-project/locations/global/collections/default_collection/dataStores/docs/servingConfigs/default_search:answer", gotPath)
	assert.Equal(t, "capital of France", gotBody.Query.Text)
	assert.Equal(t, "projects/p/sessions/123", gotBody.Session)
	assert.Equal(t, "Answer briefly.", gotBody.AnswerGenerationSpec.PromptSpec.Preamble)
	assert.Equal(t, "en", gotBody.AnswerGenerationSpec.AnswerLanguageCode)
	assert.True(t, gotBody.AnswerGenerationSpec.IncludeCitations)
	assert.Equal(t, 5, gotBody.QueryUnderstandingSpec.QueryRephraserSpec.MaxRephraseSteps)
	assert.Equal(t, 10, gotBody.SearchSpec.SearchParams.MaxReturnResults)
	assert.True(t, gotBody.GroundingSpec.FilterLowGroundingAnswer)
	assert.False(t, gotBody.SafetySpec.Enable)

	assert.Equal(t, "Paris", raw.Text)
	require.Len(t, raw.Citations, 1)
	assert.Equal(t, "gs://bucket/doc1", raw.Citations[0].DocumentRef)
	assert.Equal(t, "France", raw.Citations[0].Title)
	assert.Equal(t, "Paris is the capital of France.", raw.Citations[0].Snippet)
	assert.Equal(t, []string{"What is the capital of Spain?"}, raw.RelatedQuestions)
	assert.Equal(t, "projects/p/sessions/123", raw.Session)
}

func TestAnswerCitationWithUnknownReferenceKeepsOrder(t *testing.T) {
	payload := answerPayload()
	answer := payload["answer"].(map[string]any)
	answer["citations"] = []map[string]any{
		{"endIndex": "5", "sources": []map[string]any{{"referenceId": "7"}}},
		{"endIndex": "9", "sources": []map[string]any{{"referenceId": "0"}}},
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(payload)
	}), 1)

	raw, err := client.Answer(context.Background(), "docs", domain.Query{Query: "q"}, "")
	require.NoError(t, err)
	require.Len(t, raw.Citations, 2)
	assert.Empty(t, raw.Citations[0].DocumentRef)
	assert.Equal(t, "gs://bucket/doc1", raw.Citations[1].DocumentRef)
}

func TestCreateSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1alpha/projects/test-project/locations/global/collections/default_collection/dataStores/docs/sessions", r.URL.Path)
		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserPseudoID)
		_ = json.NewEncoder(w).Encode(createSessionResponse{Name: "projects/p/sessions/456"})
	}), 3)

	session, err := client.CreateSession(context.Background(), "docs", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "projects/p/sessions/456", session)
}

func TestAnswerRetriesTransientExactlyMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), 3)

	_, err := client.Answer(context.Background(), "docs", domain.Query{Query: "q"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int64(3), calls.Load())
}

func TestAnswerDoesNotRetryRejection(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}), 5)

	_, err := client.Answer(context.Background(), "docs", domain.Query{Query: "q"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRejected)
	assert.Equal(t, int64(1), calls.Load())
}

func TestAnswerTimeoutEveryAttempt(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}), 4)

	_, err := client.Answer(context.Background(), "docs", domain.Query{Query: "q"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	assert.Equal(t, int64(4), calls.Load())
}

func TestAnswerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 3)

	_, err := client.Answer(ctx, "docs", domain.Query{Query: "q"}, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnswerMidRequestCancellationIsNotTimeout(t *testing.T) {
	started := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's client-disconnect detection can
		// cancel r.Context() when the test cancels the request.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}), 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Answer(ctx, "docs", domain.Query{Query: "q"}, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrUpstreamTimeout)
}
