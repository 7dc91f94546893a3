package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/citegate/citegate/pkg/domain"
)

// TokenSource supplies bearer tokens for storage API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GCSClient talks to the Google Cloud Storage JSON API. One client is shared
// by the metadata resolver and the audit sink.
type GCSClient struct {
	endpoint       string
	uploadEndpoint string
	tokens         TokenSource
	httpClient     *http.Client
}

// GCSConfig holds configuration for creating a GCSClient.
type GCSConfig struct {
	Endpoint       string
	UploadEndpoint string
	Tokens         TokenSource
	Timeout        time.Duration
}

// NewGCSClient creates a GCS JSON API client.
func NewGCSClient(cfg GCSConfig) *GCSClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://storage.googleapis.com/storage/v1"
	}
	if cfg.UploadEndpoint == "" {
		cfg.UploadEndpoint = "https://storage.googleapis.com/upload/storage/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GCSClient{
		endpoint:       cfg.Endpoint,
		uploadEndpoint: cfg.UploadEndpoint,
		tokens:         cfg.Tokens,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// objectResource is the subset of the GCS object resource the gateway reads.
// Size arrives as a decimal string on the wire.
type objectResource struct {
	ContentType string            `json:"contentType"`
	Size        string            `json:"size"`
	Updated     string            `json:"updated"`
	Metadata    map[string]string `json:"metadata"`
}

// GetObjectMetadata implements MetadataResolver.
func (c *GCSClient) GetObjectMetadata(ctx context.Context, loc ObjectLocation) (domain.ObjectMetadata, error) {
	endpoint := fmt.Sprintf("%s/b/%s/o/%s", c.endpoint, url.PathEscape(loc.Bucket), url.PathEscape(loc.Object))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("build metadata request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return domain.ObjectMetadata{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("%w: object %s", err, loc)
	}

	var res objectResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("decode object resource: %w", err)
	}

	size, _ := strconv.ParseInt(res.Size, 10, 64)
	return domain.ObjectMetadata{
		ContentType:  res.ContentType,
		Size:         size,
		UpdateTime:   res.Updated,
		CustomFields: res.Metadata,
	}, nil
}

// Put implements AuditSink via a media upload.
func (c *GCSClient) Put(ctx context.Context, loc ObjectLocation, data []byte) error {
	endpoint := fmt.Sprintf("%s/b/%s/o?uploadType=media&name=%s",
		c.uploadEndpoint, url.PathEscape(loc.Bucket), url.QueryEscape(loc.Object))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("%w: object %s", err, loc)
	}
	return nil
}

func (c *GCSClient) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch storage token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrObjectNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrPermissionDenied
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}
}
