// Package torznab talks to a Prowlarr-compatible search provider: indexer
// enumeration, concurrent Torznab searches with per-indexer snooze state,
// and candidate metadata downloads.
package torznab

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/crossarr/crossarr/internal/store"
)

const (
	defaultTimeout = 90 * time.Second
	//nolint:gosec // header name constant, not a credential
	apiKeyHeader = "X-Api-Key"

	// Per-indexer search timeout during fan-out.
	searchTimeout = 30 * time.Second

	// Snooze window after a non-429 indexer failure.
	errorSnoozeWindow = 10 * time.Minute

	// Snooze window for a 429 without a Retry-After header.
	rateLimitSnoozeWindow = 30 * time.Minute
)

// Snooze statuses persisted per indexer.
const (
	StatusOK          = "ok"
	StatusRateLimited = "rate_limited"
	StatusError       = "error"
)

var (
	// ErrRateLimited marks a 429 download response. Not retryable.
	ErrRateLimited = errors.New("torznab: rate limited")
	// ErrMagnetLink marks a magnet-only candidate. There is nothing to fetch.
	ErrMagnetLink = errors.New("torznab: magnet link, no metadata file")
)

// BackoffStore persists per-indexer snooze state across runs.
type BackoffStore interface {
	GetIndexerBackoff(ctx context.Context, providerID, indexerID int64) (store.IndexerBackoff, error)
	UpsertIndexerBackoff(ctx context.Context, b store.IndexerBackoff) error
}

// Client provides HTTP communication with a search provider.
type Client struct {
	baseURL    string
	apiKey     string
	providerID int64
	httpClient *http.Client
	backoff    BackoffStore
	logger     *zerolog.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	URL           string
	APIKey        string
	ProviderID    int64
	Timeout       int
	SkipSSLVerify bool
	Backoff       BackoffStore
	Logger        *zerolog.Logger
}

// NewClient creates a new search-provider HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	transport := &http.Transport{}
	if cfg.SkipSSLVerify {
		//nolint:gosec // admin-configured endpoint, TLS verification optional
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	logger := cfg.Logger.With().
		Str("component", "torznab-client").
		Str("url", baseURL).
		Logger()

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		providerID: cfg.ProviderID,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		backoff:    cfg.Backoff,
		logger:     &logger,
		now:        time.Now,
		retryDelay: downloadRetryDelay,
	}, nil
}

// do executes an HTTP request with the API key header. The path may be an
// absolute URL when a result link points off the provider host.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// doJSON executes a GET request and decodes the JSON response.
func (c *Client) doJSON(ctx context.Context, path string, result interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// TestConnection verifies connectivity by fetching system status.
func (c *Client) TestConnection(ctx context.Context) error {
	var status struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, "/api/v1/system/status", &status); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	c.logger.Debug().Str("version", status.Version).Msg("connection test successful")
	return nil
}

// ListIndexers fetches the indexers configured on the provider.
func (c *Client) ListIndexers(ctx context.Context) ([]Indexer, error) {
	var indexers []Indexer
	if err := c.doJSON(ctx, "/api/v1/indexer", &indexers); err != nil {
		return nil, fmt.Errorf("failed to fetch indexers: %w", err)
	}
	c.logger.Debug().Int("count", len(indexers)).Msg("fetched indexers")
	return indexers, nil
}

// searchIndexer queries one indexer's Torznab endpoint. Malformed XML
// degrades to an empty result set rather than an error.
func (c *Client) searchIndexer(ctx context.Context, idx Indexer, query string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", query)
	path := fmt.Sprintf("/%d/api?%s", idx.ID, params.Encode())

	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		c.snoozeError(idx.ID)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.snoozeStatus(idx.ID, resp.StatusCode, resp.Header.Get("Retry-After"))
		return nil, fmt.Errorf("indexer %q returned status %d", idx.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.snoozeError(idx.ID)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.clearSnooze(idx.ID)

	var doc feed
	if err := xml.Unmarshal(body, &doc); err != nil {
		c.logger.Warn().Err(err).
			Int64("indexerId", idx.ID).
			Str("indexer", idx.Name).
			Msg("malformed search response, treating as empty")
		return nil, nil
	}

	results := make([]SearchResult, 0, len(doc.Channel.Items))
	for i := range doc.Channel.Items {
		results = append(results, doc.Channel.Items[i].toResult(idx.ID, idx.Name))
	}
	return results, nil
}

// snoozed reports whether an indexer should be skipped right now.
func (c *Client) snoozed(ctx context.Context, indexerID int64) bool {
	if c.backoff == nil {
		return false
	}
	b, err := c.backoff.GetIndexerBackoff(ctx, c.providerID, indexerID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		c.logger.Warn().Err(err).Int64("indexerId", indexerID).Msg("failed to read snooze state")
		return false
	}
	return b.RetryAfter != nil && b.RetryAfter.After(c.now())
}

func (c *Client) snoozeStatus(indexerID int64, statusCode int, retryAfterHeader string) {
	status := StatusError
	window := errorSnoozeWindow

	if statusCode == http.StatusTooManyRequests || retryAfterHeader != "" {
		status = StatusRateLimited
		window = rateLimitSnoozeWindow
		if d, ok := parseRetryAfter(retryAfterHeader, c.now()); ok {
			window = d
		}
	}

	retry := c.now().Add(window)
	c.writeSnooze(store.IndexerBackoff{
		ProviderID: c.providerID,
		IndexerID:  indexerID,
		Status:     status,
		RetryAfter: &retry,
	})
}

func (c *Client) snoozeError(indexerID int64) {
	retry := c.now().Add(errorSnoozeWindow)
	c.writeSnooze(store.IndexerBackoff{
		ProviderID: c.providerID,
		IndexerID:  indexerID,
		Status:     StatusError,
		RetryAfter: &retry,
	})
}

func (c *Client) clearSnooze(indexerID int64) {
	c.writeSnooze(store.IndexerBackoff{
		ProviderID: c.providerID,
		IndexerID:  indexerID,
		Status:     StatusOK,
	})
}

func (c *Client) writeSnooze(b store.IndexerBackoff) {
	if c.backoff == nil {
		return
	}
	// Snooze writes outlive the per-indexer search context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.backoff.UpsertIndexerBackoff(ctx, b); err != nil {
		c.logger.Warn().Err(err).Int64("indexerId", b.IndexerID).Msg("failed to persist snooze state")
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil && t.After(now) {
		return t.Sub(now), true
	}
	return 0, false
}
