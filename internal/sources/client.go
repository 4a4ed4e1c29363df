// Package sources provides the paginated HTTP clients for the three
// upstream line-of-business APIs, with bounded linear retry around each
// page fetch.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/logger"
)

const defaultRequestTimeout = 30 * time.Second

// retryInterval is the base backoff unit: the delay before retry attempt
// n is n * retryInterval.
const retryInterval = time.Second

// Page is one page of a paginated source API response.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// IntegrationError is returned when a page fetch exhausted its retries.
// It is job-fatal for the staging step.
type IntegrationError struct {
	Source   string
	Page     int
	Attempts int
	Err      error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("failed to fetch %s page %d after %d attempts: %v",
		e.Source, e.Page, e.Attempts, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Client is a paginated source API client shared by the three typed
// clients.
type Client struct {
	httpClient *http.Client
	source     string
	baseURL    string
	pageSize   int
	maxRetries int
}

func newClient(source string, cfg config.SourceConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		httpClient: httpClient,
		source:     source,
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
	}
}

// fetchPage performs a single page fetch:
// GET {baseUrl}/api/{resource}?page={n}&size={pageSize}
func fetchPage[T any](ctx context.Context, c *Client, resource string, page int) (*Page[T], error) {
	url := fmt.Sprintf("%s/api/%s?page=%d&size=%d", c.baseURL, resource, page, c.pageSize)
	logger.Debugf("Fetching %s page: %s", c.source, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var out Page[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// fetchPageWithRetry wraps fetchPage in a linear backoff retry (delay =
// attempt * 1s) bounded by the client's maxRetries. Context cancellation
// interrupts the backoff sleep and is fatal.
func fetchPageWithRetry[T any](ctx context.Context, c *Client, resource string, page int) (*Page[T], error) {
	attempts := 0
	op := func() (*Page[T], error) {
		attempts++
		return fetchPage[T](ctx, c, resource, page)
	}
	notify := func(err error, delay time.Duration) {
		logger.Warnf("%s API request failed (page=%d, attempt=%d/%d), retrying in %s: %v",
			c.source, page, attempts, c.maxRetries, delay, err)
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newLinearBackOff(retryInterval)),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("interrupted during retry backoff: %w", ctx.Err())
		}
		return nil, &IntegrationError{Source: c.source, Page: page, Attempts: attempts, Err: err}
	}
	return result, nil
}

// fetchAll loops pages 0..totalPages-1, accumulating items. It stops
// early when a page's content is absent.
func fetchAll[T any](ctx context.Context, c *Client, resource string) ([]T, error) {
	var all []T
	page := 0
	totalPages := 0

	for {
		resp, err := fetchPageWithRetry[T](ctx, c, resource, page)
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.Content == nil {
			break
		}
		all = append(all, resp.Content...)
		totalPages = resp.TotalPages
		page++
		logger.Infof("Fetched %s page %d/%d (%d items so far)", c.source, page, totalPages, len(all))
		if page >= totalPages {
			break
		}
	}

	logger.Infof("Fetched %d total items from %s API", len(all), c.source)
	return all, nil
}

// linearBackOff implements delay = attempt * interval.
type linearBackOff struct {
	interval time.Duration
	attempt  int
}

func newLinearBackOff(interval time.Duration) *linearBackOff {
	return &linearBackOff{interval: interval}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
