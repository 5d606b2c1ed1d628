// Package client provides HTTP access to the monitoring backend: the SRQL
// query endpoint plus the typed poller, log, and performance-metric routes.
// Transient failures are retried with capped exponential backoff and jitter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/srql"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 250 * time.Millisecond
	maxRetryDelay        = 10 * time.Second
	retryJitterPercent   = 20
)

// Config holds backend connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each HTTP attempt, not the whole retried call.
	Timeout time.Duration
	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts uint64
	RetryBase     time.Duration
}

// Client is a backend API client. Safe for concurrent use.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	retryAttempts uint64
	retryBase     time.Duration
	logger        *slog.Logger
}

// New creates a backend client. apiKey may be empty when the backend does not
// require one.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		retryAttempts: cfg.RetryAttempts,
		retryBase:     cfg.RetryBase,
		logger:        slog.Default(),
	}
}

// Query executes one SRQL query via POST /api/query.
func (c *Client) Query(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	var resp models.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/query", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("query %q failed: %s", req.Query, resp.Error)
	}
	return &resp, nil
}

// Pollers lists all known pollers with their health summaries.
func (c *Client) Pollers(ctx context.Context) ([]models.Poller, error) {
	var pollers []models.Poller
	if err := c.do(ctx, http.MethodGet, "/api/pollers", nil, &pollers); err != nil {
		return nil, err
	}
	return pollers, nil
}

// CriticalLogs fetches the most recent critical-severity log entries.
func (c *Client) CriticalLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	path := "/api/logs/critical"
	if limit > 0 {
		path += "?limit=" + fmt.Sprint(limit)
	}
	var logs []models.LogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Rperf fetches network performance measurements for one poller over a time
// window. A zero window asks the backend for its default range.
func (c *Client) Rperf(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.RperfMetric, error) {
	var metrics []models.RperfMetric
	path := fmt.Sprintf("/api/pollers/%s/rperf%s", url.PathEscape(pollerID), windowQuery(w))
	if err := c.do(ctx, http.MethodGet, path, nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// SysmonCPU fetches per-core CPU samples for one poller.
func (c *Client) SysmonCPU(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.CPUMetric, error) {
	var metrics []models.CPUMetric
	if err := c.do(ctx, http.MethodGet, sysmonPath(pollerID, "cpu", w), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// SysmonMemory fetches memory samples for one poller.
func (c *Client) SysmonMemory(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.MemoryMetric, error) {
	var metrics []models.MemoryMetric
	if err := c.do(ctx, http.MethodGet, sysmonPath(pollerID, "memory", w), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// SysmonDisk fetches disk usage samples for one poller.
func (c *Client) SysmonDisk(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.DiskMetric, error) {
	var metrics []models.DiskMetric
	if err := c.do(ctx, http.MethodGet, sysmonPath(pollerID, "disk", w), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func sysmonPath(pollerID, kind string, w srql.TimeWindow) string {
	return fmt.Sprintf("/api/pollers/%s/sysmon/%s%s", url.PathEscape(pollerID), kind, windowQuery(w))
}

func windowQuery(w srql.TimeWindow) string {
	if w.IsZero() {
		return ""
	}
	q := url.Values{}
	q.Set("start", w.Start.UTC().Format(time.RFC3339))
	q.Set("end", w.End.UTC().Format(time.RFC3339))
	return "?" + q.Encode()
}

// do performs one backend call with retries, decoding a 2xx response body
// into out. Server-side (5xx) and transport failures are retried; client
// errors are returned as-is so callers can map them.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	backoff, err := retry.NewExponential(c.retryBase)
	if err != nil {
		return fmt.Errorf("create retry backoff: %w", err)
	}
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithMaxRetries(c.retryAttempts, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return err
		}

		c.logger.Warn("Backend request failed, retrying",
			"method", method, "path", path, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
