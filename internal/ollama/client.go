// Package ollama is a small client for the inference server's HTTP API.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://localhost:11434"

// Config configures a Client. Zero values take the defaults noted per field.
type Config struct {
	BaseURL      string        // default DefaultBaseURL
	Retries      int           // total attempts on connection failure, default 3
	RetryDelay   time.Duration // fixed delay between attempts, default 2s
	Timeout      time.Duration // per request, default 30s
	ProbeTimeout time.Duration // health probe, default 5s
	Logger       *slog.Logger
}

// Client talks to the inference server.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	probe   *http.Client
	logger  *slog.Logger
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = cfg.Logger
	rc.RetryMax = cfg.Retries - 1
	rc.RetryWaitMin = cfg.RetryDelay
	rc.RetryWaitMax = cfg.RetryDelay
	rc.Backoff = func(minWait, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return minWait
	}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = errorHandler

	probe := cleanhttp.DefaultPooledClient()
	probe.Timeout = cfg.ProbeTimeout

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		probe:   probe,
		logger:  cfg.Logger,
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsHealthy reports whether GET /api/tags answers 200. It never fails.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		c.logger.Debug("Health probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the models available on the server.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var tags tagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return tags.Models, nil
}

// HasModel reports whether name is available. A name without a tag
// matches its ":latest" variant.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := normalizeModel(name)
	for _, m := range models {
		if normalizeModel(m.Name) == want {
			return true, nil
		}
	}
	return false, nil
}

// Generate requests a single, non-streamed completion. Connection failures
// are retried with a fixed delay; exhaustion yields a *ConnectionError.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false

	start := time.Now()
	var resp GenerateResponse
	err := c.do(ctx, http.MethodPost, "/api/generate", req, &resp)
	generateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		generateRequests.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	generateRequests.WithLabelValues("ok").Inc()
	c.logger.Debug("Generated response", "model", resp.Model, "eval_count", resp.EvalCount, "duration", time.Since(start))
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var raw any
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkRetry retries transport failures that look like a lost connection.
// Status codes are never retried.
func checkRetry(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return err != nil && isConnectionError(err), nil
}

// errorHandler turns exhausted connection retries into a ConnectionError.
func errorHandler(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if err == nil {
		return resp, nil
	}
	if resp != nil {
		resp.Body.Close()
	}
	if isConnectionError(err) {
		return nil, &ConnectionError{Attempts: numTries, Err: err}
	}
	return nil, err
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return true
}

func resultLabel(err error) string {
	var connErr *ConnectionError
	var statusErr *StatusError
	switch {
	case errors.As(err, &connErr):
		return "connection_error"
	case errors.As(err, &statusErr):
		return "status_error"
	default:
		return "error"
	}
}

func normalizeModel(name string) string {
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}
