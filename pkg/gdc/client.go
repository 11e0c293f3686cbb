package gdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/me/gdcmaf/internal/logging"
)

// Client talks to the GDC files and data endpoints.
type Client struct {
	httpClient *http.Client
	dataClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a GDC API client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.DownloadTimeout == 0 {
		config.DownloadTimeout = DefaultDownloadTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		dataClient: &http.Client{Timeout: config.DownloadTimeout},
		config:     config,
		logger:     logger.With("component", "gdc-client"),
	}
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// newBackOff builds the retry policy for one operation.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.config.RetryDelay > 0 {
		b.InitialInterval = c.config.RetryDelay
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// postJSON sends body to path and decodes the JSON response into out,
// retrying transport failures and retryable HTTP statuses.
func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	url := c.config.APIURL + path
	logger := c.logger.With("op", op, "url", url)

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		logger.Debug("sending request", "attempt", attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 1024)}
			if httpErr.IsRetryable() {
				return httpErr
			}
			return backoff.Permanent(httpErr)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("parse response: %w", err))
		}
		return nil
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("request failed, retrying", "error", err, "delay", delay)
	}
	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
