package gdc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DataResponse is the outcome of one data endpoint request.
type DataResponse struct {
	StatusCode int
	Body       []byte
	URL        string
}

// DataURL returns the download URL of a file.
func (c *Client) DataURL(fileID string) string {
	return c.config.APIURL + "/data/" + url.PathEscape(fileID)
}

// Download fetches the content of fileID. Transport failures and retryable
// statuses are retried; once retries are exhausted the last response is
// returned as is so the caller can classify it. An error is returned only
// when no response was received at all.
func (c *Client) Download(ctx context.Context, fileID, token string) (*DataResponse, error) {
	return c.get(ctx, "download", fileID, token, nil)
}

// CanDownload issues a two byte ranged request for fileID and reports
// whether the token grants access to it.
func (c *Client) CanDownload(ctx context.Context, fileID, token string) (bool, error) {
	resp, err := c.get(ctx, "probe", fileID, token, http.Header{"Range": []string{"bytes=0-1"}})
	if err != nil {
		return false, err
	}
	return resp.StatusCode != http.StatusForbidden, nil
}

func (c *Client) get(ctx context.Context, op, fileID, token string, header http.Header) (*DataResponse, error) {
	target := c.DataURL(fileID)
	logger := c.logger.With("op", op, "file_id", fileID)

	var last *DataResponse
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		for k, v := range header {
			req.Header[k] = v
		}
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}

		logger.Debug("sending request", "attempt", attempt)
		resp, err := c.dataClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		last = &DataResponse{StatusCode: resp.StatusCode, Body: body, URL: resp.Request.URL.String()}
		if retryableStatus(resp.StatusCode) {
			return &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
		}
		return nil
	}

	start := time.Now()
	notify := func(err error, delay time.Duration) {
		logger.Warn("download failed, retrying", "error", err, "delay", delay)
	}
	err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify)

	var httpErr *HTTPError
	switch {
	case err == nil:
	case errors.As(err, &httpErr) && last != nil && ctx.Err() == nil:
		// Out of retries on a retryable status; the caller classifies it.
	default:
		return nil, &Error{Op: op, Err: err}
	}
	logger.Debug("request complete", "status", last.StatusCode, "bytes", len(last.Body), "duration", time.Since(start))
	return last, nil
}
