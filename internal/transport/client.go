// Package transport provides the resilient HTTP session used by every OSF
// API call: pooled connections, bearer authentication, error
// classification, retry with backoff, lazy pagination, and streaming
// transfers in bounded chunks.
package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/osffs/osffs/internal/config"
	"github.com/osffs/osffs/internal/metrics"
	"github.com/osffs/osffs/pkg/errors"
	"github.com/osffs/osffs/pkg/retry"
)

const userAgent = "osffs"

// maxErrorBody bounds how much of an error response body is read for the
// error detail.
const maxErrorBody = 8 * 1024

// Client is one HTTP session against the OSF API. It is safe for reuse
// across sequential operations; the connection pool is its only shared
// mutable state.
type Client struct {
	endpoint string
	token    string

	httpClient *http.Client
	retryer    *retry.Retryer

	timeout           time.Duration
	uploadChunkTime   time.Duration
	downloadChunkSize int

	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a transport client from the configuration. logger and
// collector may be nil.
func New(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	poolSize := cfg.Network.PoolSize
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		MaxConnsPerHost:       poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Network.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		endpoint:          strings.TrimRight(cfg.Endpoint, "/") + "/",
		token:             cfg.Token,
		httpClient:        &http.Client{Transport: httpTransport},
		timeout:           cfg.Network.Timeout,
		uploadChunkTime:   cfg.Network.UploadChunkTimeout,
		downloadChunkSize: cfg.Transfer.DownloadChunkSize,
		logger:            logger,
		metrics:           collector,
	}

	rc := retry.Config{
		MaxRetries:          cfg.Retry.MaxRetries,
		BaseDelay:           cfg.Retry.BaseDelay,
		MaxDelay:            cfg.Retry.MaxDelay,
		Multiplier:          cfg.Retry.Multiplier,
		RateLimitMultiplier: cfg.Retry.RateLimitMultiplier,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			code := errors.CodeOf(err)
			collector.RecordRetry(string(code))
			if errors.IsRateLimited(err) {
				collector.RecordRateLimitWait()
			}
			logger.Debug("retrying request",
				"attempt", attempt,
				"code", string(code),
				"delay", delay)
		},
	}
	c.retryer = retry.New(rc)
	return c
}

// ResolveURL joins a relative API path onto the configured endpoint.
// Absolute URLs (endpoint references from a prior metadata fetch) pass
// through unchanged.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.endpoint + strings.TrimLeft(path, "/")
}

// DownloadChunkSize returns the configured streamed-read granularity.
func (c *Client) DownloadChunkSize() int {
	return c.downloadChunkSize
}

// UploadChunkTimeout returns the per-chunk upload deadline.
func (c *Client) UploadChunkTimeout() time.Duration {
	return c.uploadChunkTime
}

// newRequest builds a request carrying the bearer credential. The token is
// written into the header only; it must never appear in an error value or
// a log record.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeClientError, "invalid request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do issues one attempt and classifies the outcome. A non-2xx response is
// drained, closed, and converted into an OSFError; a 2xx response is
// returned with its body open.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}()

	detail := readErrorDetail(resp)
	clsErr := errors.FromStatusCode(resp.StatusCode, detail)
	if resp.StatusCode == http.StatusTooManyRequests {
		clsErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return nil, clsErr
}

// classifyTransportError folds network-level failures into the taxonomy.
// Timeouts surface as retryable per the cancellation model: an exceeded
// deadline is indistinguishable from a transient stall.
func classifyTransportError(err error) *errors.OSFError {
	var nerr net.Error
	if stderrors.As(err, &nerr) && nerr.Timeout() {
		return errors.Wrap(errors.ErrCodeOperationTimeout, "request timed out", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeOperationTimeout, "request timed out", err)
	}
	return errors.Wrap(errors.ErrCodeNetworkError, "request failed", err)
}

// readErrorDetail extracts the JSON:API error detail, falling back to a
// bounded slice of the raw body.
func readErrorDetail(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return ""
	}
	var envelope struct {
		Errors []struct {
			Detail string `json:"detail"`
			Status string `json:"status"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Errors) > 0 && envelope.Errors[0].Detail != "" {
		return envelope.Errors[0].Detail
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// GetJSON issues a GET with retry and decodes the 2xx response body into
// out. out may be nil to discard the body.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.retryer.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := c.newRequest(reqCtx, http.MethodGet, c.ResolveURL(url), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if out == nil {
			return drainBody(resp.Body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrCodeClientError, "malformed API response", err)
		}
		return nil
	})
}

// drainBody consumes a response body we do not decode. A failure here is a
// broken stream and classifies like any other transport failure.
func drainBody(body io.Reader) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError, "stream interrupted", err)
	}
	return nil
}

// Delete issues a DELETE with retry.
func (c *Client) Delete(ctx context.Context, url string) error {
	return c.retryer.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := c.newRequest(reqCtx, http.MethodDelete, c.ResolveURL(url), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return drainBody(resp.Body)
	})
}

// PutJSON issues a bodyless or small-bodied PUT with retry and decodes the
// response into out. Used for folder creation, where the body is empty and
// everything is in the URL.
func (c *Client) PutJSON(ctx context.Context, url string, out interface{}) error {
	return c.retryer.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := c.newRequest(reqCtx, http.MethodPut, c.ResolveURL(url), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if out == nil {
			return drainBody(resp.Body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrCodeClientError, "malformed API response", err)
		}
		return nil
	})
}

// OpenDownload issues a streaming GET and returns the open response body.
// Retry covers request initiation only: once bytes are flowing the caller
// owns the stream, and a failure there surfaces to the caller. The header
// wait is bounded by the transport's ResponseHeaderTimeout rather than a
// context deadline so the body is not cut off mid-stream.
func (c *Client) OpenDownload(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, c.ResolveURL(url), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
