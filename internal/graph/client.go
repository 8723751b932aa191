package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Retry and backoff constants.
const (
	maxRetries       = 5
	baseBackoff      = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "irdrive/0.1"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (graph package) per Go convention "accept interfaces, return structs".
// auth.Manager provides the real implementation, bound to one session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a TokenSource that always yields tok. Used by tests.
func StaticToken(tok string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return tok, nil })
}

// Client is an HTTP client for the Microsoft Graph API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL. An empty userAgent uses the default.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if token == nil {
		panic("graph: NewClient requires a non-nil TokenSource")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}
}

// request describes a single API call. body is held as bytes so the call
// can be replayed on retry.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string

	// retryable marks a POST as safe to replay. GET, HEAD, PUT and DELETE
	// are always replayable.
	retryable bool
}

func (r *request) canRetry() bool {
	switch r.method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return r.retryable
	}
}

// Do executes a JSON request against the Graph API. The path is appended to
// the client's base URL. POST requests are sent once; use the typed methods
// for conflict-checked creates. The caller closes the response body.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req := &request{method: method, path: path, body: body}
	if body != nil {
		req.contentType = "application/json"
	}

	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, r *request) (*http.Response, error) {
	url := c.baseURL + r.path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, r, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
			}

			var perm *permanentError
			if errors.As(err, &perm) {
				return nil, perm.err
			}

			if r.canRetry() && attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", r.method),
					slog.String("path", r.path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("graph: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s after %d attempts: %w", ErrTransport, r.method, r.path, attempt+1, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && r.canRetry() && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, newGraphError(resp, errBody)
	}
}

// permanentError marks a failure raised before anything was sent (request
// construction or the token source). The retry loop surfaces it unchanged.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r *request, url string) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("graph: creating request: %w", err)}
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("graph: obtaining token: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	return c.httpClient.Do(req)
}

// doPreAuth sends a request to a pre-authenticated URL (upload session
// chunks). No Authorization header is attached and the URL is never logged.
func (c *Client) doPreAuth(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("graph: creating pre-authenticated request: %w", err)
	}

	for k, v := range header {
		req.Header[k] = v
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = int64(len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("%w: pre-authenticated %s: %w", ErrTransport, method, err)
	}

	return resp, nil
}

// retryBackoff returns the backoff duration for a retryable response.
// A Retry-After header on 429 or 503 takes precedence, capped at maxBackoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, maxBackoff)
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
