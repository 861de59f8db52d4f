package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/domain/analysis"
	"idealens/internal/logging"
)

// Options tunes retry behavior for one upstream.
type Options struct {
	Timeout     time.Duration // per-attempt cap
	MaxRetries  int           // retries after the first attempt
	BaseBackoff time.Duration
	BackoffCap  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 10 * time.Second
	}
	return o
}

// Request is a replayable outbound call. Body is held as bytes so retries
// can resend it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Source string // label for attempt logs
}

// Client wraps outbound HTTP with timeout, exponential backoff and
// rate-limit aware retries.
//
// Policy per status:
//   - 429: sleep the retry-after header if present, else backoff, then retry
//   - 503 and transport errors: exponential backoff retry
//   - 401/403: fail immediately, never retried
//   - 404: analysis.ErrNotFound, so enumeration loops can skip the source
type Client struct {
	http *http.Client
	opts Options
}

func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}
}

// Do runs the request under the retry policy. On success the caller owns the
// response body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	log := logging.From(ctx)
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		resp, err := c.send(ctx, req)
		switch {
		case err == nil && resp.StatusCode < 300:
			log.Debug("outbound request ok",
				"source", req.Source, "attempt", attempt, "status", resp.StatusCode)
			return resp, nil

		case err != nil:
			if ctx.Err() != nil {
				return nil, goerr.Wrap(ctx.Err(), "request canceled",
					goerr.V("source", req.Source), goerr.T(analysis.TagTimeout))
			}
			lastErr = err
			log.Warn("outbound request failed",
				"source", req.Source, "attempt", attempt, "error", err)

		default:
			status := resp.StatusCode
			body := drain(resp)
			switch status {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, goerr.New("upstream rejected credentials",
					goerr.V("source", req.Source), goerr.V("status", status),
					goerr.T(analysis.TagAuth))
			case http.StatusNotFound:
				return nil, goerr.Wrap(analysis.ErrNotFound, "resource not found",
					goerr.V("source", req.Source), goerr.V("url", req.URL))
			case http.StatusTooManyRequests:
				wait := retryAfter(resp)
				if wait > 0 {
					log.Warn("rate limited, honoring retry-after",
						"source", req.Source, "attempt", attempt, "wait", wait)
					if err := sleep(ctx, wait); err != nil {
						return nil, goerr.Wrap(err, "canceled while rate limited",
							goerr.T(analysis.TagTimeout))
					}
					lastErr = goerr.New("rate limited",
						goerr.V("source", req.Source), goerr.T(analysis.TagRateLimited))
					continue
				}
				lastErr = goerr.New("rate limited",
					goerr.V("source", req.Source), goerr.T(analysis.TagRateLimited))
			case http.StatusServiceUnavailable:
				lastErr = goerr.New("upstream unavailable",
					goerr.V("source", req.Source), goerr.V("status", status))
			default:
				// Other client/server errors are not retried.
				return nil, goerr.New("upstream error",
					goerr.V("source", req.Source), goerr.V("status", status),
					goerr.V("body", truncate(body, 256)))
			}
			log.Warn("outbound request retryable failure",
				"source", req.Source, "attempt", attempt, "status", status)
		}

		if attempt == c.opts.MaxRetries {
			break
		}
		if err := sleep(ctx, c.backoff(attempt)); err != nil {
			return nil, goerr.Wrap(err, "canceled during backoff", goerr.T(analysis.TagTimeout))
		}
	}

	return nil, goerr.Wrap(lastErr, "retries exhausted",
		goerr.V("source", req.Source), goerr.V("attempts", c.opts.MaxRetries+1),
		goerr.T(analysis.TagExhausted))
}

// Once runs the request exactly once and classifies the failure without
// retrying. Callers that pace themselves across many resources (channel
// enumeration) use this so one rate limit does not stall the whole sweep;
// a 429 error carries the parsed retry-after as "retry_after".
func (c *Client) Once(ctx context.Context, req Request) (*http.Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "request canceled",
				goerr.V("source", req.Source), goerr.T(analysis.TagTimeout))
		}
		return nil, goerr.Wrap(err, "request failed", goerr.V("source", req.Source))
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	status := resp.StatusCode
	body := drain(resp)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, goerr.New("upstream rejected credentials",
			goerr.V("source", req.Source), goerr.V("status", status),
			goerr.T(analysis.TagAuth))
	case http.StatusNotFound:
		return nil, goerr.Wrap(analysis.ErrNotFound, "resource not found",
			goerr.V("source", req.Source), goerr.V("url", req.URL))
	case http.StatusTooManyRequests:
		return nil, goerr.New("rate limited",
			goerr.V("source", req.Source), goerr.V("retry_after", retryAfter(resp)),
			goerr.T(analysis.TagRateLimited))
	default:
		return nil, goerr.New("upstream error",
			goerr.V("source", req.Source), goerr.V("status", status),
			goerr.V("body", truncate(body, 256)))
	}
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode upstream JSON",
			goerr.V("source", req.Source))
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return c.http.Do(httpReq)
}

// backoff is min(base * 2^attempt, cap) with up to 20% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseBackoff * time.Duration(1<<attempt)
	if d > c.opts.BackoffCap {
		d = c.opts.BackoffCap
	}
	jitter := time.Duration(rand.Float64() * 0.2 * float64(d))
	return d + jitter
}

// retryAfter parses the Retry-After header as whole seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func drain(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsNotFound reports whether err stems from an upstream 404.
func IsNotFound(err error) bool {
	return errors.Is(err, analysis.ErrNotFound)
}

// RetryAfterOf extracts the retry-after duration recorded on a rate limit
// error, zero if absent.
func RetryAfterOf(err error) time.Duration {
	if g := goerr.Unwrap(err); g != nil {
		if d, ok := g.Values()["retry_after"].(time.Duration); ok {
			return d
		}
	}
	return 0
}
