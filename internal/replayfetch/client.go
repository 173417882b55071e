package replayfetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	DefaultMaxBytes = 16 << 20
	DefaultTimeout  = 15 * time.Second
)

var (
	ErrTooLarge   = errors.New("replay download exceeds size limit")
	ErrInvalidURL = errors.New("replay url must be http or https")
)

// StatusError reports a non-2xx answer from the replay host.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("replay download: status=%d body=%s", e.Code, e.Body)
}

// Client downloads replay files from the add-on server or any http host.
type Client struct {
	http *fasthttp.Client
	log  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
	maxBytes       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxBytes(n int) Option {
	return func(c *Client) { c.maxBytes = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDial replaces the dialer, used by tests with an in-memory listener.
func WithDial(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = d }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:           &fasthttp.Client{ReadTimeout: DefaultTimeout, WriteTimeout: DefaultTimeout, MaxConnsPerHost: 16},
		log:            zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		retryMax:       3,
		maxBytes:       DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	c.http.MaxResponseBodySize = c.maxBytes
	return c
}

// Fetch downloads url and returns the raw body. Transport errors and 5xx
// answers are retried with backoff; an oversized body is not.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	lower := strings.ToLower(strings.TrimSpace(url))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, ErrInvalidURL
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(strings.TrimSpace(url))

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if errors.Is(err, fasthttp.ErrBodyTooLarge) {
				return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)
			}
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			serr := &StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
			if !shouldRetryStatus(status) {
				return nil, serr
			}
			lastErr = serr
		} else {
			body := resp.Body()
			if len(body) > c.maxBytes {
				return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)
			}
			return append([]byte(nil), body...), nil
		}

		if attempt == attempts {
			break
		}
		c.log.Debug("replay download retry", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(lastErr))
		if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
