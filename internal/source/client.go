package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"market-sync/internal/series"
)

const maxBody = 32 << 20

type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries uint64
	// InitialInterval is the first backoff wait; it grows exponentially.
	InitialInterval time.Duration
	UserAgent       string
	Throttle        *Throttle
}

// Client performs source GETs with retries on transient failures.
type Client struct {
	http *http.Client
	opts ClientOptions
	log  *zap.Logger
}

func NewClient(opts ClientOptions, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; marketsync/1.0)"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log,
	}
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.url, e.code) }

// Get returns the body at url. 404 and an empty body are reported as
// series.ErrSourceUnavailable.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		if err := c.opts.Throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, err := c.getOnce(ctx, url)
		if err != nil {
			if ctx.Err() == nil && shouldRetry(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, c.opts.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("fetch retry", zap.String("url", url), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("GET %s: status %d: %w", url, resp.StatusCode, series.ErrSourceUnavailable)
	}
	if resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("GET %s: empty body: %w", url, series.ErrSourceUnavailable)
	}
	return body, nil
}

func shouldRetry(err error) bool {
	if err == nil || errors.Is(err, series.ErrSourceUnavailable) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "reset by peer") ||
		strings.Contains(msg, "connection refused")
}
