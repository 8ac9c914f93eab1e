package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"uptimestrip/internal/config"
)

const (
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
	userAgent      = "uptimestrip"
)

// ErrRateLimited is returned when the upstream refuses the request for quota reasons.
var ErrRateLimited = errors.New("upstream rate limit reached")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d", e.URL, e.Status)
}

// Client performs JSON GET requests through a shared rate-limited queue,
// retrying failures with linear backoff.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
	sleep    func(context.Context, time.Duration) error
}

// NewClient builds a client from retry and rate-limit settings.
func NewClient(retry config.Retry, limit config.RateLimit) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return NewClientWithHTTP(&http.Client{Transport: transport, Timeout: requestTimeout}, retry, limit)
}

// NewClientWithHTTP is NewClient with a caller supplied http.Client.
func NewClientWithHTTP(hc *http.Client, retry config.Retry, limit config.RateLimit) *Client {
	attempts := retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	every := rate.Inf
	if limit.RequestsPerMinute > 0 {
		every = rate.Every(time.Minute / time.Duration(limit.RequestsPerMinute))
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:     hc,
		limiter:  rate.NewLimiter(every, burst),
		attempts: attempts,
		delay:    retry.Delay(),
		sleep:    sleepContext,
	}
}

// GetJSON fetches url and decodes the body into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Get fetches url and returns the raw body. Rate limit responses are not retried.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.do(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, c.delay*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", url, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
