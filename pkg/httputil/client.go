package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/watson/pkg/config"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/redis"
)

// BrowserUserAgent is sent to sources that reject non-browser clients
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrCircuitOpen is returned while the upstream breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// Client is the outbound HTTP client for Slickcharts and Finnhub.
// Each upstream gets its own Client so breakers and limits stay separate.
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	retry      RetryConfig
	headers    map[string]string
	breaker    *gobreaker.CircuitBreaker
	limiter    *redis.RateLimiter
	limit      redis.RateLimitConfig
}

// RetryConfig controls retries of 5xx and 429 responses
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration // also caps Retry-After
}

// New creates a client with a 30s timeout and 3 retries
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
		retry: RetryConfig{
			Enabled:      true,
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		headers: map[string]string{},
	}
}

// WithTimeout sets the per-attempt timeout
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// WithRetry enables retries with exponential backoff from initialDelay
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retry.Enabled = true
	c.retry.MaxRetries = maxRetries
	c.retry.InitialDelay = initialDelay
	return c
}

// DisableRetry sends every request once
func (c *Client) DisableRetry() *Client {
	c.retry.Enabled = false
	return c
}

// WithHeader adds a header sent on every request
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

// WithUserAgent sets the User-Agent header
func (c *Client) WithUserAgent(ua string) *Client {
	return c.WithHeader("User-Agent", ua)
}

// WithCircuitBreaker trips after maxFailures consecutive failed requests
// and stays open for cooldown before letting a probe through.
func (c *Client) WithCircuitBreaker(name string, maxFailures uint32, cooldown time.Duration) *Client {
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// WithRateLimiter waits for a slot in the shared window before each request
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.limiter = limiter
	c.limit = cfg
	return c
}

// Get performs a GET request. Non-2xx responses are returned, not errors.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.limit); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	start := time.Now()
	log := c.logger.WithFields(map[string]interface{}{"method": req.Method, "url": url})
	log.Debug("HTTP request started")

	resp, err := c.send(req)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"duration": time.Since(start),
			"error":    err.Error(),
		}).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// GetJSON performs a GET request and decodes a 2xx JSON body into dest
func (c *Client) GetJSON(ctx context.Context, url string, dest interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// send runs the attempts through the breaker when one is set
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.attempts(req)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.attempts(req)
		if err != nil {
			return nil, err
		}
		// 5xx는 차단기 실패로 집계하되 응답은 호출자에게 전달
		if resp.StatusCode >= 500 {
			return resp, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", req.URL, ErrCircuitOpen)
	}
	if resp, ok := out.(*http.Response); ok && resp != nil {
		return resp, nil
	}
	return nil, err
}

// attempts sends req, retrying 5xx and 429 with exponential backoff.
// A Retry-After header in seconds replaces the backoff for that attempt.
func (c *Client) attempts(req *http.Request) (*http.Response, error) {
	if !c.retry.Enabled {
		return c.httpClient.Do(req)
	}

	delay := c.retry.InitialDelay
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err == nil && !Retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt == c.retry.MaxRetries {
			return resp, err
		}

		wait := delay
		if resp != nil {
			if after, ok := retryAfter(resp); ok {
				wait = after
			}
			resp.Body.Close()
		}
		if wait > c.retry.MaxDelay {
			wait = c.retry.MaxDelay
		}

		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   wait,
			"url":     req.URL.String(),
		}).Warn("Retrying HTTP request")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Retryable reports whether a status is worth retrying (5xx, 429)
func Retryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
