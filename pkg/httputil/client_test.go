package httputil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/config"
	"github.com/wonny/watson/pkg/logger"
)

func newClient() *Client {
	return New(&config.Config{Env: "test"}, logger.Nop())
}

// serve counts hits and answers with status codes in order, repeating the last one
func serve(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"symbol":"AAPL","count":2}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestBuilders(t *testing.T) {
	c := newClient()
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
	assert.True(t, c.retry.Enabled)
	assert.Equal(t, 3, c.retry.MaxRetries)

	c.WithTimeout(5*time.Second).WithRetry(5, 2*time.Second)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 5, c.retry.MaxRetries)
	assert.Equal(t, 2*time.Second, c.retry.InitialDelay)

	assert.False(t, c.DisableRetry().retry.Enabled)
}

func TestGetJSONSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, BrowserUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Finnhub-Token"))
		_, _ = w.Write([]byte(`{"symbol":"AAPL","count":2}`))
	}))
	defer srv.Close()

	client := newClient().
		WithUserAgent(BrowserUserAgent).
		WithHeader("X-Finnhub-Token", "secret")

	var out struct {
		Symbol string `json:"symbol"`
		Count  int    `json:"count"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "AAPL", out.Symbol)
	assert.Equal(t, 2, out.Count)
}

func TestGetJSONStatusError(t *testing.T) {
	srv, hits := serve(t, http.StatusForbidden)

	var out map[string]interface{}
	err := newClient().GetJSON(context.Background(), srv.URL, &out)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, se.Body, "AAPL")
	// 4xx 는 재시도하지 않음
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetryOn5xx(t *testing.T) {
	srv, hits := serve(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)

	resp, err := newClient().WithRetry(3, 10*time.Millisecond).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryGivesUp(t *testing.T) {
	srv, hits := serve(t, http.StatusInternalServerError)

	resp, err := newClient().WithRetry(2, 10*time.Millisecond).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryAfterIsCapped(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient().WithRetry(1, time.Millisecond)
	client.retry.MaxDelay = 50 * time.Millisecond

	start := time.Now()
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetryStopsOnCancel(t *testing.T) {
	srv, _ := serve(t, http.StatusServiceUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient().WithRetry(3, time.Second).Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreakerOpens(t *testing.T) {
	srv, hits := serve(t, http.StatusBadGateway)

	client := newClient().
		DisableRetry().
		WithCircuitBreaker("test", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := client.Get(ctx, srv.URL)
		require.NoError(t, err, "attempt %d", i+1)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		resp.Body.Close()
	}

	_, err := client.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCircuitBreakerIgnores4xx(t *testing.T) {
	srv, hits := serve(t, http.StatusNotFound)

	client := newClient().
		DisableRetry().
		WithCircuitBreaker("test", 1, time.Minute)

	for i := 0; i < 3; i++ {
		resp, err := client.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.status))
		})
	}
}
