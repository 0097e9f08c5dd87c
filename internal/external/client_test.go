package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/types"
)

func noWait(context.Context, time.Duration) error { return nil }

func newTestClient(policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		policy,
		"PawTrail-Test/1.0",
		append([]BaseClientOption{WithWaitFunc(noWait)}, opts...)...,
	)
}

func TestGetJSON_Success(t *testing.T) {
	var gotUA, gotTrace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotTrace = r.Header.Get("X-Request-Id")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var out struct {
		Status string `json:"status"`
	}
	ctx := types.WithRequestID(context.Background(), "req-123")
	require.NoError(t, newTestClient(DefaultRetryPolicy()).GetJSON(ctx, server.URL, &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "PawTrail-Test/1.0", gotUA)
	assert.Equal(t, "req-123", gotTrace)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := newTestClient(DefaultRetryPolicy()).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ExhaustedRetriesUsesFailureCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		WithFailureCode(types.ErrCodeUpstreamWeather))
	err := c.GetJSON(context.Background(), server.URL, &struct{}{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamWeather))
}

func TestDo_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestClient(RetryPolicy{MaxRetries: 0}).GetJSON(context.Background(), server.URL, &struct{}{})
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamRateLimited))
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(DefaultRetryPolicy(), WithFailureCode(types.ErrCodeUpstreamGeocoding))
	err := c.GetJSON(context.Background(), server.URL, &struct{}{})
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamGeocoding))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_StopsWhenContextCanceled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(RetryPolicy{MaxRetries: 5, MinWait: time.Second, MaxWait: time.Second},
		WithWaitFunc(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	err := c.GetJSON(ctx, server.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(RetryPolicy{MaxRetries: 0})
	for i := 0; i < 10; i++ {
		_ = c.GetJSON(context.Background(), server.URL, &struct{}{})
	}
	// The breaker trips after six consecutive failures.
	assert.Equal(t, int32(6), calls.Load())
}

func TestComputeBackoff(t *testing.T) {
	c := newTestClient(RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second})
	for attempt := 0; attempt < 6; attempt++ {
		d := c.computeBackoff(attempt, nil)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	assert.Equal(t, time.Second, c.computeBackoff(0, resp))
}
