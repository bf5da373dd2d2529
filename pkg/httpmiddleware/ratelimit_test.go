package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(handler http.Handler, remoteAddr string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := limitedRequest(handler, "192.168.1.1:12345", nil)

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := limitedRequest(handler, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := limitedRequest(handler, "10.0.0.1:9999", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1:1234", nil).Code)

	// Independent bucket per IP.
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.2:1234", nil).Code)

	// Same IP, different port: same bucket.
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_APIKeyBucketing(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	withKey := func(key string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-API-Key", key) }
	}

	// Same IP, distinct API keys: distinct buckets.
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1:1111", withKey("key-a")).Code)
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1:1111", withKey("key-b")).Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.1:1111", withKey("key-a")).Code)

	// Anonymous request from the same IP still has its own bucket.
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1:1111", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-Tenant")
		},
	})(okHandler())

	withTenant := func(name string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Tenant", name) }
	}

	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1:1", withTenant("acme")).Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.2:2", withTenant("acme")).Code)
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.3:3", withTenant("globex")).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	xff := func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	}

	assert.Equal(t, http.StatusOK, limitedRequest(handler, "192.168.1.1:4444", xff).Code)

	// Same forwarded client behind a different proxy hop: same bucket.
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "192.168.1.2:5555", xff).Code)
}

func TestRateLimit_WindowSliding(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", base)
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(2*time.Second))
	assert.False(t, ok, "third request within window should be rejected")

	// Far past both windows, the key starts fresh.
	_, _, ok = l.take("k", base.Add(3*time.Minute))
	assert.True(t, ok)
}
