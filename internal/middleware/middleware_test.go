package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetClientFromContext(r.Context())))
	})
}

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("s3cret")(okHandler())

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{name: "valid token", method: http.MethodGet, path: "/v1/session", header: "Bearer s3cret", want: http.StatusOK},
		{name: "missing header", method: http.MethodGet, path: "/v1/session", want: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodGet, path: "/v1/session", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "empty bearer", method: http.MethodGet, path: "/v1/session", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "preflight passes", method: http.MethodOptions, path: "/v1/analyze", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "token", rec.Body.String())
}

func TestLoggingRecordsAuthenticatedClient(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Logging(logger.FromZap(zap.New(core)))(BearerAuth("s3cret")(okHandler()))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantClient any
	}{
		{name: "authenticated", header: "Bearer s3cret", wantStatus: http.StatusOK, wantClient: "token"},
		{name: "rejected", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			details, ok := entries[0].ContextMap()["details"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.wantClient, details["client"])
		})
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	BearerAuth("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "buckets are per key")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	now = now.Add(time.Hour)
	rl.Sweep(10 * time.Minute)
	rl.mu.Lock()
	assert.Empty(t, rl.buckets)
	rl.mu.Unlock()
}

func TestRateLimiterSweeperDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(60)
	var offset atomic.Int64
	base := time.Now()
	rl.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	stop := rl.StartSweeper(5*time.Millisecond, 10*time.Minute)
	defer stop()

	buckets := func() int {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.buckets)
	}
	assert.Equal(t, 2, buckets())

	offset.Store(int64(time.Hour))
	assert.Eventually(t, func() bool { return buckets() == 0 }, time.Second, 5*time.Millisecond)

	stop()
	stop()
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1)
	h := rl.Middleware(okHandler())

	call := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.9:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("/v1/session").Code)
	limited := call("/v1/session")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("/live").Code)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateUserID("user_1712345678901_k3j9x0abc"))
	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID("user 1"))
	assert.Error(t, ValidateUserID("<script>"))

	for in, want := range map[string]string{"": "yearly", "Monthly": "monthly", " yearly ": "yearly"} {
		got, err := ValidatePlan(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ValidatePlan("weekly")
	assert.Error(t, err)

	assert.NoError(t, ValidateTransactionID("txn_01h8"))
	assert.Error(t, ValidateTransactionID("txn/../x"))

	assert.NoError(t, ValidateLaunchURL(""))
	assert.NoError(t, ValidateLaunchURL("?user_id=u1&payment=success"))
	assert.NoError(t, ValidateLaunchURL("https://leasecheck.app/?user_id=u1"))
	assert.Error(t, ValidateLaunchURL("ftp://leasecheck.app/"))
	assert.Error(t, ValidateLaunchURL("?user_id=%zz"))

	assert.Equal(t, "lease.jpg", SanitizeFilename("../../etc/lease.jpg"))
	assert.Equal(t, "scan.png", SanitizeFilename(`C:\Users\me\scan.png`))
	assert.Equal(t, "page", SanitizeFilename(".."))
	assert.Equal(t, "ab", SanitizeString(" a\x00\x07b "))

	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 5, ValidateLimit(5))
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"store": CheckFunc(func(context.Context) error { return nil }),
		"redis": CheckFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["store"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestReadinessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(func(context.Context) error { return errors.New("checkout not ready") }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsCounters(t *testing.T) {
	counter := func(m map[string]interface{}, k string) uint64 { return m[k].(uint64) }

	before := GetMetrics()
	IncrementAnalyses()
	AddPages(3, 1)
	RecordAccessCheck(true)
	RecordAccessCheck(false)
	after := GetMetrics()

	assert.Equal(t, counter(before, "analyses_total")+1, counter(after, "analyses_total"))
	assert.Equal(t, counter(before, "pages_analyzed")+3, counter(after, "pages_analyzed"))
	assert.Equal(t, counter(before, "pages_failed")+1, counter(after, "pages_failed"))
	assert.Equal(t, counter(before, "access_checks")+2, counter(after, "access_checks"))
	assert.Equal(t, counter(before, "access_granted")+1, counter(after, "access_granted"))
}

func TestMetricsMiddlewareCountsFailures(t *testing.T) {
	before := GetMetrics()["requests_failed"].(uint64)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyze", nil))
	assert.Equal(t, before+1, GetMetrics()["requests_failed"].(uint64))
}
