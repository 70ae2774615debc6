package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatsync/internal/infrastructure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var captured string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetReqID(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/paddle-webhooks", nil))

	require.NotEmpty(t, captured)
	assert.Equal(t, captured, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesInboundHeader(t *testing.T) {
	var captured, traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetReqID(r.Context())
		traceID = infrastructure.GetTraceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/paddle-webhooks", nil)
	req.Header.Set("X-Request-ID", "req-123")
	RequestID(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", captured)
	assert.Equal(t, "req-123", traceID)
}

func TestRecoverer_TurnsPanicInto500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recoverer(testLogger())(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/keygen-webhooks", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestRateLimiter_RejectsWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(0, 1, testLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// First request consumes the single burst token, second is rejected.
	rec := httptest.NewRecorder()
	rl.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/paddle-webhooks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rl.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/paddle-webhooks", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	SecurityHeaders(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
