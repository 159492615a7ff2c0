package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte("ok"))
})

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		query  string
		want   string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "", "abc"},
		{"apikey scheme", map[string]string{"Authorization": "ApiKey def"}, "", "def"},
		{"header", map[string]string{"X-API-Key": "ghi"}, "", "ghi"},
		{"query", nil, "api_key=jkl", "jkl"},
		{"none", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/items?"+tt.query, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractAPIKey(r))
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	h := APIKeyMiddleware("secret")(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "API key required")

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	r.Header.Set("X-API-Key", "wrong")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/items", nil)
	r.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	for _, path := range []string{"/api/health", "/metrics"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code, path)
	}
}

func TestAPIKeyMiddlewareDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyMiddleware("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(1)(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusTeapot, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)

	rec := httptest.NewRecorder()
	RateLimitMiddleware(0)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := LoggingMiddleware(zap.New(core))(ok)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/items", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/api/items", fields["path"])
		assert.Equal(t, int64(http.StatusTeapot), fields["status"])
		assert.Equal(t, int64(2), fields["bytes"])
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"}, ok)

	r := httptest.NewRequest(http.MethodOptions, "/api/items", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
