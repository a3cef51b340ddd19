package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, method, origin string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/test", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	rr := serve(loggingMiddleware(okHandler(), logging.Nop()), http.MethodGet, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	h := requestIDMiddleware(okHandler())

	rr := serve(h, http.MethodGet, "", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = serve(h, http.MethodGet, "", map[string]string{"X-Request-ID": "custom-id-123"})
	assert.Equal(t, "custom-id-123", rr.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"deny when unconfigured", nil, "http://localhost:3000", ""},
		{"wildcard echoes origin", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"specific origin", []string{"http://allowed.example"}, "http://allowed.example", "http://allowed.example"},
		{"other origin", []string{"http://allowed.example"}, "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(corsMiddleware(okHandler(), tt.allowed), http.MethodGet, tt.origin, nil)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	rr := serve(corsMiddleware(okHandler(), nil), http.MethodOptions, "http://localhost:3000", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestWithMiddleware(t *testing.T) {
	h := withMiddleware(okHandler(), logging.Nop(), []string{"http://test.example"})

	rr := serve(h, http.MethodGet, "http://test.example", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://test.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(withMiddleware(okHandler(), logging.Nop(), nil), http.MethodGet, "http://test.example", nil)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWriterHijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
}
