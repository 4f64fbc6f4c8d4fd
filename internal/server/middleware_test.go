package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/generateui-api/internal/log"
)

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		requestOrigin     string
		method            string
		expectAllowOrigin string
		expectStatus      int
	}{
		{
			name:              "no configured origins allows any",
			requestOrigin:     "https://anything.example",
			method:            http.MethodGet,
			expectAllowOrigin: "*",
			expectStatus:      http.StatusOK,
		},
		{
			name:              "no configured origins without origin header",
			method:            http.MethodGet,
			expectAllowOrigin: "*",
			expectStatus:      http.StatusOK,
		},
		{
			name:              "allowed origin is reflected",
			allowedOrigins:    []string{"https://app.example", "https://other.example"},
			requestOrigin:     "https://app.example",
			method:            http.MethodGet,
			expectAllowOrigin: "https://app.example",
			expectStatus:      http.StatusOK,
		},
		{
			name:              "disallowed origin",
			allowedOrigins:    []string{"https://app.example"},
			requestOrigin:     "https://evil.example",
			method:            http.MethodGet,
			expectAllowOrigin: "",
			expectStatus:      http.StatusOK,
		},
		{
			name:              "preflight",
			allowedOrigins:    []string{"https://app.example"},
			requestOrigin:     "https://app.example",
			method:            http.MethodOptions,
			expectAllowOrigin: "https://app.example",
			expectStatus:      http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/telemetry", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			w := httptest.NewRecorder()
			NewCORSMiddleware(tt.allowedOrigins)(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectStatus, w.Code)
			assert.Equal(t, tt.expectAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.method != http.MethodOptions, called)
		})
	}
}

func TestChainMiddleware_Order(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("inner"), mark("outer"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(log.SetOutput(&buf))
	return &buf
}

func TestLoggerMiddleware_RedactsSensitiveQuery(t *testing.T) {
	buf := captureLogs(t)

	h := NewLoggerMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=secret-code&state=signed.state&foo=bar", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, "secret-code")
	assert.NotContains(t, out, "signed.state")
	assert.Contains(t, out, "REDACTED")
	assert.Contains(t, out, "foo=bar")
	assert.Contains(t, out, "status=302")
	assert.Contains(t, out, "component=test")
}

func TestRecoverMiddleware(t *testing.T) {
	captureLogs(t)

	h := NewRecoverMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", errorBody(t, w))
}

func TestResponseWriterDelegator(t *testing.T) {
	rec := httptest.NewRecorder()
	w := wrapResponseWriter(rec)

	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusTeapot)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, w.Status())
	assert.Equal(t, 5, w.BytesWritten())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Same(t, rec, w.Unwrap())
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{name: "minted when absent"},
		{name: "caller id kept", incoming: "req-42", wantKept: true},
		{name: "id with spaces replaced", incoming: "two words"},
		{name: "oversized id replaced", incoming: strings.Repeat("a", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.wantKept {
				assert.Equal(t, tt.incoming, seen)
			} else {
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggerMiddleware_IncludesRequestID(t *testing.T) {
	buf := captureLogs(t)

	h := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		NewLoggerMiddleware("api"), NewRequestIDMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), "request_id=trace-me")
}
