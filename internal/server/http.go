package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	jsonwriter "github.com/dgellow/generateui-api/internal/json"
	"github.com/dgellow/generateui-api/internal/log"
)

// HTTPServer owns the listener and the graceful shutdown of the API.
type HTTPServer struct {
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer creates a server for handler on addr. A zero port in addr
// picks a free one; Addr reports it once Start has bound the socket.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Addr returns the bound address, or the configured one before Start.
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.server.Addr
}

// Start binds the listener and serves until Stop. It returns nil after a
// graceful shutdown.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	log.LogInfoWithFields("http", "HTTP server listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (h *HTTPServer) Stop(ctx context.Context) error {
	addr := h.Addr()
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{"addr": addr})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{"addr": addr})
	return nil
}

// HealthHandler answers liveness probes. It never touches dependencies.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, map[string]string{"status": "ok"})
}

// Pinger is the part of the telemetry store a readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyHandler answers readiness probes by pinging the telemetry store.
type ReadyHandler struct {
	store   Pinger
	timeout time.Duration
}

func NewReadyHandler(store Pinger, timeout time.Duration) *ReadyHandler {
	return &ReadyHandler{store: store, timeout: timeout}
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		log.LogWarnWithFields("http", "Readiness check failed", map[string]any{
			"error": err.Error(),
		})
		_ = jsonwriter.WriteResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	_ = jsonwriter.Write(w, map[string]string{"status": "ok"})
}
