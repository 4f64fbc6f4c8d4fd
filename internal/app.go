package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dgellow/generateui-api/internal/authstate"
	"github.com/dgellow/generateui-api/internal/config"
	"github.com/dgellow/generateui-api/internal/crypto"
	"github.com/dgellow/generateui-api/internal/geoip"
	"github.com/dgellow/generateui-api/internal/idp"
	"github.com/dgellow/generateui-api/internal/log"
	"github.com/dgellow/generateui-api/internal/server"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
	"github.com/dgellow/generateui-api/internal/storage"
)

// App is the complete API service: login flow, entitlements and telemetry.
type App struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.EventStore
}

// NewApp builds every dependency from cfg. The telemetry store is opened
// (and its schema created) before NewApp returns.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	providers := idp.NewRegistry(cfg)
	configured := make([]string, 0, len(providers))
	for _, name := range idp.Names {
		if _, ok := providers[name]; ok {
			configured = append(configured, string(name))
		}
	}
	log.LogInfoWithFields("app", "Identity providers configured", map[string]any{
		"providers": configured,
		"base_url":  cfg.APIBaseURL,
	})

	var locator geoip.Locator = geoip.Disabled{}
	if cfg.GeoIP.Enabled {
		locator = geoip.NewResolver(cfg.GeoIP.URL, cfg.GeoIP.Timeout)
	}

	handler := buildHTTPHandler(cfg, providers, crypto.NewSigner([]byte(cfg.JWTSecret)), store, locator)

	return &App{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, ":"+strconv.Itoa(cfg.Port)),
		storage:    store,
	}, nil
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	log.LogInfoWithFields("app", "Starting GenerateUI API", map[string]any{
		"addr": a.httpServer.Addr(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("app", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("app", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("app", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": a.config.ShutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer shutdownCancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("app", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := a.storage.Close(); err != nil {
		log.LogErrorWithFields("app", "Storage close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("app", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// setupStorage opens the telemetry store selected by STORAGE.
func setupStorage(ctx context.Context, cfg config.Config) (storage.EventStore, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		log.LogInfoWithFields("storage", "Using Postgres storage", nil)
		store, err := storage.NewPostgresStorage(ctx, string(cfg.Storage.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres storage: %w", err)
		}
		return store, nil

	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.GCPProject,
			"database":   cfg.Storage.FirestoreDatabase,
			"collection": cfg.Storage.FirestoreCollection,
		})
		store, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.FirestoreCollection,
			cfg.Storage.FirestoreCredentialsFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return store, nil

	case config.StorageMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		return storage.NewMemoryStorage(), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

const readinessTimeout = 2 * time.Second

func buildHTTPHandler(
	cfg config.Config,
	providers idp.Registry,
	signer *crypto.Signer,
	store storage.EventStore,
	locator geoip.Locator,
) http.Handler {
	mux := http.NewServeMux()

	sessions := sessiontoken.NewIssuer(signer)
	authHandlers := server.NewAuthHandlers(providers, authstate.NewToken(signer), sessions, cfg.ProviderTimeout)
	telemetryHandlers := server.NewTelemetryHandlers(store, locator, sessions)

	authMiddleware := []server.MiddlewareFunc{server.NewLoggerMiddleware("auth"), server.NewRecoverMiddleware("auth")}
	apiMiddleware := []server.MiddlewareFunc{server.NewLoggerMiddleware("api"), server.NewRecoverMiddleware("api")}

	mux.Handle("GET /health", server.NewHealthHandler())
	mux.Handle("GET /ready", server.NewReadyHandler(store, readinessTimeout))
	mux.Handle("GET /{$}", server.ChainMiddleware(http.HandlerFunc(server.LoginPageHandler), authMiddleware...))

	mux.Handle("GET /auth/{provider}", server.ChainMiddleware(http.HandlerFunc(authHandlers.InitiateHandler), authMiddleware...))
	mux.Handle("GET /auth/{provider}/callback", server.ChainMiddleware(http.HandlerFunc(authHandlers.CallbackHandler), authMiddleware...))

	mux.Handle("GET /me", server.ChainMiddleware(server.NewMeHandler(sessions), apiMiddleware...))
	mux.Handle("POST /telemetry", server.ChainMiddleware(http.HandlerFunc(telemetryHandlers.TelemetryHandler), apiMiddleware...))
	mux.Handle("POST /events", server.ChainMiddleware(http.HandlerFunc(telemetryHandlers.EventsHandler), apiMiddleware...))

	return server.ChainMiddleware(mux, server.NewRequestIDMiddleware(), server.NewCORSMiddleware(cfg.AllowedOrigins))
}
