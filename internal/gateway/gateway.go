// ABOUTME: Top-level wiring of stores, registry, security chain, and HTTP server
// ABOUTME: Owns startup order, background goroutines, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/warden-gateway/internal/auth"
	"github.com/2389/warden-gateway/internal/builtins"
	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/drift"
	"github.com/2389/warden-gateway/internal/mcp"
	"github.com/2389/warden-gateway/internal/metrics"
	"github.com/2389/warden-gateway/internal/security"
	"github.com/2389/warden-gateway/internal/store"
	"github.com/2389/warden-gateway/internal/tasks"
	"github.com/2389/warden-gateway/internal/tools"
)

// Gateway assembles the full server: session store, tool registry,
// security pipeline, protocol dispatcher, and background monitors.
type Gateway struct {
	config   *config.Config
	logger   *slog.Logger
	sessions store.SessionStore
	registry *tools.Registry
	tasks    *tasks.Store
	chain    *security.Chain
	monitor  *drift.Monitor

	httpServer *http.Server

	cancelBackground context.CancelFunc
}

// New wires all components from configuration. Nothing listens until
// Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{config: cfg, logger: logger}

	sessions, err := openSessionStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	gw.sessions = sessions

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			_ = sessions.Close()
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		verifier = v
	}

	// m stays nil when metrics are disabled; every observer method is
	// nil-safe so the rest of the wiring is unconditional.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	chain, err := security.NewChain(cfg.Security, verifier, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("building security chain: %w", err)
	}
	chain.SetAccountPolicies(cfg.Auth.RequireVerifiedEmail, cfg.Auth.RequireActiveSubscription)
	chain.SetMetrics(m)
	gw.chain = chain

	gw.tasks = tasks.NewStore()
	gw.tasks.SetCountObserver(m.SetActiveTasks)
	gw.registry = tools.NewRegistry(logger)
	gw.registry.RegisterAll(builtins.BaseTools()...)
	gw.registry.RegisterAll(builtins.TaskTools(gw.tasks)...)
	gw.registry.RegisterAll(builtins.AdminTools()...)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:                gw.registry,
		Authorizer:              auth.NewAuthorizer(cfg.Auth.AdminUsers),
		Resolver:                auth.NewResolver(sessions, logger),
		Tasks:                   gw.tasks,
		Events:                  chain.Events,
		Metrics:                 m,
		Logger:                  logger,
		Prompts:                 cfg.Prompts,
		Resources:               cfg.Resources,
		RequireAuthForDiscovery: cfg.Auth.RequireAuthForDiscovery,
	})
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	monitor, err := drift.NewMonitor(cfg.Drift, gw.registry, chain.Events, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("creating drift monitor: %w", err)
	}
	gw.monitor = monitor

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mcpPath := cfg.Server.MCPPath
	if mcpPath == "" {
		mcpPath = "/mcp"
	}
	mcpMux := http.NewServeMux()
	mcpServer.RegisterRoutes(mcpMux, mcpPath)
	mux.Handle(mcpPath, chain.Wrap(mcpMux))

	mcp.NewAdminHandler(mcpServer, chain).RegisterRoutes(mux)

	var handler http.Handler = mux
	if m != nil {
		metricsPath := cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		mux.Handle(metricsPath, m.Handler())
		handler = m.Middleware(mux)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Progress drainer and drift monitor stop with the gateway, not the
	// caller's run context, so shutdown controls their lifetime
	bgCtx, cancel := context.WithCancel(context.Background())
	gw.cancelBackground = cancel
	go mcpServer.DrainProgress(bgCtx)
	monitor.Start(bgCtx)

	return gw, nil
}

// openSessionStore builds the configured session backend.
func openSessionStore(cfg config.DatabaseConfig) (store.SessionStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, errors.New("database.path is required for the sqlite backend")
		}
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, background goroutines, and the
// session store, collecting every error.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.cancelBackground()
	g.monitor.Stop()

	if err := g.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session store: %w", err))
	}

	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}
