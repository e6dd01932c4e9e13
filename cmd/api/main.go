// Package main is the entry point for the Upkeep API server.
//
// It loads configuration, connects the Postgres pool, wires the billing
// reconciliation pipeline and the quota-gated provisioning service, and
// serves the HTTP API with graceful shutdown on SIGINT/SIGTERM.
//
// In local mode (APP_ENV=local) the provider webhook verifiers are replaced
// with logging stubs so payloads can be replayed without real signatures.
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"upkeep/internal/api/handlers"
	"upkeep/internal/billing"
	"upkeep/internal/config"
	"upkeep/internal/core"
	"upkeep/internal/db"
	"upkeep/internal/external"
	"upkeep/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("upkeep API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	orgs := db.NewOrganizationRepository(pool)
	tickets := db.NewTicketRepository(pool)

	catalog := billing.NewStaticCatalog()
	resolver := billing.NewResolver(catalog)
	enforcer := billing.NewQuotaEnforcer(resolver)
	reconciler := billing.NewReconciler(orgs, catalog, tickets, logger)
	provisioner := tenant.NewService(orgs, enforcer, logger)

	webhookDeps, err := buildWebhookDeps(cfg, reconciler, logger)
	if err != nil {
		return err
	}

	webhookHandler := handlers.NewBillingWebhookHandler(webhookDeps, logger)
	resourceHandler := handlers.NewResourceHandler(provisioner, logger)
	adminHandler := handlers.NewAdminHandler(reconciler, cfg.Billing.AdminToken.Unmask(), logger)

	r := chi.NewRouter()
	r.Use(core.Recoverer(logger))
	r.Use(core.RequestID)
	r.Use(core.RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)
		resourceHandler.RegisterRoutes(r)
		adminHandler.RegisterRoutes(r)
	})

	return serve(r, cfg, logger)
}

// buildWebhookDeps assembles verifiers and normalizers for the three billing
// providers. Local mode swaps in stub verifiers.
func buildWebhookDeps(cfg *config.Config, reconciler *billing.Reconciler, logger *slog.Logger) (handlers.BillingWebhookDeps, error) {
	deps := handlers.BillingWebhookDeps{
		StripeNormalizer: billing.NewStripeNormalizer(external.StripePriceToPlan),
		PaddleNormalizer: billing.NewPaddleNormalizer(external.PaddleProductToPlan),
		AppleNormalizer:  billing.NewAppStoreNormalizer(external.AppStoreProductToPlan),
		Applier:          reconciler,
		StripeSecret:     cfg.Billing.StripeWebhookSecret.Unmask(),
		PaddleSecret:     cfg.Billing.PaddleWebhookSecret.Unmask(),
	}

	if cfg.IsLocal() {
		deps.StripeVerifier = external.NewStubWebhookVerifier(logger)
		deps.PaddleVerifier = external.NewStubWebhookVerifier(logger)
		deps.AppleVerifier = external.NewStubNotificationVerifier(logger)
		return deps, nil
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(cfg.Billing.AppStoreRootCertPEM.Unmask())) {
		return deps, fmt.Errorf("parsing APP_STORE_ROOT_CERT_PEM: no certificates found")
	}

	deps.StripeVerifier = &external.StripeVerifier{}
	deps.PaddleVerifier = &external.PaddleVerifier{}
	deps.AppleVerifier = external.NewAppStoreVerifier(roots)
	return deps, nil
}

// newPool creates and pings the Postgres connection pool.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// serve runs the HTTP server until a shutdown signal or server error.
func serve(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
