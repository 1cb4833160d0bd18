// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/web"
)

// serveConfig holds configuration for the serve command.
type serveConfig struct {
	addr        string
	metricsAddr string
	logFormat   string
	rateLimit   int
	rateWindow  time.Duration
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.logFormat != "json" && cfg.logFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.logFormat)
	}
	if cfg.rateLimit < 0 {
		return fmt.Errorf("rate-limit must be non-negative, got %d", cfg.rateLimit)
	}
	if cfg.rateWindow <= 0 {
		return fmt.Errorf("rate-window must be positive, got %s", cfg.rateWindow)
	}
	return nil
}

// Default values for serve command flags.
const (
	defaultAddr        = ":8080"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication gateway",
		Long: `Start the HTTP server that handles registration, login, and
session-guarded pages, along with the metrics/health endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", defaultAddr, "HTTP listen address")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().IntVar(&cfg.rateLimit, "rate-limit", web.DefaultMaxRequests, "max successful requests per client per window (0 = disabled)")
	cmd.Flags().DurationVar(&cfg.rateWindow, "rate-window", web.DefaultWindow, "rate limit window")

	return cmd
}

// runServeWithDeps starts the gateway with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string) (Database, error) {
			return store.NewPool(ctx, url)
		}
	}
	if deps.GatewayServerFactory == nil {
		deps.GatewayServerFactory = func(addr string, handlers *web.Handlers, limiter *web.WindowLimiter, metrics *observability.Metrics, logger *slog.Logger) (GatewayServer, error) {
			return web.NewServer(addr, handlers, limiter, metrics, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.DatabaseURLGetter == nil {
		deps.DatabaseURLGetter = func() string {
			return os.Getenv("DATABASE_URL")
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Setup("authgate", version, cfg.logFormat, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"addr", cfg.addr,
		"log_format", cfg.logFormat,
	)

	databaseURL := deps.DatabaseURLGetter()
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := deps.PoolFactory(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	logger.Info("connected to database")

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.metricsAddr != "" {
		// Ready once the database connection is established.
		obsServer = deps.ObservabilityServerFactory(cfg.metricsAddr, func() bool { return true })
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return fmt.Errorf("failed to start observability server: %w", obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	var limiter *web.WindowLimiter
	if cfg.rateLimit > 0 {
		limiterCfg := web.WindowLimiterConfig{
			Window:      cfg.rateWindow,
			MaxRequests: cfg.rateLimit,
		}
		if obsServer != nil {
			limiter = web.NewWindowLimiterWithRegistry(limiterCfg, obsServer.Registry())
		} else {
			limiter = web.NewWindowLimiter(limiterCfg)
		}
		defer limiter.Close()
	}

	// The gateway server needs a real pool for the user repository. In
	// tests with a mock database, only the observability side runs.
	var gateway GatewayServer
	if realPool, ok := pool.(*pgxpool.Pool); ok {
		repo := authpg.NewUserRepository(realPool)
		hasher := auth.NewBcryptHasher()

		service, svcErr := auth.NewServiceWithLogger(repo, hasher, logger)
		if svcErr != nil {
			return fmt.Errorf("failed to create auth service: %w", svcErr)
		}

		handlers, hErr := web.NewHandlers(service, metrics, logger)
		if hErr != nil {
			return fmt.Errorf("failed to create handlers: %w", hErr)
		}

		gateway, err = deps.GatewayServerFactory(cfg.addr, handlers, limiter, metrics, logger)
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}

		gwErrChan, gwErr := gateway.Start()
		if gwErr != nil {
			return fmt.Errorf("failed to start gateway server: %w", gwErr)
		}
		go monitorServerErrors(ctx, cancel, gwErrChan, "gateway")

		logger.Info("gateway listening", "addr", gateway.Addr())
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gateway started")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if gateway != nil {
		if err := gateway.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping gateway server", "error", err)
		}
	}

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
