package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory creates a database pool from a database URL.
	// Default: store.NewPool
	PoolFactory func(ctx context.Context, url string) (Database, error)

	// GatewayServerFactory creates the gateway HTTP server.
	// Default: web.NewServer
	GatewayServerFactory func(addr string, handlers *web.Handlers, limiter *web.WindowLimiter, metrics *observability.Metrics, logger *slog.Logger) (GatewayServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// DatabaseURLGetter returns the database URL.
	// Default: reads from DATABASE_URL environment variable
	DatabaseURLGetter func() string
}

// Database interface wraps the methods used by serve from pgxpool.Pool.
type Database interface {
	Close()
}

// GatewayServer interface wraps the methods used from web.Server.
type GatewayServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() prometheus.Registerer
}
