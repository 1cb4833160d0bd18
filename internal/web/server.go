// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/observability"
)

// Server serves the gateway's HTTP surface: the API endpoints, the HTML
// pages, and the session-guarded routes.
type Server struct {
	addr       string
	handlers   *Handlers
	limiter    *WindowLimiter
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a gateway server. limiter and metrics may be nil to
// disable rate limiting and request metrics respectively.
func NewServer(addr string, handlers *Handlers, limiter *WindowLimiter, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if handlers == nil {
		return nil, oops.Errorf("handlers are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		addr:     addr,
		handlers: handlers,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Start begins serving HTTP traffic.
// It returns an error channel that will receive any errors from the HTTP
// server after it starts. The channel is closed when the server stops
// gracefully. Callers should monitor the channel to detect failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("gateway server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.handlers.Routes(mux)

	httpSrv := &http.Server{
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("gateway server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("gateway server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	// CompareAndSwap prevents a racing Start() from observing a half-stopped server.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown gateway server").Wrap(err)
		}
	}

	s.logger.Info("gateway server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// middleware applies the outer request pipeline: security headers, rate
// limiting, and request accounting.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		key := clientKey(r)
		if s.limiter != nil {
			allowed, retryAfter := s.limiter.Check(key)
			if !allowed {
				if s.metrics != nil {
					s.metrics.RateLimitedTotal.Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
				s.recordRequest(r, http.StatusTooManyRequests)
				return
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Failed requests do not consume rate limit budget.
		if s.limiter != nil && rec.status < http.StatusBadRequest {
			s.limiter.Record(key)
		}
		s.recordRequest(r, rec.status)
	})
}

func (s *Server) recordRequest(r *http.Request, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}
