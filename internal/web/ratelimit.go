// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rate limiting defaults. The deployed gateway allows 250 requests per
// client in any 15-minute window; failed requests do not count against
// the allowance.
const (
	// DefaultWindow is the sliding window length.
	DefaultWindow = 15 * time.Minute

	// DefaultMaxRequests is the number of counted requests allowed per window.
	DefaultMaxRequests = 250

	// DefaultCleanupInterval is the interval at which the background
	// goroutine drops clients whose entire window has elapsed.
	DefaultCleanupInterval = 5 * time.Minute
)

// WindowLimiterConfig configures a WindowLimiter.
type WindowLimiterConfig struct {
	// Window is the sliding window length. Defaults to DefaultWindow if zero.
	Window time.Duration

	// MaxRequests is the counted-request allowance per window.
	// Defaults to DefaultMaxRequests if zero or negative.
	MaxRequests int

	// CleanupInterval is the background cleanup cadence.
	// Defaults to DefaultCleanupInterval if zero.
	CleanupInterval time.Duration
}

// clientWindow tracks the counted request timestamps for one client key.
type clientWindow struct {
	hits []time.Time
}

// WindowLimiter implements per-client sliding-window rate limiting.
// It is safe for concurrent use.
//
// Checking and recording are separate steps so that callers can skip
// recording for failed requests: Check before dispatch, Record only when
// the response succeeded. The limiter runs a background goroutine to
// drop idle clients; call Close() to stop it.
type WindowLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientWindow
	window      time.Duration
	maxRequests int

	stopChan chan struct{}
	wg       sync.WaitGroup

	// Gauge for tracked client count (nil if no registry provided)
	clientGauge prometheus.Gauge
}

// NewWindowLimiter creates a limiter with the given configuration.
// It starts a background cleanup goroutine. Call Close() to stop it.
func NewWindowLimiter(cfg WindowLimiterConfig) *WindowLimiter {
	return newWindowLimiter(cfg, nil)
}

// NewWindowLimiterWithRegistry creates a limiter and registers a client
// count gauge with the provided Prometheus registry.
func NewWindowLimiterWithRegistry(cfg WindowLimiterConfig, reg prometheus.Registerer) *WindowLimiter {
	return newWindowLimiter(cfg, reg)
}

func newWindowLimiter(cfg WindowLimiterConfig, reg prometheus.Registerer) *WindowLimiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	l := &WindowLimiter{
		clients:     make(map[string]*clientWindow),
		window:      window,
		maxRequests: maxRequests,
		stopChan:    make(chan struct{}),
	}

	if reg != nil {
		l.clientGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authgate_ratelimiter_clients",
			Help: "Current number of tracked rate limiter clients",
		})
		reg.MustRegister(l.clientGauge)
	}

	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)

	return l
}

// Check reports whether a request from the given client key is allowed.
// Returns (allowed, retryAfter) where retryAfter is the time until the
// oldest counted hit leaves the window (zero if allowed). Check does not
// consume allowance; call Record once the request has succeeded.
func (l *WindowLimiter) Check(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cw, exists := l.clients[key]
	if !exists {
		return true, 0
	}

	l.expire(cw, now)
	if len(cw.hits) < l.maxRequests {
		return true, 0
	}

	oldest := cw.hits[0]
	return false, oldest.Add(l.window).Sub(now)
}

// Record counts a successful request against the client's allowance.
func (l *WindowLimiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cw, exists := l.clients[key]
	if !exists {
		cw = &clientWindow{}
		l.clients[key] = cw
		if l.clientGauge != nil {
			l.clientGauge.Set(float64(len(l.clients)))
		}
	}

	l.expire(cw, now)
	cw.hits = append(cw.hits, now)
}

// expire drops hits outside the window. Caller must hold the mutex.
func (l *WindowLimiter) expire(cw *clientWindow, now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(cw.hits) && !cw.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cw.hits = append(cw.hits[:0], cw.hits[i:]...)
	}
}

// cleanupLoop periodically removes clients with no hits in the window.
func (l *WindowLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *WindowLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, cw := range l.clients {
		l.expire(cw, now)
		if len(cw.hits) == 0 {
			delete(l.clients, key)
		}
	}
	if l.clientGauge != nil {
		l.clientGauge.Set(float64(len(l.clients)))
	}
}

// Close stops the background cleanup goroutine.
func (l *WindowLimiter) Close() {
	close(l.stopChan)
	l.wg.Wait()
}
