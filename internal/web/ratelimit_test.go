// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func newTestLimiter(t *testing.T, cfg WindowLimiterConfig) *WindowLimiter {
	t.Helper()
	l := NewWindowLimiter(cfg)
	t.Cleanup(l.Close)
	return l
}

func TestWindowLimiter_AllowsUpToMax(t *testing.T) {
	l := newTestLimiter(t, WindowLimiterConfig{MaxRequests: 3})

	for i := 0; i < 3; i++ {
		allowed, _ := l.Check("1.2.3.4")
		assert.True(t, allowed, "request %d should be allowed", i+1)
		l.Record("1.2.3.4")
	}

	allowed, retryAfter := l.Check("1.2.3.4")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestWindowLimiter_CheckDoesNotConsume(t *testing.T) {
	l := newTestLimiter(t, WindowLimiterConfig{MaxRequests: 1})

	// Repeated checks without a recorded success never exhaust the
	// allowance; this is what lets failed requests go uncounted.
	for i := 0; i < 10; i++ {
		allowed, _ := l.Check("1.2.3.4")
		assert.True(t, allowed)
	}

	l.Record("1.2.3.4")
	allowed, _ := l.Check("1.2.3.4")
	assert.False(t, allowed)
}

func TestWindowLimiter_ClientsAreIndependent(t *testing.T) {
	l := newTestLimiter(t, WindowLimiterConfig{MaxRequests: 1})

	l.Record("1.2.3.4")

	allowed, _ := l.Check("1.2.3.4")
	assert.False(t, allowed)

	allowed, _ = l.Check("5.6.7.8")
	assert.True(t, allowed)
}

func TestWindowLimiter_HitsExpire(t *testing.T) {
	l := newTestLimiter(t, WindowLimiterConfig{
		Window:      50 * time.Millisecond,
		MaxRequests: 1,
	})

	l.Record("1.2.3.4")
	allowed, _ := l.Check("1.2.3.4")
	assert.False(t, allowed)

	time.Sleep(70 * time.Millisecond)

	allowed, _ = l.Check("1.2.3.4")
	assert.True(t, allowed)
}

func TestWindowLimiter_CleanupDropsIdleClients(t *testing.T) {
	l := newTestLimiter(t, WindowLimiterConfig{
		Window:          10 * time.Millisecond,
		MaxRequests:     1,
		CleanupInterval: 10 * time.Millisecond,
	})

	l.Record("1.2.3.4")
	time.Sleep(50 * time.Millisecond)

	l.mu.Lock()
	remaining := len(l.clients)
	l.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestWindowLimiter_RegistersClientGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := NewWindowLimiterWithRegistry(WindowLimiterConfig{MaxRequests: 1}, reg)
	defer l.Close()

	l.Record("1.2.3.4")

	families, err := reg.Gather()
	assert.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "authgate_ratelimiter_clients" {
			found = true
			assert.Equal(t, float64(1), f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "client gauge should be registered")
}

func TestWindowLimiter_CloseStopsCleanupGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewWindowLimiter(WindowLimiterConfig{CleanupInterval: time.Millisecond})
	l.Record("1.2.3.4")
	l.Close()
}
