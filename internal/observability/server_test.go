// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)

	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startTestServer(t, func() bool { return true })

	addr := server.Addr()
	if addr == "" {
		t.Fatal("server address is empty")
	}

	status, body := getBody(t, "http://"+addr+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}

	// Prometheus exposition format with the standard collectors
	if !strings.Contains(body, "# HELP") {
		t.Error("expected Prometheus format with HELP comments")
	}
	if !strings.Contains(body, "go_") {
		t.Error("expected go_* metrics")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process_* metrics")
	}

	// Increment custom metrics so they appear in output
	metrics := server.Metrics()
	metrics.RequestsTotal.WithLabelValues("/api/login", "200").Inc()
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.RegistrationsTotal.Inc()
	metrics.RateLimitedTotal.Inc()

	_, body2 := getBody(t, "http://"+addr+"/metrics")

	for _, name := range []string{
		"authgate_requests_total",
		"authgate_logins_total",
		"authgate_registrations_total",
		"authgate_ratelimited_total",
	} {
		if !strings.Contains(body2, name) {
			t.Errorf("expected %s metric", name)
		}
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startTestServer(t, nil)

	status, _ := getBody(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
}

func TestServer_Readiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		server := startTestServer(t, func() bool { return true })

		status, _ := getBody(t, "http://"+server.Addr()+"/healthz/readiness")
		if status != http.StatusOK {
			t.Errorf("expected status 200, got %d", status)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		server := startTestServer(t, func() bool { return false })

		status, _ := getBody(t, "http://"+server.Addr()+"/healthz/readiness")
		if status != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", status)
		}
	})

	t.Run("nil checker means always ready", func(t *testing.T) {
		server := startTestServer(t, nil)

		status, _ := getBody(t, "http://"+server.Addr()+"/healthz/readiness")
		if status != http.StatusOK {
			t.Errorf("expected status 200, got %d", status)
		}
	})
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startTestServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected second Start to fail")
	}
}

func TestServer_StopIsIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}
