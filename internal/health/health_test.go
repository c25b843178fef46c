package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", ok))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", ok))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["postgres"].Message != "connection refused" {
		t.Errorf("unexpected postgres check: %+v", response.Checks["postgres"])
	}
}

func TestHealthHandler_OptionalDegrades(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", ok))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", func(context.Context) error {
		return errors.New("no brokers")
	}))

	response := handler.Run(context.Background())
	if response.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", response.Status)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("degraded service must stay ready, got %d", w.Code)
	}
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("redis", NewPingChecker("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	started := time.Now()
	response := handler.Run(context.Background())
	if time.Since(started) > time.Second {
		t.Fatal("check must be bounded by the timeout")
	}
	if response.Checks["redis"].Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy redis, got %+v", response.Checks["redis"])
	}
}

func TestMuxRoutes(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", func(context.Context) error {
		return errors.New("down")
	}))
	mux := http.NewServeMux()
	handler.Mux(mux)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/livez", http.StatusOK, "ok"},
		{"/readyz", http.StatusServiceUnavailable, "not ready"},
		{"/healthz", http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
	if names := handler.Names(); len(names) != 1 || names[0] != "postgres" {
		t.Fatalf("unexpected names %v", names)
	}
}
