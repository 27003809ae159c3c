package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/memgate-go/internal/telemetry/logger"
	"github.com/yndnr/memgate-go/internal/telemetry/metric"
)

func TestRouter_Health(t *testing.T) {
	h := NewRouter(RouterConfig{Logger: logger.Discard()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("GET /health missing X-Request-ID")
	}
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	h := NewRouter(RouterConfig{Logger: logger.Discard()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
}

func TestRouter_Ready(t *testing.T) {
	ready := false
	h := NewRouter(RouterConfig{
		Logger: logger.Discard(),
		Checks: map[string]Check{
			"store": func(context.Context) error { return nil },
			"gateway": func(context.Context) error {
				if !ready {
					return errors.New("not connected")
				}
				return nil
			},
		},
	})

	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{"gateway down", false, http.StatusServiceUnavailable, "not_ready"},
		{"gateway up", true, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready = tt.ready
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("GET /ready status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status = %q, want %q", body.Status, tt.wantBody)
			}
			if body.Checks["store"] != "ok" {
				t.Errorf("checks[store] = %q, want ok", body.Checks["store"])
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := metric.NewRegistry()
	reg.RedemptionOutcome("success", time.Millisecond)

	h := NewRouter(RouterConfig{Logger: logger.Discard(), Metrics: reg.Handler()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "memgate_redemptions_total") {
		t.Error("GET /metrics missing memgate_redemptions_total")
	}

	rec = httptest.NewRecorder()
	NewRouter(RouterConfig{Logger: logger.Discard()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler status = %d, want 404", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID(), Recover(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MG-SYS-5000") {
		t.Errorf("body = %q, want error code", rec.Body.String())
	}
}

func TestServer_ServeShutdown(t *testing.T) {
	s := New("127.0.0.1:0", NewRouter(RouterConfig{Logger: logger.Discard()}))
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil after Shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}
}
