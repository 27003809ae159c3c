package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// Check reports nil when a dependency is ready.
type Check func(ctx context.Context) error

// RouterConfig holds configuration for the status router.
type RouterConfig struct {
	// Checks run on /ready, keyed by name.
	Checks map[string]Check

	// Metrics serves /metrics. Nil disables the route.
	Metrics http.Handler

	Logger logger.Logger
}

// NewRouter builds the status handler.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		checks := make(map[string]string, len(cfg.Checks))
		for name, check := range cfg.Checks {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		writeJSON(w, code, map[string]any{
			"status": status,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return Chain(mux, RequestID(), Recover(log))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
