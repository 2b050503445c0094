package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	// Stats samples the session index.
	Stats func() metric.SessionStats

	// Connections reports open hub connections. Optional.
	Connections func() int

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	Logger *slog.Logger

	// AllowList restricts clients by IP/CIDR (empty = no restriction).
	AllowList []string

	// RateLimit is the per-IP request rate (0 disables).
	RateLimit int
}

// SessionsResponse is the /debug/sessions document.
type SessionsResponse struct {
	Blocked     int `json:"blocked"`
	Pending     int `json:"pending"`
	Live        int `json:"live"`
	Capacity    int `json:"capacity"`
	Occupied    int `json:"occupied"`
	Connections int `json:"connections"`
}

// NewRouter builds the admin handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	mux.HandleFunc("GET /debug/sessions", func(w http.ResponseWriter, r *http.Request) {
		var resp SessionsResponse
		if cfg.Stats != nil {
			st := cfg.Stats()
			resp = SessionsResponse{
				Blocked:  st.Blocked,
				Pending:  st.Pending,
				Live:     st.Live,
				Capacity: st.Capacity,
				Occupied: st.Occupied,
			}
		}
		if cfg.Connections != nil {
			resp.Connections = cfg.Connections()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	middlewares := []Middleware{
		Recover(logger),
		RequestID(),
		AccessLog(logger),
		NetworkACL(cfg.AllowList, logger),
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit))
	}
	return Chain(mux, middlewares...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
