package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "tether/cmd/internal/auth/api"
)

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func registerHTTP(
	r *mux.Router,
	log Logger,
	cfg Config,
	b *backend,
	started time.Time,
	reg *prometheus.Registry,
	auth *authapi.Handler,
) {
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(started).Seconds(),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		if !b.sqlEnabled() {
			checks["database"] = "disabled"
		}
		if b.redis == nil {
			checks["redis"] = "disabled"
		}

		if cfg.ReadinessRequireDB && !b.sqlEnabled() {
			writeHealthJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "error", Checks: checks})
			return
		}

		if dep, err := b.ping(req.Context()); err != nil {
			checks[dep] = "error"
			log.WarnContext(req.Context(), "readyz.not_ready", "dependency", dep, "err", err)
			writeHealthJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "error", Checks: checks})
			return
		}

		writeHealthJSON(w, http.StatusOK, readyResponse{Status: "ok", Checks: checks})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)

	if auth != nil {
		auth.Register(r)
	}
}

func writeHealthJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
