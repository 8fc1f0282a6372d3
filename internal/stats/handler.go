package stats

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Report is the JSON body served by GET /stats.
type Report struct {
	Prefix string           `json:"prefix,omitempty"`
	Sum    int64            `json:"sum"`
	Counts map[string]int64 `json:"counts"`
}

// NewRouter exposes c over HTTP:
//
//	GET /health          liveness
//	GET /stats?prefix=p  counts (optionally filtered) and their sum
//	GET /metrics         Prometheus exposition
func NewRouter(c *Counter) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		prefix := req.URL.Query().Get("prefix")
		counts := c.Filter(prefix)
		var sum int64
		for _, v := range counts {
			sum += v
		}
		writeJSON(w, Report{Prefix: prefix, Sum: sum, Counts: counts})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("stats: encode response", zap.Error(err))
	}
}
