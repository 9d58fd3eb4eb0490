package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/health"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/logging"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/metrics"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/recovery"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/requestid"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/tracing"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	obsmetrics "github.com/advtxt/advtxt-db-mongo/pkg/observability/metrics"
	"github.com/advtxt/advtxt-db-mongo/pkg/version"
)

// ManagementServer serves operational endpoints:
//
//	GET /health   liveness, always 200
//	GET /ready    readiness from the health registry, 503 when unhealthy
//	GET /metrics  Prometheus exposition
//	GET /version  build metadata
type ManagementServer struct {
	*Server
	router          *mux.Router
	liveness        health.Checker
	healthRegistry  *health.Registry
	metricsRegistry *obsmetrics.Registry
	versionInfo     version.Info
}

func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *obsmetrics.Registry,
	info version.Info,
) *ManagementServer {
	r := mux.NewRouter()
	r.Use(
		requestid.RequestID(),
		logging.Logging(log, "/health", "/metrics"),
		recovery.Recovery(log),
		tracing.Tracing("management"),
		metrics.Metrics(),
	)

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		router:          r,
		liveness:        health.NewPingChecker("liveness"),
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		versionInfo:     info,
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metricsRegistry.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	return s
}

// Router returns the mux router for registering extra routes.
func (s *ManagementServer) Router() *mux.Router {
	return s.router
}

func (s *ManagementServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.liveness.Check(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": string(result.Status)})
}

func (s *ManagementServer) handleReady(w http.ResponseWriter, r *http.Request) {
	result := s.healthRegistry.Check(r.Context())
	status := http.StatusOK
	if !result.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *ManagementServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.versionInfo)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
