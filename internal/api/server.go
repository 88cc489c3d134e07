package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sitereport-core/internal/audit"
	"github.com/nerrad567/sitereport-core/internal/auth"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/config"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the infrastructure clients (database,
// redis, mqtt, influxdb).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Auth    *auth.Service
	Audit   audit.Repository         // optional; /api/v1/audit/sessions is not mounted without it
	Metrics prometheus.Gatherer      // optional; /metrics is not mounted without it
	Health  map[string]HealthChecker // optional; reported by /api/v1/health
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	auth    *auth.Service
	audit   audit.Repository
	metrics prometheus.Gatherer
	health  map[string]HealthChecker
	version string
	server  *http.Server
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		auth:    deps.Auth,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		health:  deps.Health,
		version: deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine. The server
// can be stopped with Close.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}
