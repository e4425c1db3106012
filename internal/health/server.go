// Package health serves liveness and readiness probes over HTTP and the standard
// gRPC health checking protocol.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check reports whether one dependency is usable
type Check func(ctx context.Context) error

// Pinger is anything with a connectivity check, such as a repository store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger
func PingCheck(p Pinger) Check {
	return p.Ping
}

// HealthResponse represents the JSON response for liveness endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ReadyResponse represents the JSON response for the readiness endpoint.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// Config holds the configuration for the health server.
type Config struct {
	ServiceName string
	Version     string
	// Port of the HTTP probe server; zero disables it.
	Port int
	// GRPCPort of the gRPC health service; zero disables it.
	GRPCPort      int
	CheckTimeout  time.Duration
	CheckInterval time.Duration
	Logger        *logrus.Logger
	Checks        map[string]Check
}

// Server answers probes for the whole process. It reports not ready until
// SetReady(true) and whenever a dependency check fails.
type Server struct {
	cfg    Config
	logger *logrus.Entry
	names  []string
	grpc   *grpchealth.Server

	mu    sync.RWMutex
	ready bool
}

// NewServer creates a new health check server.
func NewServer(cfg Config) *Server {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 3 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	names := make([]string, 0, len(cfg.Checks))
	for name := range cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.WithField("component", "health"),
		names:  names,
		grpc:   grpchealth.NewServer(),
	}
	s.grpc.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.grpc.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetReady marks the process as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
	if !ready {
		s.setServing(false)
	}
}

// IsReady returns whether the process has been marked ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Evaluate runs every dependency check and updates the gRPC serving status. The
// returned map holds "ok" or the failure per check.
func (s *Server) Evaluate(ctx context.Context) (bool, map[string]string) {
	checks := make(map[string]string, len(s.names)+1)
	healthy := s.IsReady()
	if healthy {
		checks["service"] = "ok"
	} else {
		checks["service"] = "not_ready"
	}

	for _, name := range s.names {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
		err := s.cfg.Checks[name](cctx)
		cancel()
		if err != nil {
			healthy = false
			checks[name] = fmt.Sprintf("error: %v", err)
			continue
		}
		checks[name] = "ok"
	}

	s.setServing(healthy)
	return healthy, checks
}

func (s *Server) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpc.SetServingStatus("", status)
	s.grpc.SetServingStatus(s.cfg.ServiceName, status)
}

// Handler returns the HTTP probe routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	return mux
}

// RegisterGRPC attaches the health service to gs
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.grpc)
}

// Run serves the configured listeners and re-evaluates checks periodically until
// ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	var (
		httpSrv *http.Server
		grpcSrv *grpc.Server
		errCh   = make(chan error, 2)
	)

	if s.cfg.Port > 0 {
		httpSrv = &http.Server{
			Addr:         ":" + strconv.Itoa(s.cfg.Port),
			Handler:      s.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			s.logger.WithField("port", s.cfg.Port).Info("Health check server starting")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("health http server: %w", err)
			}
		}()
	}

	if s.cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.GRPCPort))
		if err != nil {
			if httpSrv != nil {
				_ = httpSrv.Close()
			}
			return fmt.Errorf("failed to listen for grpc health: %w", err)
		}
		grpcSrv = grpc.NewServer()
		s.RegisterGRPC(grpcSrv)
		go func() {
			s.logger.WithField("port", s.cfg.GRPCPort).Info("gRPC health service starting")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			runErr = err
			break loop
		case <-ticker.C:
			if healthy, checks := s.Evaluate(ctx); !healthy {
				s.logger.WithField("checks", checks).Warn("Readiness checks failing")
			}
		}
	}

	s.logger.Info("Health check server shutting down")
	s.grpc.Shutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// handleHealth handles the /health endpoint - basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
	})
}

// handleLive handles the /live endpoint - kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.cfg.ServiceName})
}

// handleReady handles the /ready endpoint
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	healthy, checks := s.Evaluate(r.Context())

	response := ReadyResponse{
		Status:   "ok",
		Service:  s.cfg.ServiceName,
		Checks:   checks,
		Duration: time.Since(start).String(),
	}
	status := http.StatusOK
	if !healthy {
		response.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
