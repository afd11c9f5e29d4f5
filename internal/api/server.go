// Package api serves the status of a live run over HTTP and gRPC health.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/engine/pipeline"
	"BotnetSpectra/internal/worker"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Run is the live run whose state is served.
type Run interface {
	Stats() pipeline.Stats
	Worker() *worker.Worker
}

// StatusResponse is the body of /api/v1/status.
type StatusResponse struct {
	Serving  bool           `json:"serving"`
	Uptime   string         `json:"uptime"`
	Pipeline pipeline.Stats `json:"pipeline"`
	Flows    uint64         `json:"flows"`
	Classes  []string       `json:"classes,omitempty"`
}

// ClassesResponse is the body of /api/v1/classes.
type ClassesResponse struct {
	Classify bool                `json:"classify"`
	Normal   string              `json:"normal,omitempty"`
	Classes  []worker.ClassCount `json:"classes"`
}

// Server serves the status endpoints and the gRPC health service.
type Server struct {
	cfg     config.APIConfig
	run     Run
	started time.Time

	router *mux.Router
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a server for run. Nothing listens until Start.
func NewServer(cfg config.APIConfig, run Run) *Server {
	s := &Server{
		cfg:     cfg,
		run:     run,
		started: time.Now(),
		router:  mux.NewRouter(),
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(newRunCollector(run))

	s.router.HandleFunc("/api/v1/status", s.statusHandler).Methods("GET")
	s.router.HandleFunc("/api/v1/classes", s.classesHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the gRPC health service.
func (s *Server) Health() *health.Server {
	return s.health
}

// Start listens on the configured addresses and reports SERVING.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.GRPCListenAddr)
	if err != nil {
		return err
	}
	go func() {
		log.Printf("gRPC health server starting on %s", lis.Addr())
		if err := s.grpc.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server failed")
		}
	}()

	s.http = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}
	go func() {
		log.Printf("API server starting on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Could not listen on %s", s.http.Addr)
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Shutdown reports NOT_SERVING and stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if s.http == nil {
		return nil
	}
	log.Println("API server shutting down...")
	return s.http.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	wk := s.run.Worker()
	resp := StatusResponse{
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Pipeline: s.run.Stats(),
		Flows:    wk.Flows(),
	}
	if st, err := s.health.Check(r.Context(), &healthpb.HealthCheckRequest{}); err == nil {
		resp.Serving = st.Status == healthpb.HealthCheckResponse_SERVING
	}
	if wk.Options().Classify {
		resp.Classes = wk.Classifier().Classes().Names()
	}
	writeJSON(w, resp)
}

func (s *Server) classesHandler(w http.ResponseWriter, r *http.Request) {
	wk := s.run.Worker()
	resp := ClassesResponse{
		Classify: wk.Options().Classify,
		Classes:  wk.ClassCounts(),
	}
	if id := wk.NormalClassID(); id >= 0 {
		resp.Normal = wk.Classifier().Classes().Class(id).Name()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}
