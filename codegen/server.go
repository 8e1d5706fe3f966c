package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/config"
	"github.com/mockpilot/mesh/shared/protocol"
)

type Config struct {
	ServiceName string
	Host        string
	Port        int
	RedisURL    string
}

func LoadConfig() *Config {
	return &Config{
		ServiceName: config.GetEnv("SERVICE_NAME", "code_generator"),
		Host:        config.GetEnv("HOST", "0.0.0.0"),
		Port:        config.GetEnvInt("PORT", 8003),
		RedisURL:    config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),
	}
}

// Server exposes generation over REST and also consumes the design_specs
// channel so specs flow to components without a caller in the loop.
type Server struct {
	cfg *Config
	bus *bus.Client

	httpServer *http.Server
}

func NewServer(cfg *Config, busClient *bus.Client) *Server {
	s := &Server{cfg: cfg, bus: busClient}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/v1/healthz", s.handleHealthz)
	router.Post("/v1/generate", s.handleGenerate)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Router() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	slog.Info("codegen: http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// RunConsumer blocks on the design_specs subscription until ctx is done.
func (s *Server) RunConsumer(ctx context.Context) {
	slog.Info("codegen: subscribing", "channel", protocol.ChannelDesignSpecs)
	s.bus.Subscribe(ctx, []string{protocol.ChannelDesignSpecs}, s.handleSpec)
}

func (s *Server) handleSpec(ctx context.Context, channel string, payload []byte) error {
	var spec protocol.DesignSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return fmt.Errorf("decode design spec: %w", err)
	}
	component := Generate(spec)
	if err := s.bus.Publish(ctx, protocol.ChannelComponents, component); err != nil {
		return fmt.Errorf("publish component: %w", err)
	}
	slog.Info("codegen: published component",
		"spec_id", spec.SpecID, "component", spec.Component, "exports", component.NamedExports)
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"service_name": s.cfg.ServiceName,
	})
}

// handleGenerate returns the generated component and publishes it as a side
// effect. A publish failure is logged but does not fail the request.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var spec protocol.DesignSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	component := Generate(spec)
	if err := s.bus.Publish(r.Context(), protocol.ChannelComponents, component); err != nil {
		slog.Error("codegen: component publish failed", "spec_id", spec.SpecID, "error", err)
	}
	writeJSON(w, http.StatusOK, component)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
