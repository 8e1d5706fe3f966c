package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cfg    *Config
	loader *Loader
	mapper *Mapper

	httpServer *http.Server
	stopWatch  chan struct{}
}

func NewServer(cfg *Config) (*Server, error) {
	loader, err := NewLoader(cfg.MappingsPath)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		loader:    loader,
		mapper:    NewMapper(loader),
		stopWatch: make(chan struct{}),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/v1/healthz", s.handleHealthz)
	router.Post("/v1/map", s.handleMap)
	router.Post("/v1/reload", s.handleReload)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s, nil
}

func (s *Server) Router() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.startWatch()
	slog.Info("mapper: http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// startWatch begins the mappings file watch unless hot reload is disabled.
func (s *Server) startWatch() {
	if !s.cfg.EnableHotReload {
		slog.Info("mapper: hot reload disabled")
		return
	}
	if err := s.loader.Watch(s.stopWatch); err != nil {
		slog.Warn("mapper: hot reload unavailable", "error", err)
	}
}

func (s *Server) Stop(ctx context.Context) error {
	close(s.stopWatch)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"service_name": s.cfg.ServiceName,
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req MapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}
	resp := s.mapper.Map(req)
	slog.Info("mapper: mapped request",
		"component", req.Component, "styles", len(resp.SourceStyles), "brands", len(resp.SourceBrands))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.loader.Reload(); err != nil {
		slog.Error("mapper: manual reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
