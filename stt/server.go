package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/mockpilot/mesh/shared/bus"
)

const writeTimeout = 10 * time.Second

type Server struct {
	cfg      *Config
	bus      *bus.Client
	model    Model
	provider Provider

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *Config, busClient *bus.Client) (*Server, error) {
	var model Model
	switch cfg.VADBackend {
	case "silero":
		m, err := NewSileroModel(cfg.VADModelPath, cfg.SampleRate, cfg.VADThreshold)
		if err != nil {
			return nil, fmt.Errorf("init silero backend: %w", err)
		}
		model = m
	case "energy", "":
		model = NewEnergyModel()
	default:
		return nil, fmt.Errorf("unknown VAD backend %q", cfg.VADBackend)
	}

	provider := NewWhisperClient(cfg.WhisperURL, cfg.OpenAIAPIKey, cfg.WhisperModel, cfg.SampleRate, cfg.Channels)
	return newServerWith(cfg, busClient, model, provider), nil
}

// newServerWith lets tests inject the model and provider.
func newServerWith(cfg *Config, busClient *bus.Client, model Model, provider Provider) *Server {
	s := &Server{
		cfg:      cfg,
		bus:      busClient,
		model:    model,
		provider: provider,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/v1/healthz", s.handleHealthz)
	router.Get("/v1/stream/{session_id}", s.handleStream)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Router() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	slog.Info("stt: http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service_name": s.cfg.ServiceName})
}

// handleStream is the audio ingress endpoint. Binary frames are PCM16LE
// mono audio; the stream ends when the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("stt: upgrade error", "error", err)
		return
	}
	defer conn.Close()

	clientID := conn.RemoteAddr().String()
	slog.Info("stt: stream connected", "client_id", clientID, "session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	if err := s.bus.Ping(ctx); err != nil {
		slog.Error("stt: bus unavailable, refusing stream", "session_id", sessionID, "error", err)
		_ = send(controlFrame{Type: "error", Message: "Internal server error: Service unavailable."})
		closeWith(conn, websocket.CloseInternalServerErr, "bus unavailable")
		return
	}

	segmenter := NewSegmenter(s.model, SegmenterConfig{
		SampleRate:     s.cfg.SampleRate,
		WindowSamples:  s.cfg.WindowSamples,
		Threshold:      s.cfg.VADThreshold,
		MinSilenceMs:   s.cfg.MinSilenceMs,
		MinSpeechMs:    s.cfg.MinSpeechMs,
		SpeechPadMs:    s.cfg.SpeechPadMs,
		PartialEveryMs: int(s.cfg.PartialEvery.Milliseconds()),
	})
	pool := NewPool(s.provider, s.cfg.MaxInFlight)
	pipeline := NewPipeline(sessionID, segmenter, pool, s.bus, send, s.cfg.Language)

	audioIn := make(chan []byte, 64)
	go func() {
		defer close(audioIn)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Info("stt: stream read ended", "client_id", clientID, "error", err)
				}
				return
			}
			if msgType != websocket.BinaryMessage || len(data) == 0 {
				continue
			}
			select {
			case audioIn <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := pipeline.Run(ctx, audioIn); err != nil && ctx.Err() == nil {
		slog.Error("stt: pipeline failed", "client_id", clientID, "session_id", sessionID, "error", err)
		_ = send(controlFrame{Type: "error", Message: "An internal server error occurred."})
		closeWith(conn, websocket.CloseInternalServerErr, "pipeline error")
		return
	}

	slog.Info("stt: stream closed", "client_id", clientID, "session_id", sessionID)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
