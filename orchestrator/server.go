package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/shared/protocol"
)

type Server struct {
	cfg     *Config
	store   *SessionStore
	tokens  *TokenService
	manager *ConnectionManager
	bus     *bus.Client
	metrics *Metrics

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *Config, busClient *bus.Client) *Server {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	s := &Server{
		cfg:     cfg,
		store:   NewSessionStore(),
		tokens:  NewTokenService(cfg.JWTSecretKey, cfg.JWTAlgorithm, cfg.JWTExpiration),
		manager: NewConnectionManager(metrics),
		bus:     busClient,
		metrics: metrics,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Route("/"+cfg.APIVersion, func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{session_id}/summary", s.handleSessionSummary)
		r.Delete("/sessions/{session_id}", s.handleDeleteSession)
		r.Get("/ws/{session_id}", s.handleWebSocket)
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.httpServer.Handler }

// Tokens exposes the token service for tests and the CLI.
func (s *Server) Tokens() *TokenService { return s.tokens }

func (s *Server) Start() error {
	slog.Info("orchestrator: http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// RunFanout blocks on the bus subscription, relaying every bus message to
// the connected clients until ctx is done.
func (s *Server) RunFanout(ctx context.Context) {
	s.bus.Subscribe(ctx, protocol.ChannelsAll(), s.handleBusMessage)
}

// channel -> outbound frame kind mapping for the fan-out.
var channelKinds = map[string]string{
	protocol.ChannelTranscripts:   protocol.KindTranscript,
	protocol.ChannelIntents:       protocol.KindIntent,
	protocol.ChannelComponents:    protocol.KindComponent,
	protocol.ChannelInsights:      protocol.KindInsight,
	protocol.ChannelDesignSpecs:   protocol.KindDesignSpec,
	protocol.ChannelServiceStatus: protocol.KindServiceStatus,
}

func (s *Server) handleBusMessage(ctx context.Context, channel string, payload []byte) error {
	kind, ok := channelKinds[channel]
	if !ok {
		slog.Warn("orchestrator: message from unmapped channel dropped", "channel", channel)
		return nil
	}

	// Validate the payload against its schema before rebroadcasting; a
	// malformed message is dropped here rather than sent to every client.
	switch channel {
	case protocol.ChannelTranscripts:
		var msg protocol.TranscriptMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid transcript payload: %w", err)
		}
		s.store.RecordTranscript(msg.Text)
	case protocol.ChannelIntents:
		var msg protocol.IntentMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid intent payload: %w", err)
		}
	case protocol.ChannelComponents:
		var msg protocol.ComponentMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid component payload: %w", err)
		}
		s.store.RecordComponent()
	case protocol.ChannelInsights:
		var msg protocol.InsightMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid insight payload: %w", err)
		}
	case protocol.ChannelDesignSpecs:
		var msg protocol.DesignSpec
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid design spec payload: %w", err)
		}
	case protocol.ChannelServiceStatus:
		var msg protocol.ServiceStatusMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid service status payload: %w", err)
		}
	}

	frame, err := protocol.WrapKind(kind, payload)
	if err != nil {
		return err
	}
	s.manager.Broadcast(frame)
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// --- REST handlers ---

type healthResponse struct {
	Status         string    `json:"status"`
	ServiceName    string    `json:"service_name"`
	APIVersion     string    `json:"api_version"`
	CurrentTimeUTC time.Time `json:"current_time_utc"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ServiceName:    s.cfg.ServiceName,
		APIVersion:     s.cfg.APIVersion,
		CurrentTimeUTC: time.Now().UTC(),
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type sessionCreateResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Token     tokenResponse `json:"token"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	summary := s.store.Create()

	token, err := s.tokens.Issue(summary.SessionID.String(), []string{ScopeSessionActive})
	if err != nil {
		slog.Error("orchestrator: token issue failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}

	s.metrics.SessionsCreated.Inc()
	slog.Info("orchestrator: new session created", "session_id", summary.SessionID)
	writeJSON(w, http.StatusCreated, sessionCreateResponse{
		SessionID: summary.SessionID,
		Token:     tokenResponse{AccessToken: token, TokenType: "bearer"},
	})
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "invalid session id")
		return
	}

	summary, ok := s.store.Get(id)
	if !ok {
		slog.Warn("orchestrator: session not found", "session_id", id)
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Session with ID '%s' not found.", id))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "invalid session id")
		return
	}

	if !s.store.Delete(id) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Session with ID '%s' not found.", id))
		return
	}
	s.manager.DisconnectSession(id.String(), websocket.CloseNormalClosure, "session closed")
	slog.Info("orchestrator: session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- WebSocket handler ---

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	tokenString := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade error", "error", err)
		return
	}

	// Admission happens after the upgrade so the client receives a proper
	// close code instead of an opaque HTTP error.
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		slog.Warn("ws: rejected connection with invalid token", "session_id", sessionID, "error", err)
		closeWith(conn, websocket.ClosePolicyViolation, "invalid token")
		return
	}
	if claims.Subject != sessionID {
		slog.Warn("ws: token subject does not match session",
			"session_id", sessionID, "subject", claims.Subject)
		closeWith(conn, websocket.ClosePolicyViolation, "token subject mismatch")
		return
	}

	client := NewClientConnection(conn, sessionID, s.cfg.STTServiceWSURL, s.cfg.MaxQueueSize, s.metrics)
	s.manager.Connect(client)
	client.StartSender()
	go s.heartbeatLoop(client)

	s.receiveLoop(client)

	s.manager.Disconnect(client)
	client.Wait()
}

func (s *Server) heartbeatLoop(client *ClientConnection) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-client.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := client.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Debug("ws: heartbeat ping failed", "client_id", client.ClientID(), "error", err)
				return
			}
		}
	}
}

func (s *Server) receiveLoop(client *ClientConnection) {
	readTimeout := s.cfg.HeartbeatInterval + 5*time.Second
	conn := client.conn

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("ws: read loop ended", "client_id", client.ClientID(), "error", err)
			}
			return
		}
		s.dispatchClientFrame(client, data)
	}
}

func (s *Server) dispatchClientFrame(client *ClientConnection, data []byte) {
	kind, err := protocol.FrameKind(data)
	if err != nil {
		slog.Warn("ws: non-JSON message from client dropped", "client_id", client.ClientID(), "error", err)
		return
	}

	switch kind {
	case protocol.KindAudioChunk:
		chunk, err := protocol.DecodeFrame[protocol.AudioChunk](data)
		if err != nil {
			slog.Error("ws: bad audio chunk", "client_id", client.ClientID(), "error", err)
			client.SendError("invalid frame", err.Error(), "bad_frame")
			return
		}
		if err := client.ForwardAudio(chunk); err != nil {
			slog.Error("ws: failed to forward audio to stt", "client_id", client.ClientID(), "error", err)
		}

	case protocol.KindEditComponent:
		edit, err := protocol.DecodeFrame[protocol.EditComponent](data)
		if err != nil {
			slog.Error("ws: bad edit_component frame", "client_id", client.ClientID(), "error", err)
			client.SendError("invalid frame", err.Error(), "bad_frame")
			return
		}
		slog.Info("ws: component edit received",
			"client_id", client.ClientID(), "spec_id", edit.SpecID, "patch_type", edit.PatchType)
		client.SendServiceStatus("edit_applied:" + edit.SpecID)

	case protocol.KindControlSession:
		ctl, err := protocol.DecodeFrame[protocol.ControlSession](data)
		if err != nil {
			slog.Error("ws: bad control_session frame", "client_id", client.ClientID(), "error", err)
			client.SendError("invalid frame", err.Error(), "bad_frame")
			return
		}
		slog.Info("ws: session control received", "client_id", client.ClientID(), "action", ctl.Action)
		client.SendServiceStatus("action:" + ctl.Action)

	case protocol.KindPingCustom:
		client.SendServiceStatus("pong_custom")

	default:
		slog.Warn("ws: unknown message kind from client", "client_id", client.ClientID(), "kind", kind)
		client.SendError("unknown message kind", kind, "unknown_kind")
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("orchestrator: write response error", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
