package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ServerConfig configures the camflowd relay server.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string

	// Logger is the structured logger (optional).
	Logger *slog.Logger
}

// Server is the camflowd relay. Pipelines connect to /ingest and push
// events; viewers connect to /live (optionally ?camera_id=...) and
// receive them. The relay holds no state beyond connected clients.
type Server struct {
	addr     string
	logger   *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a Server from cfg.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   cfg.Addr,
		logger: logger,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	go s.hub.Run(done)
	defer close(done)

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("camflowd listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleIngest accepts a publisher connection and rebroadcasts every
// message it sends. The camera id is read from the event envelope so
// one connection may carry events for multiple runs.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ingest upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ingest connection closed", "error", err)
			}
			return
		}

		var envelope struct {
			Type     string `json:"type"`
			CameraID string `json:"camera_id"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Type == "" {
			s.logger.Debug("malformed ingest event dropped", "error", err)
			continue
		}
		s.hub.Broadcast(envelope.CameraID, payload)
	}
}

// handleLive upgrades a viewer connection, registers it with the hub,
// and confirms the subscription with a welcome event.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn:     conn,
		send:     make(chan message, subscriberBuf),
		cameraID: r.URL.Query().Get("camera_id"),
	}
	s.hub.register <- sub

	welcome, _ := json.Marshal(WelcomeEvent{Type: EventTypeWelcome, CameraID: sub.cameraID})
	sub.send <- message{cameraID: sub.cameraID, payload: welcome}

	go sub.writePump()
	go sub.readPump(s.hub)
}
