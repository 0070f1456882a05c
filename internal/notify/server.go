package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type ServerConfig struct {
	// WriteTimeout bounds a single event write to one subscriber.
	WriteTimeout time.Duration
}

// Server exposes the outcome stream over a local listener: GET
// /healthz for liveness and GET /v1/events for the websocket stream.
type Server struct {
	broadcaster *Broadcaster
	cfg         ServerConfig
	log         zerolog.Logger
}

func NewServer(b *Broadcaster, cfg ServerConfig, log zerolog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Server{
		broadcaster: b,
		cfg:         cfg,
		log:         log.With().Str("component", "notify").Logger(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/healthz" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/v1/events" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)
	s.log.Debug().Int("subscribers", s.broadcaster.Count()).Msg("subscriber connected")

	// Subscribers never send; CloseRead surfaces disconnects as
	// context cancellation.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("subscriber write failed")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
