package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/fault"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type liveMessage struct {
	Type  string                  `json:"type"`
	State *engine.DominationState `json:"state,omitempty"`
	Error string                  `json:"error,omitempty"`
}

const (
	liveMinInterval  = time.Second
	liveWriteTimeout = 5 * time.Second
)

// registerLive exposes a websocket that pushes the domination state of a
// session once per tick until the session completes or the client leaves.
func registerLive(r chi.Router, basePath string, e engine.Engine, logger *slog.Logger) {
	r.Get(path.Join(basePath, "domination/sessions/{session_id}/live"), func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		s, err := e.GetDominationSession(r.Context(), sessionID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("failed to upgrade to websocket", "error", err)
			return
		}
		defer conn.Close()
		logger.Info("live feed connected", "session_id", sessionID)
		streamState(r.Context(), conn, e, s, logger)
		logger.Info("live feed disconnected", "session_id", sessionID)
	})
}

func streamState(ctx context.Context, conn *websocket.Conn, e engine.Engine, s domain.DominationSession, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Client messages are ignored; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	interval := time.Duration(s.TickIntervalSec) * time.Second
	if interval < liveMinInterval {
		interval = liveMinInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := e.DominationState(ctx, s.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			msg := "internal error"
			if fault.Has(err, fault.CodeNotFound) {
				msg = "session not found"
			}
			sendLive(conn, liveMessage{Type: "error", Error: msg}, logger)
			return
		}
		if err := sendLive(conn, liveMessage{Type: "state", State: &st}, logger); err != nil {
			return
		}
		if st.Session.Status == domain.SessionCompleted {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"),
				time.Now().Add(liveWriteTimeout))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sendLive(conn *websocket.Conn, msg liveMessage, logger *slog.Logger) error {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("failed to marshal live message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Debug("failed to send live message", "error", err)
		return err
	}
	return nil
}
