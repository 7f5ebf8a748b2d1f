package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes the session's view after
// every transition, plus notifications raised for the session. The first
// frame is always the current view.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.manager.Hub().Subscribe(id)
	defer unsubscribe()

	// Clients only send close frames; CloseRead handles them and cancels ctx.
	ctx := conn.CloseRead(r.Context())

	v := session.View()
	if err := writeMessage(ctx, conn, Message{Type: MessageView, View: &v}); err != nil {
		slog.Debug("stream write failed", "session_id", id, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := writeMessage(ctx, conn, m); err != nil {
				slog.Debug("stream write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, m)
}
