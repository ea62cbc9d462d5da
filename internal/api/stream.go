package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/stackrank/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	maxStreamConns = 32
	streamBuffer   = 64
)

// streamMessage is the envelope pushed to websocket clients.
type streamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleStream upgrades to a websocket and pushes session events. The
// first message is a full snapshot so clients can render immediately.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.streamConns, 1)
	if current > maxStreamConns {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub, events := s.Session.Subscribe(streamBuffer)
	defer s.Session.Unsubscribe(sub)

	slog.Info("stream client connected", "remote", r.RemoteAddr, "clients", current)
	defer slog.Info("stream client disconnected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go readPump(ws, closed)
	writePump(ws, s.Session.Snapshot(), events, closed)
}

// readPump discards client messages and keeps the read deadline fresh. It
// closes done when the peer goes away.
func readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func writePump(ws *websocket.Conn, snap engine.Snapshot, events <-chan engine.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	if err := writeMessage(ws, streamMessage{Type: "snapshot", Payload: snap}); err != nil {
		return
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeMessage(ws, streamMessage{Type: e.Type, Payload: e.Payload}); err != nil {
				slog.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func writeMessage(ws *websocket.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}
