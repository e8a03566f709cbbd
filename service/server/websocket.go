package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/agentpay/service/metrics"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a reply to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open on the JSON API as well
	},
}

// handleChatWebSocket answers chat messages over a websocket. Each text
// frame {"message": "..."} gets exactly one ChatResponse frame back.
// GET /api/v1/chat/ws
func handleChatWebSocket(chat ChatAgent, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WarnContext(r.Context(), "failed to upgrade connection", "error", err)
			return
		}
		defer conn.Close()

		m.RecordStreamConnectionChange("websocket", 1)
		defer m.RecordStreamConnectionChange("websocket", -1)
		logger.DebugContext(r.Context(), "websocket client connected", "remote_addr", r.RemoteAddr)

		conn.SetReadLimit(maxMessageLength * 4)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		replies := make(chan interface{}, 1)
		done := make(chan struct{})
		stopped := make(chan struct{})
		defer close(done)
		go func() {
			defer close(stopped)
			writePump(conn, replies, done, logger)
		}()

		send := func(v interface{}) bool {
			select {
			case replies <- v:
				return true
			case <-stopped:
				return false
			}
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.WarnContext(r.Context(), "websocket read error", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			var req chatRequest
			if err := json.Unmarshal(data, &req); err != nil {
				if !send(map[string]string{"error": "invalid message: must be JSON like {\"message\": \"...\"}"}) {
					return
				}
				continue
			}
			if err := validateMessage(req.Message); err != nil {
				if !send(map[string]string{"error": err.Error()}) {
					return
				}
				continue
			}

			if !send(chat.HandleChatMessage(r.Context(), req.Message)) {
				return
			}
			m.RecordStreamEventSent("websocket", "chat")
		}
	})
}

// writePump owns every write on conn: replies in order, plus keepalive pings.
func writePump(conn *websocket.Conn, replies <-chan interface{}, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case reply := <-replies:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				logger.Warn("websocket write error", "error", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}

		case <-done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
