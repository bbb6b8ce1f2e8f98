package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/termdeck/internal/logging"
)

type wsClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

type wsServerMessage struct {
	Type       string    `json:"type"` // status, error
	Event      string    `json:"event,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	SessionKey string    `json:"sessionKey,omitempty"`
	ReadOnly   bool      `json:"readOnly,omitempty"`
	Time       time.Time `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes from the output tap and the reader loop.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (w *wsConnWriter) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// handleSessionWS streams raw session output as binary frames and accepts
// ping/input/resize JSON messages.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	const prefix = "/ws/session/"
	key := strings.TrimPrefix(r.URL.Path, prefix)
	if key == "" || strings.Contains(key, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session key is required")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := newWSConnWriter(conn)
	webLog := logging.ForComponent(logging.CompWeb)

	cancelTap, ok := s.host.SubscribeOutput(key, func(b []byte) {
		_ = writer.WriteBinary(b)
	})
	if !ok {
		_ = writer.WriteJSON(wsServerMessage{
			Type:       "error",
			Code:       "NOT_FOUND",
			Message:    "session not found",
			SessionKey: key,
			Time:       time.Now().UTC(),
		})
		return
	}
	defer cancelTap()

	_ = writer.WriteJSON(wsServerMessage{
		Type:       "status",
		Event:      "connected",
		SessionKey: key,
		ReadOnly:   s.cfg.ReadOnly,
		Time:       time.Now().UTC(),
	})

	// Close the connection when the server shuts down; the read loop
	// below unblocks with an error.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.baseCtx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly",
					slog.String("session", key),
					slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsServerMessage{
				Type:       "error",
				Code:       "INVALID_MESSAGE",
				Message:    "invalid json payload",
				SessionKey: key,
				Time:       time.Now().UTC(),
			})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.WriteJSON(wsServerMessage{
				Type:       "status",
				Event:      "pong",
				SessionKey: key,
				Time:       time.Now().UTC(),
			})
		case "input":
			if s.cfg.ReadOnly {
				_ = writer.WriteJSON(wsServerMessage{
					Type:       "error",
					Code:       "READ_ONLY",
					Message:    "input is disabled in read-only mode",
					SessionKey: key,
					Time:       time.Now().UTC(),
				})
				continue
			}
			s.host.SendInput(key, []byte(msg.Data))
		case "resize":
			if msg.Cols <= 0 || msg.Rows <= 0 {
				_ = writer.WriteJSON(wsServerMessage{
					Type:       "error",
					Code:       "INVALID_REQUEST",
					Message:    "cols and rows must be positive",
					SessionKey: key,
					Time:       time.Now().UTC(),
				})
				continue
			}
			s.host.Resize(key, msg.Cols, msg.Rows)
		default:
			_ = writer.WriteJSON(wsServerMessage{
				Type:       "error",
				Code:       "UNSUPPORTED_MESSAGE",
				Message:    "supported message types: ping,input,resize",
				SessionKey: key,
				Time:       time.Now().UTC(),
			})
		}
	}
}
