package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

type wsServerMessage struct {
	Type      string    `json:"type"` // status, error
	Event     string    `json:"event,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Time      time.Time `json:"time,omitempty"`
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

// handleTerminalWS attaches a websocket to a tab's terminal. The server
// sends output as binary frames and status or errors as JSON text frames;
// the client sends input, resize and ping messages.
func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	sess, ok := s.deck.Get(sessionID)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	if s.terminals == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NO_TERMINALS", "terminals are not available")
		return
	}
	stream, err := s.terminals(sessionID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, "TERMINAL_NOT_FOUND", "terminal is not running")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := newWSConnWriter(conn)
	_ = writer.WriteJSON(wsServerMessage{
		Type:      "status",
		Event:     "connected",
		SessionID: sessionID,
		Title:     sess.DisplayTitle(),
		Time:      time.Now().UTC(),
	})

	bridge, err := newTerminalBridge(sessionID, stream, writer)
	if err != nil {
		s.log.Error("terminal_attach_failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		_ = writer.WriteJSON(wsServerMessage{
			Type:      "error",
			Code:      "TERMINAL_ATTACH_FAILED",
			Message:   "failed to attach terminal bridge",
			SessionID: sessionID,
			Time:      time.Now().UTC(),
		})
		return
	}
	defer bridge.Close()

	// Unblock ReadMessage when the server shuts down.
	go func() {
		select {
		case <-r.Context().Done():
			_ = conn.Close()
		case <-bridge.Done():
		}
	}()

	sendError := func(code, message string) {
		_ = writer.WriteJSON(wsServerMessage{
			Type:      "error",
			Code:      code,
			Message:   message,
			SessionID: sessionID,
			Time:      time.Now().UTC(),
		})
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				s.log.Warn("websocket_closed_unexpectedly",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			sendError("INVALID_MESSAGE", "invalid json payload")
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.WriteJSON(wsServerMessage{
				Type:      "status",
				Event:     "pong",
				SessionID: sessionID,
				Time:      time.Now().UTC(),
			})
		case "input":
			if msg.Data == "" {
				continue
			}
			if err := s.deck.SendInput(sessionID, []byte(msg.Data)); err != nil {
				sendError("INPUT_WRITE_FAILED", "failed to send input to terminal")
			}
		case "resize":
			req := resizeRequest{Cols: msg.Cols, Rows: msg.Rows}
			if !req.valid() {
				sendError("INVALID_SIZE", "cols and rows must be between 1 and 1000")
				continue
			}
			if err := s.deck.Resize(sessionID, uint16(msg.Cols), uint16(msg.Rows)); err != nil {
				sendError("RESIZE_FAILED", "failed to resize terminal")
			}
		default:
			sendError("UNSUPPORTED_MESSAGE", "supported message types: ping,input,resize")
		}
	}
}
