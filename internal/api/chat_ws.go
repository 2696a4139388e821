package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/fitmind/internal/chat"
	"github.com/ashureev/fitmind/internal/identity"
	"github.com/coder/websocket"
)

// ChatSocketHandler serves the chat over a WebSocket so the client gets a
// typing indicator while a completion is in flight.
type ChatSocketHandler struct {
	*Handler
}

// NewChatSocketHandler creates a new WebSocket handler.
func NewChatSocketHandler(base *Handler) *ChatSocketHandler {
	return &ChatSocketHandler{Handler: base}
}

// wsMessage is a client frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsEvent is a server frame.
type wsEvent struct {
	Type   string     `json:"type"`
	Typing *bool      `json:"typing,omitempty"`
	Turn   *chat.Turn `json:"turn,omitempty"`
	Chat   *chat.View `json:"chat,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok || user.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Chat socket connection request", "user_id", user.UserID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	c, err := h.chats.Start(r.Context(), user, sessionID)
	if err != nil {
		slog.Error("Failed to start chat", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "failed to start chat")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", user.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", user.UserID)
		}
	}()

	h.conns.Register(user.UserID, sessionID, ws)
	defer h.conns.Unregister(user.UserID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := c.Snapshot()
	if err := writeEvent(ctx, ws, wsEvent{Type: "state", Chat: &view}); err != nil {
		slog.Debug("Failed to send initial state", "error", err)
		return
	}

	var wg sync.WaitGroup
	h.readLoop(ctx, ws, c, user.UserID, &wg)
	cancel()
	wg.Wait()
	slog.Info("Chat socket ended", "user_id", user.UserID, "session_id", sessionID)
}

func (h *ChatSocketHandler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

func (h *ChatSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *chat.Controller, userID string, wg *sync.WaitGroup) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ctx, ws, "invalid_message")
			continue
		}

		switch msg.Type {
		case "message":
			if h.limiter != nil && !h.limiter.Allow(userID) {
				h.sendError(ctx, ws, "rate_limited")
				continue
			}
			if c.Busy() {
				h.sendError(ctx, ws, "message_in_progress")
				continue
			}
			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				h.submit(ctx, ws, c, text)
			}(msg.Content)
		case "dismiss":
			view := c.DismissRecommendation(ctx)
			if err := writeEvent(ctx, ws, wsEvent{Type: "state", Chat: &view}); err != nil {
				slog.Debug("Failed to send state", "error", err)
			}
		case "ping":
			if err := writeEvent(ctx, ws, wsEvent{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			h.sendError(ctx, ws, "unknown_type")
		}
	}
}

// submit runs one turn and streams typing, reply and state frames.
func (h *ChatSocketHandler) submit(ctx context.Context, ws *websocket.Conn, c *chat.Controller, text string) {
	typing := true
	if err := writeEvent(ctx, ws, wsEvent{Type: "typing", Typing: &typing}); err != nil {
		slog.Debug("Failed to send typing indicator", "error", err)
	}

	turn, err := c.SubmitUserMessage(ctx, text)

	typing = false
	if werr := writeEvent(ctx, ws, wsEvent{Type: "typing", Typing: &typing}); werr != nil {
		slog.Debug("Failed to clear typing indicator", "error", werr)
	}

	switch {
	case errors.Is(err, chat.ErrBusy):
		h.sendError(ctx, ws, "message_in_progress")
		return
	case err != nil:
		slog.Error("Chat message failed", "error", err)
		h.sendError(ctx, ws, "message_failed")
		return
	}

	view := c.Snapshot()
	if turn.Accepted {
		if err := writeEvent(ctx, ws, wsEvent{Type: "reply", Turn: &turn}); err != nil {
			slog.Debug("Failed to send reply", "error", err)
			return
		}
	}
	if err := writeEvent(ctx, ws, wsEvent{Type: "state", Chat: &view}); err != nil {
		slog.Debug("Failed to send state", "error", err)
	}
}

func (h *ChatSocketHandler) sendError(ctx context.Context, ws *websocket.Conn, code string) {
	if err := writeEvent(ctx, ws, wsEvent{Type: "error", Error: code}); err != nil {
		slog.Debug("Failed to send error frame", "error", err, "code", code)
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev wsEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
