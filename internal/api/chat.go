package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/fitmind/internal/chat"
	"github.com/ashureev/fitmind/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ChatHandler serves the chat REST endpoints.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

type sendMessageRequest struct {
	Message string `json:"message" validate:"max=8000"`
}

type productClickRequest struct {
	Product string `json:"product" validate:"required,max=200"`
}

type chatResponse struct {
	Chat         chat.View         `json:"chat"`
	QuickReplies []chat.QuickReply `json:"quick_replies,omitempty"`
}

type turnResponse struct {
	Turn chat.Turn `json:"turn"`
	Chat chat.View `json:"chat"`
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Route("/chat", func(r chi.Router) {
			r.Get("/", h.GetChat)
			r.Post("/start", h.StartChat)
			r.Post("/messages", h.SendMessage)
			r.Post("/recommendation/dismiss", h.DismissRecommendation)
			r.Post("/recommendation/click", h.ClickProduct)
		})
	})
}

// GetMe returns the current caller.
func (h *ChatHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok || user.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
		"first_name":   user.FirstName(),
		"email":        user.Email,
		"guest":        user.Guest,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"encoding":      h.opts.Encoding,
		"auth_enabled":  h.opts.AuthEnabled,
		"quick_replies": chat.QuickReplies,
	})
}

// StartChat opens or resumes the caller's conversation for this tab.
func (h *ChatHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	view := c.Snapshot()
	resp := chatResponse{Chat: view}
	if view.TurnCount == 0 {
		resp.QuickReplies = chat.QuickReplies
	}
	JSON(w, http.StatusOK, resp)
}

// GetChat returns the active conversation of this tab.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	c, ok := h.chats.Get(userID, sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "chat_not_started")
		return
	}
	JSON(w, http.StatusOK, chatResponse{Chat: c.Snapshot()})
}

// SendMessage submits a user message and returns the assistant turn.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req sendMessageRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	slog.Info("Chat message received",
		"user_id", userID,
		"conversation_id", c.ConversationID(),
		"message_length", len(req.Message),
	)
	turn, err := c.SubmitUserMessage(r.Context(), req.Message)
	if errors.Is(err, chat.ErrBusy) {
		Error(w, http.StatusConflict, "message_in_progress")
		return
	}
	if err != nil {
		slog.Error("Chat message failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	JSON(w, http.StatusOK, turnResponse{Turn: turn, Chat: c.Snapshot()})
}

// DismissRecommendation hides the product card.
func (h *ChatHandler) DismissRecommendation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, chatResponse{Chat: c.DismissRecommendation(r.Context())})
}

// ClickProduct records an affiliate click and returns the link to follow.
func (h *ChatHandler) ClickProduct(w http.ResponseWriter, r *http.Request) {
	var req productClickRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	card, found := c.RecordProductClick(r.Context(), req.Product)
	if !found {
		Error(w, http.StatusNotFound, "product not found")
		return
	}
	JSON(w, http.StatusOK, card)
}

// controller returns the caller's controller, starting it when needed.
func (h *ChatHandler) controller(w http.ResponseWriter, r *http.Request) (*chat.Controller, bool) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok || user.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	c, err := h.chats.Start(r.Context(), user, sessionID)
	if err != nil {
		slog.Error("Failed to start chat", "error", err, "user_id", user.UserID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to start chat")
		return nil, false
	}
	return c, true
}
