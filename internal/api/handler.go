// Package api provides HTTP and WebSocket handlers for the FitMind chat API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/fitmind/internal/chat"
	"github.com/ashureev/fitmind/internal/trigger"
	"github.com/go-playground/validator/v10"
)

const maxRequestBodySize = 64 << 10

// Options tune the handlers.
type Options struct {
	Encoding      trigger.Encoding
	AuthEnabled   bool
	AllowedOrigin string
	IsDev         bool
}

// Handler provides common handler utilities.
type Handler struct {
	chats    *chat.Manager
	limiter  *RateLimiter
	conns    *Connections
	validate *validator.Validate
	opts     Options
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(chats *chat.Manager, limiter *RateLimiter, conns *Connections, opts Options) *Handler {
	if conns == nil {
		conns = NewConnections()
	}
	return &Handler{
		chats:    chats,
		limiter:  limiter,
		conns:    conns,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a size-limited JSON body into v and validates it. On
// failure it writes the error response and returns false.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": " + fe.Tag()
	}
	return "invalid request body"
}
