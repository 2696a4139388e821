package domain

import "time"

// Message is a single chat bubble.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	IsAssistant    bool      `json:"is_assistant"`
	Signaled       bool      `json:"signaled,omitempty"`
	Persisted      bool      `json:"persisted"`
	CreatedAt      time.Time `json:"created_at"`
}

// Role returns the completion role of the message author.
func (m Message) Role() string {
	if m.IsAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// Completion roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
