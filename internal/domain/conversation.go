package domain

import "time"

// DefaultConversationTitle is assigned to conversations created on first visit.
const DefaultConversationTitle = "Fitness Chat"

// Conversation holds the transcript and the recommendation state of one chat.
type Conversation struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Guest  bool   `json:"guest"`

	// ConsentPending is set by an assistant offer and consumed by the next user turn.
	ConsentPending bool `json:"consent_pending"`
	// OfferTurn is the TurnCount value at which the pending offer was issued.
	OfferTurn int `json:"offer_turn"`
	// RecommendationShown latches once per conversation.
	RecommendationShown bool `json:"recommendation_shown"`
	// RecommendationVisible is true while the card is on screen.
	RecommendationVisible bool   `json:"recommendation_visible"`
	TurnCount             int    `json:"turn_count"`
	Goal                  string `json:"goal,omitempty"`

	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return &out
}
