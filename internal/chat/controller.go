// Package chat implements the per-session conversation controller.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/fitmind/internal/catalog"
	"github.com/ashureev/fitmind/internal/completion"
	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/events"
	"github.com/ashureev/fitmind/internal/store"
	"github.com/ashureev/fitmind/internal/trigger"
	"github.com/google/uuid"
)

// ErrBusy is returned when a message is submitted while another is in flight.
var ErrBusy = errors.New("a message is already being processed")

const defaultPersistTimeout = 5 * time.Second

// Deps are the collaborators shared by every controller.
type Deps struct {
	Completion   completion.Client
	Evaluator    *trigger.Evaluator
	Store        store.Repository
	Events       events.Sink
	Catalog      *catalog.Catalog
	SystemPrompt string
	Logger       *slog.Logger

	PersistTimeout time.Duration
	Now            func() time.Time
}

func (d *Deps) normalize() {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = defaultPersistTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Controller owns one conversation for one browser tab.
type Controller struct {
	deps      *Deps
	user      domain.User
	sessionID string
	// persist is false for guests and for conversations the store rejected.
	persist bool

	mu   sync.Mutex
	conv *domain.Conversation

	persistMu  sync.Mutex
	inflight   atomic.Bool
	lastActive atomic.Int64
}

// Turn is the result of one submitted user message.
type Turn struct {
	Accepted         bool            `json:"accepted"`
	UserMessage      *domain.Message `json:"user_message,omitempty"`
	AssistantMessage *domain.Message `json:"assistant_message,omitempty"`
	Signal           string          `json:"signal"`
	Reveal           bool            `json:"reveal"`
	Card             *catalog.Card   `json:"card,omitempty"`
	Degraded         bool            `json:"degraded,omitempty"`
}

// View is a read-only snapshot of a conversation.
type View struct {
	ConversationID        string           `json:"conversation_id"`
	Title                 string           `json:"title"`
	Guest                 bool             `json:"guest"`
	Messages              []domain.Message `json:"messages"`
	ConsentPending        bool             `json:"consent_pending"`
	RecommendationShown   bool             `json:"recommendation_shown"`
	RecommendationVisible bool             `json:"recommendation_visible"`
	TurnCount             int              `json:"turn_count"`
	Goal                  string           `json:"goal,omitempty"`
	Typing                bool             `json:"typing"`
	Card                  *catalog.Card    `json:"card,omitempty"`
}

func newController(deps *Deps, user domain.User, sessionID string, conv *domain.Conversation, persist bool) *Controller {
	c := &Controller{
		deps:      deps,
		user:      user,
		sessionID: sessionID,
		persist:   persist,
		conv:      conv,
	}
	c.touch()
	return c
}

// ConversationID returns the ID of the owned conversation.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.ID
}

// Busy reports whether a completion call is in flight.
func (c *Controller) Busy() bool { return c.inflight.Load() }

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		ConversationID:        c.conv.ID,
		Title:                 c.conv.Title,
		Guest:                 c.conv.Guest,
		Messages:              append([]domain.Message(nil), c.conv.Messages...),
		ConsentPending:        c.conv.ConsentPending,
		RecommendationShown:   c.conv.RecommendationShown,
		RecommendationVisible: c.conv.RecommendationVisible,
		TurnCount:             c.conv.TurnCount,
		Goal:                  c.conv.Goal,
		Typing:                c.inflight.Load(),
	}
	if v.RecommendationVisible {
		card := c.deps.Catalog.Featured()
		v.Card = &card
	}
	return v
}

// SubmitUserMessage sends text to the assistant and applies the
// recommendation protocol. Empty text is ignored without error.
func (c *Controller) SubmitUserMessage(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{Accepted: false, Signal: trigger.SignalNone.String()}, nil
	}
	if !c.inflight.CompareAndSwap(false, true) {
		return Turn{}, ErrBusy
	}
	defer c.inflight.Store(false)
	c.touch()

	c.mu.Lock()
	userMsg := c.newMessage(text, false)
	history := completion.HistoryFrom(c.conv.Messages)
	c.conv.Messages = append(c.conv.Messages, userMsg)
	c.conv.TurnCount++
	turnNo := c.conv.TurnCount

	goal, goalSelected := GoalFor(text)
	if goalSelected {
		c.conv.Goal = goal
	}

	c.conv.UpdatedAt = userMsg.CreatedAt
	attrs := c.baseAttrsLocked()
	c.mu.Unlock()

	userMsg.Persisted = c.saveMessage(ctx, userMsg)

	resp, callErr := c.deps.Completion.Complete(ctx, completion.Request{
		SystemPrompt: c.deps.SystemPrompt,
		History:      history,
		Message:      text,
		Structured:   c.deps.Evaluator.Structured(),
	})

	outcome := trigger.Outcome{Text: FallbackReply, Signal: trigger.SignalNone}
	degraded := false
	if callErr != nil {
		degraded = true
		c.deps.Logger.ErrorContext(ctx, "Completion failed",
			"conversation_id", attrs["conversation_id"],
			"turn", turnNo,
			"error", callErr,
		)
		c.deps.Events.RecordEvent(ctx, events.CompletionFailed, withAttrs(attrs, "turn_count", turnNo))
	} else {
		var parseErr error
		outcome, parseErr = c.deps.Evaluator.Interpret(resp.Content, resp.Offer)
		if parseErr != nil {
			c.deps.Logger.WarnContext(ctx, "Structured reply could not be decoded, showing raw text",
				"conversation_id", attrs["conversation_id"],
				"turn", turnNo,
				"error", parseErr,
			)
		}
	}

	c.mu.Lock()
	assistantMsg := c.newMessage(outcome.Text, true)
	assistantMsg.Signaled = outcome.Signal == trigger.SignalOffer
	c.conv.Messages = append(c.conv.Messages, assistantMsg)
	// A failed call leaves the consent state as it was before the turn.
	var decision trigger.Decision
	if callErr == nil {
		st := stateOf(c.conv)
		decision = st.ApplyUserTurn(turnNo, text)
		st.ApplyAssistantSignal(turnNo, outcome.Signal)
		applyState(c.conv, st)
	}
	c.conv.UpdatedAt = assistantMsg.CreatedAt
	goalNow := c.conv.Goal
	c.mu.Unlock()

	assistantMsg.Persisted = c.saveMessage(ctx, assistantMsg)
	c.saveState(ctx)
	c.markPersisted(userMsg, assistantMsg)

	c.recordTurnEvents(ctx, attrs, turnNo, goalNow, goalSelected, decision, outcome.Signal)

	turn := Turn{
		Accepted:         true,
		UserMessage:      &userMsg,
		AssistantMessage: &assistantMsg,
		Signal:           decision.Signal().String(),
		Reveal:           decision.Reveal,
		Degraded:         degraded,
	}
	if !decision.Reveal && outcome.Signal == trigger.SignalOffer {
		turn.Signal = trigger.SignalOffer.String()
	}
	if decision.Reveal {
		card := c.deps.Catalog.Featured()
		turn.Card = &card
	}
	return turn, nil
}

// DismissRecommendation hides the card. It is idempotent.
func (c *Controller) DismissRecommendation(ctx context.Context) View {
	c.touch()
	c.mu.Lock()
	st := stateOf(c.conv)
	changed := st.Dismiss()
	applyState(c.conv, st)
	if changed {
		c.conv.UpdatedAt = c.deps.Now()
	}
	attrs := c.baseAttrsLocked()
	view := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.saveState(ctx)
		c.deps.Events.RecordEvent(ctx, events.RecommendationDismissed, attrs)
	}
	return view
}

// RecordProductClick records a click on the affiliate card.
func (c *Controller) RecordProductClick(ctx context.Context, productName string) (catalog.Card, bool) {
	c.touch()
	product, ok := c.deps.Catalog.Lookup(productName)
	if !ok {
		return catalog.Card{}, false
	}

	c.mu.Lock()
	attrs := c.baseAttrsLocked()
	c.mu.Unlock()

	c.deps.Events.RecordEvent(ctx, events.AffiliateClick, withAttrs(attrs, "product", product.Name, "link", product.Link))
	return catalog.CardOf(product), true
}

func (c *Controller) recordTurnEvents(ctx context.Context, attrs events.Attrs, turnNo int, goal string, goalSelected bool, decision trigger.Decision, signal trigger.Signal) {
	sink := c.deps.Events

	if turnNo == 1 {
		sink.RecordEvent(ctx, events.ChatStart, withAttrs(attrs, "goal", goal))
	}
	sink.RecordEvent(ctx, events.QualifiedChat, withAttrs(attrs, "turn_count", turnNo, "goal", goal))
	if goalSelected {
		sink.RecordEvent(ctx, events.GoalSelect, withAttrs(attrs, "goal", goal))
	}
	if decision.Reveal {
		card := c.deps.Catalog.Featured()
		sink.RecordEvent(ctx, events.RecommendationShown, withAttrs(attrs, "product", card.ProductName, "matched", decision.Matched))
	}
	if decision.Evaluated && decision.Consent == trigger.ConsentNegative {
		sink.RecordEvent(ctx, events.RecommendationDeclined, withAttrs(attrs, "matched", decision.Matched))
	}
	if signal == trigger.SignalOffer {
		sink.RecordEvent(ctx, events.RecommendationOffered, withAttrs(attrs, "turn_count", turnNo))
	}
}

func (c *Controller) newMessage(text string, assistant bool) domain.Message {
	return domain.Message{
		ID:             uuid.NewString(),
		ConversationID: c.conv.ID,
		Text:           text,
		IsAssistant:    assistant,
		CreatedAt:      c.deps.Now(),
	}
}

func (c *Controller) baseAttrsLocked() events.Attrs {
	return events.Attrs{
		"conversation_id": c.conv.ID,
		"user_id":         c.user.UserID,
		"session_id":      c.sessionID,
		"guest":           c.conv.Guest,
	}
}

func (c *Controller) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.deps.PersistTimeout)
}

// saveMessage writes msg and reports whether it was stored. Failures are logged.
func (c *Controller) saveMessage(ctx context.Context, msg domain.Message) bool {
	if !c.persist {
		return false
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	pctx, cancel := c.persistCtx(ctx)
	defer cancel()
	if err := c.deps.Store.AppendMessage(pctx, msg); err != nil {
		c.deps.Logger.WarnContext(ctx, "Failed to persist message",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err,
		)
		return false
	}
	return true
}

func (c *Controller) saveState(ctx context.Context) {
	if !c.persist {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	snap := *c.conv
	snap.Messages = nil
	c.mu.Unlock()

	pctx, cancel := c.persistCtx(ctx)
	defer cancel()
	if err := c.deps.Store.UpdateConversationState(pctx, &snap); err != nil {
		c.deps.Logger.WarnContext(ctx, "Failed to persist conversation state",
			"conversation_id", snap.ID,
			"error", err,
		)
	}
}

func (c *Controller) markPersisted(msgs ...domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if !m.Persisted {
			continue
		}
		for i := len(c.conv.Messages) - 1; i >= 0; i-- {
			if c.conv.Messages[i].ID == m.ID {
				c.conv.Messages[i].Persisted = true
				break
			}
		}
	}
}

func (c *Controller) touch() { c.lastActive.Store(time.Now().UnixNano()) }

func (c *Controller) idleSince() time.Time { return time.Unix(0, c.lastActive.Load()) }

func stateOf(conv *domain.Conversation) trigger.State {
	return trigger.State{
		ConsentPending:        conv.ConsentPending,
		OfferTurn:             conv.OfferTurn,
		RecommendationShown:   conv.RecommendationShown,
		RecommendationVisible: conv.RecommendationVisible,
	}
}

func applyState(conv *domain.Conversation, st trigger.State) {
	conv.ConsentPending = st.ConsentPending
	conv.OfferTurn = st.OfferTurn
	conv.RecommendationShown = st.RecommendationShown
	conv.RecommendationVisible = st.RecommendationVisible
}

func withAttrs(base events.Attrs, kv ...any) events.Attrs {
	out := make(events.Attrs, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out[k] = kv[i+1]
		}
	}
	return out
}
