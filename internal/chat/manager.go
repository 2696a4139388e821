package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/google/uuid"
)

// Manager keeps one Controller per user and tab session.
type Manager struct {
	deps *Deps

	mu       sync.RWMutex
	sessions map[string]map[string]*Controller
}

// NewManager returns a Manager sharing deps across controllers.
func NewManager(deps Deps) *Manager {
	deps.normalize()
	return &Manager{
		deps:     &deps,
		sessions: make(map[string]map[string]*Controller),
	}
}

// Get returns the active controller for a user and session.
func (m *Manager) Get(userID, sessionID string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[userID][sessionID]
	return c, ok
}

// Start returns the controller for the session, creating it on first use.
// Authenticated users resume their latest stored conversation or get a new
// persisted one; guests get an in-memory conversation.
func (m *Manager) Start(ctx context.Context, user domain.User, sessionID string) (*Controller, error) {
	if c, ok := m.Get(user.UserID, sessionID); ok {
		c.touch()
		return c, nil
	}

	conv, persist, err := m.load(ctx, user)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[user.UserID][sessionID]; ok {
		return existing, nil
	}
	if _, ok := m.sessions[user.UserID]; !ok {
		m.sessions[user.UserID] = make(map[string]*Controller)
	}

	// Tabs of a signed-in user resume the same stored conversation and must
	// share its controller, or each tab would hold its own consent state.
	if shared := m.controllerForLocked(user.UserID, conv.ID); shared != nil {
		shared.touch()
		m.sessions[user.UserID][sessionID] = shared
		m.deps.Logger.Info("Chat session joined conversation",
			"user_id", user.UserID,
			"session_id", sessionID,
			"conversation_id", conv.ID,
		)
		return shared, nil
	}

	c := newController(m.deps, user, sessionID, conv, persist)
	m.sessions[user.UserID][sessionID] = c
	m.deps.Logger.Info("Chat session registered",
		"user_id", user.UserID,
		"session_id", sessionID,
		"conversation_id", conv.ID,
		"guest", user.Guest,
	)
	return c, nil
}

func (m *Manager) controllerForLocked(userID, conversationID string) *Controller {
	for _, c := range m.sessions[userID] {
		if c.ConversationID() == conversationID {
			return c
		}
	}
	return nil
}

func (m *Manager) load(ctx context.Context, user domain.User) (*domain.Conversation, bool, error) {
	repo := m.deps.Store
	if user.Guest || repo == nil {
		return m.newConversation(user, true), false, nil
	}

	conv, err := repo.LatestConversation(ctx, user.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("load latest conversation: %w", err)
	}
	if conv != nil {
		return conv, true, nil
	}

	conv = m.newConversation(user, false)
	if err := repo.CreateConversation(ctx, conv); err != nil {
		m.deps.Logger.WarnContext(ctx, "Failed to create conversation, continuing unpersisted",
			"user_id", user.UserID,
			"error", err,
		)
		return conv, false, nil
	}
	for i := range conv.Messages {
		conv.Messages[i].Persisted = true
	}
	return conv, true, nil
}

func (m *Manager) newConversation(user domain.User, guest bool) *domain.Conversation {
	now := m.deps.Now()
	id := uuid.NewString()
	return &domain.Conversation{
		ID:        id,
		UserID:    user.UserID,
		Title:     domain.DefaultConversationTitle,
		Guest:     guest,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []domain.Message{{
			ID:             uuid.NewString(),
			ConversationID: id,
			Text:           Welcome(user.FirstName()),
			IsAssistant:    true,
			CreatedAt:      now,
		}},
	}
}

// End drops the controller of a session. A guest transcript is lost with it.
func (m *Manager) End(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.sessions[userID]
	if !ok {
		return
	}
	if _, exists := sessions[sessionID]; exists {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.sessions, userID)
		}
		m.deps.Logger.Info("Chat session ended", "user_id", userID, "session_id", sessionID)
	}
}

// Len returns the number of live controllers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.sessions {
		n += len(sessions)
	}
	return n
}

// Sweep drops controllers idle for longer than ttl that have no call in flight.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for userID, sessions := range m.sessions {
		for sessionID, c := range sessions {
			if c.Busy() || c.idleSince().After(cutoff) {
				continue
			}
			delete(sessions, sessionID)
			evicted++
		}
		if len(sessions) == 0 {
			delete(m.sessions, userID)
		}
	}
	return evicted
}

const sweepInterval = 5 * time.Minute

// RunSweeper calls Sweep periodically and returns when ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, ttl time.Duration) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(ttl); n > 0 {
				slog.Info("Session sweeper evicted idle sessions", "count", n)
			}
		case <-ctx.Done():
			slog.Info("Session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}
