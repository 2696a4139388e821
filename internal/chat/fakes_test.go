package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/fitmind/internal/completion"
	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/events"
	"github.com/ashureev/fitmind/internal/store"
)

type scriptedReply struct {
	content string
	offer   *bool
	err     error
}

type fakeCompletion struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []completion.Request
	// block, when set, holds every call until it is closed.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeCompletion) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var r scriptedReply
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	} else {
		r = scriptedReply{content: `{"message": "ok", "offer": false}`}
	}
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &completion.Response{Content: r.content, Offer: r.offer}, nil
}

func (f *fakeCompletion) lastRequest() completion.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type memStore struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
	appendErr     error
	writes        int
}

var _ store.Repository = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*domain.User),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

func (s *memStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *memStore) UpsertUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.UserID] = &u
	return nil
}

func (s *memStore) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	c := conv.Clone()
	c.Messages = nil
	s.conversations[conv.ID] = c
	for _, m := range conv.Messages {
		m.Persisted = true
		s.messages[conv.ID] = append(s.messages[conv.ID], m)
	}
	return nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := c.Clone()
	out.Messages = append([]domain.Message(nil), s.messages[id]...)
	return out, nil
}

func (s *memStore) LatestConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	s.mu.Lock()
	var latest *domain.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID && (latest == nil || c.UpdatedAt.After(latest.UpdatedAt)) {
			latest = c
		}
	}
	s.mu.Unlock()
	if latest == nil {
		return nil, nil
	}
	return s.GetConversation(ctx, latest.ID)
}

func (s *memStore) UpdateConversationState(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.conversations[conv.ID]; !ok {
		return store.ErrNotFound
	}
	c := conv.Clone()
	c.Messages = nil
	s.conversations[conv.ID] = c
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.appendErr != nil {
		return s.appendErr
	}
	msg.Persisted = true
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[conversationID]...), nil
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) Close() error { return nil }

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

var errStoreDown = errors.New("store unavailable")

type recordedEvent struct {
	name  string
	attrs events.Attrs
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) RecordEvent(_ context.Context, name string, attrs events.Attrs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, attrs: attrs})
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (r *recordingSink) find(name string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.name == name {
			return e, true
		}
	}
	return recordedEvent{}, false
}
