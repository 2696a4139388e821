package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "fitmind.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetUser(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("Expected nil user, got %v, %v", missing, err)
	}

	now := time.Now()
	user := &domain.User{UserID: "u-1", DisplayName: "Jane Doe", Email: "jane@example.com", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	user.DisplayName = "Janet Doe"
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("second UpsertUser failed: %v", err)
	}

	got, err := s.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.DisplayName != "Janet Doe" || got.Email != "jane@example.com" {
		t.Errorf("Unexpected user: %+v", got)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	conv := &domain.Conversation{
		ID:        "c-1",
		UserID:    "u-1",
		Title:     domain.DefaultConversationTitle,
		CreatedAt: base,
		UpdatedAt: base,
		Messages: []domain.Message{
			{ID: "m-0", ConversationID: "c-1", Text: "Hi there", IsAssistant: true, CreatedAt: base},
		},
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Same timestamp on both messages: insertion order must win.
	at := base.Add(time.Second)
	for _, m := range []domain.Message{
		{ID: "m-1", ConversationID: "c-1", Text: "I sleep badly", CreatedAt: at},
		{ID: "m-2", ConversationID: "c-1", Text: "Want a suggestion?", IsAssistant: true, Signaled: true, CreatedAt: at},
	} {
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	conv.ConsentPending = true
	conv.OfferTurn = 1
	conv.TurnCount = 1
	conv.Goal = "sleep"
	conv.UpdatedAt = at
	if err := s.UpdateConversationState(ctx, conv); err != nil {
		t.Fatalf("UpdateConversationState failed: %v", err)
	}

	got, err := s.LatestConversation(ctx, "u-1")
	if err != nil {
		t.Fatalf("LatestConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a conversation")
	}
	if !got.ConsentPending || got.OfferTurn != 1 || got.TurnCount != 1 || got.Goal != "sleep" {
		t.Errorf("Unexpected state: %+v", got)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(got.Messages))
	}
	for i, want := range []string{"m-0", "m-1", "m-2"} {
		if got.Messages[i].ID != want {
			t.Errorf("message %d: expected %s, got %s", i, want, got.Messages[i].ID)
		}
		if !got.Messages[i].Persisted {
			t.Errorf("message %d should be marked persisted", i)
		}
	}
	if !got.Messages[2].Signaled || !got.Messages[2].IsAssistant {
		t.Errorf("Unexpected last message: %+v", got.Messages[2])
	}
}

func TestLatestConversationPicksMostRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "new"} {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateConversation(ctx, &domain.Conversation{ID: id, UserID: "u-1", Title: "t", CreatedAt: at, UpdatedAt: at}); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	got, err := s.LatestConversation(ctx, "u-1")
	if err != nil {
		t.Fatalf("LatestConversation failed: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("Expected newest conversation, got %s", got.ID)
	}

	none, err := s.LatestConversation(ctx, "u-2")
	if err != nil || none != nil {
		t.Errorf("Expected nil for user without conversations, got %v, %v", none, err)
	}
}

func TestMissingConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetConversation(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	err := s.UpdateConversationState(ctx, &domain.Conversation{ID: "nope", UpdatedAt: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
