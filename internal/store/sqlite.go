package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		consent_pending INTEGER NOT NULL DEFAULT 0,
		offer_turn INTEGER NOT NULL DEFAULT 0,
		recommendation_shown INTEGER NOT NULL DEFAULT 0,
		recommendation_visible INTEGER NOT NULL DEFAULT 0,
		turn_count INTEGER NOT NULL DEFAULT 0,
		goal TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		is_assistant INTEGER NOT NULL,
		signaled INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a profile by user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, display_name, email, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.DisplayName, &user.Email,
		&lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a profile.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, display_name, email, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		email = excluded.email,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.DisplayName, user.Email,
			user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
}

// CreateConversation stores a new conversation and its initial messages in
// one transaction.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "create conversation", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to rollback conversation insert", "error", rbErr)
			}
		}()

		_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, consent_pending, offer_turn,
			recommendation_shown, recommendation_visible, turn_count, goal, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.UserID, conv.Title, conv.ConsentPending, conv.OfferTurn,
			conv.RecommendationShown, conv.RecommendationVisible, conv.TurnCount,
			nullString(conv.Goal), conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return err
		}

		for _, msg := range conv.Messages {
			if err := insertMessage(ctx, tx, msg); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetConversation loads a conversation with its messages.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx, conversationSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return s.withMessages(ctx, conv)
}

// LatestConversation loads the most recently updated conversation of a user.
func (s *SQLiteStore) LatestConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx,
		conversationSelect+` WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`, userID))
	if err != nil || conv == nil {
		return nil, err
	}
	return s.withMessages(ctx, conv)
}

// UpdateConversationState writes the scalar state of a conversation.
func (s *SQLiteStore) UpdateConversationState(ctx context.Context, conv *domain.Conversation) error {
	query := `
	UPDATE conversations SET consent_pending = ?, offer_turn = ?, recommendation_shown = ?,
		recommendation_visible = ?, turn_count = ?, goal = ?, updated_at = ?
	WHERE id = ?`

	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "update conversation", func() error {
		result, err := s.db.ExecContext(ctx, query,
			conv.ConsentPending, conv.OfferTurn, conv.RecommendationShown,
			conv.RecommendationVisible, conv.TurnCount, nullString(conv.Goal),
			conv.UpdatedAt.UnixNano(), conv.ID,
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("conversation %s: %w", conv.ID, ErrNotFound)
		}
		return nil
	})
}

// AppendMessage stores a message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "append message", func() error {
		return insertMessage(ctx, s.db, msg)
	})
}

// ListMessages returns the messages of a conversation ordered by creation.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, text, is_assistant, signaled, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Text,
			&msg.IsAssistant, &msg.Signaled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		msg.Persisted = true
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

const conversationSelect = `
	SELECT id, user_id, title, consent_pending, offer_turn, recommendation_shown,
	       recommendation_visible, turn_count, goal, created_at, updated_at
	FROM conversations`

func (s *SQLiteStore) scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var goal sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.ConsentPending, &conv.OfferTurn,
		&conv.RecommendationShown, &conv.RecommendationVisible, &conv.TurnCount,
		&goal, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	conv.Goal = goal.String
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updatedAt)
	return &conv, nil
}

func (s *SQLiteStore) withMessages(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, msg domain.Message) error {
	_, err := db.ExecContext(ctx, `
	INSERT INTO messages (id, conversation_id, text, is_assistant, signaled, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Text, msg.IsAssistant, msg.Signaled, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
