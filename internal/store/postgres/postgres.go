// Package postgres implements the conversation store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CHECK (updated_at >= created_at)
);

CREATE INDEX IF NOT EXISTS conversations_owner_updated
    ON conversations (owner_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_created
    ON messages (conversation_id, created_at, seq);`

// Store is a PostgreSQL-backed conversation store.
type Store struct {
	pool *pgxpool.Pool
	now  store.Clock
}

var _ store.Store = (*Store)(nil)

// PoolOptions sizes the connection pool. Zero fields keep pgx defaults.
type PoolOptions struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

// Connect opens a pool for dsn and pings it. SQLAlchemy-style DSNs such as
// "postgresql+asyncpg://" are accepted.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, store.Wrap("open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Wrap("ping postgres", err)
	}
	return pool, nil
}

func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	return cfg, nil
}

// New wraps pool, applying the schema. A nil clock uses store.SystemClock.
func New(ctx context.Context, pool *pgxpool.Pool, now store.Clock) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	if now == nil {
		now = store.SystemClock
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, store.Wrap("apply schema", err)
	}

	return &Store{pool: pool, now: now}, nil
}

// clock returns the current time at the precision Postgres stores.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ListConversations returns the owner's conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, store.Wrap("list conversations", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, store.Wrap("scan conversation", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list conversations", err)
	}
	return convs, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("get conversation", err)
	}
	return conv, nil
}

// CreateConversation inserts the conversation and its welcome message in one transaction.
func (s *Store) CreateConversation(ctx context.Context, params store.CreateParams) (*model.Conversation, error) {
	now := s.clock()
	conv := &model.Conversation{
		ID:        store.NewID(),
		OwnerID:   params.OwnerID,
		Title:     params.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, store.Wrap("begin create", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, conv.ID, conv.OwnerID, conv.Title, now); err != nil {
		return nil, store.Wrap("insert conversation", err)
	}

	if params.Welcome != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, store.NewID(), conv.ID, string(model.RoleAssistant), params.Welcome, now); err != nil {
			return nil, store.Wrap("insert welcome message", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, store.Wrap("commit create", err)
	}
	return conv, nil
}

// RenameConversation updates the title and activity timestamp.
func (s *Store) RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, store.Wrap("begin rename", err)
	}
	defer tx.Rollback(ctx)

	conv, err := scanConversation(tx.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("lock conversation", err)
	}

	conv.Title = title
	conv.UpdatedAt = store.MessageTime(s.clock(), conv.UpdatedAt)

	if _, err := tx.Exec(ctx,
		"UPDATE conversations SET title = $2, updated_at = $3 WHERE id = $1",
		id, conv.Title, conv.UpdatedAt); err != nil {
		return nil, store.Wrap("rename conversation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, store.Wrap("commit rename", err)
	}
	return conv, nil
}

// DeleteConversation deletes messages first, then the conversation.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, store.Wrap("begin delete", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = $1", id); err != nil {
		return false, store.Wrap("delete messages", err)
	}

	ct, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id)
	if err != nil {
		return false, store.Wrap("delete conversation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, store.Wrap("commit delete", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListMessages returns the conversation's messages in ascending timestamp order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
	if err != nil {
		return nil, store.Wrap("list messages", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var (
			msg  model.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, store.Wrap("scan message", err)
		}
		msg.Role = model.Role(role)
		msg.Timestamp = msg.Timestamp.UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list messages", err)
	}
	return msgs, nil
}

// AppendMessage inserts a message under a row lock on the parent and moves the
// parent's updated_at to the message timestamp.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, store.Wrap("begin append", err)
	}
	defer tx.Rollback(ctx)

	var updatedAt time.Time
	err = tx.QueryRow(ctx,
		"SELECT updated_at FROM conversations WHERE id = $1 FOR UPDATE",
		conversationID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("lock conversation", err)
	}

	msg := &model.Message{
		ID:             store.NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      store.MessageTime(s.clock(), updatedAt.UTC()),
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Timestamp); err != nil {
		return nil, store.Wrap("insert message", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE conversations SET updated_at = $2 WHERE id = $1",
		conversationID, msg.Timestamp); err != nil {
		return nil, store.Wrap("touch conversation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, store.Wrap("commit append", err)
	}
	return msg, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("ping", s.pool.Ping(ctx))
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}

// normalizeDSN strips a "+driver" suffix from the URL scheme, so
// "postgresql+asyncpg://" becomes "postgresql://".
func normalizeDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		return base + "://" + rest
	}
	return dsn
}
