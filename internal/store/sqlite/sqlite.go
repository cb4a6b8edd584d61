// Package sqlite implements the conversation store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
)

// Timestamps are stored as Unix nanoseconds so they sort numerically.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS conversations_owner_updated
    ON conversations (owner_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_conversation_created
    ON messages (conversation_id, created_at, seq);`

// Database is a SQLite-backed store.
type Database struct {
	db  *sql.DB
	now store.Clock
}

var _ store.Store = (*Database)(nil)

// New opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for a throwaway database.
func New(dbPath string, now store.Clock) (*Database, error) {
	if now == nil {
		now = store.SystemClock
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, store.Wrap("open sqlite", err)
	}

	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, store.Wrap("apply schema", err)
	}

	return &Database{db: db, now: now}, nil
}

// ListConversations returns the owner's conversations, most recently active first.
func (d *Database) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, owner_id, title, created_at, updated_at
        FROM conversations
        WHERE owner_id = ?
        ORDER BY updated_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, store.Wrap("list conversations", err)
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, store.Wrap("scan conversation", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list conversations", err)
	}
	return conversations, nil
}

// GetConversation retrieves a conversation by ID.
func (d *Database) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := d.db.QueryRowContext(ctx, `
        SELECT id, owner_id, title, created_at, updated_at
        FROM conversations
        WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("get conversation", err)
	}
	return conv, nil
}

// CreateConversation inserts the conversation and its welcome message in one transaction.
func (d *Database) CreateConversation(ctx context.Context, params store.CreateParams) (*model.Conversation, error) {
	now := d.now()
	conv := &model.Conversation{
		ID:        store.NewID(),
		OwnerID:   params.OwnerID,
		Title:     params.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("begin create", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, now.UnixNano(), now.UnixNano()); err != nil {
		return nil, store.Wrap("insert conversation", err)
	}

	if params.Welcome != "" {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO messages (id, conversation_id, role, content, created_at)
            VALUES (?, ?, ?, ?, ?)`,
			store.NewID(), conv.ID, model.RoleAssistant, params.Welcome, now.UnixNano()); err != nil {
			return nil, store.Wrap("insert welcome message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Wrap("commit create", err)
	}
	return conv, nil
}

// RenameConversation updates the title and activity timestamp.
func (d *Database) RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("begin rename", err)
	}
	defer tx.Rollback()

	conv, err := scanConversation(tx.QueryRowContext(ctx, `
        SELECT id, owner_id, title, created_at, updated_at
        FROM conversations
        WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("get conversation", err)
	}

	conv.Title = title
	conv.UpdatedAt = store.MessageTime(d.now(), conv.UpdatedAt)

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		conv.Title, conv.UpdatedAt.UnixNano(), id); err != nil {
		return nil, store.Wrap("rename conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Wrap("commit rename", err)
	}
	return conv, nil
}

// DeleteConversation deletes messages first, then the conversation.
func (d *Database) DeleteConversation(ctx context.Context, id string) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, store.Wrap("begin delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return false, store.Wrap("delete messages", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return false, store.Wrap("delete conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.Wrap("delete conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return false, store.Wrap("commit delete", err)
	}
	return n > 0, nil
}

// ListMessages returns the conversation's messages in ascending timestamp order.
func (d *Database) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, store.Wrap("list messages", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var (
			msg model.Message
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, store.Wrap("scan message", err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list messages", err)
	}
	return messages, nil
}

// AppendMessage inserts a message and moves the parent's updated_at to its timestamp.
func (d *Database) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("begin append", err)
	}
	defer tx.Rollback()

	var updatedAt int64
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM conversations WHERE id = ?", conversationID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("load conversation", err)
	}

	msg := &model.Message{
		ID:             store.NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      store.MessageTime(d.now(), time.Unix(0, updatedAt).UTC()),
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp.UnixNano()); err != nil {
		return nil, store.Wrap("insert message", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		msg.Timestamp.UnixNano(), conversationID); err != nil {
		return nil, store.Wrap("touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Wrap("commit append", err)
	}
	return msg, nil
}

// Ping checks the database handle.
func (d *Database) Ping(ctx context.Context) error {
	return store.Wrap("ping", d.db.PingContext(ctx))
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv               model.Conversation
		created, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &created, &updatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = time.Unix(0, created).UTC()
	conv.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &conv, nil
}
