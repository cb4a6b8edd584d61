// Package store defines the persistence contract for conversations and messages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/healthassist/internal/model"
)

var (
	// ErrNotFound is returned when a referenced conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks unexpected failures of the underlying store.
	ErrStorage = errors.New("storage failure")
)

// Wrap tags err as a storage failure for operation op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// CreateParams describes a conversation to create.
type CreateParams struct {
	OwnerID string
	Title   string

	// Welcome, when non-empty, is stored as the first assistant message in the
	// same write as the conversation.
	Welcome string
}

// Store is the durable store for conversations and their messages.
//
// Conversation lists are ordered by UpdatedAt descending; message lists are
// ordered by Timestamp ascending with insertion order breaking ties.
// Ownership is not enforced here.
type Store interface {
	ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error)

	// GetConversation returns ErrNotFound when id does not exist.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	CreateConversation(ctx context.Context, params CreateParams) (*model.Conversation, error)

	// RenameConversation sets the title, bumps UpdatedAt and returns ErrNotFound
	// when id does not exist.
	RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error)

	// DeleteConversation removes the messages and then the conversation in one
	// transaction. It reports whether a conversation was deleted.
	DeleteConversation(ctx context.Context, id string) (bool, error)

	// ListMessages returns an empty slice for unknown conversations.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	// AppendMessage stores a message and sets the parent's UpdatedAt to the
	// message timestamp. It returns ErrNotFound when the parent does not exist.
	AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error)

	Ping(ctx context.Context) error
	Close() error
}
