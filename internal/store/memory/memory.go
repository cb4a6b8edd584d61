// Package memory provides an in-process conversation store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
)

// Store keeps conversations and messages in maps guarded by a single lock.
// Every write takes the lock, so each append is atomic.
type Store struct {
	now store.Clock

	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
}

var _ store.Store = (*Store)(nil)

// New creates an empty store. A nil clock uses store.SystemClock.
func New(now store.Clock) *Store {
	if now == nil {
		now = store.SystemClock
	}
	return &Store{
		now:           now,
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
	}
}

// ListConversations returns the owner's conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]model.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.OwnerID == ownerID {
			convs = append(convs, *conv)
		}
	}

	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	return convs, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	out := *conv
	return &out, nil
}

// CreateConversation creates a conversation and its optional welcome message.
func (s *Store) CreateConversation(ctx context.Context, params store.CreateParams) (*model.Conversation, error) {
	now := s.now()

	conv := &model.Conversation{
		ID:        store.NewID(),
		OwnerID:   params.OwnerID,
		Title:     params.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv
	if params.Welcome != "" {
		s.messages[conv.ID] = []model.Message{{
			ID:             store.NewID(),
			ConversationID: conv.ID,
			Role:           model.RoleAssistant,
			Content:        params.Welcome,
			Timestamp:      now,
		}}
	}

	out := *conv
	return &out, nil
}

// RenameConversation updates the title of a conversation.
func (s *Store) RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	conv.Title = title
	conv.UpdatedAt = store.MessageTime(s.now(), conv.UpdatedAt)

	out := *conv
	return &out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, id)

	if _, exists := s.conversations[id]; !exists {
		return false, nil
	}
	delete(s.conversations, id)

	return true, nil
}

// ListMessages returns a copy of the conversation's messages in order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]model.Message, len(s.messages[conversationID]))
	copy(msgs, s.messages[conversationID])
	return msgs, nil
}

// AppendMessage appends a message and refreshes the parent's UpdatedAt.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists {
		return nil, store.ErrNotFound
	}

	ts := store.MessageTime(s.now(), conv.UpdatedAt)
	msg := model.Message{
		ID:             store.NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      ts,
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = ts

	return &msg, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
