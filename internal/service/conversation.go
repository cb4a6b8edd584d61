// Package service provides business logic for the chat history service.
package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/pkg/logger"
	"github.com/capitalize-ai/healthassist/pkg/metrics"
	"github.com/capitalize-ai/healthassist/pkg/tracing"
)

// WelcomeMessage seeds every new conversation.
const WelcomeMessage = "Hello! I'm your HealthAssist AI. How can I help you with your health questions today?"

// ConversationService handles owner-scoped conversation operations.
type ConversationService struct {
	store     store.Store
	publisher EventPublisher
	logger    *logger.Logger
}

// NewConversationService creates a new conversation service. A nil publisher
// disables events.
func NewConversationService(st store.Store, publisher EventPublisher, log *logger.Logger) *ConversationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ConversationService{
		store:     st,
		publisher: publisher,
		logger:    logger.OrGlobal(log),
	}
}

// List returns the owner's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, ownerID string) (_ *model.ListConversationsResponse, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.List", attribute.String("owner_id", ownerID))
	defer func() { tracing.End(span, err) }()

	convs, err := s.store.ListConversations(ctx, ownerID)
	if err != nil {
		return nil, s.storageError("list conversations", err)
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	}, nil
}

// Get retrieves a conversation the owner may access.
func (s *ConversationService) Get(ctx context.Context, ownerID, conversationID string) (_ *model.Conversation, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Get", attribute.String("conversation_id", conversationID))
	defer func() { tracing.End(span, err) }()

	return s.owned(ctx, ownerID, conversationID)
}

// Detail returns the conversation with its full message history.
func (s *ConversationService) Detail(ctx context.Context, ownerID, conversationID string) (_ *model.ConversationDetail, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Detail", attribute.String("conversation_id", conversationID))
	defer func() { tracing.End(span, err) }()

	conv, err := s.owned(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, s.storageError("list messages", err)
	}

	return &model.ConversationDetail{Conversation: *conv, Messages: msgs}, nil
}

// Create creates a conversation seeded with the welcome message. A blank
// title becomes DefaultTitle.
func (s *ConversationService) Create(ctx context.Context, ownerID string, req *model.CreateConversationRequest) (_ *model.Conversation, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Create", attribute.String("owner_id", ownerID))
	defer func() { tracing.End(span, err) }()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	return s.create(ctx, ownerID, title)
}

func (s *ConversationService) create(ctx context.Context, ownerID, title string) (*model.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, store.CreateParams{
		OwnerID: ownerID,
		Title:   title,
		Welcome: WelcomeMessage,
	})
	if err != nil {
		return nil, s.storageError("create conversation", err)
	}

	metrics.ConversationsTotal.Inc()
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", ownerID),
	)
	publish(ctx, s.publisher, s.logger, &model.ConversationEvent{
		ConversationID: conv.ID,
		OwnerID:        ownerID,
		Type:           model.EventConversationCreated,
		CreatedAt:      conv.CreatedAt,
	})

	return conv, nil
}

// Rename changes a conversation's title.
func (s *ConversationService) Rename(ctx context.Context, ownerID, conversationID string, req *model.RenameConversationRequest) (_ *model.Conversation, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Rename", attribute.String("conversation_id", conversationID))
	defer func() { tracing.End(span, err) }()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "cannot be empty"}
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	if _, err := s.owned(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	conv, err := s.store.RenameConversation(ctx, conversationID, title)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageError("rename conversation", err)
	}

	publish(ctx, s.publisher, s.logger, &model.ConversationEvent{
		ConversationID: conv.ID,
		OwnerID:        ownerID,
		Type:           model.EventConversationRenamed,
		CreatedAt:      conv.UpdatedAt,
	})

	return conv, nil
}

// Delete removes a conversation and its messages. It reports false when the
// conversation did not exist.
func (s *ConversationService) Delete(ctx context.Context, ownerID, conversationID string) (_ bool, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Delete", attribute.String("conversation_id", conversationID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.owned(ctx, ownerID, conversationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := s.store.DeleteConversation(ctx, conversationID)
	if err != nil {
		return false, s.storageError("delete conversation", err)
	}
	if !deleted {
		return false, nil
	}

	s.logger.Info("conversation deleted",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", ownerID),
	)
	publish(ctx, s.publisher, s.logger, &model.ConversationEvent{
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Type:           model.EventConversationDeleted,
	})

	return true, nil
}

// Messages returns the conversation's messages in ascending timestamp order.
func (s *ConversationService) Messages(ctx context.Context, ownerID, conversationID string) (_ *model.ListMessagesResponse, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Messages", attribute.String("conversation_id", conversationID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.owned(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, s.storageError("list messages", err)
	}

	return &model.ListMessagesResponse{Messages: msgs}, nil
}

// Append adds a message with an explicit role to an owned conversation.
func (s *ConversationService) Append(ctx context.Context, ownerID, conversationID string, req *model.AppendMessageRequest) (_ *model.Message, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.Append",
		attribute.String("conversation_id", conversationID),
		attribute.String("role", string(req.Role)),
	)
	defer func() { tracing.End(span, err) }()

	if err := ValidateRole(req.Role); err != nil {
		return nil, err
	}
	if err := ValidateContent(req.Content); err != nil {
		return nil, err
	}

	if _, err := s.owned(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	return s.append(ctx, ownerID, conversationID, req.Role, req.Content)
}

func (s *ConversationService) append(ctx context.Context, ownerID, conversationID string, role model.Role, content string) (*model.Message, error) {
	msg, err := s.store.AppendMessage(ctx, conversationID, role, content)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageError("append message", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	publish(ctx, s.publisher, s.logger, messageEvent(ownerID, msg))

	return msg, nil
}

// owned loads a conversation and enforces ownership.
func (s *ConversationService) owned(ctx context.Context, ownerID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageError("get conversation", err)
	}
	if conv.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return conv, nil
}

func (s *ConversationService) storageError(op string, err error) error {
	s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	return err
}
