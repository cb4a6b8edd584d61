package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/pkg/logger"
	"github.com/capitalize-ai/healthassist/pkg/metrics"
	"github.com/capitalize-ai/healthassist/pkg/tracing"
)

// ReplyGenerator produces an assistant reply. Implementations never fail.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, text string) string
}

// MessageService runs user turns.
type MessageService struct {
	conversations *ConversationService
	gateway       ReplyGenerator
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(conversations *ConversationService, gateway ReplyGenerator, log *logger.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		gateway:       gateway,
		logger:        logger.OrGlobal(log),
	}
}

// PostMessage stores the user's text, generates a reply and stores it. An
// empty conversationID starts a new conversation titled after the text.
//
// Ownership and lookup failures abort before anything is written. If the
// reply cannot be stored the user message stays persisted and the error wraps
// ErrIncompleteTurn; the returned Turn then carries the conversation and user
// message.
func (s *MessageService) PostMessage(ctx context.Context, ownerID, conversationID, text string) (_ *model.Turn, err error) {
	ctx, span := tracing.Start(ctx, "MessageService.PostMessage",
		attribute.String("owner_id", ownerID),
		attribute.String("conversation_id", conversationID),
	)
	defer func() { tracing.End(span, err) }()

	if err := ValidateContent(text); err != nil {
		return nil, err
	}

	var conv *model.Conversation
	if conversationID == "" {
		conv, err = s.conversations.create(ctx, ownerID, DeriveTitle(text))
	} else {
		conv, err = s.conversations.owned(ctx, ownerID, conversationID)
	}
	if err != nil {
		return nil, err
	}

	userMsg, err := s.conversations.append(ctx, ownerID, conv.ID, model.RoleUser, text)
	if err != nil {
		return nil, err
	}

	reply := s.gateway.GenerateReply(ctx, text)

	assistantMsg, err := s.conversations.append(ctx, ownerID, conv.ID, model.RoleAssistant, reply)
	if err != nil {
		metrics.IncompleteTurnsTotal.Inc()
		s.logger.Error("assistant reply not saved",
			zap.String("conversation_id", conv.ID),
			zap.String("user_message_id", userMsg.ID),
			zap.Error(err),
		)
		conv.UpdatedAt = userMsg.Timestamp
		return &model.Turn{Conversation: conv, UserMessage: userMsg}, fmt.Errorf("%w: %w", ErrIncompleteTurn, err)
	}

	conv.UpdatedAt = assistantMsg.Timestamp

	return &model.Turn{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}
