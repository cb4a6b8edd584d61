package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/pkg/logger"
	"github.com/capitalize-ai/healthassist/pkg/metrics"
)

// EventPublisher delivers conversation activity events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, *model.ConversationEvent) error { return nil }

// publish sends an event after a committed write. Failures are logged only.
// The write has already happened, so a cancelled request still emits it.
func publish(ctx context.Context, p EventPublisher, log *logger.Logger, event *model.ConversationEvent) {
	ctx = context.WithoutCancel(ctx)

	event.ID = store.NewID()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := p.PublishEvent(ctx, event); err != nil {
		metrics.RecordEvent(string(event.Type), "error")
		log.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
		return
	}
	metrics.RecordEvent(string(event.Type), "ok")
}

func messageEvent(ownerID string, msg *model.Message) *model.ConversationEvent {
	return &model.ConversationEvent{
		ConversationID: msg.ConversationID,
		OwnerID:        ownerID,
		Type:           model.EventMessageAppended,
		MessageID:      msg.ID,
		Role:           msg.Role,
		CreatedAt:      msg.Timestamp,
	}
}
