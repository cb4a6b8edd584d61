package model

import (
	"time"
)

// EventType represents the type of conversation activity event.
type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventConversationRenamed EventType = "conversation.renamed"
	EventConversationDeleted EventType = "conversation.deleted"
	EventMessageAppended     EventType = "message.appended"
)

// ConversationEvent represents an activity event in a conversation.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	OwnerID        string    `json:"owner_id"`
	Type           EventType `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	Role           Role      `json:"role,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
