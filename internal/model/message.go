package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single role-tagged entry within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// AppendMessageRequest is the request to append a raw message to a conversation.
type AppendMessageRequest struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request for one user turn.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// Turn is the result of one user turn: the conversation plus both persisted messages.
type Turn struct {
	Conversation     *Conversation `json:"conversation"`
	UserMessage      *Message      `json:"user_message"`
	AssistantMessage *Message      `json:"assistant_message"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// IncompleteTurnResponse is returned when the user message was stored but the reply was not.
type IncompleteTurnResponse struct {
	Error        string        `json:"error"`
	Incomplete   bool          `json:"incomplete"`
	Conversation *Conversation `json:"conversation,omitempty"`
	UserMessage  *Message      `json:"user_message,omitempty"`
}
