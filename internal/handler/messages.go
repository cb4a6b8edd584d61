package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/healthassist/internal/middleware"
	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/service"
	"github.com/capitalize-ai/healthassist/pkg/logger"
)

// MessageHandler handles message and chat endpoints.
type MessageHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(conversations *service.ConversationService, messages *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		logger:        log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.conversations.Messages(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Append handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req model.AppendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.conversations.Append(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Chat handles POST /api/v1/chat
func (h *MessageHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	turn, err := h.messages.PostMessage(r.Context(), middleware.GetUserID(r.Context()), req.ConversationID, req.Content)
	if errors.Is(err, service.ErrIncompleteTurn) {
		writeJSON(w, http.StatusBadGateway, model.IncompleteTurnResponse{
			Error:        "message saved but the reply could not be stored",
			Incomplete:   true,
			Conversation: turn.Conversation,
			UserMessage:  turn.UserMessage,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if req.ConversationID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, turn)
}
