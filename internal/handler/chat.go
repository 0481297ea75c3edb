// Package handler provides HTTP handlers for the reference gateway
// server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/events"
	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/internal/service"
	"github.com/driftline/chatsync/pkg/logger"
)

// ChatHandler exposes the four gateway operations over REST.
type ChatHandler struct {
	service   *service.ChatService
	publisher events.Publisher
	logger    *logger.Logger
}

// NewChatHandler creates a chat handler. publisher may be nil when
// event publishing is disabled.
func NewChatHandler(svc *service.ChatService, publisher events.Publisher, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service:   svc,
		publisher: publisher,
		logger:    log,
	}
}

// ListConversations handles GET /api/v1/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// ListMessages handles GET /api/v1/conversations/{id}/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid conversation id")
		return
	}

	messages, err := h.service.ListMessages(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "failed to list messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// CreateMessage handles POST /api/v1/conversations/{id}/messages
func (h *ChatHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid conversation id")
		return
	}

	var req model.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "", "message body is required")
		return
	}
	if req.Kind != "" && req.Kind != model.KindText && req.Kind != model.KindImage && req.Kind != model.KindSystem {
		writeError(w, http.StatusBadRequest, "", "invalid message kind")
		return
	}

	msg, err := h.service.CreateMessage(r.Context(), conversationID, req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create message")
		return
	}

	h.publish(func(p events.Publisher) error {
		return p.PublishMessageCreated(r.Context(), msg)
	})

	writeJSON(w, http.StatusCreated, msg)
}

// UpdateReaction handles PUT /api/v1/messages/{messageID}/reactions
func (h *ChatHandler) UpdateReaction(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req model.UpdateReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if !model.ValidReactionType(req.Type) {
		writeError(w, http.StatusBadRequest, "", "invalid reaction type")
		return
	}
	if req.Value < 0 {
		writeError(w, http.StatusBadRequest, "", "reaction value must be non-negative")
		return
	}

	counts, err := h.service.UpdateReaction(r.Context(), messageID, req.Type, req.Value)
	if err != nil {
		h.writeServiceError(w, err, "failed to update reaction")
		return
	}

	h.publish(func(p events.Publisher) error {
		return p.PublishReactionUpdated(r.Context(), messageID, counts)
	})

	writeJSON(w, http.StatusOK, counts)
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, gateway.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, gateway.CodeConversationNotFound, err.Error())
	case errors.Is(err, gateway.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, gateway.CodeMessageNotFound, err.Error())
	case errors.Is(err, gateway.ErrSenderNotInConversation):
		writeError(w, http.StatusUnprocessableEntity, gateway.CodeSenderNotInConversation, err.Error())
	case errors.Is(err, service.ErrInjectedFailure):
		writeError(w, http.StatusBadGateway, "", err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", fallback)
	}
}

func (h *ChatHandler) publish(fn func(events.Publisher) error) {
	if h.publisher == nil {
		return
	}
	if err := fn(h.publisher); err != nil {
		h.logger.Warn("failed to publish event", zap.Error(err))
	}
}
