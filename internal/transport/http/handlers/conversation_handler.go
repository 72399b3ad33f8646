package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/semachat/sema/internal/service"
	"github.com/semachat/sema/internal/transport/http/middleware"
)

// ConversationHandler is the REST read/setup path. Message history goes
// through the same domain serialization the live push path uses, so both
// always agree on the message shape.
type ConversationHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
}

func NewConversationHandler(conversations *service.ConversationService, messages *service.MessageService) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
	}
}

func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	conv, err := h.conversations.GetOrCreate(r.Context(), userID, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCannotSelf):
			writeError(w, http.StatusBadRequest, "VALIDATION", "Cannot start a conversation with yourself")
		default:
			log.Error().Err(err).Msg("http: get or create conversation")
			writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("http: list conversations")
		writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var before *uuid.UUID
	if b := r.URL.Query().Get("before"); b != "" {
		id, err := uuid.Parse(b)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid before cursor")
			return
		}
		before = &id
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	resp, err := h.messages.List(r.Context(), userID, convID, before, limit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrNotParticipant):
			writeError(w, http.StatusForbidden, "NOT_PARTICIPANT", "You are not a participant of this conversation")
		default:
			log.Error().Err(err).Msg("http: list messages")
			writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
