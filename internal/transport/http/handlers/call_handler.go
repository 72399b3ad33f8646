package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/semachat/sema/internal/service"
	"github.com/semachat/sema/internal/transport/http/middleware"
)

type CallHandler struct {
	calls *service.CallService
}

func NewCallHandler(calls *service.CallService) *CallHandler {
	return &CallHandler{calls: calls}
}

// History lists the user's persisted call log, most recent first.
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	recs, err := h.calls.History(r.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Msg("http: list call history")
		writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, recs)
}
