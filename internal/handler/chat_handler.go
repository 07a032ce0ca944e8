package handler

import (
	"net/http"

	"github.com/meera/waymate/internal/middleware"
	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/internal/service"
)

// ChatHandler lists the chat rooms created for the caller's matches.
type ChatHandler struct {
	matcher *service.MatchingService
}

// NewChatHandler creates a new handler wired to the matching service.
func NewChatHandler(matcher *service.MatchingService) *ChatHandler {
	return &ChatHandler{matcher: matcher}
}

// ListRooms handles GET /api/v1/chat/rooms
func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	rooms, err := h.matcher.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rooms == nil {
		rooms = []model.ChatRoom{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
	})
}
