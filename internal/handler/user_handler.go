package handler

import (
	"net/http"

	"github.com/meera/waymate/internal/middleware"
	"github.com/meera/waymate/internal/service"
)

// UserHandler handles the caller's profile.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a new handler wired to the user service.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	profile, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PutMe handles PUT /api/v1/users/me
func (h *UserHandler) PutMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var input service.ProfileInput
	if !decodeBody(w, r, &input) {
		return
	}

	profile, err := h.users.UpsertProfile(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
