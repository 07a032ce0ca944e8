package handler

import (
	"net/http"

	"github.com/meera/waymate/internal/middleware"
	"github.com/meera/waymate/internal/service"
)

// CommuteHandler handles the caller's commute definition and its
// participation flags.
type CommuteHandler struct {
	commutes *service.CommuteService
}

// NewCommuteHandler creates a new handler wired to the commute service.
func NewCommuteHandler(commutes *service.CommuteService) *CommuteHandler {
	return &CommuteHandler{commutes: commutes}
}

// GetMine handles GET /api/v1/commutes/me
func (h *CommuteHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	commute, err := h.commutes.GetMine(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commute)
}

// Put handles PUT /api/v1/commutes/me
//
// Creates or fully replaces the caller's commute. Route geometry is planned
// server-side when the payload carries none.
func (h *CommuteHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var input service.CommuteInput
	if !decodeBody(w, r, &input) {
		return
	}

	commute, err := h.commutes.CreateOrReplace(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commute)
}

type flagBody struct {
	Enabled bool `json:"enabled"`
}

// SetQueue handles POST /api/v1/commutes/me/queue
func (h *CommuteHandler) SetQueue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var body flagBody
	if !decodeBody(w, r, &body) {
		return
	}

	commute, err := h.commutes.SetQueueEnabled(r.Context(), userID, body.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commute)
}

// SetSuggestions handles POST /api/v1/commutes/me/suggestions
func (h *CommuteHandler) SetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var body flagBody
	if !decodeBody(w, r, &body) {
		return
	}

	commute, err := h.commutes.SetSuggestionsEnabled(r.Context(), userID, body.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commute)
}

// Pause handles POST /api/v1/commutes/me/pause
func (h *CommuteHandler) Pause(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	commute, err := h.commutes.Pause(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commute)
}
