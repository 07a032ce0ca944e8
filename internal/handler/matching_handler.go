package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/meera/waymate/internal/middleware"
	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/internal/service"
)

// MatchingHandler handles matching-cycle triggers, suggestion decisions and
// match listings.
type MatchingHandler struct {
	matcher *service.MatchingService
}

// NewMatchingHandler creates a new handler wired to the matching service.
func NewMatchingHandler(matcher *service.MatchingService) *MatchingHandler {
	return &MatchingHandler{matcher: matcher}
}

// RunCycle handles POST /api/v1/matching/run?run_queue=true
//
// Triggers a matching cycle. 409 when another cycle holds the lease.
func (h *MatchingHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	runQueue := r.URL.Query().Get("run_queue") == "true"

	result, err := h.matcher.RunCycle(r.Context(), runQueue)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListSuggestions handles GET /api/v1/matching/suggestions?kind=individual
func (h *MatchingHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	suggestions, err := h.matcher.ListSuggestionsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": filterByKind(suggestions, kind),
	})
}

// Accept handles POST /api/v1/matching/suggestions/{id}/accept
func (h *MatchingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	matchID := mux.Vars(r)["id"]

	match, err := h.matcher.Accept(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// Pass handles POST /api/v1/matching/suggestions/{id}/pass
func (h *MatchingHandler) Pass(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	matchID := mux.Vars(r)["id"]

	match, err := h.matcher.Pass(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// ListActive handles GET /api/v1/matching/active?kind=group
func (h *MatchingHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	matches, err := h.matcher.ListActiveForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": filterByKind(matches, kind),
	})
}

// ListAssignments handles GET /api/v1/matching/assignments?kind=&date=2026-03-10
//
// Without a date the next cycle's target date is used.
func (h *MatchingHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "invalid_input",
				"message": "date must be formatted YYYY-MM-DD",
			})
			return
		}
		date = parsed
	}

	matches, err := h.matcher.ListAssignmentsForUser(r.Context(), userID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": filterByKind(matches, kind),
	})
}

// kindParam parses the optional kind query parameter. An empty kind means
// no filtering.
func kindParam(w http.ResponseWriter, r *http.Request) (model.MatchKind, bool) {
	raw := r.URL.Query().Get("kind")
	switch model.MatchKind(raw) {
	case "", model.KindIndividual, model.KindGroup:
		return model.MatchKind(raw), true
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"message": "kind must be individual or group",
		})
		return "", false
	}
}

// filterByKind narrows a listing to one kind and keeps empty listings
// serializing as [] instead of null.
func filterByKind(matches []model.Match, kind model.MatchKind) []model.Match {
	filtered := make([]model.Match, 0, len(matches))
	for _, match := range matches {
		if kind == "" || match.Kind == kind {
			filtered = append(filtered, match)
		}
	}
	return filtered
}
