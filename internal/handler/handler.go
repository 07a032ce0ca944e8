// Package handler contains HTTP request handlers for the commute matching API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/meera/waymate/internal/routing"
	"github.com/meera/waymate/internal/service"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps service errors onto HTTP status codes. Not-found and
// permission failures share 404 so callers cannot probe for foreign ids.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not_found",
		})
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrCycleBusy):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "cycle_busy",
			"message": "A matching cycle is already running.",
		})
	case errors.Is(err, routing.ErrNoRoute), errors.Is(err, routing.ErrPlanner),
		errors.Is(err, routing.ErrNotConfigured):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "planner_unavailable",
			"message": "Could not plan a route for this commute.",
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"message": "malformed JSON body",
		})
		return false
	}
	return true
}
