package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/turbinix-be/internal/services"
)

// EventHandler handles HTTP requests related to system events.
type EventHandler struct {
	responder
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider, verbose bool) *EventHandler {
	return &EventHandler{responder: responder{verbose: verbose}, service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = services.DefaultEventLimit
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		h.internalError(w, "Failed to retrieve events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
