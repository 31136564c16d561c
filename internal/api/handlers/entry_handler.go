package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/turbinix-be/internal/services"
)

// EntryHandler handles HTTP requests for user-owned entries.
type EntryHandler struct {
	responder
	service services.EntryServiceProvider
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(service services.EntryServiceProvider, verbose bool) *EntryHandler {
	return &EntryHandler{responder: responder{verbose: verbose}, service: service}
}

// List returns every entry of the user in the path.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	entries, err := h.service.List(r.Context(), user)
	if err != nil {
		h.internalError(w, "Failed to retrieve entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Create stores the request body as a new entry.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.Create(r.Context(), user, fields)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, "User is required")
			return
		}
		h.internalError(w, "Failed to save entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Entry saved", "id": entry.ID})
}

// Update replaces the fields of the entry addressed by id or index.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	ref := chi.URLParam(r, "ref")
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.Update(r.Context(), user, ref, fields)
	if err != nil {
		h.entryError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Entry updated", "id": entry.ID})
}

// Delete removes the entry addressed by id or index.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	ref := chi.URLParam(r, "ref")

	if err := h.service.Delete(r.Context(), user, ref); err != nil {
		h.entryError(w, "Failed to delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Entry deleted"})
}

func (h *EntryHandler) entryError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidIndex):
		writeError(w, http.StatusBadRequest, "Invalid index")
	case errors.Is(err, services.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "Entry not found")
	default:
		h.internalError(w, msg, err)
	}
}
