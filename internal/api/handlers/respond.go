package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/turbinix-be/internal/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// responder carries settings shared by every handler.
type responder struct {
	// verbose adds the internal error text to 500 responses. Never enable in production.
	verbose bool
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers 500 with a generic message.
func (h responder) internalError(w http.ResponseWriter, msg string, err error) {
	logger.LogError(msg, err)
	body := map[string]any{"error": msg}
	if h.verbose {
		body["detail"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidBody
		}
		return errors.Join(errInvalidBody, err)
	}
	return nil
}
