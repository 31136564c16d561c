package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/turbinix-be/internal/services"
)

// UserHandler handles HTTP requests for registration and login.
type UserHandler struct {
	responder
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, verbose bool) *UserHandler {
	return &UserHandler{responder: responder{verbose: verbose}, service: service}
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CheckUsername reports whether a username is still free.
func (h *UserHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	available, err := h.service.UsernameAvailable(r.Context(), username)
	if err != nil {
		h.internalError(w, "Failed to check username", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterParams{
		Email:     payload.Email,
		Username:  payload.Username,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "Email, username and password are required")
		return
	case errors.Is(err, services.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already exists")
		return
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
		return
	default:
		h.internalError(w, "Failed to register user", err)
		return
	}

	log.Info().Str("username", user.Username).Msg("User registered")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered"})
}

// Login handles user authentication. No session is created; the client
// receives the public profile.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Identifier, payload.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		log.Warn().Str("identifier", payload.Identifier).Msg("Failed authentication attempt")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	default:
		h.internalError(w, "Failed to authenticate", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Login successful",
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}
