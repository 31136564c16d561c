package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/services"
)

// VerificationHandler handles the verification and password reset code endpoints.
type VerificationHandler struct {
	responder
	service services.VerificationServiceProvider
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(service services.VerificationServiceProvider, verbose bool) *VerificationHandler {
	return &VerificationHandler{responder: responder{verbose: verbose}, service: service}
}

type emailPayload struct {
	Email string `json:"email"`
}

type verifyPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPayload struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// SendCode issues an email verification code.
func (h *VerificationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var payload emailPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.RequestCode(r.Context(), payload.Email)
	if err != nil {
		h.codeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

// RequestResetCode issues a password reset code to a registered address.
func (h *VerificationHandler) RequestResetCode(w http.ResponseWriter, r *http.Request) {
	var payload emailPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.RequestResetCode(r.Context(), payload.Email)
	if errors.Is(err, services.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.codeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reset code sent"})
}

func (h *VerificationHandler) codeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "Email is required")
	case errors.Is(err, services.ErrThrottled):
		retryAfter := retryAfterSeconds(err)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "Please wait before requesting another code",
			"retry_after": retryAfter,
		})
	case errors.Is(err, services.ErrDeliveryFailed):
		h.internalError(w, "Failed to send verification code", err)
	default:
		h.internalError(w, "Failed to issue verification code", err)
	}
}

// VerifyCode checks a code without consuming it.
func (h *VerificationHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var payload verifyPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"verified": false, "error": "Invalid request body"})
		return
	}

	res, err := h.service.ConfirmCode(r.Context(), payload.Email, payload.Code)
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"verified": false, "error": "Email and code are required"})
		return
	case err != nil:
		h.internalError(w, "Failed to verify code", err)
		return
	}

	switch res {
	case services.VerifyValid:
		writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	case services.VerifyExpired:
		writeJSON(w, http.StatusBadRequest, map[string]any{"verified": false, "error": "Code expired"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"verified": false, "error": "Invalid code"})
	}
}

// ResetPassword consumes a reset code and sets a new password.
func (h *VerificationHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload resetPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.ResetPassword(r.Context(), payload.Email, payload.Code, payload.NewPassword)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successful"})
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "Email, code and new_password are required")
	case errors.Is(err, services.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "Code expired")
	case errors.Is(err, services.ErrCodeNotFound):
		writeError(w, http.StatusBadRequest, "Invalid code")
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		h.internalError(w, "Failed to reset password", err)
	}
}

func retryAfterSeconds(err error) int {
	if oopsErr, ok := oops.AsOops(err); ok {
		if v, ok := oopsErr.Context()["retry_after_seconds"].(int); ok {
			return v
		}
	}
	return int(services.ResendCooldown.Seconds())
}
