package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "invalid_credentials", "message": "invalid email or password"}
// plus a "field" key for validation errors.
//
// The "error" value is a closed set of machine-readable codes, so clients
// can branch on it without parsing messages.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/userauth/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending request field, validation errors only
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; after the first
// Write, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error to its HTTP status and error code.
//
// errors.Is walks the whole chain, so a service error like
//
//	fmt.Errorf("updating profile: %w", apperror.NotFound("user", id))
//
// still maps to 404.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrAccountDeactivated):
		return http.StatusForbidden, "account_deactivated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// Only *apperror.AppError messages reach the client. Anything else is a 500
// with a generic message: raw errors can carry SQL, file paths or hashes.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// logIfInternal logs err when it is going to surface as a 500.
// Expected outcomes (bad password, conflict) are not errors worth a log line.
func logIfInternal(logger *slog.Logger, r *http.Request, msg string, err error) {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		logger.Error(msg,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// resultLabel turns an auth outcome into a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	_, code := statusFor(err)
	return code
}
