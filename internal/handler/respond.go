package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/licensegate/internal/domain"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an error kind to its fixed status and a generic message.
// Internal detail never reaches the caller; the service layer already logged
// the underlying failure.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "an internal error occurred"

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrConflict):
		// Duplicates surface as 400 on this API (activate, signup,
		// register_tenant all report "already exists" the same way).
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
		message = "unauthenticated"
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
		message = "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = "resource not found"
	default:
		if log != nil {
			log.Error("request failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, status, ErrorResponse{Error: message})
}
