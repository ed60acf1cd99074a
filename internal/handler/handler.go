// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/errmate/errmate/internal/handler/dto"
	"github.com/errmate/errmate/internal/service"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// Handler serves the endpoints that need no dependencies.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Hello reports the service name and version.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.ServiceInfo{Name: "ErrMate API", Version: Version})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as a generic 500.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var limitErr *service.LimitError
	switch {
	case errors.As(err, &limitErr):
		writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{
			Error:        limitErr.Error(),
			Code:         "LIMIT_REACHED",
			LimitReached: true,
		})
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
	case errors.Is(err, service.ErrErrorTextRequired):
		writeError(w, http.StatusBadRequest, "ERROR_TEXT_REQUIRED", "Error text is required")
	case errors.Is(err, service.ErrErrorTextTooLong):
		writeError(w, http.StatusBadRequest, "ERROR_TEXT_TOO_LONG", "Error text is too long")
	case errors.Is(err, service.ErrContextTooLong):
		writeError(w, http.StatusBadRequest, "CONTEXT_TOO_LONG", "Context text is too long")
	case errors.Is(err, service.ErrCompletionFailed):
		writeError(w, http.StatusInternalServerError, "COMPLETION_FAILED", "Failed to get explanation from AI service")
	case errors.Is(err, service.ErrNoExplanation):
		writeError(w, http.StatusInternalServerError, "NO_EXPLANATION", "No explanation received from AI service")
	case errors.Is(err, service.ErrAlreadySubscribed):
		writeError(w, http.StatusBadRequest, "ALREADY_SUBSCRIBED", "You already have an active subscription")
	case errors.Is(err, service.ErrNoSubscription):
		writeError(w, http.StatusNotFound, "NO_SUBSCRIPTION", "No active subscription found")
	case errors.Is(err, service.ErrAlreadyCanceling):
		writeError(w, http.StatusBadRequest, "ALREADY_CANCELING", "Subscription is already canceled or being canceled")
	case errors.Is(err, service.ErrNotActive):
		writeError(w, http.StatusBadRequest, "NOT_ACTIVE", "Subscription is not active")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
	default:
		logger.Error("internal_error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
