package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/handler/dto"
	"github.com/errmate/errmate/internal/service"
)

// ExplainHandler serves POST /api/explain-error.
type ExplainHandler struct {
	service *service.ExplainService
	logger  *slog.Logger
}

// NewExplainHandler creates a new ExplainHandler.
func NewExplainHandler(svc *service.ExplainService, logger *slog.Logger) *ExplainHandler {
	return &ExplainHandler{service: svc, logger: logger}
}

// Explain handles POST /api/explain-error.
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req dto.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		case errors.As(err, &typeErr) && typeErr.Field == "errorText", errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "ERROR_TEXT_REQUIRED", "Error text is required")
		default:
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		}
		return
	}

	res, err := h.service.Explain(r.Context(), auth.UserFromContext(r.Context()), service.ExplainInput{
		ErrorText:   req.ErrorText,
		ContextText: req.ContextText,
		TechContext: req.TechContext,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please sign in or use anonymous mode")
			return
		}
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
