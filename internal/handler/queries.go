package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/service"
)

// QueryHandler serves the caller's explanation history.
type QueryHandler struct {
	service *service.QueryService
	logger  *slog.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(svc *service.QueryService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{service: svc, logger: logger}
}

// List handles GET /api/queries. The response is a bare JSON array.
func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
			return
		}
		limit = n
	}

	items, err := h.service.List(r.Context(), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
