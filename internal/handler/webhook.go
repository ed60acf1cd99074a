package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/handler/dto"
)

// maxWebhookBodySize bounds Stripe event payloads.
const maxWebhookBodySize = 1 << 20

// EventParser verifies and decodes a signed webhook payload.
type EventParser interface {
	ConstructEvent(payload []byte, signature string) (*billing.Event, error)
}

// EventHandler applies a verified billing event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *billing.Event) error
}

// WebhookHandler receives Stripe webhook deliveries.
type WebhookHandler struct {
	parser EventParser
	events EventHandler
	logger *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(parser EventParser, events EventHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, events: events, logger: logger}
}

// Receive handles POST /api/webhook. Processing errors are logged and the
// delivery is still acknowledged.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read request body")
		return
	}

	ev, err := h.parser.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrSignatureMissing):
			writeError(w, http.StatusBadRequest, "NO_SIGNATURE", "No signature")
		case errors.Is(err, billing.ErrInvalidSignature):
			h.logger.Warn("webhook signature verification failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid signature")
		default:
			h.logger.Warn("webhook payload rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid payload")
		}
		return
	}

	if err := h.events.HandleEvent(r.Context(), ev); err != nil {
		h.logger.Error("webhook event processing failed",
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, dto.WebhookResponse{Received: true})
}
