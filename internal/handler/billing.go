package handler

import (
	"log/slog"
	"net/http"

	"github.com/errmate/errmate/internal/auth"
	"github.com/errmate/errmate/internal/handler/dto"
	"github.com/errmate/errmate/internal/service"
)

const cancelMessage = "Subscription will be canceled at the end of the billing period"

// BillingHandler serves the checkout, subscription and usage endpoints.
type BillingHandler struct {
	checkout      *service.CheckoutService
	subscriptions *service.SubscriptionService
	usage         *service.UsageService
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(checkout *service.CheckoutService, subscriptions *service.SubscriptionService, usage *service.UsageService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		checkout:      checkout,
		subscriptions: subscriptions,
		usage:         usage,
		logger:        logger,
	}
}

// CreateCheckout handles POST /api/create-checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	url, err := h.checkout.CreateCheckout(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CheckoutResponse{URL: url})
}

// CancelSubscription handles POST /api/cancel-subscription.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := h.subscriptions.Cancel(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CancelResponse{
		Success:  true,
		Message:  cancelMessage,
		CancelAt: res.CancelAt,
	})
}

// SyncSubscription handles GET /api/sync-subscription.
func (h *BillingHandler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := h.subscriptions.Sync(r.Context(), auth.UserFromContext(r.Context()), r.URL.Query().Get("session_id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Usage handles GET /api/usage. Anonymous callers get the anonymous tier.
func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usage.Summary(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
