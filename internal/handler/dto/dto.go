// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	LimitReached bool   `json:"limitReached,omitempty"`
}

// ExplainRequest is the body of POST /api/explain-error.
type ExplainRequest struct {
	ErrorText   string `json:"errorText"`
	ContextText string `json:"contextText,omitempty"`
	TechContext string `json:"techContext,omitempty"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CancelResponse confirms a scheduled cancellation.
// CancelAt is a unix timestamp and is omitted when unknown.
type CancelResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	CancelAt int64  `json:"cancelAt,omitempty"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// ServiceInfo is returned by GET /.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
