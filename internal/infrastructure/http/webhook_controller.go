package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/pkg/errors"
	"marketplace-settlement/pkg/response"
)

const maxWebhookBytes = 512 << 10

// WebhookController receives payout provider webhooks. The body is passed on untouched
// because signatures are computed over the raw bytes.
type WebhookController struct {
	payouts PayoutAPI
}

// NewWebhookController creates a new webhook controller
func NewWebhookController(payouts PayoutAPI) *WebhookController {
	return &WebhookController{payouts: payouts}
}

type webhookResponse struct {
	Outcome command.WebhookOutcome `json:"outcome"`
}

// Receive handles POST /webhooks/payouts/{provider}
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		response.SendAppError(w, r, errors.NewValidationError("Unable to read webhook body").WithCause(err))
		return
	}

	outcome, err := c.payouts.ProcessWebhook(r.Context(), &command.ProcessWebhookEvent{
		Provider: chi.URLParam(r, "provider"),
		Body:     body,
		Headers:  r.Header.Clone(),
	})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, webhookResponse{Outcome: outcome})
}
