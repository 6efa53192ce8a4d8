package stripeconnect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
)

var accountActions = map[aggregate.AccountStatus]provider.WebhookAction{
	aggregate.AccountStatusActive:     provider.ActionAccountActivated,
	aggregate.AccountStatusRestricted: provider.ActionAccountRestricted,
	aggregate.AccountStatusRejected:   provider.ActionAccountRejected,
}

var payoutEventActions = map[string]provider.WebhookAction{
	"payout.paid":     provider.ActionPayoutPaid,
	"payout.failed":   provider.ActionPayoutFailed,
	"payout.canceled": provider.ActionPayoutCanceled,
}

// GetWebhookActionAndData verifies the Stripe-Signature header and maps the event. Event types
// without a mapping come back with the Stripe type as Action.
func (a *Adapter) GetWebhookActionAndData(ctx context.Context, payload provider.WebhookPayload) (*provider.WebhookResult, error) {
	evt, err := webhook.ConstructEventWithOptions(
		payload.Body,
		payload.Headers.Get("Stripe-Signature"),
		a.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidSignature, err)
	}

	result := &provider.WebhookResult{EventID: evt.ID, Action: provider.WebhookAction(evt.Type)}
	if evt.Data == nil {
		return result, nil
	}
	result.Data = evt.Data.Raw

	switch string(evt.Type) {
	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(evt.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		result.AccountID = acct.Metadata[metaAccountID]
		result.AccountReference = acct.ID
		result.Data = accountData(&acct)
		if action, ok := accountActions[accountStatus(&acct)]; ok {
			result.Action = action
		}

	case "transfer.created", "transfer.reversed":
		var transfer stripe.Transfer
		if err := json.Unmarshal(evt.Data.Raw, &transfer); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		result.PayoutID = transfer.Metadata[metaPayoutID]
		result.PayoutReference = transfer.ID
		result.Data = transferData(&transfer)
		result.Action = provider.ActionPayoutPaid
		if evt.Type == "transfer.reversed" {
			result.Action = provider.ActionPayoutCanceled
			result.Reason = "transfer reversed"
		}

	case "payout.paid", "payout.failed", "payout.canceled":
		var payout stripe.Payout
		if err := json.Unmarshal(evt.Data.Raw, &payout); err != nil {
			return nil, fmt.Errorf("decode payout: %w", err)
		}
		// bank payouts of the connected account only concern us when they carry our payout id
		result.PayoutID = payout.Metadata[metaPayoutID]
		if result.PayoutID != "" {
			result.Action = payoutEventActions[string(evt.Type)]
			result.Reason = payout.FailureMessage
		}
	}
	return result, nil
}
