package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

// WebhookAction is the provider neutral meaning of a webhook delivery
type WebhookAction string

const (
	ActionAccountActivated  WebhookAction = "account.activated"
	ActionAccountRestricted WebhookAction = "account.restricted"
	ActionAccountRejected   WebhookAction = "account.rejected"
	ActionPayoutProcessing  WebhookAction = "payout.processing"
	ActionPayoutPaid        WebhookAction = "payout.paid"
	ActionPayoutFailed      WebhookAction = "payout.failed"
	ActionPayoutCanceled    WebhookAction = "payout.canceled"
)

// CreateAccountInput asks the provider for a connected account
type CreateAccountInput struct {
	AccountID string
	SellerID  string
	Context   json.RawMessage
}

// CreateAccountResult carries the provider account id and an optional initial status
type CreateAccountResult struct {
	ID     string
	Status aggregate.AccountStatus
	Data   json.RawMessage
}

// OnboardingInput asks for a hosted onboarding artifact
type OnboardingInput struct {
	AccountID   string
	ReferenceID string
	AccountData json.RawMessage
	Context     json.RawMessage
}

// OnboardingResult carries the continuation artifact, usually a URL
type OnboardingResult struct {
	URL  string
	Data json.RawMessage
}

// CreatePayoutInput moves Amount (major units) to the account. Unit conversion is the adapter's job.
type CreatePayoutInput struct {
	PayoutID     string
	AccountID    string
	OrderID      string
	ReferenceID  string
	AccountData  json.RawMessage
	Amount       decimal.Decimal
	CurrencyCode string
}

// CreatePayoutResult is the provider acceptance of a payout
type CreatePayoutResult struct {
	ID     string
	Status aggregate.PayoutStatus
	Data   json.RawMessage
}

// AccountStatusInput identifies a provider account for a status check
type AccountStatusInput struct {
	AccountID   string
	ReferenceID string
	AccountData json.RawMessage
}

// AccountStatusResult is the provider view of an account
type AccountStatusResult struct {
	Status aggregate.AccountStatus
	Data   json.RawMessage
}

// PayoutStatusInput identifies a provider payout for a status check
type PayoutStatusInput struct {
	PayoutID         string
	Reference        string
	AccountReference string
	Data             json.RawMessage
}

// PayoutStatusResult is the provider view of a payout
type PayoutStatusResult struct {
	Status        aggregate.PayoutStatus
	FailureReason string
	Data          json.RawMessage
}

// WebhookPayload is the raw delivery as received by the HTTP layer
type WebhookPayload struct {
	Body    []byte
	Headers http.Header
}

// WebhookResult is a verified, mapped webhook. Unknown provider events carry an Action outside the
// constants above; the engine logs and drops those.
type WebhookResult struct {
	EventID          string
	Action           WebhookAction
	AccountID        string
	AccountReference string
	PayoutID         string
	PayoutReference  string
	Reason           string
	Data             json.RawMessage
}

// Adapter is the capability contract every payout provider implements
type Adapter interface {
	Name() string
	CreatePayoutAccount(ctx context.Context, input CreateAccountInput) (*CreateAccountResult, error)
	CreateOnboarding(ctx context.Context, input OnboardingInput) (*OnboardingResult, error)
	CreatePayout(ctx context.Context, input CreatePayoutInput, idempotencyKey string) (*CreatePayoutResult, error)
	GetAccountStatus(ctx context.Context, input AccountStatusInput) (*AccountStatusResult, error)
	GetPayoutStatus(ctx context.Context, input PayoutStatusInput) (*PayoutStatusResult, error)
	GetWebhookActionAndData(ctx context.Context, payload WebhookPayload) (*WebhookResult, error)
}
