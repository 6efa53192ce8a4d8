package stripeconnect

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
)

// Name is the registry name of the Stripe Connect adapter
const Name = "stripe"

const (
	metaAccountID = "payout_account_id"
	metaSellerID  = "seller_id"
	metaPayoutID  = "payout_id"
)

// Config holds the Stripe Connect settings
type Config struct {
	SecretKey     string
	WebhookSecret string
	Country       string
	ReturnURL     string
	RefreshURL    string
	// BackendURL overrides the API endpoint, used against stripe-mock or test servers
	BackendURL string
	HTTPClient *http.Client
}

// Adapter moves funds with Connect transfers to Express accounts
type Adapter struct {
	api    *client.API
	config Config
	logger *zap.Logger
}

// NewAdapter creates a Stripe Connect adapter
func NewAdapter(config Config, logger *zap.Logger) (*Adapter, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.Country == "" {
		config.Country = "US"
	}

	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     logger.Named("stripe-sdk").Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.HTTPClient != nil {
		backendConfig.HTTPClient = config.HTTPClient
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(config.BackendURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &Adapter{
		api:    client.New(config.SecretKey, backends),
		config: config,
		logger: logger.Named("stripe"),
	}, nil
}

func (a *Adapter) Name() string { return Name }

type onboardingContext struct {
	Email   string `json:"email"`
	Country string `json:"country"`
}

func (a *Adapter) CreatePayoutAccount(ctx context.Context, input provider.CreateAccountInput) (*provider.CreateAccountResult, error) {
	var extra onboardingContext
	if len(input.Context) > 0 {
		_ = json.Unmarshal(input.Context, &extra)
	}
	country := a.config.Country
	if extra.Country != "" {
		country = extra.Country
	}

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if extra.Email != "" {
		params.Email = stripe.String(extra.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("account_" + input.AccountID)
	params.AddMetadata(metaAccountID, input.AccountID)
	params.AddMetadata(metaSellerID, input.SellerID)

	acct, err := a.api.Accounts.New(params)
	if err != nil {
		return nil, wrapError("create account", err)
	}

	a.logger.Info("connected account created", zap.String("account_id", input.AccountID), zap.String("stripe_account", acct.ID))
	return &provider.CreateAccountResult{
		ID:     acct.ID,
		Status: accountStatus(acct),
		Data:   accountData(acct),
	}, nil
}

func (a *Adapter) CreateOnboarding(ctx context.Context, input provider.OnboardingInput) (*provider.OnboardingResult, error) {
	if input.ReferenceID == "" {
		return nil, wrapError("create onboarding", fmt.Errorf("account %s has no connected account", input.AccountID))
	}

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(input.ReferenceID),
		RefreshURL: stripe.String(a.config.RefreshURL),
		ReturnURL:  stripe.String(a.config.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := a.api.AccountLinks.New(params)
	if err != nil {
		return nil, wrapError("create onboarding", err)
	}

	data, _ := json.Marshal(map[string]interface{}{
		"url":        link.URL,
		"expires_at": link.ExpiresAt,
	})
	return &provider.OnboardingResult{URL: link.URL, Data: data}, nil
}

// CreatePayout issues a transfer to the connected account. Stripe replays the original response
// for a repeated idempotency key, so retries never create a second transfer.
func (a *Adapter) CreatePayout(ctx context.Context, input provider.CreatePayoutInput, idempotencyKey string) (*provider.CreatePayoutResult, error) {
	if input.ReferenceID == "" {
		return nil, wrapError("create transfer", fmt.Errorf("account %s has no connected account", input.AccountID))
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(input.Amount, input.CurrencyCode)),
		Currency:    stripe.String(aggregate.NormalizeCurrency(input.CurrencyCode)),
		Destination: stripe.String(input.ReferenceID),
	}
	if input.OrderID != "" {
		params.TransferGroup = stripe.String(input.OrderID)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata(metaPayoutID, input.PayoutID)
	params.AddMetadata(metaAccountID, input.AccountID)

	transfer, err := a.api.Transfers.New(params)
	if err != nil {
		return nil, wrapError("create transfer", err)
	}

	return &provider.CreatePayoutResult{
		ID:     transfer.ID,
		Status: aggregate.PayoutStatusProcessing,
		Data:   transferData(transfer),
	}, nil
}

func (a *Adapter) GetAccountStatus(ctx context.Context, input provider.AccountStatusInput) (*provider.AccountStatusResult, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := a.api.Accounts.GetByID(input.ReferenceID, params)
	if err != nil {
		return nil, wrapError("get account", err)
	}
	return &provider.AccountStatusResult{Status: accountStatus(acct), Data: accountData(acct)}, nil
}

// GetPayoutStatus looks the transfer up by reference, or by payout metadata among the transfers
// to the connected account when the creating call timed out before returning one.
func (a *Adapter) GetPayoutStatus(ctx context.Context, input provider.PayoutStatusInput) (*provider.PayoutStatusResult, error) {
	var transfer *stripe.Transfer
	if input.Reference != "" {
		params := &stripe.TransferParams{}
		params.Context = ctx
		t, err := a.api.Transfers.Get(input.Reference, params)
		if err != nil {
			return nil, wrapError("get transfer", err)
		}
		transfer = t
	} else {
		params := &stripe.TransferListParams{Destination: stripe.String(input.AccountReference)}
		params.Context = ctx
		iter := a.api.Transfers.List(params)
		for iter.Next() {
			if t := iter.Transfer(); t.Metadata[metaPayoutID] == input.PayoutID {
				transfer = t
				break
			}
		}
		if err := iter.Err(); err != nil {
			return nil, wrapError("list transfers", err)
		}
	}

	if transfer == nil {
		// never reached Stripe; the payout is still ours to resolve
		return &provider.PayoutStatusResult{Status: aggregate.PayoutStatusPending}, nil
	}
	if transfer.Reversed {
		return &provider.PayoutStatusResult{
			Status:        aggregate.PayoutStatusCanceled,
			FailureReason: "transfer reversed",
			Data:          transferData(transfer),
		}, nil
	}
	return &provider.PayoutStatusResult{Status: aggregate.PayoutStatusPaid, Data: transferData(transfer)}, nil
}

// accountStatus maps a connected account onto the local state machine
func accountStatus(acct *stripe.Account) aggregate.AccountStatus {
	if acct.Requirements != nil && strings.HasPrefix(string(acct.Requirements.DisabledReason), "rejected.") {
		return aggregate.AccountStatusRejected
	}
	if acct.PayoutsEnabled {
		return aggregate.AccountStatusActive
	}
	if acct.DetailsSubmitted {
		return aggregate.AccountStatusRestricted
	}
	return aggregate.AccountStatusPending
}

func accountData(acct *stripe.Account) json.RawMessage {
	payload := map[string]interface{}{
		"id":                acct.ID,
		"payouts_enabled":   acct.PayoutsEnabled,
		"details_submitted": acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		payload["disabled_reason"] = string(acct.Requirements.DisabledReason)
		payload["currently_due"] = acct.Requirements.CurrentlyDue
	}
	data, _ := json.Marshal(payload)
	return data
}

func transferData(t *stripe.Transfer) json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"id":       t.ID,
		"amount":   t.Amount,
		"currency": string(t.Currency),
		"reversed": t.Reversed,
	})
	return data
}

// ToMinorUnits converts a major-unit amount into Stripe's integer smallest unit
func ToMinorUnits(amount decimal.Decimal, currencyCode string) int64 {
	return amount.Shift(aggregate.CurrencyPrecision(currencyCode)).Round(0).IntPart()
}

func wrapError(op string, err error) error {
	pe := provider.NewError(Name, op, err)
	var se *stripe.Error
	if stderrors.As(err, &se) {
		pe.Code = string(se.Code)
		if se.Msg != "" {
			pe.Message = se.Msg
		}
	}
	return pe
}
