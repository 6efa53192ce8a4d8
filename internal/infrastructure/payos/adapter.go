package payos

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
)

// Name is the registry name of the PayOS adapter
const Name = "payos"

// CurrencyCode is the only currency PayOS pays out in
const CurrencyCode = "VND"

// MaxPayoutAmount is the PayOS limit for a single transfer, in VND
var MaxPayoutAmount = decimal.NewFromInt(500_000_000)

var payoutStates = map[string]aggregate.PayoutStatus{
	StateSucceeded:  aggregate.PayoutStatusPaid,
	StateFailed:     aggregate.PayoutStatusFailed,
	StateCanceled:   aggregate.PayoutStatusCanceled,
	StateProcessing: aggregate.PayoutStatusProcessing,
}

var webhookActions = map[string]provider.WebhookAction{
	StateSucceeded:  provider.ActionPayoutPaid,
	StateFailed:     provider.ActionPayoutFailed,
	StateCanceled:   provider.ActionPayoutCanceled,
	StateProcessing: provider.ActionPayoutProcessing,
}

// Adapter pays sellers out to Vietnamese bank accounts. There is no hosted onboarding: the account
// is the bank destination the seller submits, validated against the supported banks.
type Adapter struct {
	client *Client
	logger *zap.Logger
}

// NewAdapter creates a PayOS adapter
func NewAdapter(client *Client, logger *zap.Logger) *Adapter {
	return &Adapter{client: client, logger: logger.Named("payos")}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePayoutAccount(ctx context.Context, input provider.CreateAccountInput) (*provider.CreateAccountResult, error) {
	bank, err := parseBankAccount(input.Context)
	if err != nil {
		return nil, provider.NewError(Name, "create account", err)
	}
	data, _ := json.Marshal(bank)
	return &provider.CreateAccountResult{
		ID:     bank.Bin + "-" + bank.AccountNumber,
		Status: aggregate.AccountStatusActive,
		Data:   data,
	}, nil
}

// CreateOnboarding has nothing to hand over; it echoes the stored destination
func (a *Adapter) CreateOnboarding(ctx context.Context, input provider.OnboardingInput) (*provider.OnboardingResult, error) {
	return &provider.OnboardingResult{Data: input.AccountData}, nil
}

func (a *Adapter) CreatePayout(ctx context.Context, input provider.CreatePayoutInput, idempotencyKey string) (*provider.CreatePayoutResult, error) {
	req, err := buildPayoutRequest(input)
	if err != nil {
		return nil, provider.NewError(Name, "create payout", err)
	}

	data, err := a.client.CreatePayout(ctx, req, idempotencyKey)
	if err != nil {
		return nil, wrapError("create payout", err)
	}

	state, message := data.State()
	status, ok := payoutStates[state]
	if !ok {
		status = aggregate.PayoutStatusProcessing
	}
	if status == aggregate.PayoutStatusFailed {
		a.logger.Warn("payout rejected by bank",
			zap.String("payout_id", input.PayoutID),
			zap.String("error", message),
		)
	}

	raw, _ := json.Marshal(data)
	return &provider.CreatePayoutResult{ID: data.ID, Status: status, Data: raw}, nil
}

func (a *Adapter) GetAccountStatus(ctx context.Context, input provider.AccountStatusInput) (*provider.AccountStatusResult, error) {
	if _, err := parseBankAccount(input.AccountData); err != nil {
		return &provider.AccountStatusResult{Status: aggregate.AccountStatusPending, Data: input.AccountData}, nil
	}
	return &provider.AccountStatusResult{Status: aggregate.AccountStatusActive, Data: input.AccountData}, nil
}

func (a *Adapter) GetPayoutStatus(ctx context.Context, input provider.PayoutStatusInput) (*provider.PayoutStatusResult, error) {
	var (
		data *PayoutData
		err  error
	)
	if input.Reference != "" {
		data, err = a.client.GetPayout(ctx, input.Reference)
	} else {
		data, err = a.client.FindPayout(ctx, input.PayoutID)
	}
	if err != nil {
		return nil, wrapError("get payout", err)
	}
	if data == nil {
		return &provider.PayoutStatusResult{Status: aggregate.PayoutStatusPending}, nil
	}

	state, message := data.State()
	status, ok := payoutStates[state]
	if !ok {
		status = aggregate.PayoutStatusProcessing
	}
	raw, _ := json.Marshal(data)
	return &provider.PayoutStatusResult{Status: status, FailureReason: message, Data: raw}, nil
}

// GetWebhookActionAndData verifies the body signature and maps the transfer state
func (a *Adapter) GetWebhookActionAndData(ctx context.Context, payload provider.WebhookPayload) (*provider.WebhookResult, error) {
	var body webhookBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return nil, fmt.Errorf("decode payos webhook: %w", err)
	}
	if body.Signature == "" || !a.client.VerifyWebhookSignature(body.Data, body.Signature) {
		return nil, provider.ErrInvalidSignature
	}

	raw, _ := json.Marshal(body.Data)
	var data webhookData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode payos webhook data: %w", err)
	}

	state := strings.ToUpper(data.State)
	action, ok := webhookActions[state]
	if !ok {
		action = provider.WebhookAction("payos." + strings.ToLower(state))
	}
	return &provider.WebhookResult{
		EventID:         data.ID + ":" + state,
		Action:          action,
		PayoutID:        data.ReferenceID,
		PayoutReference: data.ID,
		Reason:          data.ErrorMessage,
		Data:            raw,
	}, nil
}

func buildPayoutRequest(input provider.CreatePayoutInput) (*CreatePayoutRequest, error) {
	if aggregate.NormalizeCurrency(input.CurrencyCode) != CurrencyCode {
		return nil, fmt.Errorf("payos only pays out in %s, got %s", CurrencyCode, input.CurrencyCode)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be greater than 0")
	}
	if input.Amount.GreaterThan(MaxPayoutAmount) {
		return nil, fmt.Errorf("payout amount must not exceed %s VND", MaxPayoutAmount.String())
	}

	bank, err := parseBankAccount(input.AccountData)
	if err != nil {
		return nil, err
	}

	description := "Payout " + input.PayoutID
	if len(description) > 25 {
		description = description[:25]
	}
	return &CreatePayoutRequest{
		ReferenceID:     input.PayoutID,
		Amount:          input.Amount.Shift(aggregate.CurrencyPrecision(CurrencyCode)).Round(0).IntPart(),
		Description:     description,
		ToBin:           bank.Bin,
		ToAccountNumber: bank.AccountNumber,
		Category:        []string{"seller_payout"},
	}, nil
}

func parseBankAccount(raw json.RawMessage) (*BankAccount, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("bank account details are required")
	}
	var bank BankAccount
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("invalid bank account details: %w", err)
	}
	if bank.Bin == "" {
		bank.Bin = GetBankCode(bank.BankName)
	}
	if bank.Bin == "" {
		return nil, fmt.Errorf("unsupported bank: %s", bank.BankName)
	}
	if bank.AccountNumber == "" {
		return nil, fmt.Errorf("bank account number is required")
	}
	return &bank, nil
}

func wrapError(op string, err error) error {
	pe := provider.NewError(Name, op, err)
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		pe.Code = apiErr.Code
		pe.Message = apiErr.Desc
		if apiErr.HTTPStatus == http.StatusGatewayTimeout {
			pe.Timeout = true
		}
	}
	return pe
}
