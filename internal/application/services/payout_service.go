package services

import (
	"context"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/domain/aggregate"
)

// PayoutHandlers groups the payout side command and query handlers
type PayoutHandlers struct {
	CreateAccount    *command.CreatePayoutAccountWithUoWHandler
	SyncAccount      *command.SyncAccountStatusWithUoWHandler
	ApplyDelta       *command.ApplyBalanceDeltaWithUoWHandler
	RequestPayout    *command.RequestPayoutWithUoWHandler
	ReversePayout    *command.ReversePayoutWithUoWHandler
	SyncPayout       *command.SyncPayoutStatusWithUoWHandler
	ProcessWebhook   *command.ProcessWebhookEventWithUoWHandler
	GetAccount       *query.GetAccountBySellerHandler
	GetOnboarding    *query.GetOnboardingHandler
	GetBalances      *query.GetBalancesHandler
	ListTransactions *query.ListTransactionsHandler
	Reconcile        *query.ReconcileBalanceHandler
	GetPayout        *query.GetPayoutHandler
	ListPayouts      *query.ListPayoutsHandler
}

// PayoutService handles seller accounts, balances and payouts
type PayoutService struct {
	h PayoutHandlers
}

// NewPayoutService creates a new payout service
func NewPayoutService(handlers PayoutHandlers) *PayoutService {
	return &PayoutService{h: handlers}
}

// OnboardingResponse is returned when a seller starts or resumes onboarding
type OnboardingResponse struct {
	Account *query.AccountReadModel `json:"account"`
	URL     string                  `json:"url"`
}

// CreatePayoutAccount starts provider onboarding for a seller
func (s *PayoutService) CreatePayoutAccount(ctx context.Context, cmd *command.CreatePayoutAccount) (*OnboardingResponse, error) {
	view, err := s.h.CreateAccount.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &OnboardingResponse{Account: query.NewAccountReadModel(view.Account), URL: view.URL}, nil
}

// SyncAccountStatus pulls the provider status of the seller's account
func (s *PayoutService) SyncAccountStatus(ctx context.Context, cmd *command.SyncAccountStatus) (*query.AccountReadModel, error) {
	account, err := s.h.SyncAccount.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return query.NewAccountReadModel(account), nil
}

// GetAccountBySeller retrieves a seller's payout account
func (s *PayoutService) GetAccountBySeller(ctx context.Context, sellerID string) (*query.AccountReadModel, error) {
	return s.h.GetAccount.Handle(ctx, &query.GetAccountBySellerQuery{SellerID: sellerID})
}

// GetOnboarding retrieves the latest onboarding artifact
func (s *PayoutService) GetOnboarding(ctx context.Context, accountID string) (*query.OnboardingReadModel, error) {
	return s.h.GetOnboarding.Handle(ctx, &query.GetOnboardingQuery{AccountID: accountID})
}

// ApplyBalanceDelta books an operator adjustment
func (s *PayoutService) ApplyBalanceDelta(ctx context.Context, cmd *command.ApplyBalanceDelta) (*query.BalanceReadModel, error) {
	balance, err := s.h.ApplyDelta.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return query.NewBalanceReadModel(balance), nil
}

// GetBalances lists an account's balances
func (s *PayoutService) GetBalances(ctx context.Context, accountID string) ([]*query.BalanceReadModel, error) {
	return s.h.GetBalances.Handle(ctx, &query.GetBalancesQuery{AccountID: accountID})
}

// ListTransactions pages through ledger entries
func (s *PayoutService) ListTransactions(ctx context.Context, q *query.ListTransactionsQuery) ([]*query.TransactionReadModel, error) {
	return s.h.ListTransactions.Handle(ctx, q)
}

// Reconcile compares balances with their ledgers
func (s *PayoutService) Reconcile(ctx context.Context, accountID, currencyCode string) ([]*query.ReconciliationReport, error) {
	return s.h.Reconcile.Handle(ctx, &query.ReconcileBalanceQuery{AccountID: accountID, CurrencyCode: currencyCode})
}

// RequestPayout pays part of a balance out to the seller
func (s *PayoutService) RequestPayout(ctx context.Context, cmd *command.RequestPayout) (*query.PayoutReadModel, error) {
	payout, err := s.h.RequestPayout.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return query.NewPayoutReadModel(payout), nil
}

// ReversePayout credits payouts back
func (s *PayoutService) ReversePayout(ctx context.Context, cmd *command.ReversePayout) ([]*query.PayoutReadModel, error) {
	payouts, err := s.h.ReversePayout.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return payoutModels(payouts), nil
}

// GetPayout retrieves a payout
func (s *PayoutService) GetPayout(ctx context.Context, payoutID string) (*query.PayoutReadModel, error) {
	return s.h.GetPayout.Handle(ctx, &query.GetPayoutQuery{PayoutID: payoutID})
}

// ListPayouts retrieves an account's payouts with pagination
func (s *PayoutService) ListPayouts(ctx context.Context, accountID string, offset, limit int) ([]*query.PayoutReadModel, error) {
	return s.h.ListPayouts.Handle(ctx, &query.ListPayoutsQuery{AccountID: accountID, Offset: offset, Limit: limit})
}

// ProcessWebhook applies one provider delivery
func (s *PayoutService) ProcessWebhook(ctx context.Context, cmd *command.ProcessWebhookEvent) (command.WebhookOutcome, error) {
	return s.h.ProcessWebhook.Handle(ctx, cmd)
}

func payoutModels(payouts []*aggregate.Payout) []*query.PayoutReadModel {
	models := make([]*query.PayoutReadModel, 0, len(payouts))
	for _, p := range payouts {
		models = append(models, query.NewPayoutReadModel(p))
	}
	return models
}

// OrderService turns order lifecycle events into commission and payout operations
type OrderService struct {
	commission *CommissionService
	payouts    *PayoutService
}

// NewOrderService creates a new order service
func NewOrderService(commission *CommissionService, payouts *PayoutService) *OrderService {
	return &OrderService{commission: commission, payouts: payouts}
}

// OrderCanceled is the order-cancellation event
type OrderCanceled struct {
	OrderID        string          `json:"order_id" validate:"required"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	CurrencyCode   string          `json:"currency_code"`
}

// Captured accrues commission for a captured order
func (s *OrderService) Captured(ctx context.Context, cmd *command.ComputeAndRecordCommission) ([]*query.CommissionLineReadModel, error) {
	lines, err := s.commission.ComputeAndRecordCommission(ctx, cmd)
	if err != nil {
		return nil, err
	}
	models := make([]*query.CommissionLineReadModel, 0, len(lines))
	for _, l := range lines {
		models = append(models, query.NewCommissionLineReadModel(l))
	}
	return models, nil
}

// Canceled reverses the order's commission, then reverses payouts issued for the order up to the
// captured amount. Both steps are idempotent, so a redelivered event changes nothing.
func (s *OrderService) Canceled(ctx context.Context, evt *OrderCanceled) ([]*query.PayoutReadModel, error) {
	if err := s.commission.ReverseOrderCommission(ctx, &command.ReverseOrderCommission{OrderID: evt.OrderID}); err != nil {
		return nil, err
	}
	return s.payouts.ReversePayout(ctx, &command.ReversePayout{
		OrderID:      evt.OrderID,
		Amount:       evt.CapturedAmount,
		CurrencyCode: evt.CurrencyCode,
		Reason:       "order canceled",
	})
}
