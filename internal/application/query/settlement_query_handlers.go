package query

import (
	"context"
	stderrors "errors"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

func normalizePage(offset, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

func lookupError(err error, resource string) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NewNotFoundError(resource)
	}
	return errors.NewInternalError("failed to load " + resource).WithCause(err)
}

// ============================================
// Balances
// ============================================

// GetBalancesQuery lists every currency balance of an account
type GetBalancesQuery struct {
	AccountID string `json:"account_id"`
}

// GetBalancesHandler handles get balances queries
type GetBalancesHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewGetBalancesHandler creates a new get balances handler
func NewGetBalancesHandler(uowFactory repository.UnitOfWorkFactory) *GetBalancesHandler {
	return &GetBalancesHandler{uowFactory: uowFactory}
}

// Handle processes the get balances query
func (h *GetBalancesHandler) Handle(ctx context.Context, query *GetBalancesQuery) ([]*BalanceReadModel, error) {
	if query == nil || query.AccountID == "" {
		return nil, errors.NewValidationError("account_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	balances, err := uow.BalanceRepository().ListBalances(ctx, query.AccountID)
	if err != nil {
		return nil, lookupError(err, "balances")
	}
	models := make([]*BalanceReadModel, 0, len(balances))
	for _, b := range balances {
		models = append(models, NewBalanceReadModel(b))
	}
	return models, nil
}

// ListTransactionsQuery pages through ledger entries, newest first
type ListTransactionsQuery struct {
	AccountID    string `json:"account_id"`
	CurrencyCode string `json:"currency_code"`
	Offset       int    `json:"offset"`
	Limit        int    `json:"limit"`
}

// ListTransactionsHandler handles list transactions queries
type ListTransactionsHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewListTransactionsHandler creates a new list transactions handler
func NewListTransactionsHandler(uowFactory repository.UnitOfWorkFactory) *ListTransactionsHandler {
	return &ListTransactionsHandler{uowFactory: uowFactory}
}

// Handle processes the list transactions query
func (h *ListTransactionsHandler) Handle(ctx context.Context, query *ListTransactionsQuery) ([]*TransactionReadModel, error) {
	if query == nil || query.AccountID == "" {
		return nil, errors.NewValidationError("account_id is required")
	}
	query.Offset, query.Limit = normalizePage(query.Offset, query.Limit)

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	txs, err := uow.BalanceRepository().ListTransactions(ctx, query.AccountID, query.CurrencyCode, query.Offset, query.Limit)
	if err != nil {
		return nil, lookupError(err, "transactions")
	}
	models := make([]*TransactionReadModel, 0, len(txs))
	for _, tx := range txs {
		models = append(models, NewTransactionReadModel(tx))
	}
	return models, nil
}

// ReconcileBalanceQuery checks balances against their ledgers. An empty currency checks all.
type ReconcileBalanceQuery struct {
	AccountID    string `json:"account_id"`
	CurrencyCode string `json:"currency_code"`
}

// ReconcileBalanceHandler handles reconcile balance queries
type ReconcileBalanceHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewReconcileBalanceHandler creates a new reconcile balance handler
func NewReconcileBalanceHandler(uowFactory repository.UnitOfWorkFactory) *ReconcileBalanceHandler {
	return &ReconcileBalanceHandler{uowFactory: uowFactory}
}

// Handle reads each balance and its ledger sum in one transaction so they describe the same state
func (h *ReconcileBalanceHandler) Handle(ctx context.Context, query *ReconcileBalanceQuery) ([]*ReconciliationReport, error) {
	if query == nil || query.AccountID == "" {
		return nil, errors.NewValidationError("account_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()
	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewInternalError("failed to begin transaction").WithCause(err)
	}
	defer uow.Rollback(ctx)

	balances := uow.BalanceRepository()
	var rows []*aggregate.PayoutBalance
	if query.CurrencyCode != "" {
		b, err := balances.GetBalance(ctx, query.AccountID, query.CurrencyCode)
		if err != nil {
			return nil, lookupError(err, "balance")
		}
		rows = append(rows, b)
	} else {
		var err error
		if rows, err = balances.ListBalances(ctx, query.AccountID); err != nil {
			return nil, lookupError(err, "balances")
		}
	}

	reports := make([]*ReconciliationReport, 0, len(rows))
	for _, b := range rows {
		sum, raw, err := balances.SumTransactions(ctx, b.AccountID, b.CurrencyCode)
		if err != nil {
			return nil, lookupError(err, "transactions")
		}
		reports = append(reports, &ReconciliationReport{
			AccountID:    b.AccountID,
			CurrencyCode: b.CurrencyCode,
			Balance:      b.Balance,
			LedgerSum:    sum,
			RawBalance:   b.RawBalance,
			RawLedgerSum: raw,
			Consistent:   b.Balance.Equal(sum) && b.RawBalance.Equal(raw),
		})
	}
	return reports, nil
}

// ============================================
// Payouts
// ============================================

// GetPayoutQuery fetches one payout
type GetPayoutQuery struct {
	PayoutID string `json:"payout_id"`
}

// GetPayoutHandler handles get payout queries
type GetPayoutHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewGetPayoutHandler creates a new get payout handler
func NewGetPayoutHandler(uowFactory repository.UnitOfWorkFactory) *GetPayoutHandler {
	return &GetPayoutHandler{uowFactory: uowFactory}
}

// Handle processes the get payout query
func (h *GetPayoutHandler) Handle(ctx context.Context, query *GetPayoutQuery) (*PayoutReadModel, error) {
	if query == nil || query.PayoutID == "" {
		return nil, errors.NewValidationError("payout_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	payout, err := uow.PayoutRepository().GetByID(ctx, query.PayoutID)
	if err != nil {
		return nil, lookupError(err, "payout")
	}
	return NewPayoutReadModel(payout), nil
}

// ListPayoutsQuery pages through an account's payouts, newest first
type ListPayoutsQuery struct {
	AccountID string `json:"account_id"`
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
}

// ListPayoutsHandler handles list payouts queries
type ListPayoutsHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewListPayoutsHandler creates a new list payouts handler
func NewListPayoutsHandler(uowFactory repository.UnitOfWorkFactory) *ListPayoutsHandler {
	return &ListPayoutsHandler{uowFactory: uowFactory}
}

// Handle processes the list payouts query
func (h *ListPayoutsHandler) Handle(ctx context.Context, query *ListPayoutsQuery) ([]*PayoutReadModel, error) {
	if query == nil || query.AccountID == "" {
		return nil, errors.NewValidationError("account_id is required")
	}
	query.Offset, query.Limit = normalizePage(query.Offset, query.Limit)

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	payouts, err := uow.PayoutRepository().ListByAccountID(ctx, query.AccountID, query.Offset, query.Limit)
	if err != nil {
		return nil, lookupError(err, "payouts")
	}
	models := make([]*PayoutReadModel, 0, len(payouts))
	for _, p := range payouts {
		models = append(models, NewPayoutReadModel(p))
	}
	return models, nil
}

// ============================================
// Accounts
// ============================================

// GetAccountBySellerQuery fetches a seller's payout account
type GetAccountBySellerQuery struct {
	SellerID string `json:"seller_id"`
}

// GetAccountBySellerHandler handles get account by seller queries
type GetAccountBySellerHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewGetAccountBySellerHandler creates a new get account by seller handler
func NewGetAccountBySellerHandler(uowFactory repository.UnitOfWorkFactory) *GetAccountBySellerHandler {
	return &GetAccountBySellerHandler{uowFactory: uowFactory}
}

// Handle processes the get account by seller query
func (h *GetAccountBySellerHandler) Handle(ctx context.Context, query *GetAccountBySellerQuery) (*AccountReadModel, error) {
	if query == nil || query.SellerID == "" {
		return nil, errors.NewValidationError("seller_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	account, err := uow.PayoutAccountRepository().GetBySellerID(ctx, query.SellerID)
	if err != nil {
		return nil, lookupError(err, "payout account")
	}
	return NewAccountReadModel(account), nil
}

// GetOnboardingQuery fetches the latest onboarding artifact of an account
type GetOnboardingQuery struct {
	AccountID string `json:"account_id"`
}

// GetOnboardingHandler handles get onboarding queries
type GetOnboardingHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewGetOnboardingHandler creates a new get onboarding handler
func NewGetOnboardingHandler(uowFactory repository.UnitOfWorkFactory) *GetOnboardingHandler {
	return &GetOnboardingHandler{uowFactory: uowFactory}
}

// Handle processes the get onboarding query
func (h *GetOnboardingHandler) Handle(ctx context.Context, query *GetOnboardingQuery) (*OnboardingReadModel, error) {
	if query == nil || query.AccountID == "" {
		return nil, errors.NewValidationError("account_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	onboarding, err := uow.OnboardingRepository().GetByAccountID(ctx, query.AccountID)
	if err != nil {
		return nil, lookupError(err, "onboarding")
	}
	return NewOnboardingReadModel(onboarding), nil
}

// ============================================
// Commission
// ============================================

// ListOrderCommissionQuery lists the commission lines of an order
type ListOrderCommissionQuery struct {
	OrderID        string `json:"order_id"`
	IncludeDeleted bool   `json:"include_deleted"`
}

// ListOrderCommissionHandler handles list order commission queries
type ListOrderCommissionHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewListOrderCommissionHandler creates a new list order commission handler
func NewListOrderCommissionHandler(uowFactory repository.UnitOfWorkFactory) *ListOrderCommissionHandler {
	return &ListOrderCommissionHandler{uowFactory: uowFactory}
}

// Handle processes the list order commission query
func (h *ListOrderCommissionHandler) Handle(ctx context.Context, query *ListOrderCommissionQuery) ([]*CommissionLineReadModel, error) {
	if query == nil || query.OrderID == "" {
		return nil, errors.NewValidationError("order_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	lines, err := uow.CommissionLineRepository().ListByOrderID(ctx, query.OrderID, query.IncludeDeleted)
	if err != nil {
		return nil, lookupError(err, "commission lines")
	}
	models := make([]*CommissionLineReadModel, 0, len(lines))
	for _, l := range lines {
		models = append(models, NewCommissionLineReadModel(l))
	}
	return models, nil
}

// ListCommissionRulesQuery pages through rules
type ListCommissionRulesQuery struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ListCommissionRulesHandler handles list commission rules queries
type ListCommissionRulesHandler struct {
	uowFactory repository.UnitOfWorkFactory
}

// NewListCommissionRulesHandler creates a new list commission rules handler
func NewListCommissionRulesHandler(uowFactory repository.UnitOfWorkFactory) *ListCommissionRulesHandler {
	return &ListCommissionRulesHandler{uowFactory: uowFactory}
}

// Handle processes the list commission rules query
func (h *ListCommissionRulesHandler) Handle(ctx context.Context, query *ListCommissionRulesQuery) ([]*RuleReadModel, error) {
	if query == nil {
		query = &ListCommissionRulesQuery{}
	}
	query.Offset, query.Limit = normalizePage(query.Offset, query.Limit)

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	rules, err := uow.CommissionRuleRepository().List(ctx, query.Offset, query.Limit)
	if err != nil {
		return nil, lookupError(err, "commission rules")
	}
	models := make([]*RuleReadModel, 0, len(rules))
	for _, r := range rules {
		models = append(models, NewRuleReadModel(r))
	}
	return models, nil
}
