package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/application/services"
	"marketplace-settlement/pkg/errors"
	"marketplace-settlement/pkg/middleware"
	"marketplace-settlement/pkg/response"
)

// PayoutAPI is the payout surface used by the HTTP controllers
type PayoutAPI interface {
	CreatePayoutAccount(ctx context.Context, cmd *command.CreatePayoutAccount) (*services.OnboardingResponse, error)
	SyncAccountStatus(ctx context.Context, cmd *command.SyncAccountStatus) (*query.AccountReadModel, error)
	GetAccountBySeller(ctx context.Context, sellerID string) (*query.AccountReadModel, error)
	GetOnboarding(ctx context.Context, accountID string) (*query.OnboardingReadModel, error)
	ApplyBalanceDelta(ctx context.Context, cmd *command.ApplyBalanceDelta) (*query.BalanceReadModel, error)
	GetBalances(ctx context.Context, accountID string) ([]*query.BalanceReadModel, error)
	ListTransactions(ctx context.Context, q *query.ListTransactionsQuery) ([]*query.TransactionReadModel, error)
	Reconcile(ctx context.Context, accountID, currencyCode string) ([]*query.ReconciliationReport, error)
	RequestPayout(ctx context.Context, cmd *command.RequestPayout) (*query.PayoutReadModel, error)
	ReversePayout(ctx context.Context, cmd *command.ReversePayout) ([]*query.PayoutReadModel, error)
	GetPayout(ctx context.Context, payoutID string) (*query.PayoutReadModel, error)
	ListPayouts(ctx context.Context, accountID string, offset, limit int) ([]*query.PayoutReadModel, error)
	ProcessWebhook(ctx context.Context, cmd *command.ProcessWebhookEvent) (command.WebhookOutcome, error)
}

// VendorPayoutController serves the seller facing payout endpoints.
// The seller is always taken from the token, never from the request.
type VendorPayoutController struct {
	payouts PayoutAPI
}

// NewVendorPayoutController creates a new vendor payout controller
func NewVendorPayoutController(payouts PayoutAPI) *VendorPayoutController {
	return &VendorPayoutController{payouts: payouts}
}

type createAccountRequest struct {
	Context json.RawMessage `json:"context,omitempty"`
}

type requestPayoutRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code" validate:"required,len=3,alpha"`
	OrderID      string          `json:"order_id,omitempty"`
}

type accountResponse struct {
	Account    *query.AccountReadModel    `json:"account"`
	Onboarding *query.OnboardingReadModel `json:"onboarding,omitempty"`
}

// CreatePayoutAccount handles POST /vendor/payout-account
func (c *VendorPayoutController) CreatePayoutAccount(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := middleware.GetSellerID(r.Context())
	if !ok {
		response.SendAppError(w, r, errors.NewForbiddenError("Token is not bound to a seller"))
		return
	}

	var req createAccountRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			response.SendAppError(w, r, err)
			return
		}
	}

	result, err := c.payouts.CreatePayoutAccount(r.Context(), &command.CreatePayoutAccount{SellerID: sellerID, Context: req.Context})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendCreated(w, r, result)
}

// SyncPayoutAccount handles POST /vendor/payout-account/sync
func (c *VendorPayoutController) SyncPayoutAccount(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := middleware.GetSellerID(r.Context())
	if !ok {
		response.SendAppError(w, r, errors.NewForbiddenError("Token is not bound to a seller"))
		return
	}

	account, err := c.payouts.SyncAccountStatus(r.Context(), &command.SyncAccountStatus{SellerID: sellerID})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, account)
}

// GetPayoutAccount handles GET /vendor/payout-account
func (c *VendorPayoutController) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	out := accountResponse{Account: account}
	onboarding, err := c.payouts.GetOnboarding(r.Context(), account.ID)
	switch {
	case err == nil:
		out.Onboarding = onboarding
	case !errors.IsCode(err, errors.CodeNotFound):
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, out)
}

// GetBalances handles GET /vendor/balances
func (c *VendorPayoutController) GetBalances(w http.ResponseWriter, r *http.Request) {
	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	balances, err := c.payouts.GetBalances(r.Context(), account.ID)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, balances)
}

// ListTransactions handles GET /vendor/transactions
func (c *VendorPayoutController) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	offset, limit := pageParams(r)
	txs, err := c.payouts.ListTransactions(r.Context(), &query.ListTransactionsQuery{
		AccountID:    account.ID,
		CurrencyCode: r.URL.Query().Get("currency_code"),
		Offset:       offset,
		Limit:        limit,
	})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccessWithMeta(w, r, txs, response.Paginate(offset/limit+1, limit, len(txs)))
}

// RequestPayout handles POST /vendor/payouts. The Idempotency-Key header is required: retries
// carrying the same key return the payout created by the first attempt.
func (c *VendorPayoutController) RequestPayout(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		response.SendAppError(w, r, errors.NewValidationError("Idempotency-Key header is required"))
		return
	}

	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	var req requestPayoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.SendAppError(w, r, err)
		return
	}

	payout, err := c.payouts.RequestPayout(r.Context(), &command.RequestPayout{
		AccountID:      account.ID,
		Amount:         req.Amount,
		CurrencyCode:   req.CurrencyCode,
		OrderID:        req.OrderID,
		IdempotencyKey: key,
	})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendCreated(w, r, payout)
}

// ListPayouts handles GET /vendor/payouts
func (c *VendorPayoutController) ListPayouts(w http.ResponseWriter, r *http.Request) {
	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	offset, limit := pageParams(r)
	payouts, err := c.payouts.ListPayouts(r.Context(), account.ID, offset, limit)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccessWithMeta(w, r, payouts, response.Paginate(offset/limit+1, limit, len(payouts)))
}

// GetPayout handles GET /vendor/payouts/{id}
func (c *VendorPayoutController) GetPayout(w http.ResponseWriter, r *http.Request) {
	account, err := c.sellerAccount(r)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}

	payout, err := c.payouts.GetPayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	// another seller's payout is reported as missing
	if payout.AccountID != account.ID {
		response.SendAppError(w, r, errors.NewNotFoundError("payout"))
		return
	}
	response.SendSuccess(w, r, payout)
}

func (c *VendorPayoutController) sellerAccount(r *http.Request) (*query.AccountReadModel, error) {
	sellerID, ok := middleware.GetSellerID(r.Context())
	if !ok {
		return nil, errors.NewForbiddenError("Token is not bound to a seller")
	}
	return c.payouts.GetAccountBySeller(r.Context(), sellerID)
}
