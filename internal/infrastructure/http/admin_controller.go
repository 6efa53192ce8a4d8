package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/pkg/response"
)

// CommissionAPI is the commission surface used by the admin controller
type CommissionAPI interface {
	UpsertRule(ctx context.Context, cmd *command.UpsertCommissionRule) (*query.RuleReadModel, error)
	ListRules(ctx context.Context, offset, limit int) ([]*query.RuleReadModel, error)
	ListOrderCommission(ctx context.Context, orderID string, includeDeleted bool) ([]*query.CommissionLineReadModel, error)
}

// AdminController handles operator endpoints
type AdminController struct {
	commission CommissionAPI
	payouts    PayoutAPI
}

// NewAdminController creates a new admin controller
func NewAdminController(commission CommissionAPI, payouts PayoutAPI) *AdminController {
	return &AdminController{commission: commission, payouts: payouts}
}

type reversePayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type balanceDeltaRequest struct {
	CurrencyCode string                         `json:"currency_code" validate:"required,len=3,alpha"`
	Amount       decimal.Decimal                `json:"amount"`
	Reference    aggregate.TransactionReference `json:"reference" validate:"required"`
	ReferenceID  string                         `json:"reference_id" validate:"required"`
}

// UpsertRule handles POST /admin/commission/rules
func (c *AdminController) UpsertRule(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpsertCommissionRule
	if err := decodeBody(w, r, &cmd); err != nil {
		response.SendAppError(w, r, err)
		return
	}

	rule, err := c.commission.UpsertRule(r.Context(), &cmd)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, rule)
}

// ListRules handles GET /admin/commission/rules
func (c *AdminController) ListRules(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	rules, err := c.commission.ListRules(r.Context(), offset, limit)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccessWithMeta(w, r, rules, response.Paginate(offset/limit+1, limit, len(rules)))
}

// ListOrderCommission handles GET /admin/orders/{orderID}/commission-lines
func (c *AdminController) ListOrderCommission(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	lines, err := c.commission.ListOrderCommission(r.Context(), chi.URLParam(r, "orderID"), includeDeleted)
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, lines)
}

// ReversePayout handles POST /admin/payouts/{id}/reverse. A missing amount reverses what remains.
func (c *AdminController) ReversePayout(w http.ResponseWriter, r *http.Request) {
	var req reversePayoutRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			response.SendAppError(w, r, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "reversed by operator"
	}

	payouts, err := c.payouts.ReversePayout(r.Context(), &command.ReversePayout{
		PayoutID: chi.URLParam(r, "id"),
		Amount:   req.Amount,
		Reason:   req.Reason,
	})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, payouts)
}

// Reconcile handles GET /admin/accounts/{accountID}/reconciliation
func (c *AdminController) Reconcile(w http.ResponseWriter, r *http.Request) {
	reports, err := c.payouts.Reconcile(r.Context(), chi.URLParam(r, "accountID"), r.URL.Query().Get("currency_code"))
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, reports)
}

// ApplyBalanceDelta handles POST /admin/accounts/{accountID}/balance-deltas
func (c *AdminController) ApplyBalanceDelta(w http.ResponseWriter, r *http.Request) {
	var req balanceDeltaRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.SendAppError(w, r, err)
		return
	}

	balance, err := c.payouts.ApplyBalanceDelta(r.Context(), &command.ApplyBalanceDelta{
		AccountID:    chi.URLParam(r, "accountID"),
		CurrencyCode: req.CurrencyCode,
		Amount:       req.Amount,
		Reference:    req.Reference,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		response.SendAppError(w, r, err)
		return
	}
	response.SendSuccess(w, r, balance)
}
