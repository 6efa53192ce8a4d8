package command

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

// ============================================
// Commission Commands
// ============================================

// TaxLineInput is one tax applied to an order item
type TaxLineInput struct {
	Code   string           `json:"code"`
	Rate   decimal.Decimal  `json:"rate"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// OrderItem is one captured order item line
type OrderItem struct {
	ItemLineID     string          `json:"item_line_id" validate:"required"`
	ProductID      string          `json:"product_id" validate:"required"`
	CategoryIDs    []string        `json:"category_ids"`
	Quantity       int64           `json:"quantity" validate:"gte=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	TaxLines       []TaxLineInput  `json:"tax_lines"`
	CurrencyCode   string          `json:"currency_code" validate:"required,len=3,alpha"`
	IsTaxInclusive bool            `json:"is_tax_inclusive"`
}

// ComputeAndRecordCommission is the order-capture event
type ComputeAndRecordCommission struct {
	OrderID  string      `json:"order_id" validate:"required"`
	SellerID string      `json:"seller_id" validate:"required"`
	Items    []OrderItem `json:"items" validate:"required,min=1,dive"`
}

// RecordCommission inserts one commission line with its accrual delta
type RecordCommission struct {
	OrderID      string          `json:"order_id"`
	SellerID     string          `json:"seller_id" validate:"required"`
	ItemLineID   string          `json:"item_line_id" validate:"required"`
	RuleID       string          `json:"rule_id"`
	CurrencyCode string          `json:"currency_code" validate:"required,len=3,alpha"`
	Value        decimal.Decimal `json:"value"`
	RawValue     decimal.Decimal `json:"raw_value"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
}

// ReverseCommission soft-deletes the commission of one item line
type ReverseCommission struct {
	ItemLineID string `json:"item_line_id" validate:"required"`
}

// ReverseOrderCommission reverses every commission line of an order
type ReverseOrderCommission struct {
	OrderID string `json:"order_id" validate:"required"`
}

// RateInput describes a commission rate in an upsert
type RateInput struct {
	Type           aggregate.RateType         `json:"type" validate:"required,oneof=flat percentage"`
	PercentageRate *decimal.Decimal           `json:"percentage_rate,omitempty"`
	IncludeTax     bool                       `json:"include_tax"`
	FlatAmount     map[string]decimal.Decimal `json:"flat_amount,omitempty"`
	MinAmount      map[string]decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount      map[string]decimal.Decimal `json:"max_amount,omitempty"`
}

// UpsertCommissionRule creates or revises a rule
type UpsertCommissionRule struct {
	RuleID      string    `json:"rule_id"`
	Name        string    `json:"name" validate:"required"`
	Reference   string    `json:"reference" validate:"required,oneof=product category seller global"`
	ReferenceID string    `json:"reference_id"`
	IsActive    bool      `json:"is_active"`
	Rate        RateInput `json:"rate"`
}

// ============================================
// Balance Commands
// ============================================

// ApplyBalanceDelta is the single mutation entry point of the balance ledger
type ApplyBalanceDelta struct {
	AccountID    string                         `json:"account_id" validate:"required"`
	CurrencyCode string                         `json:"currency_code" validate:"required,len=3,alpha"`
	Amount       decimal.Decimal                `json:"amount"`
	RawAmount    decimal.Decimal                `json:"raw_amount"`
	Reference    aggregate.TransactionReference `json:"reference" validate:"required"`
	ReferenceID  string                         `json:"reference_id" validate:"required"`
}

// ============================================
// Account Commands
// ============================================

// CreatePayoutAccount starts (or resumes) provider onboarding for a seller
type CreatePayoutAccount struct {
	SellerID string          `json:"seller_id" validate:"required"`
	Context  json.RawMessage `json:"context,omitempty"`
}

// SyncAccountStatus pulls the provider status of an account
type SyncAccountStatus struct {
	AccountID string `json:"account_id"`
	SellerID  string `json:"seller_id"`
}

// ============================================
// Payout Commands
// ============================================

// RequestPayout moves part of a balance to the seller
type RequestPayout struct {
	AccountID      string          `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	CurrencyCode   string          `json:"currency_code" validate:"required,len=3,alpha"`
	OrderID        string          `json:"order_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// ReversePayout is the cancellation path; either PayoutID or OrderID identifies the payouts.
// A zero Amount reverses whatever remains.
type ReversePayout struct {
	PayoutID     string          `json:"payout_id"`
	OrderID      string          `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Reason       string          `json:"reason"`
}

// SyncPayoutStatus polls the provider for the outcome of a payout
type SyncPayoutStatus struct {
	PayoutID string `json:"payout_id" validate:"required"`
}

// ProcessWebhookEvent is a raw provider delivery
type ProcessWebhookEvent struct {
	Provider string
	Body     []byte
	Headers  http.Header
}
