package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

type ruleRow struct {
	ID             string              `db:"id"`
	Name           string              `db:"name"`
	Reference      string              `db:"reference"`
	ReferenceID    string              `db:"reference_id"`
	IsActive       bool                `db:"is_active"`
	RateID         string              `db:"rate_id"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
	RateType       string              `db:"rate_type"`
	PercentageRate decimal.NullDecimal `db:"percentage_rate"`
	IncludeTax     bool                `db:"include_tax"`
	FlatAmount     []byte              `db:"flat_amount"`
	MinAmount      []byte              `db:"min_amount"`
	MaxAmount      []byte              `db:"max_amount"`
	RateCreatedAt  time.Time           `db:"rate_created_at"`
}

const ruleColumns = `r.id, r.name, r.reference, r.reference_id, r.is_active, r.rate_id, r.created_at, r.updated_at,
	t.type AS rate_type, t.percentage_rate, t.include_tax, t.flat_amount, t.min_amount, t.max_amount,
	t.created_at AS rate_created_at
	FROM commission_rule r JOIN commission_rate t ON t.id = r.rate_id`

func amountSetJSON(s *aggregate.AmountSet) interface{} {
	if s == nil {
		return nil
	}
	raw, _ := json.Marshal(s)
	return string(raw)
}

func amountSetFromJSON(raw []byte) *aggregate.AmountSet {
	if len(raw) == 0 {
		return nil
	}
	var s aggregate.AmountSet
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func (r ruleRow) toAggregate() *aggregate.CommissionRule {
	spec := aggregate.CommissionRateSpec{
		ID:         r.RateID,
		Type:       aggregate.RateType(r.RateType),
		IncludeTax: r.IncludeTax,
		FlatAmount: amountSetFromJSON(r.FlatAmount),
		MinAmount:  amountSetFromJSON(r.MinAmount),
		MaxAmount:  amountSetFromJSON(r.MaxAmount),
	}
	if r.PercentageRate.Valid {
		p := r.PercentageRate.Decimal
		spec.PercentageRate = &p
	}
	rate := aggregate.ReconstructCommissionRate(spec, r.RateCreatedAt)
	return aggregate.ReconstructCommissionRule(
		r.ID, r.Name, aggregate.RuleReference(r.Reference), r.ReferenceID, r.IsActive, rate, r.CreatedAt, r.UpdatedAt,
	)
}

type lineRow struct {
	ID           string          `db:"id"`
	OrderID      string          `db:"order_id"`
	ItemLineID   string          `db:"item_line_id"`
	SellerID     string          `db:"seller_id"`
	RuleID       string          `db:"rule_id"`
	CurrencyCode string          `db:"currency_code"`
	Value        decimal.Decimal `db:"value"`
	RawValue     decimal.Decimal `db:"raw_value"`
	GrossAmount  decimal.Decimal `db:"gross_amount"`
	Version      int             `db:"version"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	DeletedAt    *time.Time      `db:"deleted_at"`
}

func newLineRow(l *aggregate.CommissionLine) lineRow {
	return lineRow{
		ID:           l.ID(),
		OrderID:      l.OrderID(),
		ItemLineID:   l.ItemLineID(),
		SellerID:     l.SellerID(),
		RuleID:       l.RuleID(),
		CurrencyCode: l.CurrencyCode(),
		Value:        l.Value(),
		RawValue:     l.RawValue(),
		GrossAmount:  l.GrossAmount(),
		Version:      l.Version(),
		CreatedAt:    l.CreatedAt(),
		UpdatedAt:    l.UpdatedAt(),
		DeletedAt:    l.DeletedAt(),
	}
}

func (r lineRow) toAggregate() *aggregate.CommissionLine {
	return aggregate.ReconstructCommissionLine(
		r.ID, r.OrderID, r.ItemLineID, r.SellerID, r.RuleID, r.CurrencyCode,
		r.Value, r.RawValue, r.GrossAmount, r.Version, r.CreatedAt, r.UpdatedAt, r.DeletedAt,
	)
}

type accountRow struct {
	ID          string    `db:"id"`
	SellerID    string    `db:"seller_id"`
	Provider    string    `db:"provider"`
	ReferenceID string    `db:"reference_id"`
	Status      string    `db:"status"`
	Data        []byte    `db:"data"`
	Context     []byte    `db:"context"`
	Version     int       `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r accountRow) toAggregate() *aggregate.PayoutAccount {
	return aggregate.ReconstructPayoutAccount(
		r.ID, r.SellerID, r.Provider, r.ReferenceID, aggregate.AccountStatus(r.Status),
		json.RawMessage(r.Data), json.RawMessage(r.Context), r.Version, r.CreatedAt, r.UpdatedAt,
	)
}

type onboardingRow struct {
	ID        string    `db:"id"`
	AccountID string    `db:"account_id"`
	Data      []byte    `db:"data"`
	Context   []byte    `db:"context"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type payoutRow struct {
	ID                string          `db:"id"`
	AccountID         string          `db:"account_id"`
	OrderID           string          `db:"order_id"`
	Amount            decimal.Decimal `db:"amount"`
	CurrencyCode      string          `db:"currency_code"`
	Status            string          `db:"status"`
	Data              []byte          `db:"data"`
	ProviderReference string          `db:"provider_reference"`
	RequestKey        string          `db:"request_key"`
	FailureReason     string          `db:"failure_reason"`
	ReversedAmount    decimal.Decimal `db:"reversed_amount"`
	Version           int             `db:"version"`
	ProcessedAt       *time.Time      `db:"processed_at"`
	PaidAt            *time.Time      `db:"paid_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r payoutRow) toAggregate() *aggregate.Payout {
	return aggregate.ReconstructPayout(
		r.ID, r.AccountID, r.OrderID, r.Amount, r.CurrencyCode, aggregate.PayoutStatus(r.Status),
		json.RawMessage(r.Data), r.ProviderReference, r.RequestKey, r.FailureReason, r.ReversedAmount,
		r.Version, r.ProcessedAt, r.PaidAt, r.CreatedAt, r.UpdatedAt,
	)
}

type balanceRow struct {
	ID           string          `db:"id"`
	AccountID    string          `db:"account_id"`
	CurrencyCode string          `db:"currency_code"`
	Balance      decimal.Decimal `db:"balance"`
	RawBalance   decimal.Decimal `db:"raw_balance"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r balanceRow) toAggregate() *aggregate.PayoutBalance {
	return &aggregate.PayoutBalance{
		ID:           r.ID,
		AccountID:    r.AccountID,
		CurrencyCode: r.CurrencyCode,
		Balance:      r.Balance,
		RawBalance:   r.RawBalance,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type transactionRow struct {
	ID           string          `db:"id"`
	AccountID    string          `db:"account_id"`
	CurrencyCode string          `db:"currency_code"`
	Amount       decimal.Decimal `db:"amount"`
	RawAmount    decimal.Decimal `db:"raw_amount"`
	Reference    string          `db:"reference"`
	ReferenceID  string          `db:"reference_id"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r transactionRow) toAggregate() aggregate.PayoutTransaction {
	return aggregate.PayoutTransaction{
		ID:           r.ID,
		AccountID:    r.AccountID,
		CurrencyCode: r.CurrencyCode,
		Amount:       r.Amount,
		RawAmount:    r.RawAmount,
		Reference:    aggregate.TransactionReference(r.Reference),
		ReferenceID:  r.ReferenceID,
		CreatedAt:    r.CreatedAt,
	}
}
