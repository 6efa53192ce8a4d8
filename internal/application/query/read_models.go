package query

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

// BalanceReadModel is a seller balance in one currency
type BalanceReadModel struct {
	AccountID    string          `json:"account_id"`
	CurrencyCode string          `json:"currency_code"`
	Balance      decimal.Decimal `json:"balance"`
	RawBalance   decimal.Decimal `json:"raw_balance"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TransactionReadModel is one ledger entry
type TransactionReadModel struct {
	ID           string          `json:"id"`
	CurrencyCode string          `json:"currency_code"`
	Amount       decimal.Decimal `json:"amount"`
	RawAmount    decimal.Decimal `json:"raw_amount"`
	Reference    string          `json:"reference"`
	ReferenceID  string          `json:"reference_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PayoutReadModel is a payout as shown to sellers and operators
type PayoutReadModel struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	OrderID           string          `json:"order_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	ReversedAmount    decimal.Decimal `json:"reversed_amount"`
	CurrencyCode      string          `json:"currency_code"`
	Status            string          `json:"status"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AccountReadModel is a seller payout account
type AccountReadModel struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Provider    string          `json:"provider"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OnboardingReadModel is the latest onboarding artifact of an account
type OnboardingReadModel struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CommissionLineReadModel is one recorded commission
type CommissionLineReadModel struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	ItemLineID   string          `json:"item_line_id"`
	SellerID     string          `json:"seller_id"`
	RuleID       string          `json:"rule_id,omitempty"`
	CurrencyCode string          `json:"currency_code"`
	Value        decimal.Decimal `json:"value"`
	RawValue     decimal.Decimal `json:"raw_value"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// RateReadModel describes a commission rate
type RateReadModel struct {
	ID             string                     `json:"id"`
	Type           string                     `json:"type"`
	PercentageRate *decimal.Decimal           `json:"percentage_rate,omitempty"`
	IncludeTax     bool                       `json:"include_tax"`
	FlatAmount     map[string]decimal.Decimal `json:"flat_amount,omitempty"`
	MinAmount      map[string]decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount      map[string]decimal.Decimal `json:"max_amount,omitempty"`
}

// RuleReadModel is a commission rule with its current rate
type RuleReadModel struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Reference   string        `json:"reference"`
	ReferenceID string        `json:"reference_id,omitempty"`
	IsActive    bool          `json:"is_active"`
	Rate        RateReadModel `json:"rate"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ReconciliationReport compares a stored balance with the sum of its ledger
type ReconciliationReport struct {
	AccountID    string          `json:"account_id"`
	CurrencyCode string          `json:"currency_code"`
	Balance      decimal.Decimal `json:"balance"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
	RawBalance   decimal.Decimal `json:"raw_balance"`
	RawLedgerSum decimal.Decimal `json:"raw_ledger_sum"`
	Consistent   bool            `json:"consistent"`
}

func NewBalanceReadModel(b *aggregate.PayoutBalance) *BalanceReadModel {
	return &BalanceReadModel{
		AccountID:    b.AccountID,
		CurrencyCode: b.CurrencyCode,
		Balance:      b.Balance,
		RawBalance:   b.RawBalance,
		UpdatedAt:    b.UpdatedAt,
	}
}

func NewTransactionReadModel(tx aggregate.PayoutTransaction) *TransactionReadModel {
	return &TransactionReadModel{
		ID:           tx.ID,
		CurrencyCode: tx.CurrencyCode,
		Amount:       tx.Amount,
		RawAmount:    tx.RawAmount,
		Reference:    string(tx.Reference),
		ReferenceID:  tx.ReferenceID,
		CreatedAt:    tx.CreatedAt,
	}
}

func NewPayoutReadModel(p *aggregate.Payout) *PayoutReadModel {
	return &PayoutReadModel{
		ID:                p.ID(),
		AccountID:         p.AccountID(),
		OrderID:           p.OrderID(),
		Amount:            p.Amount(),
		ReversedAmount:    p.ReversedAmount(),
		CurrencyCode:      p.CurrencyCode(),
		Status:            string(p.Status()),
		ProviderReference: p.ProviderReference(),
		FailureReason:     p.FailureReason(),
		ProcessedAt:       p.ProcessedAt(),
		PaidAt:            p.PaidAt(),
		CreatedAt:         p.CreatedAt(),
		UpdatedAt:         p.UpdatedAt(),
	}
}

func NewAccountReadModel(a *aggregate.PayoutAccount) *AccountReadModel {
	return &AccountReadModel{
		ID:          a.ID(),
		SellerID:    a.SellerID(),
		Provider:    a.Provider(),
		ReferenceID: a.ReferenceID(),
		Status:      string(a.Status()),
		Data:        a.Data(),
		CreatedAt:   a.CreatedAt(),
		UpdatedAt:   a.UpdatedAt(),
	}
}

func NewOnboardingReadModel(o *aggregate.Onboarding) *OnboardingReadModel {
	return &OnboardingReadModel{ID: o.ID(), AccountID: o.AccountID(), Data: o.Data(), UpdatedAt: o.UpdatedAt()}
}

func NewCommissionLineReadModel(l *aggregate.CommissionLine) *CommissionLineReadModel {
	return &CommissionLineReadModel{
		ID:           l.ID(),
		OrderID:      l.OrderID(),
		ItemLineID:   l.ItemLineID(),
		SellerID:     l.SellerID(),
		RuleID:       l.RuleID(),
		CurrencyCode: l.CurrencyCode(),
		Value:        l.Value(),
		RawValue:     l.RawValue(),
		GrossAmount:  l.GrossAmount(),
		CreatedAt:    l.CreatedAt(),
		DeletedAt:    l.DeletedAt(),
	}
}

func NewRuleReadModel(r *aggregate.CommissionRule) *RuleReadModel {
	rate := r.Rate()
	return &RuleReadModel{
		ID:          r.ID(),
		Name:        r.Name(),
		Reference:   string(r.Reference()),
		ReferenceID: r.ReferenceID(),
		IsActive:    r.IsActive(),
		Rate: RateReadModel{
			ID:             rate.ID(),
			Type:           string(rate.Type()),
			PercentageRate: rate.PercentageRate(),
			IncludeTax:     rate.IncludeTax(),
			FlatAmount:     amounts(rate.FlatAmount()),
			MinAmount:      amounts(rate.MinAmount()),
			MaxAmount:      amounts(rate.MaxAmount()),
		},
		CreatedAt: r.CreatedAt(),
		UpdatedAt: r.UpdatedAt(),
	}
}

func amounts(set *aggregate.AmountSet) map[string]decimal.Decimal {
	if set == nil {
		return nil
	}
	return set.Amounts
}
