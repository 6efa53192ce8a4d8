package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionReference names the kind of entity that caused a balance movement
type TransactionReference string

const (
	ReferenceOrder              TransactionReference = "order"               // captured sale revenue, +
	ReferenceCommission         TransactionReference = "commission"          // marketplace commission, -
	ReferenceCommissionReversal TransactionReference = "commission_reversal" // commission returned on cancel, +
	ReferenceOrderCancellation  TransactionReference = "order_cancellation"  // sale revenue withdrawn on cancel, -
	ReferencePayout             TransactionReference = "payout"              // payout issuance, -
	ReferenceReversal           TransactionReference = "reversal"            // payout failure, cancel or reversal, +
)

// BalanceDelta is one signed movement of a seller balance. Positive means more is owed to the seller.
type BalanceDelta struct {
	AccountID    string
	CurrencyCode string
	Amount       decimal.Decimal
	// RawAmount keeps full precision; zero means the same as Amount.
	RawAmount   decimal.Decimal
	Reference   TransactionReference
	ReferenceID string
	// RequireFunds rejects the delta when the resulting balance would be negative.
	RequireFunds bool
}

// Validate checks the delta before it reaches storage
func (d BalanceDelta) Validate() error {
	if d.AccountID == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if err := ValidateCurrency(d.CurrencyCode); err != nil {
		return err
	}
	if d.Reference == "" || d.ReferenceID == "" {
		return fmt.Errorf("balance delta requires a reference and reference ID")
	}
	if d.Amount.IsZero() && d.RawAmount.IsZero() {
		return fmt.Errorf("balance delta cannot be zero")
	}
	return nil
}

// Raw returns the full-precision amount
func (d BalanceDelta) Raw() decimal.Decimal {
	if d.RawAmount.IsZero() {
		return d.Amount
	}
	return d.RawAmount
}

// Inverse returns the compensating delta
func (d BalanceDelta) Inverse(reference TransactionReference, referenceID string) BalanceDelta {
	return BalanceDelta{
		AccountID:    d.AccountID,
		CurrencyCode: d.CurrencyCode,
		Amount:       d.Amount.Neg(),
		RawAmount:    d.RawAmount.Neg(),
		Reference:    reference,
		ReferenceID:  referenceID,
	}
}

// PayoutTransaction is an append-only ledger entry
type PayoutTransaction struct {
	ID           string
	AccountID    string
	CurrencyCode string
	Amount       decimal.Decimal
	RawAmount    decimal.Decimal
	Reference    TransactionReference
	ReferenceID  string
	CreatedAt    time.Time
}

// NewPayoutTransaction builds the ledger entry for a delta
func NewPayoutTransaction(id string, d BalanceDelta, at time.Time) PayoutTransaction {
	return PayoutTransaction{
		ID:           id,
		AccountID:    d.AccountID,
		CurrencyCode: NormalizeCurrency(d.CurrencyCode),
		Amount:       d.Amount,
		RawAmount:    d.Raw(),
		Reference:    d.Reference,
		ReferenceID:  d.ReferenceID,
		CreatedAt:    at,
	}
}

// PayoutBalance is what is owed to a seller in one currency
type PayoutBalance struct {
	ID           string
	AccountID    string
	CurrencyCode string
	Balance      decimal.Decimal
	RawBalance   decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPayoutBalance creates an empty balance row
func NewPayoutBalance(id, accountID, currencyCode string, at time.Time) *PayoutBalance {
	return &PayoutBalance{
		ID:           id,
		AccountID:    accountID,
		CurrencyCode: NormalizeCurrency(currencyCode),
		Balance:      decimal.Zero,
		RawBalance:   decimal.Zero,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// Apply adds a delta in place. Guarded debits that would overdraw leave the balance untouched.
func (b *PayoutBalance) Apply(d BalanceDelta, at time.Time) error {
	next := b.Balance.Add(d.Amount)
	if d.RequireFunds && next.IsNegative() {
		return fmt.Errorf("%w: %s %s available, %s requested", ErrInsufficientFunds, b.Balance, b.CurrencyCode, d.Amount.Neg())
	}
	b.Balance = next
	b.RawBalance = b.RawBalance.Add(d.Raw())
	b.UpdatedAt = at
	return nil
}
