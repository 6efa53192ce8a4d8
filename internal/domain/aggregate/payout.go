package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/event"
)

// PayoutStatus represents the status of a payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"    // Created, balance debited, provider not called yet
	PayoutStatusProcessing PayoutStatus = "processing" // Provider accepted the payout or the call timed out
	PayoutStatusPaid       PayoutStatus = "paid"       // Provider confirmed funds moved
	PayoutStatusFailed     PayoutStatus = "failed"     // Provider refused, debit credited back
	PayoutStatusCanceled   PayoutStatus = "canceled"   // Withdrawn before completion, debit credited back
)

// ParsePayoutStatus converts a stored string into a PayoutStatus
func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch PayoutStatus(s) {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusPaid, PayoutStatusFailed, PayoutStatusCanceled:
		return PayoutStatus(s), nil
	}
	return "", fmt.Errorf("unknown payout status %q", s)
}

// IsTerminal reports whether no further transition is possible
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusFailed || s == PayoutStatusCanceled
}

// Payout represents money owed to a seller being moved out through the provider
type Payout struct {
	id                string
	accountID         string
	orderID           string
	amount            decimal.Decimal
	currencyCode      string
	status            PayoutStatus
	data              json.RawMessage
	providerReference string
	requestKey        string
	failureReason     string
	reversedAmount    decimal.Decimal
	version           int
	processedAt       *time.Time
	paidAt            *time.Time
	createdAt         time.Time
	updatedAt         time.Time

	uncommittedEvents []event.DomainEvent
}

// NewPayout creates a pending payout
func NewPayout(payoutID, accountID, orderID, currencyCode string, amount decimal.Decimal, requestKey string) (*Payout, error) {
	if payoutID == "" {
		return nil, fmt.Errorf("payout ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if err := ValidateCurrency(currencyCode); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive")
	}
	if !RoundToCurrency(amount, currencyCode).Equal(amount) {
		return nil, fmt.Errorf("payout amount %s has more precision than %s allows", amount, NormalizeCurrency(currencyCode))
	}

	now := time.Now().UTC()
	payout := &Payout{
		id:           payoutID,
		accountID:    accountID,
		orderID:      orderID,
		amount:       amount,
		currencyCode: NormalizeCurrency(currencyCode),
		status:       PayoutStatusPending,
		requestKey:   requestKey,
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}

	payout.raiseEvent(&event.PayoutRequested{
		PayoutID:     payoutID,
		AccountID:    accountID,
		OrderID:      orderID,
		Amount:       amount,
		CurrencyCode: payout.currencyCode,
		Timestamp:    now,
	})

	return payout, nil
}

// ReconstructPayout reconstructs a payout from database state
func ReconstructPayout(
	id, accountID, orderID string,
	amount decimal.Decimal,
	currencyCode string,
	status PayoutStatus,
	data json.RawMessage,
	providerReference, requestKey, failureReason string,
	reversedAmount decimal.Decimal,
	version int,
	processedAt, paidAt *time.Time,
	createdAt, updatedAt time.Time,
) *Payout {
	return &Payout{
		id:                id,
		accountID:         accountID,
		orderID:           orderID,
		amount:            amount,
		currencyCode:      currencyCode,
		status:            status,
		data:              data,
		providerReference: providerReference,
		requestKey:        requestKey,
		failureReason:     failureReason,
		reversedAmount:    reversedAmount,
		version:           version,
		processedAt:       processedAt,
		paidAt:            paidAt,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// ProviderIdempotencyKey is derived from the payout id so any retry reuses it
func (p *Payout) ProviderIdempotencyKey() string {
	return "payout_" + p.id
}

// MarkAsProcessing records provider acceptance. An empty reference means the outcome is unknown
// (the call timed out) and a webhook or poll will settle it.
func (p *Payout) MarkAsProcessing(providerReference string, data json.RawMessage) error {
	if p.status != PayoutStatusPending {
		return fmt.Errorf("%w: only pending payouts can be processed (current status: %s)", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PayoutStatusProcessing
	p.processedAt = &now
	p.providerReference = providerReference
	if len(data) > 0 {
		p.data = data
	}
	p.version++
	p.updatedAt = now

	p.raiseEvent(&event.PayoutProcessing{
		PayoutID:          p.id,
		AccountID:         p.accountID,
		ProviderReference: providerReference,
		EventVersion:      p.version,
		Timestamp:         now,
	})

	return nil
}

// MarkAsPaid marks payout as paid (from webhook or poll)
func (p *Payout) MarkAsPaid() error {
	if p.status != PayoutStatusProcessing {
		return fmt.Errorf("%w: only processing payouts can be paid (current status: %s)", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PayoutStatusPaid
	p.paidAt = &now
	p.version++
	p.updatedAt = now

	p.raiseEvent(&event.PayoutPaid{
		PayoutID:     p.id,
		AccountID:    p.accountID,
		Amount:       p.amount,
		CurrencyCode: p.currencyCode,
		PaidAt:       now,
		EventVersion: p.version,
		Timestamp:    now,
	})

	return nil
}

// MarkAsFailed marks payout as failed (provider error, webhook or poll)
func (p *Payout) MarkAsFailed(reason string) error {
	if p.status != PayoutStatusProcessing && p.status != PayoutStatusPending {
		return fmt.Errorf("%w: only processing or pending payouts can be failed (current status: %s)", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PayoutStatusFailed
	p.failureReason = reason
	p.version++
	p.updatedAt = now

	p.raiseEvent(&event.PayoutFailed{
		PayoutID:     p.id,
		AccountID:    p.accountID,
		Reason:       reason,
		EventVersion: p.version,
		Timestamp:    now,
	})

	return nil
}

// Cancel withdraws a payout that has not completed
func (p *Payout) Cancel(reason string) error {
	if p.status != PayoutStatusProcessing && p.status != PayoutStatusPending {
		return fmt.Errorf("%w: only processing or pending payouts can be canceled (current status: %s)", ErrInvalidTransition, p.status)
	}

	now := time.Now().UTC()
	p.status = PayoutStatusCanceled
	p.failureReason = reason
	p.version++
	p.updatedAt = now

	p.raiseEvent(&event.PayoutCanceled{
		PayoutID:     p.id,
		AccountID:    p.accountID,
		Reason:       reason,
		EventVersion: p.version,
		Timestamp:    now,
	})

	return nil
}

// RecordReversal books a reversal credit against this payout. Paid payouts only get a ledger entry.
func (p *Payout) RecordReversal(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("reversal amount must be positive")
	}
	if p.reversedAmount.Add(amount).GreaterThan(p.amount) {
		return fmt.Errorf("reversal of %s exceeds remaining payout amount %s", amount, p.amount.Sub(p.reversedAmount))
	}

	now := time.Now().UTC()
	p.reversedAmount = p.reversedAmount.Add(amount)
	p.version++
	p.updatedAt = now

	p.raiseEvent(&event.PayoutReversed{
		PayoutID:     p.id,
		AccountID:    p.accountID,
		Amount:       amount,
		CurrencyCode: p.currencyCode,
		LedgerOnly:   p.status == PayoutStatusPaid,
		EventVersion: p.version,
		Timestamp:    now,
	})

	return nil
}

// AttachProviderReference fills the reference of a payout whose provider call timed out
func (p *Payout) AttachProviderReference(reference string) bool {
	if reference == "" || p.providerReference != "" {
		return false
	}
	p.providerReference = reference
	p.updatedAt = time.Now().UTC()
	return true
}

// ReplaceData stores the latest provider payload
func (p *Payout) ReplaceData(data json.RawMessage) {
	if len(data) == 0 {
		return
	}
	p.data = data
	p.updatedAt = time.Now().UTC()
}

// Getters
func (p *Payout) ID() string                      { return p.id }
func (p *Payout) AccountID() string               { return p.accountID }
func (p *Payout) OrderID() string                 { return p.orderID }
func (p *Payout) Amount() decimal.Decimal         { return p.amount }
func (p *Payout) CurrencyCode() string            { return p.currencyCode }
func (p *Payout) Status() PayoutStatus            { return p.status }
func (p *Payout) Data() json.RawMessage           { return p.data }
func (p *Payout) ProviderReference() string       { return p.providerReference }
func (p *Payout) RequestKey() string              { return p.requestKey }
func (p *Payout) FailureReason() string           { return p.failureReason }
func (p *Payout) ReversedAmount() decimal.Decimal { return p.reversedAmount }
func (p *Payout) Version() int                    { return p.version }
func (p *Payout) ProcessedAt() *time.Time         { return p.processedAt }
func (p *Payout) PaidAt() *time.Time              { return p.paidAt }
func (p *Payout) CreatedAt() time.Time            { return p.createdAt }
func (p *Payout) UpdatedAt() time.Time            { return p.updatedAt }

// Event management
func (p *Payout) raiseEvent(evt event.DomainEvent) {
	p.uncommittedEvents = append(p.uncommittedEvents, evt)
}

// GetUncommittedEvents returns uncommitted events
func (p *Payout) GetUncommittedEvents() []event.DomainEvent {
	return p.uncommittedEvents
}

// MarkEventsAsCommitted clears uncommitted events
func (p *Payout) MarkEventsAsCommitted() {
	p.uncommittedEvents = nil
}
