package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRequested event - fired when a payout row is created against a balance
type PayoutRequested struct {
	PayoutID     string          `json:"payout_id"`
	AccountID    string          `json:"account_id"`
	OrderID      string          `json:"order_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *PayoutRequested) EventType() string     { return "PayoutRequested" }
func (e *PayoutRequested) AggregateID() string   { return e.PayoutID }
func (e *PayoutRequested) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutRequested) Version() int          { return 1 }

// PayoutProcessing event - fired when the provider accepted the payout (or the call timed out)
type PayoutProcessing struct {
	PayoutID          string    `json:"payout_id"`
	AccountID         string    `json:"account_id"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	EventVersion      int       `json:"version"`
	Timestamp         time.Time `json:"timestamp"`
}

func (e *PayoutProcessing) EventType() string     { return "PayoutProcessing" }
func (e *PayoutProcessing) AggregateID() string   { return e.PayoutID }
func (e *PayoutProcessing) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutProcessing) Version() int          { return e.EventVersion }

// PayoutPaid event - fired when the provider confirms funds arrived
type PayoutPaid struct {
	PayoutID     string          `json:"payout_id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	PaidAt       time.Time       `json:"paid_at"`
	EventVersion int             `json:"version"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *PayoutPaid) EventType() string     { return "PayoutPaid" }
func (e *PayoutPaid) AggregateID() string   { return e.PayoutID }
func (e *PayoutPaid) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutPaid) Version() int          { return e.EventVersion }

// PayoutFailed event
type PayoutFailed struct {
	PayoutID     string    `json:"payout_id"`
	AccountID    string    `json:"account_id"`
	Reason       string    `json:"reason"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *PayoutFailed) EventType() string     { return "PayoutFailed" }
func (e *PayoutFailed) AggregateID() string   { return e.PayoutID }
func (e *PayoutFailed) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutFailed) Version() int          { return e.EventVersion }

// PayoutCanceled event
type PayoutCanceled struct {
	PayoutID     string    `json:"payout_id"`
	AccountID    string    `json:"account_id"`
	Reason       string    `json:"reason"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *PayoutCanceled) EventType() string     { return "PayoutCanceled" }
func (e *PayoutCanceled) AggregateID() string   { return e.PayoutID }
func (e *PayoutCanceled) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutCanceled) Version() int          { return e.EventVersion }

// PayoutReversed event - fired for the cancellation path; LedgerOnly is set for paid payouts
type PayoutReversed struct {
	PayoutID     string          `json:"payout_id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	LedgerOnly   bool            `json:"ledger_only"`
	EventVersion int             `json:"version"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *PayoutReversed) EventType() string     { return "PayoutReversed" }
func (e *PayoutReversed) AggregateID() string   { return e.PayoutID }
func (e *PayoutReversed) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutReversed) Version() int          { return e.EventVersion }
