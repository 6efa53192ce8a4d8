package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutBalanceChanged event - fired after every applied delta
type PayoutBalanceChanged struct {
	AccountID     string          `json:"account_id"`
	CurrencyCode  string          `json:"currency_code"`
	TransactionID string          `json:"transaction_id"`
	Delta         decimal.Decimal `json:"delta"`
	Balance       decimal.Decimal `json:"balance"`
	Reference     string          `json:"reference"`
	ReferenceID   string          `json:"reference_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *PayoutBalanceChanged) EventType() string     { return "PayoutBalanceChanged" }
func (e *PayoutBalanceChanged) AggregateID() string   { return e.AccountID }
func (e *PayoutBalanceChanged) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutBalanceChanged) Version() int          { return 1 }
