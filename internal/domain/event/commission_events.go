package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRuleUpserted event - fired when an operator creates or replaces a rule
type CommissionRuleUpserted struct {
	RuleID      string    `json:"rule_id"`
	Name        string    `json:"name"`
	Reference   string    `json:"reference"`
	ReferenceID string    `json:"reference_id"`
	RateID      string    `json:"rate_id"`
	IsActive    bool      `json:"is_active"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *CommissionRuleUpserted) EventType() string     { return "CommissionRuleUpserted" }
func (e *CommissionRuleUpserted) AggregateID() string   { return e.RuleID }
func (e *CommissionRuleUpserted) OccurredAt() time.Time { return e.Timestamp }
func (e *CommissionRuleUpserted) Version() int          { return 1 }

// CommissionRecorded event - fired once per captured order item line
type CommissionRecorded struct {
	CommissionLineID string          `json:"commission_line_id"`
	OrderID          string          `json:"order_id"`
	ItemLineID       string          `json:"item_line_id"`
	SellerID         string          `json:"seller_id"`
	RuleID           string          `json:"rule_id"`
	CurrencyCode     string          `json:"currency_code"`
	Value            decimal.Decimal `json:"value"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (e *CommissionRecorded) EventType() string     { return "CommissionRecorded" }
func (e *CommissionRecorded) AggregateID() string   { return e.CommissionLineID }
func (e *CommissionRecorded) OccurredAt() time.Time { return e.Timestamp }
func (e *CommissionRecorded) Version() int          { return 1 }

// CommissionReversed event - fired when a line is soft-deleted on order cancellation
type CommissionReversed struct {
	CommissionLineID string          `json:"commission_line_id"`
	OrderID          string          `json:"order_id"`
	ItemLineID       string          `json:"item_line_id"`
	CurrencyCode     string          `json:"currency_code"`
	Value            decimal.Decimal `json:"value"`
	EventVersion     int             `json:"version"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (e *CommissionReversed) EventType() string     { return "CommissionReversed" }
func (e *CommissionReversed) AggregateID() string   { return e.CommissionLineID }
func (e *CommissionReversed) OccurredAt() time.Time { return e.Timestamp }
func (e *CommissionReversed) Version() int          { return e.EventVersion }
