package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/event"
)

// CommissionLine is the commission charged on one order item line. Lines are never edited;
// cancellation soft-deletes them.
type CommissionLine struct {
	id           string
	orderID      string
	itemLineID   string
	sellerID     string
	ruleID       string
	currencyCode string
	value        decimal.Decimal
	rawValue     decimal.Decimal
	grossAmount  decimal.Decimal
	version      int
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time

	uncommittedEvents []event.DomainEvent
}

// NewCommissionLine records a computed commission. ruleID is empty when no rule matched.
func NewCommissionLine(id, orderID, itemLineID, sellerID, ruleID, currencyCode string, value, rawValue, grossAmount decimal.Decimal) (*CommissionLine, error) {
	if id == "" {
		return nil, fmt.Errorf("commission line ID cannot be empty")
	}
	if itemLineID == "" {
		return nil, fmt.Errorf("item line ID cannot be empty")
	}
	if sellerID == "" {
		return nil, fmt.Errorf("seller ID cannot be empty")
	}
	if err := ValidateCurrency(currencyCode); err != nil {
		return nil, err
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("commission value cannot be negative")
	}

	now := time.Now().UTC()
	line := &CommissionLine{
		id:           id,
		orderID:      orderID,
		itemLineID:   itemLineID,
		sellerID:     sellerID,
		ruleID:       ruleID,
		currencyCode: NormalizeCurrency(currencyCode),
		value:        value,
		rawValue:     rawValue,
		grossAmount:  grossAmount,
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}
	line.uncommittedEvents = append(line.uncommittedEvents, &event.CommissionRecorded{
		CommissionLineID: id,
		OrderID:          orderID,
		ItemLineID:       itemLineID,
		SellerID:         sellerID,
		RuleID:           ruleID,
		CurrencyCode:     line.currencyCode,
		Value:            value,
		Timestamp:        now,
	})
	return line, nil
}

// ReconstructCommissionLine rebuilds a line from storage
func ReconstructCommissionLine(
	id, orderID, itemLineID, sellerID, ruleID, currencyCode string,
	value, rawValue, grossAmount decimal.Decimal,
	version int,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *CommissionLine {
	return &CommissionLine{
		id:           id,
		orderID:      orderID,
		itemLineID:   itemLineID,
		sellerID:     sellerID,
		ruleID:       ruleID,
		currencyCode: currencyCode,
		value:        value,
		rawValue:     rawValue,
		grossAmount:  grossAmount,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		deletedAt:    deletedAt,
	}
}

// SoftDelete marks the line reversed. It reports false when the line was already deleted.
func (l *CommissionLine) SoftDelete() bool {
	if l.deletedAt != nil {
		return false
	}
	now := time.Now().UTC()
	l.deletedAt = &now
	l.updatedAt = now
	l.version++
	l.uncommittedEvents = append(l.uncommittedEvents, &event.CommissionReversed{
		CommissionLineID: l.id,
		OrderID:          l.orderID,
		ItemLineID:       l.itemLineID,
		CurrencyCode:     l.currencyCode,
		Value:            l.value,
		EventVersion:     l.version,
		Timestamp:        now,
	})
	return true
}

// Getters
func (l *CommissionLine) ID() string                   { return l.id }
func (l *CommissionLine) OrderID() string              { return l.orderID }
func (l *CommissionLine) ItemLineID() string           { return l.itemLineID }
func (l *CommissionLine) SellerID() string             { return l.sellerID }
func (l *CommissionLine) RuleID() string               { return l.ruleID }
func (l *CommissionLine) CurrencyCode() string         { return l.currencyCode }
func (l *CommissionLine) Value() decimal.Decimal       { return l.value }
func (l *CommissionLine) RawValue() decimal.Decimal    { return l.rawValue }
func (l *CommissionLine) GrossAmount() decimal.Decimal { return l.grossAmount }
func (l *CommissionLine) Version() int                 { return l.version }
func (l *CommissionLine) CreatedAt() time.Time         { return l.createdAt }
func (l *CommissionLine) UpdatedAt() time.Time         { return l.updatedAt }
func (l *CommissionLine) DeletedAt() *time.Time        { return l.deletedAt }
func (l *CommissionLine) IsDeleted() bool              { return l.deletedAt != nil }

// GetUncommittedEvents returns uncommitted events
func (l *CommissionLine) GetUncommittedEvents() []event.DomainEvent { return l.uncommittedEvents }

// MarkEventsAsCommitted clears uncommitted events
func (l *CommissionLine) MarkEventsAsCommitted() { l.uncommittedEvents = nil }
