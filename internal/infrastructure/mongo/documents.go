package mongo

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-settlement/internal/domain/aggregate"
)

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// more than 34 significant digits
		v, _ = primitive.ParseDecimal128(d.Round(18).String())
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

type amountSetDocument struct {
	ID      string                          `bson:"id"`
	Amounts map[string]primitive.Decimal128 `bson:"amounts"`
}

func newAmountSetDocument(s *aggregate.AmountSet) *amountSetDocument {
	if s == nil {
		return nil
	}
	doc := &amountSetDocument{ID: s.ID, Amounts: make(map[string]primitive.Decimal128, len(s.Amounts))}
	for code, amount := range s.Amounts {
		doc.Amounts[code] = toDecimal128(amount)
	}
	return doc
}

func (d *amountSetDocument) toAggregate() *aggregate.AmountSet {
	if d == nil {
		return nil
	}
	s := &aggregate.AmountSet{ID: d.ID, Amounts: make(map[string]decimal.Decimal, len(d.Amounts))}
	for code, amount := range d.Amounts {
		s.Amounts[code] = fromDecimal128(amount)
	}
	return s
}

type rateDocument struct {
	ID             string                `bson:"_id"`
	Type           string                `bson:"type"`
	PercentageRate *primitive.Decimal128 `bson:"percentage_rate,omitempty"`
	IncludeTax     bool                  `bson:"include_tax"`
	FlatAmount     *amountSetDocument    `bson:"flat_amount,omitempty"`
	MinAmount      *amountSetDocument    `bson:"min_amount,omitempty"`
	MaxAmount      *amountSetDocument    `bson:"max_amount,omitempty"`
	CreatedAt      time.Time             `bson:"created_at"`
}

func newRateDocument(r *aggregate.CommissionRate) rateDocument {
	doc := rateDocument{
		ID:         r.ID(),
		Type:       string(r.Type()),
		IncludeTax: r.IncludeTax(),
		FlatAmount: newAmountSetDocument(r.FlatAmount()),
		MinAmount:  newAmountSetDocument(r.MinAmount()),
		MaxAmount:  newAmountSetDocument(r.MaxAmount()),
		CreatedAt:  r.CreatedAt(),
	}
	if p := r.PercentageRate(); p != nil {
		v := toDecimal128(*p)
		doc.PercentageRate = &v
	}
	return doc
}

func (d rateDocument) toAggregate() *aggregate.CommissionRate {
	spec := aggregate.CommissionRateSpec{
		ID:         d.ID,
		Type:       aggregate.RateType(d.Type),
		IncludeTax: d.IncludeTax,
		FlatAmount: d.FlatAmount.toAggregate(),
		MinAmount:  d.MinAmount.toAggregate(),
		MaxAmount:  d.MaxAmount.toAggregate(),
	}
	if d.PercentageRate != nil {
		p := fromDecimal128(*d.PercentageRate)
		spec.PercentageRate = &p
	}
	return aggregate.ReconstructCommissionRate(spec, d.CreatedAt)
}

type ruleDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Reference   string    `bson:"reference"`
	ReferenceID string    `bson:"reference_id"`
	IsActive    bool      `bson:"is_active"`
	RateID      string    `bson:"rate_id"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func newRuleDocument(r *aggregate.CommissionRule) ruleDocument {
	return ruleDocument{
		ID:          r.ID(),
		Name:        r.Name(),
		Reference:   string(r.Reference()),
		ReferenceID: r.ReferenceID(),
		IsActive:    r.IsActive(),
		RateID:      r.Rate().ID(),
		CreatedAt:   r.CreatedAt(),
		UpdatedAt:   r.UpdatedAt(),
	}
}

func (d ruleDocument) toAggregate(rate *aggregate.CommissionRate) *aggregate.CommissionRule {
	return aggregate.ReconstructCommissionRule(
		d.ID, d.Name, aggregate.RuleReference(d.Reference), d.ReferenceID, d.IsActive, rate, d.CreatedAt, d.UpdatedAt,
	)
}

type lineDocument struct {
	ID           string               `bson:"_id"`
	OrderID      string               `bson:"order_id"`
	ItemLineID   string               `bson:"item_line_id"`
	SellerID     string               `bson:"seller_id"`
	RuleID       string               `bson:"rule_id"`
	CurrencyCode string               `bson:"currency_code"`
	Value        primitive.Decimal128 `bson:"value"`
	RawValue     primitive.Decimal128 `bson:"raw_value"`
	GrossAmount  primitive.Decimal128 `bson:"gross_amount"`
	Deleted      bool                 `bson:"deleted"`
	Version      int                  `bson:"version"`
	CreatedAt    time.Time            `bson:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at"`
	DeletedAt    *time.Time           `bson:"deleted_at,omitempty"`
}

func newLineDocument(l *aggregate.CommissionLine) lineDocument {
	return lineDocument{
		ID:           l.ID(),
		OrderID:      l.OrderID(),
		ItemLineID:   l.ItemLineID(),
		SellerID:     l.SellerID(),
		RuleID:       l.RuleID(),
		CurrencyCode: l.CurrencyCode(),
		Value:        toDecimal128(l.Value()),
		RawValue:     toDecimal128(l.RawValue()),
		GrossAmount:  toDecimal128(l.GrossAmount()),
		Deleted:      l.IsDeleted(),
		Version:      l.Version(),
		CreatedAt:    l.CreatedAt(),
		UpdatedAt:    l.UpdatedAt(),
		DeletedAt:    l.DeletedAt(),
	}
}

func (d lineDocument) toAggregate() *aggregate.CommissionLine {
	return aggregate.ReconstructCommissionLine(
		d.ID, d.OrderID, d.ItemLineID, d.SellerID, d.RuleID, d.CurrencyCode,
		fromDecimal128(d.Value), fromDecimal128(d.RawValue), fromDecimal128(d.GrossAmount),
		d.Version, d.CreatedAt, d.UpdatedAt, d.DeletedAt,
	)
}

type accountDocument struct {
	ID          string    `bson:"_id"`
	SellerID    string    `bson:"seller_id"`
	Provider    string    `bson:"provider"`
	ReferenceID string    `bson:"reference_id,omitempty"`
	Status      string    `bson:"status"`
	Data        string    `bson:"data,omitempty"`
	Context     string    `bson:"context,omitempty"`
	Version     int       `bson:"version"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func newAccountDocument(a *aggregate.PayoutAccount) accountDocument {
	return accountDocument{
		ID:          a.ID(),
		SellerID:    a.SellerID(),
		Provider:    a.Provider(),
		ReferenceID: a.ReferenceID(),
		Status:      string(a.Status()),
		Data:        string(a.Data()),
		Context:     string(a.Context()),
		Version:     a.Version(),
		CreatedAt:   a.CreatedAt(),
		UpdatedAt:   a.UpdatedAt(),
	}
}

func (d accountDocument) toAggregate() *aggregate.PayoutAccount {
	return aggregate.ReconstructPayoutAccount(
		d.ID, d.SellerID, d.Provider, d.ReferenceID, aggregate.AccountStatus(d.Status),
		rawJSON(d.Data), rawJSON(d.Context), d.Version, d.CreatedAt, d.UpdatedAt,
	)
}

type onboardingDocument struct {
	ID        string    `bson:"_id"`
	AccountID string    `bson:"account_id"`
	Data      string    `bson:"data,omitempty"`
	Context   string    `bson:"context,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d onboardingDocument) toAggregate() *aggregate.Onboarding {
	return aggregate.ReconstructOnboarding(d.ID, d.AccountID, rawJSON(d.Data), rawJSON(d.Context), d.CreatedAt, d.UpdatedAt)
}

type payoutDocument struct {
	ID                string               `bson:"_id"`
	AccountID         string               `bson:"account_id"`
	OrderID           string               `bson:"order_id,omitempty"`
	Amount            primitive.Decimal128 `bson:"amount"`
	CurrencyCode      string               `bson:"currency_code"`
	Status            string               `bson:"status"`
	Data              string               `bson:"data,omitempty"`
	ProviderReference string               `bson:"provider_reference,omitempty"`
	RequestKey        string               `bson:"request_key,omitempty"`
	FailureReason     string               `bson:"failure_reason,omitempty"`
	ReversedAmount    primitive.Decimal128 `bson:"reversed_amount"`
	Version           int                  `bson:"version"`
	ProcessedAt       *time.Time           `bson:"processed_at,omitempty"`
	PaidAt            *time.Time           `bson:"paid_at,omitempty"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

func newPayoutDocument(p *aggregate.Payout) payoutDocument {
	return payoutDocument{
		ID:                p.ID(),
		AccountID:         p.AccountID(),
		OrderID:           p.OrderID(),
		Amount:            toDecimal128(p.Amount()),
		CurrencyCode:      p.CurrencyCode(),
		Status:            string(p.Status()),
		Data:              string(p.Data()),
		ProviderReference: p.ProviderReference(),
		RequestKey:        p.RequestKey(),
		FailureReason:     p.FailureReason(),
		ReversedAmount:    toDecimal128(p.ReversedAmount()),
		Version:           p.Version(),
		ProcessedAt:       p.ProcessedAt(),
		PaidAt:            p.PaidAt(),
		CreatedAt:         p.CreatedAt(),
		UpdatedAt:         p.UpdatedAt(),
	}
}

func (d payoutDocument) toAggregate() *aggregate.Payout {
	return aggregate.ReconstructPayout(
		d.ID, d.AccountID, d.OrderID, fromDecimal128(d.Amount), d.CurrencyCode, aggregate.PayoutStatus(d.Status),
		rawJSON(d.Data), d.ProviderReference, d.RequestKey, d.FailureReason, fromDecimal128(d.ReversedAmount),
		d.Version, d.ProcessedAt, d.PaidAt, d.CreatedAt, d.UpdatedAt,
	)
}

type balanceDocument struct {
	ID           string               `bson:"_id"`
	AccountID    string               `bson:"account_id"`
	CurrencyCode string               `bson:"currency_code"`
	Balance      primitive.Decimal128 `bson:"balance"`
	RawBalance   primitive.Decimal128 `bson:"raw_balance"`
	CreatedAt    time.Time            `bson:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at"`
}

func (d balanceDocument) toAggregate() *aggregate.PayoutBalance {
	return &aggregate.PayoutBalance{
		ID:           d.ID,
		AccountID:    d.AccountID,
		CurrencyCode: d.CurrencyCode,
		Balance:      fromDecimal128(d.Balance),
		RawBalance:   fromDecimal128(d.RawBalance),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type transactionDocument struct {
	ID           string               `bson:"_id"`
	AccountID    string               `bson:"account_id"`
	CurrencyCode string               `bson:"currency_code"`
	Amount       primitive.Decimal128 `bson:"amount"`
	RawAmount    primitive.Decimal128 `bson:"raw_amount"`
	Reference    string               `bson:"reference"`
	ReferenceID  string               `bson:"reference_id"`
	CreatedAt    time.Time            `bson:"created_at"`
}

func newTransactionDocument(tx aggregate.PayoutTransaction) transactionDocument {
	return transactionDocument{
		ID:           tx.ID,
		AccountID:    tx.AccountID,
		CurrencyCode: tx.CurrencyCode,
		Amount:       toDecimal128(tx.Amount),
		RawAmount:    toDecimal128(tx.RawAmount),
		Reference:    string(tx.Reference),
		ReferenceID:  tx.ReferenceID,
		CreatedAt:    tx.CreatedAt,
	}
}

func (d transactionDocument) toAggregate() aggregate.PayoutTransaction {
	return aggregate.PayoutTransaction{
		ID:           d.ID,
		AccountID:    d.AccountID,
		CurrencyCode: d.CurrencyCode,
		Amount:       fromDecimal128(d.Amount),
		RawAmount:    fromDecimal128(d.RawAmount),
		Reference:    aggregate.TransactionReference(d.Reference),
		ReferenceID:  d.ReferenceID,
		CreatedAt:    d.CreatedAt,
	}
}
