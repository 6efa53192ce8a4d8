package aggregate

import "github.com/shopspring/decimal"

// TaxLine is one tax applied to an order item line. Amount wins over Rate when present.
type TaxLine struct {
	Code   string
	Rate   decimal.Decimal
	Amount *decimal.Decimal
}

// CommissionBase is the monetary shape of an order item line
type CommissionBase struct {
	CurrencyCode  string
	Quantity      int64
	UnitPrice     decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxLines      []TaxLine
	TaxInclusive  bool
}

// Subtotal is quantity times unit price less discounts, in whatever tax mode the price uses.
func (b CommissionBase) Subtotal() decimal.Decimal {
	qty := b.Quantity
	if qty <= 0 {
		qty = 1
	}
	return b.UnitPrice.Mul(decimal.NewFromInt(qty)).Sub(b.DiscountTotal)
}

// Totals returns the tax-inclusive and tax-exclusive totals of the line.
// Every tax line on the item is taken into account: explicit amounts are subtracted or added
// as-is, rate-only lines are combined into one compound-free rate.
func (b CommissionBase) Totals() (gross, net decimal.Decimal) {
	subtotal := b.Subtotal()

	explicit := decimal.Zero
	combinedRate := decimal.Zero
	for _, line := range b.TaxLines {
		if line.Amount != nil {
			explicit = explicit.Add(*line.Amount)
			continue
		}
		combinedRate = combinedRate.Add(line.Rate)
	}

	if b.TaxInclusive {
		gross = subtotal
		remaining := subtotal.Sub(explicit)
		if combinedRate.IsZero() {
			return gross, remaining
		}
		divisor := decimal.NewFromInt(1).Add(combinedRate.Div(hundred))
		return gross, remaining.Div(divisor)
	}

	net = subtotal
	gross = subtotal.Add(explicit).Add(subtotal.Mul(combinedRate).Div(hundred))
	return gross, net
}

// GrossTotal is what the customer paid for the line, rounded to the currency unit.
func (b CommissionBase) GrossTotal() decimal.Decimal {
	gross, _ := b.Totals()
	return RoundToCurrency(gross, b.CurrencyCode)
}
