package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateType is the way a commission rate turns a base amount into a commission
type RateType string

const (
	RateTypeFlat       RateType = "flat"
	RateTypePercentage RateType = "percentage"
)

var hundred = decimal.NewFromInt(100)

// CommissionRate is an immutable rate definition. Changing a rate means creating a new one.
type CommissionRate struct {
	id             string
	rateType       RateType
	percentageRate *decimal.Decimal
	includeTax     bool
	flatAmount     *AmountSet
	minAmount      *AmountSet
	maxAmount      *AmountSet
	createdAt      time.Time
}

// CommissionRateSpec carries the fields needed to build a rate
type CommissionRateSpec struct {
	ID             string
	Type           RateType
	PercentageRate *decimal.Decimal
	IncludeTax     bool
	FlatAmount     *AmountSet
	MinAmount      *AmountSet
	MaxAmount      *AmountSet
}

// NewCommissionRate validates a rate definition
func NewCommissionRate(spec CommissionRateSpec) (*CommissionRate, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: rate ID cannot be empty", ErrInvalidRate)
	}

	switch spec.Type {
	case RateTypePercentage:
		if spec.PercentageRate == nil {
			return nil, fmt.Errorf("%w: percentage rate is required", ErrInvalidRate)
		}
		if spec.PercentageRate.IsNegative() || spec.PercentageRate.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: percentage rate must be between 0 and 100", ErrInvalidRate)
		}
		if spec.FlatAmount != nil {
			return nil, fmt.Errorf("%w: percentage rate cannot carry a flat amount", ErrInvalidRate)
		}
	case RateTypeFlat:
		if spec.FlatAmount == nil {
			return nil, fmt.Errorf("%w: flat rate requires a flat amount set", ErrInvalidRate)
		}
		if spec.PercentageRate != nil {
			return nil, fmt.Errorf("%w: flat rate cannot carry a percentage", ErrInvalidRate)
		}
	default:
		return nil, fmt.Errorf("%w: unknown rate type %q", ErrInvalidRate, spec.Type)
	}

	if spec.MinAmount != nil && spec.MaxAmount != nil {
		for code, min := range spec.MinAmount.Amounts {
			if max, ok := spec.MaxAmount.AmountFor(code); ok && min.GreaterThan(max) {
				return nil, fmt.Errorf("%w: minimum %s exceeds maximum %s for %s", ErrInvalidRate, min, max, code)
			}
		}
	}

	return &CommissionRate{
		id:             spec.ID,
		rateType:       spec.Type,
		percentageRate: spec.PercentageRate,
		includeTax:     spec.IncludeTax,
		flatAmount:     spec.FlatAmount,
		minAmount:      spec.MinAmount,
		maxAmount:      spec.MaxAmount,
		createdAt:      time.Now().UTC(),
	}, nil
}

// ReconstructCommissionRate rebuilds a rate from storage
func ReconstructCommissionRate(spec CommissionRateSpec, createdAt time.Time) *CommissionRate {
	return &CommissionRate{
		id:             spec.ID,
		rateType:       spec.Type,
		percentageRate: spec.PercentageRate,
		includeTax:     spec.IncludeTax,
		flatAmount:     spec.FlatAmount,
		minAmount:      spec.MinAmount,
		maxAmount:      spec.MaxAmount,
		createdAt:      createdAt,
	}
}

// Calculate applies the rate to a line and returns the commission in the line currency, both
// rounded to the currency's minor unit and at full precision.
// Order of operations: raw amount, minimum clamp, maximum clamp, rounding.
func (r *CommissionRate) Calculate(base CommissionBase) (value, raw decimal.Decimal, err error) {
	currency := NormalizeCurrency(base.CurrencyCode)

	gross, net := base.Totals()
	amount := net
	if r.includeTax {
		amount = gross
	}
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}

	switch r.rateType {
	case RateTypePercentage:
		raw = amount.Mul(*r.percentageRate).Div(hundred)
	case RateTypeFlat:
		flat, ok := r.flatAmount.AmountFor(currency)
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: flat rate %s has no amount in %s", ErrCurrencyMismatch, r.id, currency)
		}
		raw = flat
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: unknown rate type %q", ErrInvalidRate, r.rateType)
	}

	if min, ok := r.minAmount.AmountFor(currency); ok && raw.LessThan(min) {
		raw = min
	}
	if max, ok := r.maxAmount.AmountFor(currency); ok && raw.GreaterThan(max) {
		raw = max
	}
	return RoundToCurrency(raw, currency), raw, nil
}

// Getters
func (r *CommissionRate) ID() string                        { return r.id }
func (r *CommissionRate) Type() RateType                    { return r.rateType }
func (r *CommissionRate) PercentageRate() *decimal.Decimal { return r.percentageRate }
func (r *CommissionRate) IncludeTax() bool                  { return r.includeTax }
func (r *CommissionRate) FlatAmount() *AmountSet            { return r.flatAmount }
func (r *CommissionRate) MinAmount() *AmountSet             { return r.minAmount }
func (r *CommissionRate) MaxAmount() *AmountSet             { return r.maxAmount }
func (r *CommissionRate) CreatedAt() time.Time              { return r.createdAt }

// Spec returns the rate definition, used by repositories and for version comparison
func (r *CommissionRate) Spec() CommissionRateSpec {
	return CommissionRateSpec{
		ID:             r.id,
		Type:           r.rateType,
		PercentageRate: r.percentageRate,
		IncludeTax:     r.includeTax,
		FlatAmount:     r.flatAmount,
		MinAmount:      r.minAmount,
		MaxAmount:      r.maxAmount,
	}
}

// SameTerms reports whether two rates compute identical commissions, ignoring ids.
func (r *CommissionRate) SameTerms(other *CommissionRate) bool {
	if other == nil || r.rateType != other.rateType || r.includeTax != other.includeTax {
		return false
	}
	if (r.percentageRate == nil) != (other.percentageRate == nil) {
		return false
	}
	if r.percentageRate != nil && !r.percentageRate.Equal(*other.percentageRate) {
		return false
	}
	return sameAmounts(r.flatAmount, other.flatAmount) &&
		sameAmounts(r.minAmount, other.minAmount) &&
		sameAmounts(r.maxAmount, other.maxAmount)
}

func sameAmounts(a, b *AmountSet) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a.Amounts) != len(b.Amounts) {
		return false
	}
	for code, amount := range a.Amounts {
		other, ok := b.Amounts[code]
		if !ok || !amount.Equal(other) {
			return false
		}
	}
	return true
}
