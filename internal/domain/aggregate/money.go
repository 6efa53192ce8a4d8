package aggregate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyPrecision lists ISO 4217 currencies whose minor unit is not two digits.
var currencyPrecision = map[string]int32{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "isk": 0, "jpy": 0, "kmf": 0, "krw": 0,
	"pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0, "xof": 0, "xpf": 0,
	"bhd": 3, "iqd": 3, "jod": 3, "kwd": 3, "lyd": 3, "omr": 3, "tnd": 3,
}

// NormalizeCurrency lower-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidateCurrency checks that a code looks like an ISO 4217 alpha code.
func ValidateCurrency(code string) error {
	c := NormalizeCurrency(code)
	if len(c) != 3 {
		return fmt.Errorf("invalid currency code %q", code)
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("invalid currency code %q", code)
		}
	}
	return nil
}

// CurrencyPrecision returns the number of minor-unit digits of a currency.
func CurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[NormalizeCurrency(code)]; ok {
		return p
	}
	return 2
}

// RoundToCurrency rounds half-up (away from zero) at the currency's smallest unit.
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(CurrencyPrecision(code))
}

// AmountSet is a multi-currency price set used by flat, minimum and maximum commission amounts.
type AmountSet struct {
	ID      string
	Amounts map[string]decimal.Decimal
}

// NewAmountSet builds a set keyed by normalized currency.
func NewAmountSet(id string, amounts map[string]decimal.Decimal) (*AmountSet, error) {
	if id == "" {
		return nil, fmt.Errorf("amount set ID cannot be empty")
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("amount set %s must contain at least one currency", id)
	}
	normalized := make(map[string]decimal.Decimal, len(amounts))
	for code, amount := range amounts {
		if err := ValidateCurrency(code); err != nil {
			return nil, err
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("amount set %s has a negative amount for %s", id, code)
		}
		normalized[NormalizeCurrency(code)] = amount
	}
	return &AmountSet{ID: id, Amounts: normalized}, nil
}

// AmountFor returns the amount in the given currency. No conversion is attempted.
func (s *AmountSet) AmountFor(code string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	amount, ok := s.Amounts[NormalizeCurrency(code)]
	return amount, ok
}
