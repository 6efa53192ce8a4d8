package aggregate

import (
	stderrors "errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func amounts(t *testing.T, id string, kv ...string) *AmountSet {
	t.Helper()
	m := make(map[string]decimal.Decimal)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = dec(kv[i+1])
	}
	set, err := NewAmountSet(id, m)
	if err != nil {
		t.Fatalf("amount set: %v", err)
	}
	return set
}

func usdLine(unitPrice string) CommissionBase {
	return CommissionBase{CurrencyCode: "usd", Quantity: 1, UnitPrice: dec(unitPrice)}
}

func TestFlatRateWithinClamp(t *testing.T) {
	t.Parallel()

	rate, err := NewCommissionRate(CommissionRateSpec{
		ID:         "rate-flat",
		Type:       RateTypeFlat,
		FlatAmount: amounts(t, "flat", "USD", "2.00"),
		MinAmount:  amounts(t, "min", "USD", "1.00"),
		MaxAmount:  amounts(t, "max", "USD", "5.00"),
	})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	value, raw, err := rate.Calculate(usdLine("50.00"))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !value.Equal(dec("2")) || !raw.Equal(dec("2")) {
		t.Fatalf("expected 2.00, got %s (raw %s)", value, raw)
	}
}

func TestPercentageClampedToMax(t *testing.T) {
	t.Parallel()

	rate, err := NewCommissionRate(CommissionRateSpec{
		ID:             "rate-pct",
		Type:           RateTypePercentage,
		PercentageRate: pct("20"),
		MaxAmount:      amounts(t, "max", "USD", "1.00"),
	})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	value, _, err := rate.Calculate(usdLine("10.00"))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !value.Equal(dec("1")) {
		t.Fatalf("expected commission clamped to 1.00, got %s", value)
	}
}

func TestPercentageMatchesRoundedProduct(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	oneCent := dec("0.01")
	for i := 0; i < 500; i++ {
		base := decimal.New(rng.Int63n(1_000_000), -2)
		ratePct := decimal.New(rng.Int63n(10_000), -2)
		rate, err := NewCommissionRate(CommissionRateSpec{ID: "r", Type: RateTypePercentage, PercentageRate: &ratePct})
		if err != nil {
			t.Fatalf("rate %s: %v", ratePct, err)
		}

		value, _, err := rate.Calculate(CommissionBase{CurrencyCode: "usd", Quantity: 1, UnitPrice: base})
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		want := base.Mul(ratePct).Div(decimal.NewFromInt(100)).Round(2)
		if !base.IsPositive() {
			want = decimal.Zero
		}
		if value.Sub(want).Abs().GreaterThan(oneCent) {
			t.Fatalf("base %s at %s%%: got %s want %s", base, ratePct, value, want)
		}
	}
}

func TestClampHoldsForAnyRawValue(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		lo := decimal.New(rng.Int63n(500), -2)
		hi := lo.Add(decimal.New(rng.Int63n(500), -2))
		ratePct := decimal.New(rng.Int63n(10_000), -2)
		rate, err := NewCommissionRate(CommissionRateSpec{
			ID:             fmt.Sprintf("r-%d", i),
			Type:           RateTypePercentage,
			PercentageRate: &ratePct,
			MinAmount:      amounts(t, "min", "usd", lo.String()),
			MaxAmount:      amounts(t, "max", "usd", hi.String()),
		})
		if err != nil {
			t.Fatalf("rate: %v", err)
		}

		value, _, err := rate.Calculate(usdLine(decimal.New(1+rng.Int63n(100_000), -2).String()))
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if value.LessThan(lo) || value.GreaterThan(hi) {
			t.Fatalf("commission %s escaped clamp [%s, %s]", value, lo, hi)
		}
	}
}

func TestRoundingFollowsCurrencyPrecision(t *testing.T) {
	t.Parallel()

	rate, err := NewCommissionRate(CommissionRateSpec{ID: "r", Type: RateTypePercentage, PercentageRate: pct("12.5")})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	cases := []struct {
		currency string
		price    string
		want     string
	}{
		{"usd", "0.20", "0.03"},  // 0.025 rounds half up
		{"jpy", "1004", "126"},   // 125.5 rounds half up, no minor unit
		{"kwd", "1.001", "0.125"}, // three digit currency
	}
	for _, tc := range cases {
		value, _, err := rate.Calculate(CommissionBase{CurrencyCode: tc.currency, Quantity: 1, UnitPrice: dec(tc.price)})
		if err != nil {
			t.Fatalf("%s: %v", tc.currency, err)
		}
		if !value.Equal(dec(tc.want)) {
			t.Fatalf("%s: got %s want %s", tc.currency, value, tc.want)
		}
	}
}

func TestFlatRateWithoutLineCurrency(t *testing.T) {
	t.Parallel()

	rate, err := NewCommissionRate(CommissionRateSpec{ID: "r", Type: RateTypeFlat, FlatAmount: amounts(t, "flat", "EUR", "1")})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if _, _, err := rate.Calculate(usdLine("10")); !stderrors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestRateValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		spec CommissionRateSpec
	}{
		{"missing id", CommissionRateSpec{Type: RateTypePercentage, PercentageRate: pct("5")}},
		{"percentage without rate", CommissionRateSpec{ID: "r", Type: RateTypePercentage}},
		{"percentage over 100", CommissionRateSpec{ID: "r", Type: RateTypePercentage, PercentageRate: pct("100.01")}},
		{"negative percentage", CommissionRateSpec{ID: "r", Type: RateTypePercentage, PercentageRate: pct("-1")}},
		{"flat without amounts", CommissionRateSpec{ID: "r", Type: RateTypeFlat}},
		{"unknown type", CommissionRateSpec{ID: "r", Type: "tiered"}},
	}
	for _, tc := range cases {
		if _, err := NewCommissionRate(tc.spec); !stderrors.Is(err, ErrInvalidRate) {
			t.Fatalf("%s: expected ErrInvalidRate, got %v", tc.name, err)
		}
	}

	_, err := NewCommissionRate(CommissionRateSpec{
		ID: "r", Type: RateTypePercentage, PercentageRate: pct("5"),
		MinAmount: amounts(t, "min", "usd", "10"),
		MaxAmount: amounts(t, "max", "usd", "5"),
	})
	if !stderrors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected min above max to be rejected, got %v", err)
	}
}

func TestCommissionBaseTotals(t *testing.T) {
	t.Parallel()

	taxAmount := dec("3")
	cases := []struct {
		name      string
		base      CommissionBase
		wantGross string
		wantNet   string
	}{
		{
			name:      "exclusive with rate",
			base:      CommissionBase{Quantity: 2, UnitPrice: dec("50"), DiscountTotal: dec("10"), TaxLines: []TaxLine{{Code: "vat", Rate: dec("10")}}},
			wantGross: "99",
			wantNet:   "90",
		},
		{
			name:      "inclusive with rate",
			base:      CommissionBase{Quantity: 1, UnitPrice: dec("110"), TaxInclusive: true, TaxLines: []TaxLine{{Code: "vat", Rate: dec("10")}}},
			wantGross: "110",
			wantNet:   "100",
		},
		{
			name:      "explicit amount wins over rate",
			base:      CommissionBase{Quantity: 1, UnitPrice: dec("30"), TaxLines: []TaxLine{{Code: "gst", Rate: dec("50"), Amount: &taxAmount}}},
			wantGross: "33",
			wantNet:   "30",
		},
		{
			name:      "several rates combine",
			base:      CommissionBase{Quantity: 1, UnitPrice: dec("100"), TaxLines: []TaxLine{{Rate: dec("5")}, {Rate: dec("7")}}},
			wantGross: "112",
			wantNet:   "100",
		},
	}
	for _, tc := range cases {
		gross, net := tc.base.Totals()
		if !gross.Equal(dec(tc.wantGross)) || !net.Equal(dec(tc.wantNet)) {
			t.Fatalf("%s: got gross %s net %s", tc.name, gross, net)
		}
	}
}

func TestIncludeTaxSelectsGrossBase(t *testing.T) {
	t.Parallel()

	base := CommissionBase{CurrencyCode: "usd", Quantity: 1, UnitPrice: dec("100"), TaxLines: []TaxLine{{Rate: dec("20")}}}
	for _, tc := range []struct {
		includeTax bool
		want       string
	}{{false, "10"}, {true, "12"}} {
		rate, err := NewCommissionRate(CommissionRateSpec{ID: "r", Type: RateTypePercentage, PercentageRate: pct("10"), IncludeTax: tc.includeTax})
		if err != nil {
			t.Fatalf("rate: %v", err)
		}
		value, _, err := rate.Calculate(base)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if !value.Equal(dec(tc.want)) {
			t.Fatalf("include_tax=%v: got %s want %s", tc.includeTax, value, tc.want)
		}
	}
}

func TestSameTermsIgnoresID(t *testing.T) {
	t.Parallel()

	a, _ := NewCommissionRate(CommissionRateSpec{ID: "a", Type: RateTypePercentage, PercentageRate: pct("5.0")})
	b, _ := NewCommissionRate(CommissionRateSpec{ID: "b", Type: RateTypePercentage, PercentageRate: pct("5")})
	c, _ := NewCommissionRate(CommissionRateSpec{ID: "c", Type: RateTypePercentage, PercentageRate: pct("5"), IncludeTax: true})
	if !a.SameTerms(b) {
		t.Fatalf("expected equal terms")
	}
	if a.SameTerms(c) {
		t.Fatalf("include_tax must be part of the terms")
	}
}
