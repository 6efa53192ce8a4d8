package aggregate

import (
	stderrors "errors"
	"testing"

	"github.com/shopspring/decimal"
)

func percentRate(t *testing.T, id, value string) *CommissionRate {
	t.Helper()
	rate, err := NewCommissionRate(CommissionRateSpec{ID: id, Type: RateTypePercentage, PercentageRate: pct(value)})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	return rate
}

func TestNewCommissionRuleReferenceIDs(t *testing.T) {
	t.Parallel()

	rate := percentRate(t, "r", "5")
	if _, err := NewCommissionRule("g", "global", RuleReferenceGlobal, "x", true, rate); err == nil {
		t.Fatalf("global rule with a reference ID accepted")
	}
	for _, ref := range []RuleReference{RuleReferenceProduct, RuleReferenceCategory, RuleReferenceSeller} {
		if _, err := NewCommissionRule("r", "rule", ref, "", true, rate); err == nil {
			t.Fatalf("%s rule without a reference ID accepted", ref)
		}
	}
	if _, err := NewCommissionRule("r", "rule", "brand", "b1", true, rate); err == nil {
		t.Fatalf("unknown reference accepted")
	}
	if _, err := NewCommissionRule("r", "rule", RuleReferenceSeller, "s1", true, nil); err == nil {
		t.Fatalf("rule without a rate accepted")
	}
}

func TestRuleMatches(t *testing.T) {
	t.Parallel()

	rate := percentRate(t, "r", "5")
	cases := []struct {
		reference   RuleReference
		referenceID string
		active      bool
		want        bool
	}{
		{RuleReferenceProduct, "prod-1", true, true},
		{RuleReferenceProduct, "prod-2", true, false},
		{RuleReferenceCategory, "cat-parent", true, true},
		{RuleReferenceCategory, "cat-other", true, false},
		{RuleReferenceSeller, "seller-1", true, true},
		{RuleReferenceSeller, "seller-1", false, false},
		{RuleReferenceGlobal, "", true, true},
		{RuleReferenceGlobal, "", false, false},
	}
	for _, tc := range cases {
		rule, err := NewCommissionRule("rule", "rule", tc.reference, tc.referenceID, tc.active, rate)
		if err != nil {
			t.Fatalf("rule: %v", err)
		}
		if got := rule.Matches("seller-1", "prod-1", []string{"cat-leaf", "cat-parent"}); got != tc.want {
			t.Fatalf("%s/%s active=%v: got %v", tc.reference, tc.referenceID, tc.active, got)
		}
	}
}

func TestRulePrecedence(t *testing.T) {
	t.Parallel()

	order := []RuleReference{RuleReferenceProduct, RuleReferenceCategory, RuleReferenceSeller, RuleReferenceGlobal}
	for i := 1; i < len(order); i++ {
		if order[i-1].Precedence() >= order[i].Precedence() {
			t.Fatalf("%s must outrank %s", order[i-1], order[i])
		}
	}
}

func TestReviseKeepsRatesImmutable(t *testing.T) {
	t.Parallel()

	rule, err := NewCommissionRule("rule", "seller default", RuleReferenceSeller, "seller-1", true, percentRate(t, "r1", "5"))
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if err := rule.Revise("renamed", true, percentRate(t, "r1", "7")); !stderrors.Is(err, ErrInvalidRate) {
		t.Fatalf("in-place rate change accepted: %v", err)
	}
	mustDo(t, rule.Revise("renamed", false, percentRate(t, "r1", "5")))
	mustDo(t, rule.Revise("renamed", false, percentRate(t, "r2", "7")))
	if rule.Rate().ID() != "r2" || rule.IsActive() || rule.Name() != "renamed" {
		t.Fatalf("revision not applied")
	}
}

func TestCommissionLineSoftDeleteOnce(t *testing.T) {
	t.Parallel()

	line, err := NewCommissionLine("cl-1", "order-1", "item-1", "seller-1", "rule", "usd", dec("1.50"), dec("1.5"), dec("15"))
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	line.MarkEventsAsCommitted()
	if !line.SoftDelete() {
		t.Fatalf("first delete should report true")
	}
	if line.SoftDelete() {
		t.Fatalf("second delete should report false")
	}
	if len(line.GetUncommittedEvents()) != 1 {
		t.Fatalf("expected exactly one reversal event")
	}

	if _, err := NewCommissionLine("cl-2", "order-1", "item-1", "seller-1", "rule", "usd", decimal.NewFromInt(-1), decimal.Zero, dec("1")); err == nil {
		t.Fatalf("negative commission accepted")
	}
}
