package command

import (
	"testing"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/pkg/errors"
)

func (f *fixture) rule(reference, referenceID string, rate RateInput) *aggregate.CommissionRule {
	f.t.Helper()
	rule, err := f.upsertRule.Handle(f.ctx, &UpsertCommissionRule{
		Name:        reference + " " + referenceID,
		Reference:   reference,
		ReferenceID: referenceID,
		IsActive:    true,
		Rate:        rate,
	})
	if err != nil {
		f.t.Fatalf("upsert %s rule: %v", reference, err)
	}
	return rule
}

func capturedOrder() *ComputeAndRecordCommission {
	return &ComputeAndRecordCommission{
		OrderID:  "order-1",
		SellerID: "seller-1",
		Items: []OrderItem{
			{ItemLineID: "item-1", ProductID: "prod-1", Quantity: 2, UnitPrice: money("50.00"), CurrencyCode: "usd"},
			{ItemLineID: "item-2", ProductID: "prod-2", Quantity: 1, UnitPrice: money("50.00"), CurrencyCode: "usd"},
		},
	}
}

func TestComputeCommissionUsesMostSpecificRule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	publisher := &recordingPublisher{}
	f.compute.publisher = publisher

	f.rule("seller", "seller-1", RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("10")})
	productRule := f.rule("product", "prod-1", RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("5")})

	lines, err := f.compute.Handle(f.ctx, capturedOrder())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].RuleID() != productRule.ID() || !lines[0].Value().Equal(money("5")) {
		t.Fatalf("item-1: rule %s value %s", lines[0].RuleID(), lines[0].Value())
	}
	if !lines[1].Value().Equal(money("5")) {
		t.Fatalf("item-2 should use the seller rule, got %s", lines[1].Value())
	}

	uow := f.factory.CreateUnitOfWork()
	account, err := uow.PayoutAccountRepository().GetBySellerID(f.ctx, "seller-1")
	uow.Close()
	if err != nil {
		t.Fatalf("first accrual should create the account: %v", err)
	}
	if account.Status() != aggregate.AccountStatusPending {
		t.Fatalf("account status %s", account.Status())
	}
	// 150.00 revenue less 10.00 commission
	if got := f.balance(account.ID()); !got.Equal(money("140")) {
		t.Fatalf("balance %s", got)
	}
	f.assertReconciled(account.ID())
	if publisher.count("CommissionRecorded") != 2 {
		t.Fatalf("expected two CommissionRecorded events, got %v", publisher.types)
	}
}

func TestComputeCommissionIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rule("global", "", RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("8")})

	first, err := f.compute.Handle(f.ctx, capturedOrder())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	accountID := f.accountFor("seller-1")
	entries := len(f.ledger(accountID))

	second, err := f.compute.Handle(f.ctx, capturedOrder())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Fatalf("replay created a new line for %s", first[i].ItemLineID())
		}
	}
	if n := len(f.ledger(accountID)); n != entries {
		t.Fatalf("replay added ledger entries: %d -> %d", entries, n)
	}
	if got := f.balance(accountID); !got.Equal(money("138")) {
		t.Fatalf("balance %s", got)
	}
}

func TestComputeWithoutRuleRecordsZeroCommission(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	lines, err := f.compute.Handle(f.ctx, capturedOrder())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, l := range lines {
		if !l.Value().IsZero() || l.RuleID() != "" {
			t.Fatalf("line %s: value %s rule %q", l.ItemLineID(), l.Value(), l.RuleID())
		}
	}
	accountID := f.accountFor("seller-1")
	if got := f.balance(accountID); !got.Equal(money("150")) {
		t.Fatalf("balance %s", got)
	}
	// zero commission books no commission entry
	if n := len(f.ledger(accountID)); n != 2 {
		t.Fatalf("expected only the two revenue entries, got %d", n)
	}
}

func TestComputeFailureRecordsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rule("seller", "seller-1", RateInput{Type: aggregate.RateTypeFlat, FlatAmount: map[string]decimal.Decimal{"eur": money("1")}})

	cmd := &ComputeAndRecordCommission{
		OrderID:  "order-9",
		SellerID: "seller-1",
		Items: []OrderItem{
			{ItemLineID: "eur-line", ProductID: "p", Quantity: 1, UnitPrice: money("10"), CurrencyCode: "eur"},
			{ItemLineID: "usd-line", ProductID: "p", Quantity: 1, UnitPrice: money("10"), CurrencyCode: "usd"},
		},
	}
	if _, err := f.compute.Handle(f.ctx, cmd); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error for the missing flat currency, got %v", err)
	}

	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	if _, err := uow.CommissionLineRepository().GetActiveByItemLineID(f.ctx, "eur-line"); err == nil {
		t.Fatalf("first item was recorded despite the failure")
	}
	if _, err := uow.PayoutAccountRepository().GetBySellerID(f.ctx, "seller-1"); err == nil {
		t.Fatalf("account creation was not rolled back")
	}
}

func TestRecordCommissionRejectsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	record := NewRecordCommissionWithUoWHandler(f.factory, nil, fakeProvider, f.logger)

	cmd := &RecordCommission{OrderID: "o", SellerID: "s", ItemLineID: "line", CurrencyCode: "usd", Value: money("2"), RawValue: money("2")}
	if _, err := record.Handle(f.ctx, cmd); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := record.Handle(f.ctx, cmd); !errors.IsCode(err, errors.CodeDuplicateCommission) {
		t.Fatalf("expected DUPLICATE_COMMISSION, got %v", err)
	}
	if got := f.balance(f.accountFor("s")); !got.Equal(money("-2")) {
		t.Fatalf("commission should be debited once, balance %s", got)
	}
}

func TestReverseOrderCommissionRestoresBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rule("global", "", RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("10")})

	if _, err := f.compute.Handle(f.ctx, capturedOrder()); err != nil {
		t.Fatalf("compute: %v", err)
	}
	accountID := f.accountFor("seller-1")

	for i := 0; i < 2; i++ {
		if err := f.reverseOrder.Handle(f.ctx, &ReverseOrderCommission{OrderID: "order-1"}); err != nil {
			t.Fatalf("reverse #%d: %v", i+1, err)
		}
		if got := f.balance(accountID); !got.IsZero() {
			t.Fatalf("reverse #%d: balance %s", i+1, got)
		}
	}
	// 2 revenue, 2 commission, 2 commission reversals, 2 cancellations
	if n := len(f.ledger(accountID)); n != 8 {
		t.Fatalf("ledger entries %d", n)
	}
	f.assertReconciled(accountID)

	// the item lines can be captured again after the reversal
	if _, err := f.compute.Handle(f.ctx, capturedOrder()); err != nil {
		t.Fatalf("recapture: %v", err)
	}
	if got := f.balance(accountID); !got.Equal(money("135")) {
		t.Fatalf("balance after recapture %s", got)
	}
}

func TestUpsertRuleVersionsRates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	created := f.rule("category", "shoes", RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("12")})
	firstRate := created.Rate().ID()

	same, err := f.upsertRule.Handle(f.ctx, &UpsertCommissionRule{
		RuleID: created.ID(), Name: "shoes renamed", Reference: "category", ReferenceID: "shoes", IsActive: true,
		Rate: RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("12.0")},
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if same.Rate().ID() != firstRate {
		t.Fatalf("unchanged terms should keep rate %s, got %s", firstRate, same.Rate().ID())
	}

	changed, err := f.upsertRule.Handle(f.ctx, &UpsertCommissionRule{
		RuleID: created.ID(), Name: "shoes", Reference: "category", ReferenceID: "shoes", IsActive: true,
		Rate: RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("15")},
	})
	if err != nil {
		t.Fatalf("re-rate: %v", err)
	}
	if changed.Rate().ID() == firstRate {
		t.Fatalf("new terms must get a new rate ID")
	}

	_, err = f.upsertRule.Handle(f.ctx, &UpsertCommissionRule{
		RuleID: created.ID(), Name: "shoes", Reference: "seller", ReferenceID: "s1", IsActive: true,
		Rate: RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("15")},
	})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("changing the reference should be rejected, got %v", err)
	}

	_, err = f.upsertRule.Handle(f.ctx, &UpsertCommissionRule{
		Name: "bad", Reference: "global", IsActive: true,
		Rate: RateInput{Type: aggregate.RateTypePercentage, PercentageRate: pctPtr("101")},
	})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("rate over 100%% accepted: %v", err)
	}
}

func (f *fixture) accountFor(sellerID string) string {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	account, err := uow.PayoutAccountRepository().GetBySellerID(f.ctx, sellerID)
	if err != nil {
		f.t.Fatalf("account for %s: %v", sellerID, err)
	}
	return account.ID()
}
