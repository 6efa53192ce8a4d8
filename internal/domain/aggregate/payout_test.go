package aggregate

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestPayout(t *testing.T, amount string) *Payout {
	t.Helper()
	p, err := NewPayout("po-1", "acct-1", "order-1", "USD", dec(amount), "req-1")
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	return p
}

func payoutIn(t *testing.T, status PayoutStatus) *Payout {
	t.Helper()
	p := newTestPayout(t, "10.00")
	switch status {
	case PayoutStatusPending:
	case PayoutStatusProcessing:
		mustDo(t, p.MarkAsProcessing("tr_1", nil))
	case PayoutStatusPaid:
		mustDo(t, p.MarkAsProcessing("tr_1", nil))
		mustDo(t, p.MarkAsPaid())
	case PayoutStatusFailed:
		mustDo(t, p.MarkAsFailed("declined"))
	case PayoutStatusCanceled:
		mustDo(t, p.Cancel("seller request"))
	}
	return p
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewPayoutValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		currency string
		amount   string
	}{
		{"zero", "usd", "0"},
		{"negative", "usd", "-1"},
		{"sub-cent", "usd", "1.005"},
		{"fractional yen", "jpy", "10.5"},
		{"bad currency", "dollars", "10"},
	}
	for _, tc := range cases {
		if _, err := NewPayout("po", "acct", "", tc.currency, dec(tc.amount), ""); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	p := newTestPayout(t, "10.00")
	if p.Status() != PayoutStatusPending || p.CurrencyCode() != "usd" {
		t.Fatalf("unexpected initial state %s %s", p.Status(), p.CurrencyCode())
	}
	if p.ProviderIdempotencyKey() == "" || p.ProviderIdempotencyKey() != newTestPayout(t, "5").ProviderIdempotencyKey() {
		t.Fatalf("provider key must derive from the payout ID only")
	}
}

func TestPayoutTransitions(t *testing.T) {
	t.Parallel()

	type move struct {
		name  string
		apply func(*Payout) error
		to    PayoutStatus
	}
	moves := []move{
		{"process", func(p *Payout) error { return p.MarkAsProcessing("tr_2", nil) }, PayoutStatusProcessing},
		{"pay", func(p *Payout) error { return p.MarkAsPaid() }, PayoutStatusPaid},
		{"fail", func(p *Payout) error { return p.MarkAsFailed("boom") }, PayoutStatusFailed},
		{"cancel", func(p *Payout) error { return p.Cancel("stop") }, PayoutStatusCanceled},
	}
	allowed := map[PayoutStatus]map[string]bool{
		PayoutStatusPending:    {"process": true, "fail": true, "cancel": true},
		PayoutStatusProcessing: {"pay": true, "fail": true, "cancel": true},
		PayoutStatusPaid:       {},
		PayoutStatusFailed:     {},
		PayoutStatusCanceled:   {},
	}

	for from, ok := range allowed {
		for _, m := range moves {
			p := payoutIn(t, from)
			err := m.apply(p)
			if ok[m.name] {
				if err != nil {
					t.Fatalf("%s from %s: %v", m.name, from, err)
				}
				if p.Status() != m.to {
					t.Fatalf("%s from %s: status %s", m.name, from, p.Status())
				}
				continue
			}
			if !stderrors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s from %s: expected invalid transition, got %v", m.name, from, err)
			}
			if p.Status() != from {
				t.Fatalf("%s from %s: status changed to %s", m.name, from, p.Status())
			}
		}
	}
}

func TestPayoutTerminalStates(t *testing.T) {
	t.Parallel()

	for _, s := range []PayoutStatus{PayoutStatusPaid, PayoutStatusFailed, PayoutStatusCanceled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []PayoutStatus{PayoutStatusPending, PayoutStatusProcessing} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestRecordReversalLimits(t *testing.T) {
	t.Parallel()

	p := payoutIn(t, PayoutStatusPaid)
	p.MarkEventsAsCommitted()

	if err := p.RecordReversal(decimal.Zero); err == nil {
		t.Fatalf("zero reversal accepted")
	}
	mustDo(t, p.RecordReversal(dec("6")))
	if err := p.RecordReversal(dec("4.01")); err == nil {
		t.Fatalf("reversal beyond the remaining amount accepted")
	}
	mustDo(t, p.RecordReversal(dec("4")))
	if !p.ReversedAmount().Equal(dec("10")) {
		t.Fatalf("reversed amount %s", p.ReversedAmount())
	}
	if p.Status() != PayoutStatusPaid {
		t.Fatalf("reversal must not change the payout status, got %s", p.Status())
	}

	events := p.GetUncommittedEvents()
	if len(events) != 2 {
		t.Fatalf("expected two reversal events, got %d", len(events))
	}
	if events[0].EventType() != "PayoutReversed" {
		t.Fatalf("unexpected event %s", events[0].EventType())
	}
}

func TestAttachProviderReferenceOnce(t *testing.T) {
	t.Parallel()

	p := newTestPayout(t, "1")
	if p.AttachProviderReference("") {
		t.Fatalf("empty reference attached")
	}
	if !p.AttachProviderReference("tr_9") || p.AttachProviderReference("tr_10") {
		t.Fatalf("reference should attach exactly once")
	}
	if p.ProviderReference() != "tr_9" {
		t.Fatalf("reference %q", p.ProviderReference())
	}
}

func TestBalanceApply(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewPayoutBalance("bal-1", "acct-1", "USD", now)
	credit := BalanceDelta{AccountID: "acct-1", CurrencyCode: "usd", Amount: dec("20"), RawAmount: dec("20.004"), Reference: ReferenceOrder, ReferenceID: "line-1"}
	mustDo(t, b.Apply(credit, now))

	debit := BalanceDelta{AccountID: "acct-1", CurrencyCode: "usd", Amount: dec("-50"), Reference: ReferencePayout, ReferenceID: "po-1", RequireFunds: true}
	if err := b.Apply(debit, now); !stderrors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !b.Balance.Equal(dec("20")) || !b.RawBalance.Equal(dec("20.004")) {
		t.Fatalf("rejected debit changed the balance to %s/%s", b.Balance, b.RawBalance)
	}

	// unguarded debits may go negative
	debit.RequireFunds = false
	mustDo(t, b.Apply(debit, now))
	if !b.Balance.Equal(dec("-30")) {
		t.Fatalf("balance %s", b.Balance)
	}

	back := debit.Inverse(ReferenceReversal, "po-1")
	mustDo(t, b.Apply(back, now))
	if !b.Balance.Equal(dec("20")) || back.RequireFunds {
		t.Fatalf("inverse did not restore the balance: %s", b.Balance)
	}
}

func TestBalanceDeltaValidate(t *testing.T) {
	t.Parallel()

	valid := BalanceDelta{AccountID: "a", CurrencyCode: "usd", Amount: dec("1"), Reference: ReferenceOrder, ReferenceID: "x"}
	mustDo(t, valid.Validate())

	broken := []BalanceDelta{
		{CurrencyCode: "usd", Amount: dec("1"), Reference: ReferenceOrder, ReferenceID: "x"},
		{AccountID: "a", CurrencyCode: "us", Amount: dec("1"), Reference: ReferenceOrder, ReferenceID: "x"},
		{AccountID: "a", CurrencyCode: "usd", Amount: dec("1"), Reference: ReferenceOrder},
		{AccountID: "a", CurrencyCode: "usd", Reference: ReferenceOrder, ReferenceID: "x"},
	}
	for i, delta := range broken {
		if err := delta.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
