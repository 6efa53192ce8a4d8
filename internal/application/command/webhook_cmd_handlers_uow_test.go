package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// processingPayout leaves a payout processing without a provider reference, as a timed out call does
func (f *fixture) processingPayout(accountID, amount string) *aggregate.Payout {
	f.t.Helper()
	f.adapter.createPayout = func(provider.CreatePayoutInput) (*provider.CreatePayoutResult, error) {
		return nil, context.DeadlineExceeded
	}
	defer func() { f.adapter.createPayout = nil }()

	payout, err := f.requestPayout.Handle(f.ctx, &RequestPayout{AccountID: accountID, Amount: money(amount), CurrencyCode: "usd"})
	if err != nil {
		f.t.Fatalf("request: %v", err)
	}
	return payout
}

func (f *fixture) deliver(result *provider.WebhookResult) (WebhookOutcome, error) {
	f.adapter.webhook = func(provider.WebhookPayload) (*provider.WebhookResult, error) { return result, nil }
	return f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider, Body: []byte(fmt.Sprintf(`{"id":%q}`, result.EventID))})
}

func TestWebhookSettlesPayoutOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	account := f.activeAccount("seller-1")
	f.credit(account.ID(), "20.00")
	payout := f.processingPayout(account.ID(), "20.00")

	paid := &provider.WebhookResult{EventID: "evt_1", Action: provider.ActionPayoutPaid, PayoutID: payout.ID(), PayoutReference: "tr_late"}
	outcome, err := f.deliver(paid)
	if err != nil || outcome != WebhookApplied {
		t.Fatalf("first delivery: %s %v", outcome, err)
	}
	got := f.payout(payout.ID())
	if got.Status() != aggregate.PayoutStatusPaid || got.ProviderReference() != "tr_late" {
		t.Fatalf("status %s reference %q", got.Status(), got.ProviderReference())
	}

	outcome, err = f.deliver(paid)
	if err != nil || outcome != WebhookDuplicate {
		t.Fatalf("redelivery: %s %v", outcome, err)
	}
	if got := f.balance(account.ID()); !got.IsZero() {
		t.Fatalf("balance %s", got)
	}
}

func TestWebhookFailureCreditsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	account := f.activeAccount("seller-1")
	f.credit(account.ID(), "20.00")
	payout := f.processingPayout(account.ID(), "15.00")

	outcome, err := f.deliver(&provider.WebhookResult{EventID: "evt_f", Action: provider.ActionPayoutFailed, PayoutID: payout.ID()})
	if err != nil || outcome != WebhookApplied {
		t.Fatalf("failed delivery: %s %v", outcome, err)
	}
	got := f.payout(payout.ID())
	if got.Status() != aggregate.PayoutStatusFailed || got.FailureReason() != "failed by provider" {
		t.Fatalf("status %s reason %q", got.Status(), got.FailureReason())
	}
	if b := f.balance(account.ID()); !b.Equal(money("20")) {
		t.Fatalf("balance %s", b)
	}

	// a late paid event cannot resurrect a failed payout
	outcome, err = f.deliver(&provider.WebhookResult{EventID: "evt_p", Action: provider.ActionPayoutPaid, PayoutID: payout.ID()})
	if err != nil || outcome != WebhookIgnored {
		t.Fatalf("late paid: %s %v", outcome, err)
	}
	f.assertReconciled(account.ID())
}

func TestWebhookIgnoresUnknownActionsAndTargets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []*provider.WebhookResult{
		{EventID: "evt_a", Action: "balance.available"},
		{EventID: "evt_b", Action: provider.ActionPayoutPaid, PayoutReference: "tr_unknown"},
		{EventID: "evt_c", Action: provider.ActionAccountActivated, AccountReference: "acct_unknown"},
	}
	for _, result := range cases {
		outcome, err := f.deliver(result)
		if err != nil || outcome != WebhookIgnored {
			t.Fatalf("%s: %s %v", result.Action, outcome, err)
		}
	}
}

func TestWebhookRejectsBadInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.adapter.webhook = func(provider.WebhookPayload) (*provider.WebhookResult, error) {
		return nil, fmt.Errorf("stripe: %w", provider.ErrInvalidSignature)
	}

	_, err := f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider, Body: []byte(`{}`)})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for a bad signature, got %v", err)
	}
	_, err = f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: "paypal", Body: []byte(`{}`)})
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for an unknown provider, got %v", err)
	}
	_, err = f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for an empty body, got %v", err)
	}
}

func TestWebhookWithoutEventIDDedupsOnBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.adapter.webhook = func(provider.WebhookPayload) (*provider.WebhookResult, error) {
		return &provider.WebhookResult{Action: "noop"}, nil
	}

	body := []byte(`{"code":"00","data":{"orderCode":42}}`)
	first, err := f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider, Body: body})
	if err != nil || first != WebhookIgnored {
		t.Fatalf("first: %s %v", first, err)
	}
	second, err := f.webhook.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider, Body: body})
	if err != nil || second != WebhookDuplicate {
		t.Fatalf("second: %s %v", second, err)
	}
}

type brokenFactory struct {
	repository.UnitOfWorkFactory
}

func (b brokenFactory) CreateUnitOfWork() repository.UnitOfWork {
	return brokenUnitOfWork{b.UnitOfWorkFactory.CreateUnitOfWork()}
}

type brokenUnitOfWork struct {
	repository.UnitOfWork
}

func (brokenUnitOfWork) Begin(context.Context) error { return stderrors.New("connection refused") }

func TestWebhookStorageFailureReleasesClaim(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	account := f.activeAccount("seller-1")
	f.credit(account.ID(), "5.00")
	payout := f.processingPayout(account.ID(), "5.00")

	broken := NewProcessWebhookEventWithUoWHandler(brokenFactory{f.factory}, f.providers, f.webhook.dedup, nil, f.logger)
	result := &provider.WebhookResult{EventID: "evt_retry", Action: provider.ActionPayoutPaid, PayoutID: payout.ID()}
	f.adapter.webhook = func(provider.WebhookPayload) (*provider.WebhookResult, error) { return result, nil }

	if _, err := broken.Handle(f.ctx, &ProcessWebhookEvent{Provider: fakeProvider, Body: []byte(`{}`)}); err == nil {
		t.Fatalf("expected a storage error")
	}
	outcome, err := f.deliver(result)
	if err != nil || outcome != WebhookApplied {
		t.Fatalf("redelivery after failure: %s %v", outcome, err)
	}
}

func TestAccountRejectionCancelsOpenPayouts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	account := f.activeAccount("seller-1")
	f.credit(account.ID(), "30.00")
	first := f.processingPayout(account.ID(), "10.00")
	second := f.processingPayout(account.ID(), "5.00")

	outcome, err := f.deliver(&provider.WebhookResult{EventID: "evt_r", Action: provider.ActionAccountRejected, AccountReference: account.ReferenceID()})
	if err != nil || outcome != WebhookApplied {
		t.Fatalf("rejection: %s %v", outcome, err)
	}
	if got := f.account(account.ID()); got.Status() != aggregate.AccountStatusRejected {
		t.Fatalf("account status %s", got.Status())
	}
	for _, p := range []*aggregate.Payout{first, second} {
		if got := f.payout(p.ID()); got.Status() != aggregate.PayoutStatusCanceled {
			t.Fatalf("payout %s status %s", p.ID(), got.Status())
		}
	}
	if got := f.balance(account.ID()); !got.Equal(money("30")) {
		t.Fatalf("balance %s", got)
	}

	// rejected is terminal
	outcome, err = f.deliver(&provider.WebhookResult{EventID: "evt_act", Action: provider.ActionAccountActivated, AccountID: account.ID()})
	if err != nil || outcome != WebhookIgnored {
		t.Fatalf("activation after rejection: %s %v", outcome, err)
	}
}
