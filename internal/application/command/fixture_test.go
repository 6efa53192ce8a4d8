package command

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/commission"
	"marketplace-settlement/internal/domain/event"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/internal/infrastructure/memory"
)

const fakeProvider = "fake"

// fakeAdapter scripts provider answers and records the calls it receives
type fakeAdapter struct {
	mu             sync.Mutex
	payoutInputs   []provider.CreatePayoutInput
	payoutKeys     []string
	accountCreates int
	onboardings    int

	createPayout  func(provider.CreatePayoutInput) (*provider.CreatePayoutResult, error)
	payoutStatus  func(provider.PayoutStatusInput) (*provider.PayoutStatusResult, error)
	accountStatus aggregate.AccountStatus
	webhook       func(provider.WebhookPayload) (*provider.WebhookResult, error)
}

func (f *fakeAdapter) Name() string { return fakeProvider }

func (f *fakeAdapter) CreatePayoutAccount(_ context.Context, in provider.CreateAccountInput) (*provider.CreateAccountResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCreates++
	return &provider.CreateAccountResult{ID: "acct_" + in.SellerID, Data: []byte(`{"object":"account"}`)}, nil
}

func (f *fakeAdapter) CreateOnboarding(_ context.Context, in provider.OnboardingInput) (*provider.OnboardingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onboardings++
	return &provider.OnboardingResult{URL: "https://connect.example/onboard/" + in.ReferenceID, Data: []byte(`{"object":"account_link"}`)}, nil
}

func (f *fakeAdapter) CreatePayout(_ context.Context, in provider.CreatePayoutInput, key string) (*provider.CreatePayoutResult, error) {
	f.mu.Lock()
	f.payoutInputs = append(f.payoutInputs, in)
	f.payoutKeys = append(f.payoutKeys, key)
	fn := f.createPayout
	f.mu.Unlock()
	if fn != nil {
		return fn(in)
	}
	return &provider.CreatePayoutResult{ID: "tr_" + in.PayoutID[:8], Status: aggregate.PayoutStatusProcessing}, nil
}

func (f *fakeAdapter) GetAccountStatus(context.Context, provider.AccountStatusInput) (*provider.AccountStatusResult, error) {
	return &provider.AccountStatusResult{Status: f.accountStatus}, nil
}

func (f *fakeAdapter) GetPayoutStatus(_ context.Context, in provider.PayoutStatusInput) (*provider.PayoutStatusResult, error) {
	if f.payoutStatus != nil {
		return f.payoutStatus(in)
	}
	return &provider.PayoutStatusResult{Status: aggregate.PayoutStatusProcessing}, nil
}

func (f *fakeAdapter) GetWebhookActionAndData(_ context.Context, payload provider.WebhookPayload) (*provider.WebhookResult, error) {
	return f.webhook(payload)
}

func (f *fakeAdapter) payoutCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payoutInputs)
}

// recordingPublisher keeps every published event type
type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, evt.EventType())
	return nil
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	factory   *memory.UnitOfWorkFactory
	adapter   *fakeAdapter
	providers *provider.Registry
	logger    *zap.Logger

	compute       *ComputeAndRecordCommissionWithUoWHandler
	reverseOrder  *ReverseOrderCommissionWithUoWHandler
	upsertRule    *UpsertCommissionRuleWithUoWHandler
	applyDelta    *ApplyBalanceDeltaWithUoWHandler
	requestPayout *RequestPayoutWithUoWHandler
	reversePayout *ReversePayoutWithUoWHandler
	syncPayout    *SyncPayoutStatusWithUoWHandler
	createAccount *CreatePayoutAccountWithUoWHandler
	syncAccount   *SyncAccountStatusWithUoWHandler
	webhook       *ProcessWebhookEventWithUoWHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	factory := memory.NewUnitOfWorkFactory(memory.NewStore())
	adapter := &fakeAdapter{}
	providers, err := provider.NewRegistry(fakeProvider, adapter)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := zap.NewNop()
	resolver := commission.NewResolver(nil)
	requestPayout := NewRequestPayoutWithUoWHandler(factory, providers, nil, 50*time.Millisecond, logger)

	return &fixture{
		t:             t,
		ctx:           context.Background(),
		factory:       factory,
		adapter:       adapter,
		providers:     providers,
		logger:        logger,
		compute:       NewComputeAndRecordCommissionWithUoWHandler(factory, resolver, nil, fakeProvider, logger),
		reverseOrder:  NewReverseOrderCommissionWithUoWHandler(factory, nil, logger),
		upsertRule:    NewUpsertCommissionRuleWithUoWHandler(factory, nil, logger),
		applyDelta:    NewApplyBalanceDeltaWithUoWHandler(factory, nil, logger),
		requestPayout: requestPayout,
		reversePayout: NewReversePayoutWithUoWHandler(factory, nil, logger),
		syncPayout:    NewSyncPayoutStatusWithUoWHandler(factory, providers, requestPayout, nil, logger),
		createAccount: NewCreatePayoutAccountWithUoWHandler(factory, providers, nil, logger),
		syncAccount:   NewSyncAccountStatusWithUoWHandler(factory, providers, nil, logger),
		webhook:       NewProcessWebhookEventWithUoWHandler(factory, providers, memory.NewDeduplicator(time.Hour), nil, logger),
	}
}

// activeAccount stores a linked, active account for sellerID
func (f *fixture) activeAccount(sellerID string) *aggregate.PayoutAccount {
	f.t.Helper()
	account, err := aggregate.NewPayoutAccount(uuid.New().String(), sellerID, fakeProvider, nil)
	if err != nil {
		f.t.Fatalf("new account: %v", err)
	}
	if err := account.LinkProvider(fakeProvider, "acct_"+sellerID, nil); err != nil {
		f.t.Fatalf("link: %v", err)
	}
	if _, err := account.TransitionTo(aggregate.AccountStatusActive); err != nil {
		f.t.Fatalf("activate: %v", err)
	}

	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	if err := uow.PayoutAccountRepository().Create(f.ctx, account); err != nil {
		f.t.Fatalf("store account: %v", err)
	}
	return account
}

// credit books sale revenue so the account has something to pay out
func (f *fixture) credit(accountID, amount string) {
	f.t.Helper()
	_, err := f.applyDelta.Handle(f.ctx, &ApplyBalanceDelta{
		AccountID:    accountID,
		CurrencyCode: "usd",
		Amount:       decimal.RequireFromString(amount),
		Reference:    aggregate.ReferenceOrder,
		ReferenceID:  "order-" + uuid.New().String(),
	})
	if err != nil {
		f.t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) balance(accountID string) decimal.Decimal {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	b, err := uow.BalanceRepository().GetBalance(f.ctx, accountID, "usd")
	if stderrors.Is(err, repository.ErrNotFound) {
		return decimal.Zero
	}
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return b.Balance
}

func (f *fixture) ledger(accountID string) []aggregate.PayoutTransaction {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	txs, err := uow.BalanceRepository().ListTransactions(f.ctx, accountID, "", 0, 0)
	if err != nil {
		f.t.Fatalf("ledger: %v", err)
	}
	return txs
}

func (f *fixture) payout(id string) *aggregate.Payout {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	p, err := uow.PayoutRepository().GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("payout %s: %v", id, err)
	}
	return p
}

func (f *fixture) account(id string) *aggregate.PayoutAccount {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	a, err := uow.PayoutAccountRepository().GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("account %s: %v", id, err)
	}
	return a
}

// assertReconciled checks the stored balance against the sum of its ledger
func (f *fixture) assertReconciled(accountID string) {
	f.t.Helper()
	uow := f.factory.CreateUnitOfWork()
	defer uow.Close()
	b, err := uow.BalanceRepository().GetBalance(f.ctx, accountID, "usd")
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	sum, raw, err := uow.BalanceRepository().SumTransactions(f.ctx, accountID, "usd")
	if err != nil {
		f.t.Fatalf("sum: %v", err)
	}
	if !b.Balance.Equal(sum) || !b.RawBalance.Equal(raw) {
		f.t.Fatalf("balance %s (raw %s) does not match ledger %s (raw %s)", b.Balance, b.RawBalance, sum, raw)
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pctPtr(s string) *decimal.Decimal {
	v := money(s)
	return &v
}
