package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/commission"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/infrastructure/memory"
)

type stubAdapter struct {
	mu            sync.Mutex
	timeout       bool
	payoutStatus  aggregate.PayoutStatus
	createStatus  aggregate.PayoutStatus
	accountStatus aggregate.AccountStatus
	payoutCalls   int
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) CreatePayoutAccount(_ context.Context, in provider.CreateAccountInput) (*provider.CreateAccountResult, error) {
	return &provider.CreateAccountResult{ID: "acct_" + in.SellerID}, nil
}

func (s *stubAdapter) CreateOnboarding(context.Context, provider.OnboardingInput) (*provider.OnboardingResult, error) {
	return &provider.OnboardingResult{URL: "https://onboard.example"}, nil
}

func (s *stubAdapter) CreatePayout(_ context.Context, in provider.CreatePayoutInput, _ string) (*provider.CreatePayoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payoutCalls++
	if s.timeout {
		return nil, context.DeadlineExceeded
	}
	status := s.createStatus
	if status == "" {
		status = aggregate.PayoutStatusProcessing
	}
	return &provider.CreatePayoutResult{ID: "tr_" + in.PayoutID, Status: status}, nil
}

func (s *stubAdapter) GetAccountStatus(context.Context, provider.AccountStatusInput) (*provider.AccountStatusResult, error) {
	return &provider.AccountStatusResult{Status: s.accountStatus}, nil
}

func (s *stubAdapter) GetPayoutStatus(context.Context, provider.PayoutStatusInput) (*provider.PayoutStatusResult, error) {
	return &provider.PayoutStatusResult{Status: s.payoutStatus}, nil
}

func (s *stubAdapter) GetWebhookActionAndData(context.Context, provider.WebhookPayload) (*provider.WebhookResult, error) {
	return &provider.WebhookResult{Action: "noop"}, nil
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	factory    *memory.UnitOfWorkFactory
	adapter    *stubAdapter
	logger     *zap.Logger
	commission *CommissionService
	payouts    *PayoutService
	orders     *OrderService

	requestPayout *command.RequestPayoutWithUoWHandler
	syncPayout    *command.SyncPayoutStatusWithUoWHandler
	syncAccount   *command.SyncAccountStatusWithUoWHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	factory := memory.NewUnitOfWorkFactory(memory.NewStore())
	adapter := &stubAdapter{}
	providers, err := provider.NewRegistry("stub", adapter)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := zap.NewNop()

	requestPayout := command.NewRequestPayoutWithUoWHandler(factory, providers, nil, time.Second, logger)
	syncPayout := command.NewSyncPayoutStatusWithUoWHandler(factory, providers, requestPayout, nil, logger)
	syncAccount := command.NewSyncAccountStatusWithUoWHandler(factory, providers, nil, logger)

	commissionService := NewCommissionService(
		command.NewComputeAndRecordCommissionWithUoWHandler(factory, commission.NewResolver(nil), nil, "stub", logger),
		command.NewRecordCommissionWithUoWHandler(factory, nil, "stub", logger),
		command.NewReverseCommissionWithUoWHandler(factory, nil, logger),
		command.NewReverseOrderCommissionWithUoWHandler(factory, nil, logger),
		command.NewUpsertCommissionRuleWithUoWHandler(factory, nil, logger),
		query.NewListOrderCommissionHandler(factory),
		query.NewListCommissionRulesHandler(factory),
	)
	payoutService := NewPayoutService(PayoutHandlers{
		CreateAccount:    command.NewCreatePayoutAccountWithUoWHandler(factory, providers, nil, logger),
		SyncAccount:      syncAccount,
		ApplyDelta:       command.NewApplyBalanceDeltaWithUoWHandler(factory, nil, logger),
		RequestPayout:    requestPayout,
		ReversePayout:    command.NewReversePayoutWithUoWHandler(factory, nil, logger),
		SyncPayout:       syncPayout,
		ProcessWebhook:   command.NewProcessWebhookEventWithUoWHandler(factory, providers, memory.NewDeduplicator(time.Hour), nil, logger),
		GetAccount:       query.NewGetAccountBySellerHandler(factory),
		GetOnboarding:    query.NewGetOnboardingHandler(factory),
		GetBalances:      query.NewGetBalancesHandler(factory),
		ListTransactions: query.NewListTransactionsHandler(factory),
		Reconcile:        query.NewReconcileBalanceHandler(factory),
		GetPayout:        query.NewGetPayoutHandler(factory),
		ListPayouts:      query.NewListPayoutsHandler(factory),
	})

	return &harness{
		t:             t,
		ctx:           context.Background(),
		factory:       factory,
		adapter:       adapter,
		logger:        logger,
		commission:    commissionService,
		payouts:       payoutService,
		orders:        NewOrderService(commissionService, payoutService),
		requestPayout: requestPayout,
		syncPayout:    syncPayout,
		syncAccount:   syncAccount,
	}
}

func (h *harness) account(sellerID string, status aggregate.AccountStatus) *aggregate.PayoutAccount {
	h.t.Helper()
	account, err := aggregate.NewPayoutAccount(uuid.New().String(), sellerID, "stub", nil)
	if err != nil {
		h.t.Fatalf("account: %v", err)
	}
	if err := account.LinkProvider("stub", "acct_"+sellerID, nil); err != nil {
		h.t.Fatalf("link: %v", err)
	}
	if status != aggregate.AccountStatusPending {
		if _, err := account.TransitionTo(status); err != nil {
			h.t.Fatalf("transition: %v", err)
		}
	}
	uow := h.factory.CreateUnitOfWork()
	defer uow.Close()
	if err := uow.PayoutAccountRepository().Create(h.ctx, account); err != nil {
		h.t.Fatalf("store account: %v", err)
	}
	return account
}

func (h *harness) credit(accountID, amount string) {
	h.t.Helper()
	_, err := h.payouts.ApplyBalanceDelta(h.ctx, &command.ApplyBalanceDelta{
		AccountID:    accountID,
		CurrencyCode: "usd",
		Amount:       decimal.RequireFromString(amount),
		Reference:    aggregate.ReferenceOrder,
		ReferenceID:  uuid.New().String(),
	})
	if err != nil {
		h.t.Fatalf("credit: %v", err)
	}
}

func (h *harness) balance(accountID string) decimal.Decimal {
	h.t.Helper()
	balances, err := h.payouts.GetBalances(h.ctx, accountID)
	if err != nil {
		h.t.Fatalf("balances: %v", err)
	}
	for _, b := range balances {
		if b.CurrencyCode == "usd" {
			return b.Balance
		}
	}
	return decimal.Zero
}

func (h *harness) payoutStatus(id string) aggregate.PayoutStatus {
	h.t.Helper()
	p, err := h.payouts.GetPayout(h.ctx, id)
	if err != nil {
		h.t.Fatalf("payout: %v", err)
	}
	return aggregate.PayoutStatus(p.Status)
}

func TestSchedulerPaysEligibleBalancesOncePerWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	eligible := h.account("seller-a", aggregate.AccountStatusActive)
	small := h.account("seller-b", aggregate.AccountStatusActive)
	restricted := h.account("seller-c", aggregate.AccountStatusRestricted)
	h.credit(eligible.ID(), "12.34")
	h.credit(small.ID(), "3.00")
	h.credit(restricted.ID(), "100.00")

	scheduler := NewPayoutScheduler(h.factory, h.requestPayout, time.Hour, decimal.NewFromInt(5), 2, h.logger)
	window := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	n, err := scheduler.RunBatch(h.ctx, window)
	if err != nil || n != 1 {
		t.Fatalf("first batch: %d %v", n, err)
	}
	if got := h.balance(eligible.ID()); !got.IsZero() {
		t.Fatalf("eligible balance %s", got)
	}
	if got := h.balance(small.ID()); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("below-minimum balance %s", got)
	}
	if got := h.balance(restricted.ID()); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("restricted balance %s", got)
	}

	h.credit(eligible.ID(), "10.00")
	if n, _ := scheduler.RunBatch(h.ctx, window); n != 0 {
		t.Fatalf("rerunning a window issued %d payouts", n)
	}
	if got := h.balance(eligible.ID()); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance after rerun %s", got)
	}

	if n, _ := scheduler.RunBatch(h.ctx, window.Add(time.Hour)); n != 1 {
		t.Fatalf("next window issued %d payouts", n)
	}
}

func TestReconciliationPassSettlesResumesAndSyncs(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	active := h.account("seller-a", aggregate.AccountStatusActive)
	pending := h.account("seller-p", aggregate.AccountStatusPending)
	h.credit(active.ID(), "50.00")

	h.adapter.timeout = true
	lost, err := h.requestPayout.Handle(h.ctx, &command.RequestPayout{AccountID: active.ID(), Amount: decimal.NewFromInt(20), CurrencyCode: "usd"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	h.adapter.timeout = false

	stuck, err := aggregate.NewPayout("stuck", active.ID(), "", "usd", decimal.NewFromInt(5), "")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	uow := h.factory.CreateUnitOfWork()
	if err := uow.PayoutRepository().Create(h.ctx, stuck); err != nil {
		t.Fatalf("store payout: %v", err)
	}
	uow.Close()

	h.adapter.payoutStatus = aggregate.PayoutStatusPaid
	h.adapter.accountStatus = aggregate.AccountStatusActive

	poller := NewPayoutReconciliationService(h.factory, h.syncPayout, h.syncAccount, h.requestPayout, time.Minute, 0, h.logger)
	poller.RunOnce(h.ctx)

	if got := h.payoutStatus(lost.ID()); got != aggregate.PayoutStatusPaid {
		t.Fatalf("polled payout status %s", got)
	}
	if got := h.payoutStatus("stuck"); got != aggregate.PayoutStatusProcessing {
		t.Fatalf("stale payout status %s", got)
	}
	account, err := h.payouts.GetAccountBySeller(h.ctx, "seller-p")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Status != string(aggregate.AccountStatusActive) || account.ID != pending.ID() {
		t.Fatalf("pending account not synced: %+v", account)
	}
}

func TestOrderCancellationUnwindsCommissionAndPayout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.adapter.createStatus = aggregate.PayoutStatusPaid

	account := h.account("seller-1", aggregate.AccountStatusActive)
	rate := decimal.NewFromInt(10)
	if _, err := h.commission.UpsertRule(h.ctx, &command.UpsertCommissionRule{
		Name: "default", Reference: "global", IsActive: true,
		Rate: command.RateInput{Type: aggregate.RateTypePercentage, PercentageRate: &rate},
	}); err != nil {
		t.Fatalf("rule: %v", err)
	}

	captured := &command.ComputeAndRecordCommission{
		OrderID:  "order-1",
		SellerID: "seller-1",
		Items:    []command.OrderItem{{ItemLineID: "item-1", ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(100), CurrencyCode: "usd"}},
	}
	if _, err := h.orders.Captured(h.ctx, captured); err != nil {
		t.Fatalf("captured: %v", err)
	}
	if got := h.balance(account.ID()); !got.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("balance after capture %s", got)
	}
	if _, err := h.payouts.RequestPayout(h.ctx, &command.RequestPayout{AccountID: account.ID(), Amount: decimal.NewFromInt(90), CurrencyCode: "usd", OrderID: "order-1"}); err != nil {
		t.Fatalf("payout: %v", err)
	}

	cancel := &OrderCanceled{OrderID: "order-1", CapturedAmount: decimal.NewFromInt(100), CurrencyCode: "usd"}
	reversed, err := h.orders.Canceled(h.ctx, cancel)
	if err != nil {
		t.Fatalf("canceled: %v", err)
	}
	if len(reversed) != 1 {
		t.Fatalf("expected one reversed payout, got %d", len(reversed))
	}
	if _, err := h.orders.Canceled(h.ctx, cancel); err != nil {
		t.Fatalf("redelivered cancel: %v", err)
	}
	if got := h.balance(account.ID()); !got.IsZero() {
		t.Fatalf("balance after cancel %s", got)
	}

	lines, err := h.commission.ListOrderCommission(h.ctx, "order-1", true)
	if err != nil || len(lines) != 1 || lines[0].DeletedAt == nil {
		t.Fatalf("commission line not soft-deleted: %v %+v", err, lines)
	}

	reports, err := h.payouts.Reconcile(h.ctx, account.ID(), "usd")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(reports) != 1 || !reports[0].Consistent {
		t.Fatalf("ledger out of sync: %+v", reports)
	}
}
