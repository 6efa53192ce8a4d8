package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

// PayoutScheduler pays out full balances of active accounts once per window
type PayoutScheduler struct {
	uowFactory    repository.UnitOfWorkFactory
	requestPayout *command.RequestPayoutWithUoWHandler
	interval      time.Duration
	minAmount     decimal.Decimal
	concurrency   int
	logger        *zap.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewPayoutScheduler creates a new payout scheduler
func NewPayoutScheduler(
	uowFactory repository.UnitOfWorkFactory,
	requestPayout *command.RequestPayoutWithUoWHandler,
	interval time.Duration,
	minAmount decimal.Decimal,
	concurrency int,
	logger *zap.Logger,
) *PayoutScheduler {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PayoutScheduler{
		uowFactory:    uowFactory,
		requestPayout: requestPayout,
		interval:      interval,
		minAmount:     minAmount,
		concurrency:   concurrency,
		logger:        logger.Named("scheduler"),
		stopChan:      make(chan struct{}),
	}
}

// Start runs a batch at every tick until Stop is called or ctx is done
func (s *PayoutScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("payout scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case now := <-ticker.C:
			if _, err := s.RunBatch(ctx, now.UTC().Truncate(s.interval)); err != nil {
				s.logger.Error("scheduled payout batch failed", zap.Error(err))
			}
		case <-s.stopChan:
			s.logger.Info("payout scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("payout scheduler stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

// Stop stops the background job
func (s *PayoutScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunBatch requests one payout per eligible balance. The idempotency key is derived from the
// window, so running the same window twice issues nothing new. It returns how many payouts were
// requested; individual failures are logged and skipped.
func (s *PayoutScheduler) RunBatch(ctx context.Context, window time.Time) (int, error) {
	uow := s.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	var accounts []*aggregate.PayoutAccount
	for offset := 0; ; offset += reconcilePageSize {
		page, err := uow.PayoutAccountRepository().ListByStatus(ctx, aggregate.AccountStatusActive, offset, reconcilePageSize)
		if err != nil {
			return 0, fmt.Errorf("failed to list active accounts: %w", err)
		}
		accounts = append(accounts, page...)
		if len(page) < reconcilePageSize {
			break
		}
	}

	var requested atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, account := range accounts {
		balances, err := uow.BalanceRepository().ListBalances(ctx, account.ID())
		if err != nil {
			s.logger.Warn("failed to read balances", zap.String("account_id", account.ID()), zap.Error(err))
			continue
		}
		for _, b := range balances {
			amount := aggregate.RoundToCurrency(b.Balance, b.CurrencyCode)
			if !amount.IsPositive() || amount.LessThan(s.minAmount) {
				continue
			}
			cmd := &command.RequestPayout{
				AccountID:      account.ID(),
				Amount:         amount,
				CurrencyCode:   b.CurrencyCode,
				IdempotencyKey: fmt.Sprintf("scheduled:%s:%s", b.CurrencyCode, window.Format(time.RFC3339)),
			}
			g.Go(func() error {
				if _, err := s.requestPayout.Handle(gctx, cmd); err != nil {
					s.logger.Warn("scheduled payout failed",
						zap.String("account_id", cmd.AccountID),
						zap.String("currency", cmd.CurrencyCode),
						zap.Error(err),
					)
					return nil
				}
				requested.Add(1)
				return nil
			})
		}
	}

	err := g.Wait()
	n := int(requested.Load())
	if n > 0 {
		s.logger.Info("scheduled payouts requested", zap.Int("count", n), zap.Time("window", window))
	}
	return n, err
}
