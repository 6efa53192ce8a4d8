package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

const reconcilePageSize = 100

// PayoutReconciliationService polls the provider for outcomes webhooks did not deliver
type PayoutReconciliationService struct {
	uowFactory    repository.UnitOfWorkFactory
	syncPayout    *command.SyncPayoutStatusWithUoWHandler
	syncAccount   *command.SyncAccountStatusWithUoWHandler
	requestPayout *command.RequestPayoutWithUoWHandler
	interval      time.Duration
	staleAfter    time.Duration
	logger        *zap.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewPayoutReconciliationService creates a new reconciliation poller. Pending payouts older than
// staleAfter are sent to the provider again.
func NewPayoutReconciliationService(
	uowFactory repository.UnitOfWorkFactory,
	syncPayout *command.SyncPayoutStatusWithUoWHandler,
	syncAccount *command.SyncAccountStatusWithUoWHandler,
	requestPayout *command.RequestPayoutWithUoWHandler,
	interval, staleAfter time.Duration,
	logger *zap.Logger,
) *PayoutReconciliationService {
	return &PayoutReconciliationService{
		uowFactory:    uowFactory,
		syncPayout:    syncPayout,
		syncAccount:   syncAccount,
		requestPayout: requestPayout,
		interval:      interval,
		staleAfter:    staleAfter,
		logger:        logger.Named("reconciliation"),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the poller until Stop is called or ctx is done
func (s *PayoutReconciliationService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("payout reconciliation started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("payout reconciliation stopped")
			return
		case <-ctx.Done():
			s.logger.Info("payout reconciliation stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

// Stop stops the background job
func (s *PayoutReconciliationService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunOnce performs one reconciliation pass. Failures are logged per item and never stop the pass.
func (s *PayoutReconciliationService) RunOnce(ctx context.Context) {
	settled := s.pollProcessing(ctx)
	resumed := s.resumeStale(ctx)
	synced := s.syncAccounts(ctx)

	if settled+resumed+synced > 0 {
		s.logger.Info("reconciliation pass finished",
			zap.Int("payouts_polled", settled),
			zap.Int("payouts_resumed", resumed),
			zap.Int("accounts_synced", synced),
		)
	}
}

func (s *PayoutReconciliationService) pollProcessing(ctx context.Context) int {
	payouts, err := s.listPayouts(ctx, aggregate.PayoutStatusProcessing)
	if err != nil {
		s.logger.Error("failed to list processing payouts", zap.Error(err))
		return 0
	}

	count := 0
	for _, p := range payouts {
		if _, err := s.syncPayout.Handle(ctx, &command.SyncPayoutStatus{PayoutID: p.ID()}); err != nil {
			s.logger.Warn("payout poll failed", zap.String("payout_id", p.ID()), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

func (s *PayoutReconciliationService) resumeStale(ctx context.Context) int {
	payouts, err := s.listPayouts(ctx, aggregate.PayoutStatusPending)
	if err != nil {
		s.logger.Error("failed to list pending payouts", zap.Error(err))
		return 0
	}

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	count := 0
	for _, p := range payouts {
		if p.CreatedAt().After(cutoff) {
			continue
		}
		if _, err := s.requestPayout.Resume(ctx, p.ID()); err != nil {
			s.logger.Warn("stale payout resume failed", zap.String("payout_id", p.ID()), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

func (s *PayoutReconciliationService) syncAccounts(ctx context.Context) int {
	count := 0
	for _, status := range []aggregate.AccountStatus{aggregate.AccountStatusPending, aggregate.AccountStatusRestricted} {
		accounts, err := s.listAccounts(ctx, status)
		if err != nil {
			s.logger.Error("failed to list accounts", zap.String("status", string(status)), zap.Error(err))
			continue
		}
		for _, a := range accounts {
			if !a.IsLinked() {
				continue
			}
			if _, err := s.syncAccount.Handle(ctx, &command.SyncAccountStatus{AccountID: a.ID()}); err != nil {
				s.logger.Warn("account sync failed", zap.String("account_id", a.ID()), zap.Error(err))
				continue
			}
			count++
		}
	}
	return count
}

func (s *PayoutReconciliationService) listPayouts(ctx context.Context, status aggregate.PayoutStatus) ([]*aggregate.Payout, error) {
	uow := s.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	var all []*aggregate.Payout
	for offset := 0; ; offset += reconcilePageSize {
		page, err := uow.PayoutRepository().ListByStatus(ctx, status, offset, reconcilePageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < reconcilePageSize {
			return all, nil
		}
	}
}

func (s *PayoutReconciliationService) listAccounts(ctx context.Context, status aggregate.AccountStatus) ([]*aggregate.PayoutAccount, error) {
	uow := s.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	var all []*aggregate.PayoutAccount
	for offset := 0; ; offset += reconcilePageSize {
		page, err := uow.PayoutAccountRepository().ListByStatus(ctx, status, offset, reconcilePageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < reconcilePageSize {
			return all, nil
		}
	}
}
