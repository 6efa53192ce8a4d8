package command

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/event"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// applyDelta appends the ledger entry and updates the balance inside the caller's transaction
func applyDelta(ctx context.Context, scope *txScope, delta aggregate.BalanceDelta) (*aggregate.PayoutBalance, error) {
	delta.CurrencyCode = aggregate.NormalizeCurrency(delta.CurrencyCode)
	if err := delta.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	now := time.Now().UTC()
	tx := aggregate.NewPayoutTransaction(uuid.New().String(), delta, now)
	balance, err := scope.BalanceRepository().ApplyDelta(ctx, tx, delta)
	if err != nil {
		if stderrors.Is(err, aggregate.ErrInsufficientFunds) {
			return nil, errors.NewInsufficientBalanceError(err.Error()).WithCause(err)
		}
		return nil, err
	}

	scope.events = append(scope.events, &event.PayoutBalanceChanged{
		AccountID:     delta.AccountID,
		CurrencyCode:  delta.CurrencyCode,
		TransactionID: tx.ID,
		Delta:         delta.Amount,
		Balance:       balance.Balance,
		Reference:     string(delta.Reference),
		ReferenceID:   delta.ReferenceID,
		Timestamp:     now,
	})
	return balance, nil
}

// ============================================
// Apply Balance Delta Handler (UoW)
// ============================================

// ApplyBalanceDeltaWithUoWHandler applies one standalone delta, e.g. an operator adjustment
type ApplyBalanceDeltaWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewApplyBalanceDeltaWithUoWHandler creates a new apply balance delta handler with UoW
func NewApplyBalanceDeltaWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, logger *zap.Logger) *ApplyBalanceDeltaWithUoWHandler {
	return &ApplyBalanceDeltaWithUoWHandler{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     logger.Named("balance"),
	}
}

// Handle applies the delta and returns the resulting balance
func (h *ApplyBalanceDeltaWithUoWHandler) Handle(ctx context.Context, cmd *ApplyBalanceDelta) (*aggregate.PayoutBalance, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var balance *aggregate.PayoutBalance
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		if _, err := scope.PayoutAccountRepository().GetByID(ctx, cmd.AccountID); err != nil {
			return err
		}
		var err error
		balance, err = applyDelta(ctx, scope, aggregate.BalanceDelta{
			AccountID:    cmd.AccountID,
			CurrencyCode: cmd.CurrencyCode,
			Amount:       cmd.Amount,
			RawAmount:    cmd.RawAmount,
			Reference:    cmd.Reference,
			ReferenceID:  cmd.ReferenceID,
		})
		return err
	})
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return balance, nil
}
