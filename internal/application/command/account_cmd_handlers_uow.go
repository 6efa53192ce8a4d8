package command

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// applyAccountStatus moves the account and, on rejection, cancels every open payout with a
// reversal credit. Unchanged status returns false.
func applyAccountStatus(ctx context.Context, scope *txScope, account *aggregate.PayoutAccount, next aggregate.AccountStatus, data json.RawMessage) (bool, error) {
	account.ReplaceData(data)
	changed := false
	if next != "" {
		var err error
		if changed, err = account.TransitionTo(next); err != nil {
			return false, err
		}
	}
	if err := scope.PayoutAccountRepository().Save(ctx, account); err != nil {
		return false, err
	}
	scope.collect(account)

	if !changed || next != aggregate.AccountStatusRejected {
		return changed, nil
	}

	open, err := scope.PayoutRepository().ListByAccountAndStatus(ctx, account.ID(),
		[]aggregate.PayoutStatus{aggregate.PayoutStatusPending, aggregate.PayoutStatusProcessing})
	if err != nil {
		return false, err
	}
	for _, payout := range open {
		if _, err := settlePayout(ctx, scope, payout, provider.ActionPayoutCanceled, "", "payout account rejected", nil); err != nil {
			return false, fmt.Errorf("cancel payout %s: %w", payout.ID(), err)
		}
	}
	return true, nil
}

// ============================================
// Create Payout Account Handler (UoW)
// ============================================

// OnboardingView is what a seller receives after starting onboarding
type OnboardingView struct {
	Account    *aggregate.PayoutAccount
	Onboarding *aggregate.Onboarding
	URL        string
}

// CreatePayoutAccountWithUoWHandler links a seller to the payout provider
type CreatePayoutAccountWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	providers  *provider.Registry
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewCreatePayoutAccountWithUoWHandler creates a new create payout account handler with UoW
func NewCreatePayoutAccountWithUoWHandler(uowFactory repository.UnitOfWorkFactory, providers *provider.Registry, publisher EventPublisher, logger *zap.Logger) *CreatePayoutAccountWithUoWHandler {
	return &CreatePayoutAccountWithUoWHandler{
		uowFactory: uowFactory,
		providers:  providers,
		publisher:  publisher,
		logger:     logger.Named("account"),
	}
}

// Handle creates the local account if needed, asks the provider for an account and an onboarding
// link, then stores both. Provider calls run outside any transaction. Calling it again reuses the
// provider account and refreshes the onboarding link.
func (h *CreatePayoutAccountWithUoWHandler) Handle(ctx context.Context, cmd *CreatePayoutAccount) (*OnboardingView, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var account *aggregate.PayoutAccount
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		var err error
		account, err = ensureSellerAccount(ctx, scope, cmd.SellerID, h.providers.Default().Name())
		if err != nil {
			return err
		}
		if account.Status() == aggregate.AccountStatusRejected {
			return fmt.Errorf("%w: payout account %s is rejected", aggregate.ErrInvalidTransition, account.ID())
		}
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}
	publishEvents(ctx, h.publisher, h.logger, events)

	adapter, err := h.providers.Get(account.Provider())
	if err != nil {
		return nil, errors.NewInternalError(err.Error()).WithCause(err)
	}

	referenceID, accountData := account.ReferenceID(), account.Data()
	var initialStatus aggregate.AccountStatus
	if !account.IsLinked() {
		created, err := adapter.CreatePayoutAccount(ctx, provider.CreateAccountInput{
			AccountID: account.ID(),
			SellerID:  account.SellerID(),
			Context:   cmd.Context,
		})
		if err != nil {
			h.logger.Error("provider account creation failed", zap.String("account_id", account.ID()), zap.Error(err))
			return nil, errors.NewProviderError(err.Error(), err)
		}
		referenceID, accountData, initialStatus = created.ID, created.Data, created.Status
	}

	link, err := adapter.CreateOnboarding(ctx, provider.OnboardingInput{
		AccountID:   account.ID(),
		ReferenceID: referenceID,
		AccountData: accountData,
		Context:     cmd.Context,
	})
	if err != nil {
		h.logger.Error("provider onboarding failed", zap.String("account_id", account.ID()), zap.Error(err))
		return nil, errors.NewProviderError(err.Error(), err)
	}

	view := &OnboardingView{URL: link.URL}
	events, err = runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		current, err := scope.PayoutAccountRepository().GetByID(ctx, account.ID())
		if err != nil {
			return err
		}
		if !current.IsLinked() {
			if err := current.LinkProvider(adapter.Name(), referenceID, accountData); err != nil {
				return err
			}
		}
		if err := scope.PayoutAccountRepository().Save(ctx, current); err != nil {
			return err
		}
		scope.collect(current)

		if initialStatus != "" && initialStatus != current.Status() {
			if _, err := applyAccountStatus(ctx, scope, current, initialStatus, nil); err != nil {
				return err
			}
		}

		onboarding, err := scope.OnboardingRepository().GetByAccountID(ctx, current.ID())
		switch {
		case err == nil:
			onboarding.Refresh(link.Data, cmd.Context)
		case stderrors.Is(err, repository.ErrNotFound):
			onboarding, err = aggregate.NewOnboarding(uuid.New().String(), current.ID(), link.Data, cmd.Context)
			if err != nil {
				return errors.NewValidationError(err.Error())
			}
		default:
			return err
		}
		if err := scope.OnboardingRepository().Save(ctx, onboarding); err != nil {
			return err
		}
		scope.collect(onboarding)

		view.Account, view.Onboarding = current, onboarding
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}

	h.logger.Info("onboarding started",
		zap.String("account_id", account.ID()),
		zap.String("seller_id", account.SellerID()),
		zap.String("provider", adapter.Name()),
	)
	publishEvents(ctx, h.publisher, h.logger, events)
	return view, nil
}

// ============================================
// Sync Account Status Handler (UoW)
// ============================================

// SyncAccountStatusWithUoWHandler pulls an account's status from its provider
type SyncAccountStatusWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	providers  *provider.Registry
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewSyncAccountStatusWithUoWHandler creates a new sync account status handler with UoW
func NewSyncAccountStatusWithUoWHandler(uowFactory repository.UnitOfWorkFactory, providers *provider.Registry, publisher EventPublisher, logger *zap.Logger) *SyncAccountStatusWithUoWHandler {
	return &SyncAccountStatusWithUoWHandler{
		uowFactory: uowFactory,
		providers:  providers,
		publisher:  publisher,
		logger:     logger.Named("account"),
	}
}

// Handle returns the account after the sync. Accounts not yet linked are returned unchanged.
// A provider status the state machine does not allow is logged and ignored.
func (h *SyncAccountStatusWithUoWHandler) Handle(ctx context.Context, cmd *SyncAccountStatus) (*aggregate.PayoutAccount, error) {
	if cmd == nil || (cmd.AccountID == "" && cmd.SellerID == "") {
		return nil, errors.NewValidationError("account_id or seller_id is required")
	}

	account, err := h.load(ctx, cmd)
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}
	if !account.IsLinked() || account.Status() == aggregate.AccountStatusRejected {
		return account, nil
	}

	adapter, err := h.providers.Get(account.Provider())
	if err != nil {
		return nil, errors.NewInternalError(err.Error()).WithCause(err)
	}
	status, err := adapter.GetAccountStatus(ctx, provider.AccountStatusInput{
		AccountID:   account.ID(),
		ReferenceID: account.ReferenceID(),
		AccountData: account.Data(),
	})
	if err != nil {
		return nil, errors.NewProviderError(err.Error(), err)
	}

	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		account, err = scope.PayoutAccountRepository().GetByID(ctx, account.ID())
		if err != nil {
			return err
		}
		_, err = applyAccountStatus(ctx, scope, account, status.Status, status.Data)
		if stderrors.Is(err, aggregate.ErrInvalidTransition) {
			h.logger.Warn("ignoring provider account status",
				zap.String("account_id", account.ID()),
				zap.String("current", string(account.Status())),
				zap.String("reported", string(status.Status)),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return account, nil
}

func (h *SyncAccountStatusWithUoWHandler) load(ctx context.Context, cmd *SyncAccountStatus) (*aggregate.PayoutAccount, error) {
	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()
	if cmd.AccountID != "" {
		return uow.PayoutAccountRepository().GetByID(ctx, cmd.AccountID)
	}
	return uow.PayoutAccountRepository().GetBySellerID(ctx, cmd.SellerID)
}
