package command

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// payoutNamespace scopes payout ids derived from client idempotency keys
var payoutNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("marketplace-settlement/payout"))

// PayoutIDFor returns the payout id a request maps to. Requests carrying the same idempotency key
// for the same account always map to the same payout.
func PayoutIDFor(accountID, idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(payoutNamespace, []byte(accountID+"|"+idempotencyKey)).String()
}

var payoutTargets = map[provider.WebhookAction]aggregate.PayoutStatus{
	provider.ActionPayoutProcessing: aggregate.PayoutStatusProcessing,
	provider.ActionPayoutPaid:       aggregate.PayoutStatusPaid,
	provider.ActionPayoutFailed:     aggregate.PayoutStatusFailed,
	provider.ActionPayoutCanceled:   aggregate.PayoutStatusCanceled,
}

// settlePayout applies a provider outcome to a payout. Failed and canceled payouts credit back
// whatever has not been reversed yet. Reporting the current status again changes nothing.
func settlePayout(
	ctx context.Context,
	scope *txScope,
	payout *aggregate.Payout,
	action provider.WebhookAction,
	reference, reason string,
	data json.RawMessage,
) (bool, error) {
	target, ok := payoutTargets[action]
	if !ok {
		return false, fmt.Errorf("unsupported payout action %q", action)
	}

	attached := payout.AttachProviderReference(reference)
	if payout.Status() == target {
		if !attached {
			return false, nil
		}
		payout.ReplaceData(data)
		return false, scope.PayoutRepository().Save(ctx, payout)
	}

	var err error
	switch target {
	case aggregate.PayoutStatusProcessing:
		err = payout.MarkAsProcessing(reference, data)
	case aggregate.PayoutStatusPaid:
		if payout.Status() == aggregate.PayoutStatusPending {
			if err = payout.MarkAsProcessing(reference, data); err != nil {
				return false, err
			}
		}
		payout.ReplaceData(data)
		err = payout.MarkAsPaid()
	case aggregate.PayoutStatusFailed:
		payout.ReplaceData(data)
		err = payout.MarkAsFailed(reason)
	case aggregate.PayoutStatusCanceled:
		payout.ReplaceData(data)
		err = payout.Cancel(reason)
	}
	if err != nil {
		return false, err
	}

	if target == aggregate.PayoutStatusFailed || target == aggregate.PayoutStatusCanceled {
		if err := creditPayout(ctx, scope, payout, payout.Amount().Sub(payout.ReversedAmount())); err != nil {
			return false, err
		}
	}

	if err := scope.PayoutRepository().Save(ctx, payout); err != nil {
		return false, err
	}
	scope.collect(payout)
	return true, nil
}

// creditPayout books a reversal of amount against the payout and credits the seller
func creditPayout(ctx context.Context, scope *txScope, payout *aggregate.Payout, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := payout.RecordReversal(amount); err != nil {
		return err
	}
	_, err := applyDelta(ctx, scope, payoutDebit(payout, amount).Inverse(aggregate.ReferenceReversal, payout.ID()))
	return err
}

// payoutDebit is the guarded ledger entry that takes amount of payout out of the balance
func payoutDebit(payout *aggregate.Payout, amount decimal.Decimal) aggregate.BalanceDelta {
	return aggregate.BalanceDelta{
		AccountID:    payout.AccountID(),
		CurrencyCode: payout.CurrencyCode(),
		Amount:       amount.Neg(),
		Reference:    aggregate.ReferencePayout,
		ReferenceID:  payout.ID(),
		RequireFunds: true,
	}
}

// ============================================
// Request Payout Handler (UoW)
// ============================================

// RequestPayoutWithUoWHandler debits a balance and hands the payout to the provider
type RequestPayoutWithUoWHandler struct {
	uowFactory      repository.UnitOfWorkFactory
	providers       *provider.Registry
	publisher       EventPublisher
	providerTimeout time.Duration
	logger          *zap.Logger
}

// NewRequestPayoutWithUoWHandler creates a new request payout handler with UoW
func NewRequestPayoutWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	providers *provider.Registry,
	publisher EventPublisher,
	providerTimeout time.Duration,
	logger *zap.Logger,
) *RequestPayoutWithUoWHandler {
	if providerTimeout <= 0 {
		providerTimeout = 15 * time.Second
	}
	return &RequestPayoutWithUoWHandler{
		uowFactory:      uowFactory,
		providers:       providers,
		publisher:       publisher,
		providerTimeout: providerTimeout,
		logger:          logger.Named("payout"),
	}
}

// Handle runs the payout in three steps: a transaction that debits the balance and stores the
// pending payout, the provider call, and a transaction that records the outcome. A refused call
// fails the payout and credits the debit back. A call that times out leaves the payout processing
// for the webhook or the reconciliation poller.
func (h *RequestPayoutWithUoWHandler) Handle(ctx context.Context, cmd *RequestPayout) (*aggregate.Payout, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, errors.NewValidationError("payout amount must be positive")
	}

	payoutID := PayoutIDFor(cmd.AccountID, cmd.IdempotencyKey)
	var (
		payout  *aggregate.Payout
		account *aggregate.PayoutAccount
		replay  bool
	)
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		replay = false
		accounts, payouts := scope.PayoutAccountRepository(), scope.PayoutRepository()

		existing, err := payouts.GetByID(ctx, payoutID)
		if err == nil {
			if !existing.Amount().Equal(cmd.Amount) || existing.CurrencyCode() != aggregate.NormalizeCurrency(cmd.CurrencyCode) {
				return errors.NewConflictError("idempotency key was already used for a different payout")
			}
			payout, replay = existing, true
			account, err = accounts.GetByID(ctx, existing.AccountID())
			return err
		}
		if !stderrors.Is(err, repository.ErrNotFound) {
			return err
		}

		account, err = accounts.GetByID(ctx, cmd.AccountID)
		if err != nil {
			return err
		}
		if err := account.EnsureCanReceivePayout(); err != nil {
			return err
		}

		payout, err = aggregate.NewPayout(payoutID, account.ID(), cmd.OrderID, cmd.CurrencyCode, cmd.Amount, cmd.IdempotencyKey)
		if err != nil {
			return errors.NewValidationError(err.Error())
		}
		if _, err := applyDelta(ctx, scope, payoutDebit(payout, payout.Amount())); err != nil {
			return err
		}
		if err := payouts.Create(ctx, payout); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("payout %s created concurrently: %w", payoutID, repository.ErrTransactionConflict)
			}
			return err
		}
		scope.collect(payout)
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}
	publishEvents(ctx, h.publisher, h.logger, events)

	if replay {
		h.logger.Info("payout request replayed", zap.String("payout_id", payout.ID()), zap.String("status", string(payout.Status())))
		if payout.Status() != aggregate.PayoutStatusPending {
			return payout, nil
		}
	}
	return h.dispatch(ctx, account, payout)
}

// Resume sends a payout left pending (e.g. by a crash between the debit and the provider call)
// to the provider. Payouts in any other status are returned as they are.
func (h *RequestPayoutWithUoWHandler) Resume(ctx context.Context, payoutID string) (*aggregate.Payout, error) {
	uow := h.uowFactory.CreateUnitOfWork()
	payout, err := uow.PayoutRepository().GetByID(ctx, payoutID)
	if err != nil {
		uow.Close()
		return nil, toApplicationError(err, "payout")
	}
	account, err := uow.PayoutAccountRepository().GetByID(ctx, payout.AccountID())
	uow.Close()
	if err != nil {
		return nil, toApplicationError(err, "payout account")
	}

	if payout.Status() != aggregate.PayoutStatusPending {
		return payout, nil
	}
	return h.dispatch(ctx, account, payout)
}

// awaitingProvider reports whether the provider has not acknowledged the payout yet: it is pending,
// or a call timed out before any provider reference came back.
func awaitingProvider(p *aggregate.Payout) bool {
	switch p.Status() {
	case aggregate.PayoutStatusPending:
		return true
	case aggregate.PayoutStatusProcessing:
		return p.ProviderReference() == ""
	}
	return false
}

func (h *RequestPayoutWithUoWHandler) dispatch(ctx context.Context, account *aggregate.PayoutAccount, payout *aggregate.Payout) (*aggregate.Payout, error) {
	adapter, err := h.providers.Get(account.Provider())
	if err != nil {
		return nil, errors.NewInternalError(err.Error()).WithCause(err)
	}

	// the outcome must be recorded even when the requester has gone away
	recordCtx := context.WithoutCancel(ctx)

	var callErr error
	var s saga
	s.onFailure(func(ctx context.Context) error {
		_, err := h.record(ctx, payout.ID(), func(scope *txScope, p *aggregate.Payout) error {
			if !awaitingProvider(p) {
				return nil
			}
			_, err := settlePayout(ctx, scope, p, provider.ActionPayoutFailed, "", callErr.Error(), nil)
			return err
		})
		return err
	})

	callCtx, cancel := context.WithTimeout(ctx, h.providerTimeout)
	result, callErr := adapter.CreatePayout(callCtx, provider.CreatePayoutInput{
		PayoutID:     payout.ID(),
		AccountID:    account.ID(),
		OrderID:      payout.OrderID(),
		ReferenceID:  account.ReferenceID(),
		AccountData:  account.Data(),
		Amount:       payout.Amount(),
		CurrencyCode: payout.CurrencyCode(),
	}, payout.ProviderIdempotencyKey())
	cancel()

	logFields := []zap.Field{
		zap.String("payout_id", payout.ID()),
		zap.String("account_id", account.ID()),
		zap.String("provider", adapter.Name()),
	}

	switch {
	case callErr == nil:
		return h.record(recordCtx, payout.ID(), func(scope *txScope, p *aggregate.Payout) error {
			if !awaitingProvider(p) {
				return nil
			}
			_, err := settlePayout(recordCtx, scope, p, provider.ActionPayoutProcessing, result.ID, "", result.Data)
			if err != nil {
				return err
			}
			switch result.Status {
			case aggregate.PayoutStatusPaid:
				_, err = settlePayout(recordCtx, scope, p, provider.ActionPayoutPaid, result.ID, "", nil)
			case aggregate.PayoutStatusFailed:
				_, err = settlePayout(recordCtx, scope, p, provider.ActionPayoutFailed, result.ID, "refused by provider", nil)
			}
			return err
		})

	case provider.IsTimeout(callErr) || stderrors.Is(callErr, context.Canceled):
		h.logger.Warn("payout provider call ended without an answer, awaiting webhook or poll", append(logFields, zap.Error(callErr))...)
		return h.record(recordCtx, payout.ID(), func(scope *txScope, p *aggregate.Payout) error {
			if !awaitingProvider(p) {
				return nil
			}
			_, err := settlePayout(recordCtx, scope, p, provider.ActionPayoutProcessing, "", "", nil)
			return err
		})

	default:
		h.logger.Error("payout provider call failed", append(logFields, zap.Error(callErr))...)
		if err := s.compensate(recordCtx); err != nil {
			h.logger.Error("payout compensation failed, left pending for reconciliation", append(logFields, zap.Error(err))...)
		}
		return nil, errors.NewProviderError(errors.PayoutRetryMessage, callErr)
	}
}

// record reloads the payout inside a transaction and applies fn to it
func (h *RequestPayoutWithUoWHandler) record(ctx context.Context, payoutID string, fn func(scope *txScope, p *aggregate.Payout) error) (*aggregate.Payout, error) {
	var payout *aggregate.Payout
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		var err error
		if payout, err = scope.PayoutRepository().GetByID(ctx, payoutID); err != nil {
			return err
		}
		return fn(scope, payout)
	})
	if err != nil {
		return nil, toApplicationError(err, "payout")
	}
	publishEvents(ctx, h.publisher, h.logger, events)
	return payout, nil
}

// ============================================
// Reverse Payout Handler (UoW)
// ============================================

// ReversePayoutWithUoWHandler credits payouts back to the seller balance
type ReversePayoutWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewReversePayoutWithUoWHandler creates a new reverse payout handler with UoW
func NewReversePayoutWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, logger *zap.Logger) *ReversePayoutWithUoWHandler {
	return &ReversePayoutWithUoWHandler{uowFactory: uowFactory, publisher: publisher, logger: logger.Named("payout")}
}

// Handle cancels open payouts with a full credit. Paid payouts only get a ledger credit, capped by
// the amount minus what earlier reversals of the same payouts credited, so redelivered
// cancellations credit nothing twice. A zero amount reverses everything that remains.
func (h *ReversePayoutWithUoWHandler) Handle(ctx context.Context, cmd *ReversePayout) ([]*aggregate.Payout, error) {
	if cmd == nil || (cmd.PayoutID == "" && cmd.OrderID == "") {
		return nil, errors.NewValidationError("payout_id or order_id is required")
	}
	if cmd.Amount.IsNegative() {
		return nil, errors.NewValidationError("reversal amount cannot be negative")
	}
	currency := aggregate.NormalizeCurrency(cmd.CurrencyCode)
	reason := cmd.Reason
	if reason == "" {
		reason = "reversed"
	}

	var touched []*aggregate.Payout
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		touched = touched[:0]
		targets, err := h.targets(ctx, scope, cmd.PayoutID, cmd.OrderID)
		if err != nil {
			return err
		}

		// the amount caps ledger credits on paid payouts; earlier runs already used part of it
		budget, limited := cmd.Amount, cmd.Amount.IsPositive()
		for _, payout := range targets {
			if payout.Status() == aggregate.PayoutStatusPaid && (currency == "" || payout.CurrencyCode() == currency) {
				budget = budget.Sub(payout.ReversedAmount())
			}
		}

		for _, payout := range targets {
			if currency != "" && payout.CurrencyCode() != currency {
				if cmd.PayoutID != "" {
					return fmt.Errorf("%w: payout %s is in %s", aggregate.ErrCurrencyMismatch, payout.ID(), payout.CurrencyCode())
				}
				continue
			}
			remaining := payout.Amount().Sub(payout.ReversedAmount())
			if !remaining.IsPositive() {
				continue
			}

			switch payout.Status() {
			case aggregate.PayoutStatusPending, aggregate.PayoutStatusProcessing:
				if _, err := settlePayout(ctx, scope, payout, provider.ActionPayoutCanceled, "", reason, nil); err != nil {
					return err
				}
			case aggregate.PayoutStatusPaid:
				amount := remaining
				if limited && budget.LessThan(amount) {
					amount = budget
				}
				if !amount.IsPositive() {
					continue
				}
				if err := creditPayout(ctx, scope, payout, amount); err != nil {
					return err
				}
				if err := scope.PayoutRepository().Save(ctx, payout); err != nil {
					return err
				}
				scope.collect(payout)
				budget = budget.Sub(amount)
			default:
				continue
			}
			touched = append(touched, payout)
		}
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "payout")
	}

	h.logger.Info("payouts reversed",
		zap.String("payout_id", cmd.PayoutID),
		zap.String("order_id", cmd.OrderID),
		zap.Int("count", len(touched)),
	)
	publishEvents(ctx, h.publisher, h.logger, events)
	return touched, nil
}

func (h *ReversePayoutWithUoWHandler) targets(ctx context.Context, scope *txScope, payoutID, orderID string) ([]*aggregate.Payout, error) {
	if payoutID != "" {
		payout, err := scope.PayoutRepository().GetByID(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		if payout.Status() == aggregate.PayoutStatusFailed || payout.Status() == aggregate.PayoutStatusCanceled {
			// already credited in full
			return nil, nil
		}
		return []*aggregate.Payout{payout}, nil
	}

	payouts, err := scope.PayoutRepository().ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	open := payouts[:0]
	for _, p := range payouts {
		if p.Status() != aggregate.PayoutStatusFailed && p.Status() != aggregate.PayoutStatusCanceled {
			open = append(open, p)
		}
	}
	return open, nil
}

// ============================================
// Sync Payout Status Handler (UoW)
// ============================================

var statusActions = map[aggregate.PayoutStatus]provider.WebhookAction{
	aggregate.PayoutStatusProcessing: provider.ActionPayoutProcessing,
	aggregate.PayoutStatusPaid:       provider.ActionPayoutPaid,
	aggregate.PayoutStatusFailed:     provider.ActionPayoutFailed,
	aggregate.PayoutStatusCanceled:   provider.ActionPayoutCanceled,
}

// SyncPayoutStatusWithUoWHandler settles a processing payout from a provider poll
type SyncPayoutStatusWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	providers  *provider.Registry
	sender     *RequestPayoutWithUoWHandler
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewSyncPayoutStatusWithUoWHandler creates a new sync payout status handler with UoW. Payouts the
// provider never received are sent again through sender.
func NewSyncPayoutStatusWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	providers *provider.Registry,
	sender *RequestPayoutWithUoWHandler,
	publisher EventPublisher,
	logger *zap.Logger,
) *SyncPayoutStatusWithUoWHandler {
	return &SyncPayoutStatusWithUoWHandler{uowFactory: uowFactory, providers: providers, sender: sender, publisher: publisher, logger: logger.Named("payout")}
}

// Handle applies the polled status through the same transitions webhooks use. A payout whose
// provider call timed out before the provider saw it is sent again under the same idempotency key.
func (h *SyncPayoutStatusWithUoWHandler) Handle(ctx context.Context, cmd *SyncPayoutStatus) (*aggregate.Payout, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	uow := h.uowFactory.CreateUnitOfWork()
	payout, err := uow.PayoutRepository().GetByID(ctx, cmd.PayoutID)
	var account *aggregate.PayoutAccount
	if err == nil {
		account, err = uow.PayoutAccountRepository().GetByID(ctx, payout.AccountID())
	}
	uow.Close()
	if err != nil {
		return nil, toApplicationError(err, "payout")
	}
	if payout.Status() != aggregate.PayoutStatusProcessing {
		return payout, nil
	}

	adapter, err := h.providers.Get(account.Provider())
	if err != nil {
		return nil, errors.NewInternalError(err.Error()).WithCause(err)
	}
	status, err := adapter.GetPayoutStatus(ctx, provider.PayoutStatusInput{
		PayoutID:         payout.ID(),
		Reference:        payout.ProviderReference(),
		AccountReference: account.ReferenceID(),
		Data:             payout.Data(),
	})
	if err != nil {
		return nil, errors.NewProviderError(err.Error(), err)
	}
	if status.Status == aggregate.PayoutStatusPending && awaitingProvider(payout) && h.sender != nil {
		h.logger.Warn("payout unknown to provider, sending again",
			zap.String("payout_id", payout.ID()),
			zap.String("provider", adapter.Name()),
		)
		return h.sender.dispatch(ctx, account, payout)
	}

	action, ok := statusActions[status.Status]
	if !ok {
		return payout, nil
	}

	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		if payout, err = scope.PayoutRepository().GetByID(ctx, cmd.PayoutID); err != nil {
			return err
		}
		_, err := settlePayout(ctx, scope, payout, action, "", status.FailureReason, status.Data)
		if stderrors.Is(err, aggregate.ErrInvalidTransition) {
			h.logger.Warn("ignoring polled payout status",
				zap.String("payout_id", payout.ID()),
				zap.String("current", string(payout.Status())),
				zap.String("reported", string(status.Status)),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, toApplicationError(err, "payout")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return payout, nil
}
