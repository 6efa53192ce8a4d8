package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// WebhookDeduplicator remembers which provider deliveries were already processed
type WebhookDeduplicator interface {
	// Claim returns false when the event was claimed before
	Claim(ctx context.Context, providerName, eventID string) (bool, error)
	// Release forgets a claim so a redelivery is processed again
	Release(ctx context.Context, providerName, eventID string) error
}

var accountTargets = map[provider.WebhookAction]aggregate.AccountStatus{
	provider.ActionAccountActivated:  aggregate.AccountStatusActive,
	provider.ActionAccountRestricted: aggregate.AccountStatusRestricted,
	provider.ActionAccountRejected:   aggregate.AccountStatusRejected,
}

// WebhookOutcome tells the caller what a delivery did
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// ============================================
// Process Webhook Event Handler (UoW)
// ============================================

// ProcessWebhookEventWithUoWHandler applies provider webhooks to accounts and payouts
type ProcessWebhookEventWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	providers  *provider.Registry
	dedup      WebhookDeduplicator
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewProcessWebhookEventWithUoWHandler creates a new process webhook event handler with UoW
func NewProcessWebhookEventWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	providers *provider.Registry,
	dedup WebhookDeduplicator,
	publisher EventPublisher,
	logger *zap.Logger,
) *ProcessWebhookEventWithUoWHandler {
	return &ProcessWebhookEventWithUoWHandler{
		uowFactory: uowFactory,
		providers:  providers,
		dedup:      dedup,
		publisher:  publisher,
		logger:     logger.Named("webhook"),
	}
}

// Handle verifies and maps the delivery, then applies it once. Unknown actions, unknown targets
// and transitions the state machines refuse are logged and acknowledged. Storage failures release
// the claim and return an error so the provider redelivers.
func (h *ProcessWebhookEventWithUoWHandler) Handle(ctx context.Context, cmd *ProcessWebhookEvent) (WebhookOutcome, error) {
	if cmd == nil || len(cmd.Body) == 0 {
		return "", errors.NewValidationError("webhook body is required")
	}
	adapter, err := h.providers.Get(cmd.Provider)
	if err != nil {
		return "", errors.NewNotFoundError("payout provider")
	}

	result, err := adapter.GetWebhookActionAndData(ctx, provider.WebhookPayload{Body: cmd.Body, Headers: cmd.Headers})
	if err != nil {
		if stderrors.Is(err, provider.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", zap.String("provider", cmd.Provider))
			return "", errors.NewValidationError("invalid webhook signature").WithCause(err)
		}
		return "", errors.NewValidationError("malformed webhook: " + err.Error()).WithCause(err)
	}

	eventID := result.EventID
	if eventID == "" {
		sum := sha256.Sum256(cmd.Body)
		eventID = "sha256:" + hex.EncodeToString(sum[:])
	}
	logFields := []zap.Field{
		zap.String("provider", adapter.Name()),
		zap.String("event_id", eventID),
		zap.String("action", string(result.Action)),
	}

	if h.dedup != nil {
		claimed, err := h.dedup.Claim(ctx, adapter.Name(), eventID)
		if err != nil {
			return "", errors.NewServiceUnavailableError("webhook deduplication unavailable").WithCause(err)
		}
		if !claimed {
			h.logger.Info("duplicate webhook delivery", logFields...)
			return WebhookDuplicate, nil
		}
	}

	outcome, err := h.apply(ctx, adapter.Name(), result)
	if err != nil {
		h.logger.Error("webhook processing failed", append(logFields, zap.Error(err))...)
		if h.dedup != nil {
			if releaseErr := h.dedup.Release(ctx, adapter.Name(), eventID); releaseErr != nil {
				h.logger.Warn("failed to release webhook claim", append(logFields, zap.Error(releaseErr))...)
			}
		}
		return "", toApplicationError(err, "webhook target")
	}

	h.logger.Info("webhook processed", append(logFields, zap.String("outcome", string(outcome)))...)
	return outcome, nil
}

func (h *ProcessWebhookEventWithUoWHandler) apply(ctx context.Context, providerName string, result *provider.WebhookResult) (WebhookOutcome, error) {
	switch {
	case accountTargets[result.Action] != "":
		return h.applyAccount(ctx, providerName, result)
	case payoutTargets[result.Action] != "":
		return h.applyPayout(ctx, result)
	}
	h.logger.Info("ignoring unrecognized webhook action",
		zap.String("provider", providerName),
		zap.String("action", string(result.Action)),
	)
	return WebhookIgnored, nil
}

func (h *ProcessWebhookEventWithUoWHandler) applyAccount(ctx context.Context, providerName string, result *provider.WebhookResult) (WebhookOutcome, error) {
	outcome := WebhookApplied
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		outcome = WebhookApplied
		accounts := scope.PayoutAccountRepository()

		var account *aggregate.PayoutAccount
		var err error
		if result.AccountID != "" {
			account, err = accounts.GetByID(ctx, result.AccountID)
		} else {
			account, err = accounts.GetByReference(ctx, providerName, result.AccountReference)
		}
		if stderrors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("webhook for unknown payout account",
				zap.String("account_id", result.AccountID),
				zap.String("reference", result.AccountReference),
			)
			outcome = WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}

		_, err = applyAccountStatus(ctx, scope, account, accountTargets[result.Action], result.Data)
		if stderrors.Is(err, aggregate.ErrInvalidTransition) {
			h.logger.Warn("webhook transition refused", zap.String("account_id", account.ID()), zap.Error(err))
			outcome = WebhookIgnored
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	publishEvents(ctx, h.publisher, h.logger, events)
	return outcome, nil
}

func (h *ProcessWebhookEventWithUoWHandler) applyPayout(ctx context.Context, result *provider.WebhookResult) (WebhookOutcome, error) {
	outcome := WebhookApplied
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		outcome = WebhookApplied
		payouts := scope.PayoutRepository()

		var payout *aggregate.Payout
		var err error
		if result.PayoutID != "" {
			payout, err = payouts.GetByID(ctx, result.PayoutID)
		} else {
			payout, err = payouts.GetByProviderReference(ctx, result.PayoutReference)
		}
		if stderrors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("webhook for unknown payout",
				zap.String("payout_id", result.PayoutID),
				zap.String("reference", result.PayoutReference),
			)
			outcome = WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}

		reason := result.Reason
		if reason == "" && result.Action != provider.ActionPayoutPaid {
			reason = strings.TrimPrefix(string(result.Action), "payout.") + " by provider"
		}
		_, err = settlePayout(ctx, scope, payout, result.Action, result.PayoutReference, reason, result.Data)
		if stderrors.Is(err, aggregate.ErrInvalidTransition) {
			h.logger.Warn("webhook transition refused", zap.String("payout_id", payout.ID()), zap.Error(err))
			outcome = WebhookIgnored
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	publishEvents(ctx, h.publisher, h.logger, events)
	return outcome, nil
}
