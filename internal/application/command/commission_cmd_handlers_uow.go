package command

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/commission"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

// ensureSellerAccount returns the seller's payout account, creating a pending one on first accrual.
// A concurrent creation surfaces as a transaction conflict so the caller retries and finds it.
func ensureSellerAccount(ctx context.Context, scope *txScope, sellerID, providerName string) (*aggregate.PayoutAccount, error) {
	accounts := scope.PayoutAccountRepository()
	account, err := accounts.GetBySellerID(ctx, sellerID)
	if err == nil {
		return account, nil
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	account, err = aggregate.NewPayoutAccount(uuid.New().String(), sellerID, providerName, nil)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if err := accounts.Create(ctx, account); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("payout account for seller %s created concurrently: %w", sellerID, repository.ErrTransactionConflict)
		}
		return nil, err
	}
	scope.collect(account)
	return account, nil
}

// recordCommission inserts the line and books the negative commission delta
func recordCommission(ctx context.Context, scope *txScope, accountID string, cmd *RecordCommission) (*aggregate.CommissionLine, error) {
	line, err := aggregate.NewCommissionLine(
		uuid.New().String(), cmd.OrderID, cmd.ItemLineID, cmd.SellerID, cmd.RuleID,
		cmd.CurrencyCode, cmd.Value, cmd.RawValue, cmd.GrossAmount,
	)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if err := scope.CommissionLineRepository().Create(ctx, line); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.NewDuplicateCommissionError(cmd.ItemLineID).WithCause(err)
		}
		return nil, err
	}

	if line.Value().IsPositive() {
		if _, err := applyDelta(ctx, scope, aggregate.BalanceDelta{
			AccountID:    accountID,
			CurrencyCode: line.CurrencyCode(),
			Amount:       line.Value().Neg(),
			RawAmount:    line.RawValue().Neg(),
			Reference:    aggregate.ReferenceCommission,
			ReferenceID:  line.ID(),
		}); err != nil {
			return nil, err
		}
	}

	scope.collect(line)
	return line, nil
}

// reverseCommission soft-deletes the line and credits the commission back. Already deleted
// lines are left alone and report false.
func reverseCommission(ctx context.Context, scope *txScope, line *aggregate.CommissionLine) (bool, error) {
	if !line.SoftDelete() {
		return false, nil
	}
	if err := scope.CommissionLineRepository().Save(ctx, line); err != nil {
		return false, err
	}

	if line.Value().IsPositive() {
		account, err := scope.PayoutAccountRepository().GetBySellerID(ctx, line.SellerID())
		if err != nil {
			return false, fmt.Errorf("payout account for seller %s: %w", line.SellerID(), err)
		}
		if _, err := applyDelta(ctx, scope, aggregate.BalanceDelta{
			AccountID:    account.ID(),
			CurrencyCode: line.CurrencyCode(),
			Amount:       line.Value(),
			RawAmount:    line.RawValue(),
			Reference:    aggregate.ReferenceCommissionReversal,
			ReferenceID:  line.ID(),
		}); err != nil {
			return false, err
		}
	}

	scope.collect(line)
	return true, nil
}

func (item OrderItem) base() aggregate.CommissionBase {
	taxLines := make([]aggregate.TaxLine, 0, len(item.TaxLines))
	for _, t := range item.TaxLines {
		taxLines = append(taxLines, aggregate.TaxLine{Code: t.Code, Rate: t.Rate, Amount: t.Amount})
	}
	return aggregate.CommissionBase{
		CurrencyCode:  item.CurrencyCode,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
		DiscountTotal: item.DiscountTotal,
		TaxLines:      taxLines,
		TaxInclusive:  item.IsTaxInclusive,
	}
}

// ============================================
// Compute And Record Commission Handler (UoW)
// ============================================

// ComputeAndRecordCommissionWithUoWHandler accrues commission for a captured order
type ComputeAndRecordCommissionWithUoWHandler struct {
	uowFactory      repository.UnitOfWorkFactory
	resolver        *commission.Resolver
	publisher       EventPublisher
	defaultProvider string
	logger          *zap.Logger
}

// NewComputeAndRecordCommissionWithUoWHandler creates a new compute and record commission handler with UoW
func NewComputeAndRecordCommissionWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	resolver *commission.Resolver,
	publisher EventPublisher,
	defaultProvider string,
	logger *zap.Logger,
) *ComputeAndRecordCommissionWithUoWHandler {
	return &ComputeAndRecordCommissionWithUoWHandler{
		uowFactory:      uowFactory,
		resolver:        resolver,
		publisher:       publisher,
		defaultProvider: defaultProvider,
		logger:          logger.Named("commission"),
	}
}

// Handle resolves, computes and records one commission line per item, crediting the sale and
// debiting the commission. The whole order is one transaction: any failure records nothing.
// Items already recorded are returned unchanged.
func (h *ComputeAndRecordCommissionWithUoWHandler) Handle(ctx context.Context, cmd *ComputeAndRecordCommission) ([]*aggregate.CommissionLine, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var lines []*aggregate.CommissionLine
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		lines = lines[:0]

		account, err := ensureSellerAccount(ctx, scope, cmd.SellerID, h.defaultProvider)
		if err != nil {
			return err
		}

		for _, item := range cmd.Items {
			line, err := h.accrueItem(ctx, scope, account, cmd, item)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "commission")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return lines, nil
}

func (h *ComputeAndRecordCommissionWithUoWHandler) accrueItem(
	ctx context.Context,
	scope *txScope,
	account *aggregate.PayoutAccount,
	cmd *ComputeAndRecordCommission,
	item OrderItem,
) (*aggregate.CommissionLine, error) {
	existing, err := scope.CommissionLineRepository().GetActiveByItemLineID(ctx, item.ItemLineID)
	if err == nil {
		h.logger.Debug("commission already recorded",
			zap.String("order_id", cmd.OrderID),
			zap.String("item_line_id", item.ItemLineID),
		)
		return existing, nil
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rule, err := h.resolver.Resolve(ctx, scope.CommissionRuleRepository(), commission.LineContext{
		SellerID:     cmd.SellerID,
		ProductID:    item.ProductID,
		CategoryIDs:  item.CategoryIDs,
		CurrencyCode: item.CurrencyCode,
	})
	if err != nil {
		return nil, fmt.Errorf("item line %s: %w", item.ItemLineID, err)
	}

	base := item.base()
	value, raw := decimal.Zero, decimal.Zero
	ruleID := ""
	if rule != nil {
		ruleID = rule.ID()
		value, raw, err = rule.Rate().Calculate(base)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("item line %s: %v", item.ItemLineID, err)).WithCause(err)
		}
	}

	gross := base.GrossTotal()
	if gross.IsPositive() {
		if _, err := applyDelta(ctx, scope, aggregate.BalanceDelta{
			AccountID:    account.ID(),
			CurrencyCode: item.CurrencyCode,
			Amount:       gross,
			Reference:    aggregate.ReferenceOrder,
			ReferenceID:  cmd.OrderID,
		}); err != nil {
			return nil, err
		}
	}

	line, err := recordCommission(ctx, scope, account.ID(), &RecordCommission{
		OrderID:      cmd.OrderID,
		SellerID:     cmd.SellerID,
		ItemLineID:   item.ItemLineID,
		RuleID:       ruleID,
		CurrencyCode: item.CurrencyCode,
		Value:        value,
		RawValue:     raw,
		GrossAmount:  gross,
	})
	if stderrors.Is(err, repository.ErrDuplicate) {
		// a concurrent capture of the same order won; the retry returns its line
		return nil, fmt.Errorf("item line %s recorded concurrently: %w", item.ItemLineID, repository.ErrTransactionConflict)
	}
	return line, err
}

// ============================================
// Record Commission Handler (UoW)
// ============================================

// RecordCommissionWithUoWHandler records a precomputed commission line
type RecordCommissionWithUoWHandler struct {
	uowFactory      repository.UnitOfWorkFactory
	publisher       EventPublisher
	defaultProvider string
	logger          *zap.Logger
}

// NewRecordCommissionWithUoWHandler creates a new record commission handler with UoW
func NewRecordCommissionWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, defaultProvider string, logger *zap.Logger) *RecordCommissionWithUoWHandler {
	return &RecordCommissionWithUoWHandler{
		uowFactory:      uowFactory,
		publisher:       publisher,
		defaultProvider: defaultProvider,
		logger:          logger.Named("commission"),
	}
}

// Handle inserts the line. A second call for the same item line fails with DUPLICATE_COMMISSION.
func (h *RecordCommissionWithUoWHandler) Handle(ctx context.Context, cmd *RecordCommission) (*aggregate.CommissionLine, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var line *aggregate.CommissionLine
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		account, err := ensureSellerAccount(ctx, scope, cmd.SellerID, h.defaultProvider)
		if err != nil {
			return err
		}
		line, err = recordCommission(ctx, scope, account.ID(), cmd)
		return err
	})
	if err != nil {
		return nil, toApplicationError(err, "commission")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return line, nil
}

// ============================================
// Reverse Commission Handlers (UoW)
// ============================================

// ReverseCommissionWithUoWHandler reverses the commission of a single item line
type ReverseCommissionWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewReverseCommissionWithUoWHandler creates a new reverse commission handler with UoW
func NewReverseCommissionWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, logger *zap.Logger) *ReverseCommissionWithUoWHandler {
	return &ReverseCommissionWithUoWHandler{uowFactory: uowFactory, publisher: publisher, logger: logger.Named("commission")}
}

// Handle is a no-op when no active line exists for the item line
func (h *ReverseCommissionWithUoWHandler) Handle(ctx context.Context, cmd *ReverseCommission) error {
	if cmd == nil {
		return errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return err
	}

	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		line, err := scope.CommissionLineRepository().GetActiveByItemLineID(ctx, cmd.ItemLineID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = reverseCommission(ctx, scope, line)
		return err
	})
	if err != nil {
		return toApplicationError(err, "commission line")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return nil
}

// ReverseOrderCommissionWithUoWHandler undoes every accrual of a canceled order
type ReverseOrderCommissionWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewReverseOrderCommissionWithUoWHandler creates a new reverse order commission handler with UoW
func NewReverseOrderCommissionWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, logger *zap.Logger) *ReverseOrderCommissionWithUoWHandler {
	return &ReverseOrderCommissionWithUoWHandler{uowFactory: uowFactory, publisher: publisher, logger: logger.Named("commission")}
}

// Handle soft-deletes each active line, returns the commission to the seller and withdraws the
// sale revenue. Running it again finds no active lines and changes nothing.
func (h *ReverseOrderCommissionWithUoWHandler) Handle(ctx context.Context, cmd *ReverseOrderCommission) error {
	if cmd == nil {
		return errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return err
	}

	reversed := 0
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		reversed = 0
		lines, err := scope.CommissionLineRepository().ListByOrderID(ctx, cmd.OrderID, false)
		if err != nil {
			return err
		}

		for _, line := range lines {
			changed, err := reverseCommission(ctx, scope, line)
			if err != nil {
				return err
			}
			if !changed || !line.GrossAmount().IsPositive() {
				continue
			}
			account, err := scope.PayoutAccountRepository().GetBySellerID(ctx, line.SellerID())
			if err != nil {
				return err
			}
			if _, err := applyDelta(ctx, scope, aggregate.BalanceDelta{
				AccountID:    account.ID(),
				CurrencyCode: line.CurrencyCode(),
				Amount:       line.GrossAmount().Neg(),
				Reference:    aggregate.ReferenceOrderCancellation,
				ReferenceID:  cmd.OrderID,
			}); err != nil {
				return err
			}
			reversed++
		}
		return nil
	})
	if err != nil {
		return toApplicationError(err, "commission line")
	}

	h.logger.Info("order commission reversed", zap.String("order_id", cmd.OrderID), zap.Int("lines", reversed))
	publishEvents(ctx, h.publisher, h.logger, events)
	return nil
}

// ============================================
// Upsert Commission Rule Handler (UoW)
// ============================================

// UpsertCommissionRuleWithUoWHandler creates or revises commission rules
type UpsertCommissionRuleWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewUpsertCommissionRuleWithUoWHandler creates a new upsert commission rule handler with UoW
func NewUpsertCommissionRuleWithUoWHandler(uowFactory repository.UnitOfWorkFactory, publisher EventPublisher, logger *zap.Logger) *UpsertCommissionRuleWithUoWHandler {
	return &UpsertCommissionRuleWithUoWHandler{uowFactory: uowFactory, publisher: publisher, logger: logger.Named("commission")}
}

// Handle validates the rate and stores the rule. A changed rate gets a new rate id so lines
// computed with the old terms keep pointing at them.
func (h *UpsertCommissionRuleWithUoWHandler) Handle(ctx context.Context, cmd *UpsertCommissionRule) (*aggregate.CommissionRule, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	reference, err := aggregate.ParseRuleReference(cmd.Reference)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if cmd.RuleID == "" {
		cmd.RuleID = uuid.New().String()
	}

	var rule *aggregate.CommissionRule
	events, err := runInUnitOfWork(ctx, h.uowFactory, func(scope *txScope) error {
		rules := scope.CommissionRuleRepository()
		existing, err := rules.GetByID(ctx, cmd.RuleID)
		if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
			return err
		}

		rate, err := buildRate(uuid.New().String(), cmd.Rate)
		if err != nil {
			return err
		}

		if existing == nil {
			rule, err = aggregate.NewCommissionRule(cmd.RuleID, cmd.Name, reference, cmd.ReferenceID, cmd.IsActive, rate)
			if err != nil {
				return errors.NewValidationError(err.Error())
			}
		} else {
			if existing.Reference() != reference || existing.ReferenceID() != cmd.ReferenceID {
				return errors.NewValidationError("a rule's reference cannot be changed, create a new rule instead")
			}
			if rate.SameTerms(existing.Rate()) {
				rate = existing.Rate()
			}
			if err := existing.Revise(cmd.Name, cmd.IsActive, rate); err != nil {
				return err
			}
			rule = existing
		}

		if err := rules.Save(ctx, rule); err != nil {
			return err
		}
		scope.collect(rule)
		return nil
	})
	if err != nil {
		return nil, toApplicationError(err, "commission rule")
	}

	publishEvents(ctx, h.publisher, h.logger, events)
	return rule, nil
}

// buildRate turns a rate input into a validated CommissionRate
func buildRate(rateID string, in RateInput) (*aggregate.CommissionRate, error) {
	spec := aggregate.CommissionRateSpec{
		ID:             rateID,
		Type:           in.Type,
		PercentageRate: in.PercentageRate,
		IncludeTax:     in.IncludeTax,
	}
	var err error
	if spec.FlatAmount, err = amountSet(rateID+":flat", in.FlatAmount); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if spec.MinAmount, err = amountSet(rateID+":min", in.MinAmount); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if spec.MaxAmount, err = amountSet(rateID+":max", in.MaxAmount); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	rate, err := aggregate.NewCommissionRate(spec)
	if err != nil {
		return nil, errors.NewValidationError(err.Error()).WithCause(err)
	}
	return rate, nil
}

func amountSet(id string, amounts map[string]decimal.Decimal) (*aggregate.AmountSet, error) {
	if len(amounts) == 0 {
		return nil, nil
	}
	return aggregate.NewAmountSet(id, amounts)
}
