package services

import (
	"context"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/domain/aggregate"
)

// CommissionService handles commission accrual and rule administration
type CommissionService struct {
	computeHandler      *command.ComputeAndRecordCommissionWithUoWHandler
	recordHandler       *command.RecordCommissionWithUoWHandler
	reverseHandler      *command.ReverseCommissionWithUoWHandler
	reverseOrderHandler *command.ReverseOrderCommissionWithUoWHandler
	upsertRuleHandler   *command.UpsertCommissionRuleWithUoWHandler
	listLinesHandler    *query.ListOrderCommissionHandler
	listRulesHandler    *query.ListCommissionRulesHandler
}

// NewCommissionService creates a new commission service
func NewCommissionService(
	computeHandler *command.ComputeAndRecordCommissionWithUoWHandler,
	recordHandler *command.RecordCommissionWithUoWHandler,
	reverseHandler *command.ReverseCommissionWithUoWHandler,
	reverseOrderHandler *command.ReverseOrderCommissionWithUoWHandler,
	upsertRuleHandler *command.UpsertCommissionRuleWithUoWHandler,
	listLinesHandler *query.ListOrderCommissionHandler,
	listRulesHandler *query.ListCommissionRulesHandler,
) *CommissionService {
	return &CommissionService{
		computeHandler:      computeHandler,
		recordHandler:       recordHandler,
		reverseHandler:      reverseHandler,
		reverseOrderHandler: reverseOrderHandler,
		upsertRuleHandler:   upsertRuleHandler,
		listLinesHandler:    listLinesHandler,
		listRulesHandler:    listRulesHandler,
	}
}

// ComputeAndRecordCommission accrues commission for a captured order
func (s *CommissionService) ComputeAndRecordCommission(ctx context.Context, cmd *command.ComputeAndRecordCommission) ([]*aggregate.CommissionLine, error) {
	return s.computeHandler.Handle(ctx, cmd)
}

// RecordCommission records a precomputed commission line
func (s *CommissionService) RecordCommission(ctx context.Context, cmd *command.RecordCommission) (*aggregate.CommissionLine, error) {
	return s.recordHandler.Handle(ctx, cmd)
}

// ReverseCommission reverses one item line
func (s *CommissionService) ReverseCommission(ctx context.Context, cmd *command.ReverseCommission) error {
	return s.reverseHandler.Handle(ctx, cmd)
}

// ReverseOrderCommission reverses every line of an order
func (s *CommissionService) ReverseOrderCommission(ctx context.Context, cmd *command.ReverseOrderCommission) error {
	return s.reverseOrderHandler.Handle(ctx, cmd)
}

// UpsertRule creates or revises a commission rule
func (s *CommissionService) UpsertRule(ctx context.Context, cmd *command.UpsertCommissionRule) (*query.RuleReadModel, error) {
	rule, err := s.upsertRuleHandler.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return query.NewRuleReadModel(rule), nil
}

// ListOrderCommission lists the lines recorded for an order
func (s *CommissionService) ListOrderCommission(ctx context.Context, orderID string, includeDeleted bool) ([]*query.CommissionLineReadModel, error) {
	return s.listLinesHandler.Handle(ctx, &query.ListOrderCommissionQuery{OrderID: orderID, IncludeDeleted: includeDeleted})
}

// ListRules retrieves rules with pagination
func (s *CommissionService) ListRules(ctx context.Context, offset, limit int) ([]*query.RuleReadModel, error) {
	return s.listRulesHandler.Handle(ctx, &query.ListCommissionRulesQuery{Offset: offset, Limit: limit})
}
