package repository

import (
	"context"

	"marketplace-settlement/internal/domain/aggregate"
)

// RuleQuery selects active rule candidates for one order line
type RuleQuery struct {
	SellerID    string
	ProductID   string
	CategoryIDs []string
}

// CommissionRuleRepository persists rules together with their rate versions
type CommissionRuleRepository interface {
	// Save upserts the rule. Rates are insert-only: a known rate id is never rewritten.
	Save(ctx context.Context, rule *aggregate.CommissionRule) error
	GetByID(ctx context.Context, id string) (*aggregate.CommissionRule, error)
	// FindActive returns every active rule that targets the product, any of the categories,
	// the seller, or the whole marketplace.
	FindActive(ctx context.Context, q RuleQuery) ([]*aggregate.CommissionRule, error)
	List(ctx context.Context, offset, limit int) ([]*aggregate.CommissionRule, error)
}

// CommissionLineRepository persists commission lines
type CommissionLineRepository interface {
	// Create fails with ErrDuplicate when a non-deleted line exists for the item line
	Create(ctx context.Context, line *aggregate.CommissionLine) error
	Save(ctx context.Context, line *aggregate.CommissionLine) error
	GetActiveByItemLineID(ctx context.Context, itemLineID string) (*aggregate.CommissionLine, error)
	ListByOrderID(ctx context.Context, orderID string, includeDeleted bool) ([]*aggregate.CommissionLine, error)
}
