package commission

import (
	"context"
	"fmt"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

// RuleFinder is the slice of CommissionRuleRepository the resolver needs
type RuleFinder interface {
	FindActive(ctx context.Context, q repository.RuleQuery) ([]*aggregate.CommissionRule, error)
}

// LineContext describes the order line a rule is resolved for.
// CategoryIDs are listed from the most general to the most specific category.
type LineContext struct {
	SellerID     string
	ProductID    string
	CategoryIDs  []string
	CurrencyCode string
}

// Resolver picks the single commission rule that applies to an order line.
// Precedence is product, category, seller, global. Among category rules the deepest category
// wins. Remaining ties go to the most recently created rule.
type Resolver struct {
	categories CategoryTree
}

// NewResolver creates a resolver. A nil tree falls back to the order of LineContext.CategoryIDs.
func NewResolver(categories CategoryTree) *Resolver {
	return &Resolver{categories: categories}
}

// Resolve returns the applicable rule, or nil when nothing matches (no commission).
// Lookup errors are returned as-is: callers must not treat them as "no commission".
func (r *Resolver) Resolve(ctx context.Context, finder RuleFinder, line LineContext) (*aggregate.CommissionRule, error) {
	candidates, err := finder.FindActive(ctx, repository.RuleQuery{
		SellerID:    line.SellerID,
		ProductID:   line.ProductID,
		CategoryIDs: line.CategoryIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up commission rules: %w", err)
	}

	var best *aggregate.CommissionRule
	for _, rule := range candidates {
		if !rule.Matches(line.SellerID, line.ProductID, line.CategoryIDs) {
			continue
		}
		if best == nil || r.outranks(rule, best, line) {
			best = rule
		}
	}
	return best, nil
}

// outranks reports whether a should be chosen over b
func (r *Resolver) outranks(a, b *aggregate.CommissionRule, line LineContext) bool {
	pa, pb := a.Reference().Precedence(), b.Reference().Precedence()
	if pa != pb {
		return pa < pb
	}

	if a.Reference() == aggregate.RuleReferenceCategory {
		da, db := r.depth(a.ReferenceID(), line), r.depth(b.ReferenceID(), line)
		if da != db {
			return da > db
		}
	}

	if !a.CreatedAt().Equal(b.CreatedAt()) {
		return a.CreatedAt().After(b.CreatedAt())
	}
	return a.ID() > b.ID()
}

func (r *Resolver) depth(categoryID string, line LineContext) int {
	if r.categories != nil {
		if d, ok := r.categories.Depth(categoryID); ok {
			return d
		}
	}
	for i, id := range line.CategoryIDs {
		if id == categoryID {
			return i
		}
	}
	return -1
}
