package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type commissionRuleRepository struct {
	uow *UnitOfWork
}

func (r *commissionRuleRepository) Save(ctx context.Context, rule *aggregate.CommissionRule) error {
	return r.uow.write(func(s *Store) (func(), error) {
		return put(s.rules, rule.ID(), cloneRule(rule)), nil
	})
}

func (r *commissionRuleRepository) GetByID(ctx context.Context, id string) (*aggregate.CommissionRule, error) {
	var rule *aggregate.CommissionRule
	err := r.uow.read(func(s *Store) error {
		stored, ok := s.rules[id]
		if !ok {
			return fmt.Errorf("commission rule %s: %w", id, repository.ErrNotFound)
		}
		rule = cloneRule(stored)
		return nil
	})
	return rule, err
}

func (r *commissionRuleRepository) FindActive(ctx context.Context, q repository.RuleQuery) ([]*aggregate.CommissionRule, error) {
	var rules []*aggregate.CommissionRule
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.rules {
			if !stored.IsActive() {
				continue
			}
			match := false
			switch stored.Reference() {
			case aggregate.RuleReferenceGlobal:
				match = true
			case aggregate.RuleReferenceSeller:
				match = stored.ReferenceID() == q.SellerID
			case aggregate.RuleReferenceProduct:
				match = stored.ReferenceID() == q.ProductID
			case aggregate.RuleReferenceCategory:
				match = slices.Contains(q.CategoryIDs, stored.ReferenceID())
			}
			if match {
				rules = append(rules, cloneRule(stored))
			}
		}
		return nil
	})
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID() < rules[j].ID() })
	return rules, err
}

func (r *commissionRuleRepository) List(ctx context.Context, offset, limit int) ([]*aggregate.CommissionRule, error) {
	var rules []*aggregate.CommissionRule
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.rules {
			rules = append(rules, cloneRule(stored))
		}
		return nil
	})
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt().Equal(rules[j].CreatedAt()) {
			return rules[i].CreatedAt().Before(rules[j].CreatedAt())
		}
		return rules[i].ID() < rules[j].ID()
	})
	return page(rules, offset, limit), err
}

type commissionLineRepository struct {
	uow *UnitOfWork
}

func (r *commissionLineRepository) Create(ctx context.Context, line *aggregate.CommissionLine) error {
	return r.uow.write(func(s *Store) (func(), error) {
		if _, ok := s.lines[line.ID()]; ok {
			return nil, fmt.Errorf("commission line %s: %w", line.ID(), repository.ErrDuplicate)
		}
		for _, stored := range s.lines {
			if stored.ItemLineID() == line.ItemLineID() && !stored.IsDeleted() {
				return nil, fmt.Errorf("commission for item line %s: %w", line.ItemLineID(), repository.ErrDuplicate)
			}
		}
		return put(s.lines, line.ID(), cloneLine(line)), nil
	})
}

func (r *commissionLineRepository) Save(ctx context.Context, line *aggregate.CommissionLine) error {
	return r.uow.write(func(s *Store) (func(), error) {
		if _, ok := s.lines[line.ID()]; !ok {
			return nil, fmt.Errorf("commission line %s: %w", line.ID(), repository.ErrNotFound)
		}
		return put(s.lines, line.ID(), cloneLine(line)), nil
	})
}

func (r *commissionLineRepository) GetActiveByItemLineID(ctx context.Context, itemLineID string) (*aggregate.CommissionLine, error) {
	var line *aggregate.CommissionLine
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.lines {
			if stored.ItemLineID() == itemLineID && !stored.IsDeleted() {
				line = cloneLine(stored)
				return nil
			}
		}
		return fmt.Errorf("commission for item line %s: %w", itemLineID, repository.ErrNotFound)
	})
	return line, err
}

func (r *commissionLineRepository) ListByOrderID(ctx context.Context, orderID string, includeDeleted bool) ([]*aggregate.CommissionLine, error) {
	var lines []*aggregate.CommissionLine
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.lines {
			if stored.OrderID() != orderID || (stored.IsDeleted() && !includeDeleted) {
				continue
			}
			lines = append(lines, cloneLine(stored))
		}
		return nil
	})
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].CreatedAt().Equal(lines[j].CreatedAt()) {
			return lines[i].CreatedAt().Before(lines[j].CreatedAt())
		}
		return lines[i].ID() < lines[j].ID()
	})
	return lines, err
}
