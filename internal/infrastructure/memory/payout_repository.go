package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type payoutRepository struct {
	uow *UnitOfWork
}

func (r *payoutRepository) Create(ctx context.Context, payout *aggregate.Payout) error {
	return r.uow.write(func(s *Store) (func(), error) {
		if _, ok := s.payouts[payout.ID()]; ok {
			return nil, fmt.Errorf("payout %s: %w", payout.ID(), repository.ErrDuplicate)
		}
		return put(s.payouts, payout.ID(), clonePayout(payout)), nil
	})
}

func (r *payoutRepository) Save(ctx context.Context, payout *aggregate.Payout) error {
	return r.uow.write(func(s *Store) (func(), error) {
		if _, ok := s.payouts[payout.ID()]; !ok {
			return nil, fmt.Errorf("payout %s: %w", payout.ID(), repository.ErrNotFound)
		}
		return put(s.payouts, payout.ID(), clonePayout(payout)), nil
	})
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*aggregate.Payout, error) {
	var payout *aggregate.Payout
	err := r.uow.read(func(s *Store) error {
		stored, ok := s.payouts[id]
		if !ok {
			return fmt.Errorf("payout %s: %w", id, repository.ErrNotFound)
		}
		payout = clonePayout(stored)
		return nil
	})
	return payout, err
}

func (r *payoutRepository) GetByProviderReference(ctx context.Context, reference string) (*aggregate.Payout, error) {
	payouts, err := r.filter(func(p *aggregate.Payout) bool {
		return reference != "" && p.ProviderReference() == reference
	})
	if err != nil {
		return nil, err
	}
	if len(payouts) == 0 {
		return nil, fmt.Errorf("payout with reference %s: %w", reference, repository.ErrNotFound)
	}
	return payouts[0], nil
}

func (r *payoutRepository) ListByOrderID(ctx context.Context, orderID string) ([]*aggregate.Payout, error) {
	return r.filter(func(p *aggregate.Payout) bool { return p.OrderID() == orderID })
}

func (r *payoutRepository) ListByAccountID(ctx context.Context, accountID string, offset, limit int) ([]*aggregate.Payout, error) {
	payouts, err := r.filter(func(p *aggregate.Payout) bool { return p.AccountID() == accountID })
	slices.Reverse(payouts)
	return page(payouts, offset, limit), err
}

func (r *payoutRepository) ListByAccountAndStatus(ctx context.Context, accountID string, statuses []aggregate.PayoutStatus) ([]*aggregate.Payout, error) {
	return r.filter(func(p *aggregate.Payout) bool {
		return p.AccountID() == accountID && slices.Contains(statuses, p.Status())
	})
}

func (r *payoutRepository) ListByStatus(ctx context.Context, status aggregate.PayoutStatus, offset, limit int) ([]*aggregate.Payout, error) {
	payouts, err := r.filter(func(p *aggregate.Payout) bool { return p.Status() == status })
	return page(payouts, offset, limit), err
}

// filter returns matching payouts oldest first
func (r *payoutRepository) filter(match func(*aggregate.Payout) bool) ([]*aggregate.Payout, error) {
	var payouts []*aggregate.Payout
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.payouts {
			if match(stored) {
				payouts = append(payouts, clonePayout(stored))
			}
		}
		return nil
	})
	sort.Slice(payouts, func(i, j int) bool {
		if !payouts[i].CreatedAt().Equal(payouts[j].CreatedAt()) {
			return payouts[i].CreatedAt().Before(payouts[j].CreatedAt())
		}
		return payouts[i].ID() < payouts[j].ID()
	})
	return payouts, err
}
