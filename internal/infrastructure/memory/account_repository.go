package memory

import (
	"context"
	"fmt"
	"sort"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type payoutAccountRepository struct {
	uow *UnitOfWork
}

func (r *payoutAccountRepository) Create(ctx context.Context, account *aggregate.PayoutAccount) error {
	return r.uow.write(func(s *Store) (func(), error) {
		for _, stored := range s.accounts {
			if stored.ID() == account.ID() || stored.SellerID() == account.SellerID() {
				return nil, fmt.Errorf("payout account for seller %s: %w", account.SellerID(), repository.ErrDuplicate)
			}
		}
		return put(s.accounts, account.ID(), cloneAccount(account)), nil
	})
}

func (r *payoutAccountRepository) Save(ctx context.Context, account *aggregate.PayoutAccount) error {
	return r.uow.write(func(s *Store) (func(), error) {
		if _, ok := s.accounts[account.ID()]; !ok {
			return nil, fmt.Errorf("payout account %s: %w", account.ID(), repository.ErrNotFound)
		}
		return put(s.accounts, account.ID(), cloneAccount(account)), nil
	})
}

func (r *payoutAccountRepository) GetByID(ctx context.Context, id string) (*aggregate.PayoutAccount, error) {
	return r.find(func(a *aggregate.PayoutAccount) bool { return a.ID() == id }, "payout account "+id)
}

func (r *payoutAccountRepository) GetBySellerID(ctx context.Context, sellerID string) (*aggregate.PayoutAccount, error) {
	return r.find(func(a *aggregate.PayoutAccount) bool { return a.SellerID() == sellerID }, "payout account for seller "+sellerID)
}

func (r *payoutAccountRepository) GetByReference(ctx context.Context, provider, referenceID string) (*aggregate.PayoutAccount, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("payout account without reference: %w", repository.ErrNotFound)
	}
	return r.find(func(a *aggregate.PayoutAccount) bool {
		return a.Provider() == provider && a.ReferenceID() == referenceID
	}, "payout account "+provider+"/"+referenceID)
}

func (r *payoutAccountRepository) ListByStatus(ctx context.Context, status aggregate.AccountStatus, offset, limit int) ([]*aggregate.PayoutAccount, error) {
	var accounts []*aggregate.PayoutAccount
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.accounts {
			if stored.Status() == status {
				accounts = append(accounts, cloneAccount(stored))
			}
		}
		return nil
	})
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt().Equal(accounts[j].CreatedAt()) {
			return accounts[i].CreatedAt().Before(accounts[j].CreatedAt())
		}
		return accounts[i].ID() < accounts[j].ID()
	})
	return page(accounts, offset, limit), err
}

func (r *payoutAccountRepository) find(match func(*aggregate.PayoutAccount) bool, what string) (*aggregate.PayoutAccount, error) {
	var account *aggregate.PayoutAccount
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.accounts {
			if match(stored) {
				account = cloneAccount(stored)
				return nil
			}
		}
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	})
	return account, err
}

type onboardingRepository struct {
	uow *UnitOfWork
}

func (r *onboardingRepository) Save(ctx context.Context, onboarding *aggregate.Onboarding) error {
	return r.uow.write(func(s *Store) (func(), error) {
		return put(s.onboardings, onboarding.AccountID(), cloneOnboarding(onboarding)), nil
	})
}

func (r *onboardingRepository) GetByAccountID(ctx context.Context, accountID string) (*aggregate.Onboarding, error) {
	var onboarding *aggregate.Onboarding
	err := r.uow.read(func(s *Store) error {
		stored, ok := s.onboardings[accountID]
		if !ok {
			return fmt.Errorf("onboarding for account %s: %w", accountID, repository.ErrNotFound)
		}
		onboarding = cloneOnboarding(stored)
		return nil
	})
	return onboarding, err
}
