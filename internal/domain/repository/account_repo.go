package repository

import (
	"context"

	"marketplace-settlement/internal/domain/aggregate"
)

// PayoutAccountRepository persists seller payout accounts
type PayoutAccountRepository interface {
	// Create fails with ErrDuplicate when the seller already has an account
	Create(ctx context.Context, account *aggregate.PayoutAccount) error
	Save(ctx context.Context, account *aggregate.PayoutAccount) error
	GetByID(ctx context.Context, id string) (*aggregate.PayoutAccount, error)
	GetBySellerID(ctx context.Context, sellerID string) (*aggregate.PayoutAccount, error)
	GetByReference(ctx context.Context, provider, referenceID string) (*aggregate.PayoutAccount, error)
	ListByStatus(ctx context.Context, status aggregate.AccountStatus, offset, limit int) ([]*aggregate.PayoutAccount, error)
}

// OnboardingRepository persists onboarding artifacts, one per account
type OnboardingRepository interface {
	Save(ctx context.Context, onboarding *aggregate.Onboarding) error
	GetByAccountID(ctx context.Context, accountID string) (*aggregate.Onboarding, error)
}
