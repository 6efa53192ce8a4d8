package repository

import (
	"context"

	"marketplace-settlement/internal/domain/aggregate"
)

// PayoutRepository persists payouts
type PayoutRepository interface {
	// Create fails with ErrDuplicate when the payout id exists
	Create(ctx context.Context, payout *aggregate.Payout) error
	Save(ctx context.Context, payout *aggregate.Payout) error
	GetByID(ctx context.Context, id string) (*aggregate.Payout, error)
	GetByProviderReference(ctx context.Context, reference string) (*aggregate.Payout, error)
	ListByOrderID(ctx context.Context, orderID string) ([]*aggregate.Payout, error)
	ListByAccountID(ctx context.Context, accountID string, offset, limit int) ([]*aggregate.Payout, error)
	ListByAccountAndStatus(ctx context.Context, accountID string, statuses []aggregate.PayoutStatus) ([]*aggregate.Payout, error)
	ListByStatus(ctx context.Context, status aggregate.PayoutStatus, offset, limit int) ([]*aggregate.Payout, error)
}
