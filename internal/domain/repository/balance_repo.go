package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

// BalanceRepository is the ledger store. ApplyDelta is the only way balances change.
type BalanceRepository interface {
	// ApplyDelta appends the transaction and upserts the (account, currency) balance while holding
	// that balance's lock. It returns aggregate.ErrInsufficientFunds (wrapped) for guarded debits
	// that would overdraw, in which case nothing is written.
	ApplyDelta(ctx context.Context, tx aggregate.PayoutTransaction, delta aggregate.BalanceDelta) (*aggregate.PayoutBalance, error)
	GetBalance(ctx context.Context, accountID, currencyCode string) (*aggregate.PayoutBalance, error)
	ListBalances(ctx context.Context, accountID string) ([]*aggregate.PayoutBalance, error)
	ListTransactions(ctx context.Context, accountID, currencyCode string, offset, limit int) ([]aggregate.PayoutTransaction, error)
	// SumTransactions returns the display and raw sums of all entries for the pair
	SumTransactions(ctx context.Context, accountID, currencyCode string) (decimal.Decimal, decimal.Decimal, error)
}
