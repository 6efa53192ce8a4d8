package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type balanceRepository struct {
	uow *UnitOfWork
}

func balanceKey(accountID, currencyCode string) string {
	return accountID + "|" + aggregate.NormalizeCurrency(currencyCode)
}

func (r *balanceRepository) ApplyDelta(ctx context.Context, tx aggregate.PayoutTransaction, delta aggregate.BalanceDelta) (*aggregate.PayoutBalance, error) {
	var result *aggregate.PayoutBalance
	err := r.uow.write(func(s *Store) (func(), error) {
		key := balanceKey(delta.AccountID, delta.CurrencyCode)
		next := aggregate.NewPayoutBalance(uuid.New().String(), delta.AccountID, delta.CurrencyCode, tx.CreatedAt)
		if stored, ok := s.balances[key]; ok {
			next = cloneBalance(stored)
		}
		if err := next.Apply(delta, tx.CreatedAt); err != nil {
			return nil, err
		}

		restore := put(s.balances, key, next)
		n := len(s.transactions)
		s.transactions = append(s.transactions, tx)
		result = cloneBalance(next)
		return func() {
			s.transactions = s.transactions[:n]
			restore()
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *balanceRepository) GetBalance(ctx context.Context, accountID, currencyCode string) (*aggregate.PayoutBalance, error) {
	var balance *aggregate.PayoutBalance
	err := r.uow.read(func(s *Store) error {
		stored, ok := s.balances[balanceKey(accountID, currencyCode)]
		if !ok {
			return fmt.Errorf("balance %s/%s: %w", accountID, currencyCode, repository.ErrNotFound)
		}
		balance = cloneBalance(stored)
		return nil
	})
	return balance, err
}

func (r *balanceRepository) ListBalances(ctx context.Context, accountID string) ([]*aggregate.PayoutBalance, error) {
	var balances []*aggregate.PayoutBalance
	err := r.uow.read(func(s *Store) error {
		for _, stored := range s.balances {
			if stored.AccountID == accountID {
				balances = append(balances, cloneBalance(stored))
			}
		}
		return nil
	})
	sort.Slice(balances, func(i, j int) bool { return balances[i].CurrencyCode < balances[j].CurrencyCode })
	return balances, err
}

// ListTransactions returns entries newest first
func (r *balanceRepository) ListTransactions(ctx context.Context, accountID, currencyCode string, offset, limit int) ([]aggregate.PayoutTransaction, error) {
	currency := aggregate.NormalizeCurrency(currencyCode)
	var txs []aggregate.PayoutTransaction
	err := r.uow.read(func(s *Store) error {
		for i := len(s.transactions) - 1; i >= 0; i-- {
			tx := s.transactions[i]
			if tx.AccountID == accountID && (currency == "" || tx.CurrencyCode == currency) {
				txs = append(txs, tx)
			}
		}
		return nil
	})
	return page(txs, offset, limit), err
}

func (r *balanceRepository) SumTransactions(ctx context.Context, accountID, currencyCode string) (decimal.Decimal, decimal.Decimal, error) {
	currency := aggregate.NormalizeCurrency(currencyCode)
	sum, raw := decimal.Zero, decimal.Zero
	err := r.uow.read(func(s *Store) error {
		for _, tx := range s.transactions {
			if tx.AccountID == accountID && tx.CurrencyCode == currency {
				sum = sum.Add(tx.Amount)
				raw = raw.Add(tx.RawAmount)
			}
		}
		return nil
	})
	return sum, raw, err
}
