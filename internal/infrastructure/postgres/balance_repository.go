package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/domain/aggregate"
)

const balanceColumns = `id, account_id, currency_code, balance, raw_balance, created_at, updated_at`

type balanceRepository struct {
	uow *UnitOfWork
}

// ApplyDelta makes sure the balance row exists, locks it, then applies the delta to the locked copy
func (r *balanceRepository) ApplyDelta(ctx context.Context, tx aggregate.PayoutTransaction, delta aggregate.BalanceDelta) (*aggregate.PayoutBalance, error) {
	ext := r.uow.ext()
	currency := aggregate.NormalizeCurrency(delta.CurrencyCode)

	_, err := ext.ExecContext(ctx, `
		INSERT INTO payout_balance (`+balanceColumns+`)
		VALUES ($1, $2, $3, 0, 0, $4, $4)
		ON CONFLICT (account_id, currency_code) DO NOTHING`,
		uuid.New().String(), delta.AccountID, currency, tx.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, "failed to open balance %s/%s", delta.AccountID, currency)
	}

	var row balanceRow
	err = sqlx.GetContext(ctx, ext, &row,
		`SELECT `+balanceColumns+` FROM payout_balance WHERE account_id = $1 AND currency_code = $2 FOR UPDATE`,
		delta.AccountID, currency)
	if err != nil {
		return nil, mapError(err, "failed to lock balance %s/%s", delta.AccountID, currency)
	}

	balance := row.toAggregate()
	if err := balance.Apply(delta, tx.CreatedAt); err != nil {
		return nil, err
	}

	_, err = ext.ExecContext(ctx, `UPDATE payout_balance SET balance = $2, raw_balance = $3, updated_at = $4 WHERE id = $1`,
		balance.ID, balance.Balance, balance.RawBalance, balance.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to update balance %s", balance.ID)
	}

	_, err = ext.ExecContext(ctx, `
		INSERT INTO payout_transaction (id, account_id, currency_code, amount, raw_amount, reference, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.AccountID, tx.CurrencyCode, tx.Amount, tx.RawAmount, string(tx.Reference), tx.ReferenceID, tx.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, "failed to append payout transaction %s", tx.ID)
	}
	return balance, nil
}

func (r *balanceRepository) GetBalance(ctx context.Context, accountID, currencyCode string) (*aggregate.PayoutBalance, error) {
	var row balanceRow
	err := sqlx.GetContext(ctx, r.uow.ext(), &row,
		`SELECT `+balanceColumns+` FROM payout_balance WHERE account_id = $1 AND currency_code = $2`,
		accountID, aggregate.NormalizeCurrency(currencyCode))
	if err != nil {
		return nil, mapError(err, "balance %s/%s", accountID, currencyCode)
	}
	return row.toAggregate(), nil
}

func (r *balanceRepository) ListBalances(ctx context.Context, accountID string) ([]*aggregate.PayoutBalance, error) {
	var rows []balanceRow
	err := sqlx.SelectContext(ctx, r.uow.ext(), &rows,
		`SELECT `+balanceColumns+` FROM payout_balance WHERE account_id = $1 ORDER BY currency_code`, accountID)
	if err != nil {
		return nil, mapError(err, "failed to list balances of account %s", accountID)
	}
	balances := make([]*aggregate.PayoutBalance, 0, len(rows))
	for _, row := range rows {
		balances = append(balances, row.toAggregate())
	}
	return balances, nil
}

// ListTransactions returns entries newest first
func (r *balanceRepository) ListTransactions(ctx context.Context, accountID, currencyCode string, offset, limit int) ([]aggregate.PayoutTransaction, error) {
	query := `SELECT id, account_id, currency_code, amount, raw_amount, reference, reference_id, created_at
		FROM payout_transaction WHERE account_id = $1`
	args := []interface{}{accountID}
	if currencyCode != "" {
		query += ` AND currency_code = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
		args = append(args, aggregate.NormalizeCurrency(currencyCode), limit, offset)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, r.uow.ext(), &rows, query, args...); err != nil {
		return nil, mapError(err, "failed to list transactions of account %s", accountID)
	}
	txs := make([]aggregate.PayoutTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toAggregate())
	}
	return txs, nil
}

func (r *balanceRepository) SumTransactions(ctx context.Context, accountID, currencyCode string) (decimal.Decimal, decimal.Decimal, error) {
	var sums struct {
		Sum decimal.Decimal `db:"sum"`
		Raw decimal.Decimal `db:"raw"`
	}
	err := sqlx.GetContext(ctx, r.uow.ext(), &sums, `
		SELECT COALESCE(SUM(amount), 0) AS sum, COALESCE(SUM(raw_amount), 0) AS raw
		FROM payout_transaction WHERE account_id = $1 AND currency_code = $2`,
		accountID, aggregate.NormalizeCurrency(currencyCode))
	if err != nil {
		return decimal.Zero, decimal.Zero, mapError(err, "failed to sum transactions of account %s", accountID)
	}
	return sums.Sum, sums.Raw, nil
}
