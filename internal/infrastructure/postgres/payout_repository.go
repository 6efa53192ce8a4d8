package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

const payoutColumns = `id, account_id, order_id, amount, currency_code, status, data, provider_reference, request_key,
	failure_reason, reversed_amount, version, processed_at, paid_at, created_at, updated_at`

type payoutRepository struct {
	uow *UnitOfWork
}

func (r *payoutRepository) Create(ctx context.Context, payout *aggregate.Payout) error {
	_, err := r.uow.ext().ExecContext(ctx, `
		INSERT INTO payout (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		payout.ID(), payout.AccountID(), payout.OrderID(), payout.Amount(), payout.CurrencyCode(), string(payout.Status()),
		nullJSON(payout.Data()), payout.ProviderReference(), payout.RequestKey(), payout.FailureReason(),
		payout.ReversedAmount(), payout.Version(), payout.ProcessedAt(), payout.PaidAt(), payout.CreatedAt(), payout.UpdatedAt(),
	)
	return mapError(err, "failed to create payout %s", payout.ID())
}

func (r *payoutRepository) Save(ctx context.Context, payout *aggregate.Payout) error {
	res, err := r.uow.ext().ExecContext(ctx, `
		UPDATE payout SET status = $2, data = $3, provider_reference = $4, failure_reason = $5, reversed_amount = $6,
			version = $7, processed_at = $8, paid_at = $9, updated_at = $10
		WHERE id = $1`,
		payout.ID(), string(payout.Status()), nullJSON(payout.Data()), payout.ProviderReference(), payout.FailureReason(),
		payout.ReversedAmount(), payout.Version(), payout.ProcessedAt(), payout.PaidAt(), payout.UpdatedAt(),
	)
	if err != nil {
		return mapError(err, "failed to save payout %s", payout.ID())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payout %s: %w", payout.ID(), repository.ErrNotFound)
	}
	return nil
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*aggregate.Payout, error) {
	var row payoutRow
	if err := sqlx.GetContext(ctx, r.uow.ext(), &row, `SELECT `+payoutColumns+` FROM payout WHERE id = $1`+r.uow.forUpdate(), id); err != nil {
		return nil, mapError(err, "payout %s", id)
	}
	return row.toAggregate(), nil
}

func (r *payoutRepository) GetByProviderReference(ctx context.Context, reference string) (*aggregate.Payout, error) {
	if reference == "" {
		return nil, fmt.Errorf("payout without provider reference: %w", repository.ErrNotFound)
	}
	var row payoutRow
	err := sqlx.GetContext(ctx, r.uow.ext(), &row, `SELECT `+payoutColumns+` FROM payout WHERE provider_reference = $1`+r.uow.forUpdate(), reference)
	if err != nil {
		return nil, mapError(err, "payout with provider reference %s", reference)
	}
	return row.toAggregate(), nil
}

func (r *payoutRepository) ListByOrderID(ctx context.Context, orderID string) ([]*aggregate.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payout WHERE order_id = $1 ORDER BY created_at, id`+r.uow.forUpdate(), orderID)
}

// ListByAccountID returns newest first
func (r *payoutRepository) ListByAccountID(ctx context.Context, accountID string, offset, limit int) ([]*aggregate.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payout WHERE account_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
}

func (r *payoutRepository) ListByAccountAndStatus(ctx context.Context, accountID string, statuses []aggregate.PayoutStatus) ([]*aggregate.Payout, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	query, args, err := sqlx.In(`SELECT `+payoutColumns+` FROM payout WHERE account_id = ? AND status IN (?)
		ORDER BY created_at, id`+r.uow.forUpdate(), accountID, values)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, r.uow.ext().Rebind(query), args...)
}

func (r *payoutRepository) ListByStatus(ctx context.Context, status aggregate.PayoutStatus, offset, limit int) ([]*aggregate.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payout WHERE status = $1
		ORDER BY created_at, id LIMIT $2 OFFSET $3`, string(status), limit, offset)
}

func (r *payoutRepository) list(ctx context.Context, query string, args ...interface{}) ([]*aggregate.Payout, error) {
	var rows []payoutRow
	if err := sqlx.SelectContext(ctx, r.uow.ext(), &rows, query, args...); err != nil {
		return nil, mapError(err, "failed to list payouts")
	}
	payouts := make([]*aggregate.Payout, 0, len(rows))
	for _, row := range rows {
		payouts = append(payouts, row.toAggregate())
	}
	return payouts, nil
}
