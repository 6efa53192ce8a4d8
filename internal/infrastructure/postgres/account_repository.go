package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

const accountColumns = `id, seller_id, provider, reference_id, status, data, context, version, created_at, updated_at`

type payoutAccountRepository struct {
	uow *UnitOfWork
}

func (r *payoutAccountRepository) Create(ctx context.Context, account *aggregate.PayoutAccount) error {
	_, err := r.uow.ext().ExecContext(ctx, `
		INSERT INTO payout_account (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID(), account.SellerID(), account.Provider(), account.ReferenceID(), string(account.Status()),
		nullJSON(account.Data()), nullJSON(account.Context()), account.Version(), account.CreatedAt(), account.UpdatedAt(),
	)
	return mapError(err, "failed to create payout account for seller %s", account.SellerID())
}

func (r *payoutAccountRepository) Save(ctx context.Context, account *aggregate.PayoutAccount) error {
	res, err := r.uow.ext().ExecContext(ctx, `
		UPDATE payout_account SET provider = $2, reference_id = $3, status = $4, data = $5, context = $6,
			version = $7, updated_at = $8
		WHERE id = $1`,
		account.ID(), account.Provider(), account.ReferenceID(), string(account.Status()),
		nullJSON(account.Data()), nullJSON(account.Context()), account.Version(), account.UpdatedAt(),
	)
	if err != nil {
		return mapError(err, "failed to save payout account %s", account.ID())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payout account %s: %w", account.ID(), repository.ErrNotFound)
	}
	return nil
}

func (r *payoutAccountRepository) GetByID(ctx context.Context, id string) (*aggregate.PayoutAccount, error) {
	return r.getOne(ctx, `id = $1`, "payout account "+id, id)
}

func (r *payoutAccountRepository) GetBySellerID(ctx context.Context, sellerID string) (*aggregate.PayoutAccount, error) {
	return r.getOne(ctx, `seller_id = $1`, "payout account of seller "+sellerID, sellerID)
}

func (r *payoutAccountRepository) GetByReference(ctx context.Context, provider, referenceID string) (*aggregate.PayoutAccount, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("payout account without reference: %w", repository.ErrNotFound)
	}
	return r.getOne(ctx, `provider = $1 AND reference_id = $2`, "payout account "+provider+"/"+referenceID, provider, referenceID)
}

func (r *payoutAccountRepository) ListByStatus(ctx context.Context, status aggregate.AccountStatus, offset, limit int) ([]*aggregate.PayoutAccount, error) {
	var rows []accountRow
	err := sqlx.SelectContext(ctx, r.uow.ext(), &rows,
		`SELECT `+accountColumns+` FROM payout_account WHERE status = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, mapError(err, "failed to list %s payout accounts", status)
	}
	accounts := make([]*aggregate.PayoutAccount, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.toAggregate())
	}
	return accounts, nil
}

func (r *payoutAccountRepository) getOne(ctx context.Context, where, what string, args ...interface{}) (*aggregate.PayoutAccount, error) {
	var row accountRow
	if err := sqlx.GetContext(ctx, r.uow.ext(), &row, `SELECT `+accountColumns+` FROM payout_account WHERE `+where+r.uow.forUpdate(), args...); err != nil {
		return nil, mapError(err, "%s", what)
	}
	return row.toAggregate(), nil
}

type onboardingRepository struct {
	uow *UnitOfWork
}

// Save keeps one onboarding per account
func (r *onboardingRepository) Save(ctx context.Context, onboarding *aggregate.Onboarding) error {
	_, err := r.uow.ext().ExecContext(ctx, `
		INSERT INTO onboarding (id, account_id, data, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE SET
			data = EXCLUDED.data,
			context = EXCLUDED.context,
			updated_at = EXCLUDED.updated_at`,
		onboarding.ID(), onboarding.AccountID(), nullJSON(onboarding.Data()), nullJSON(onboarding.Context()),
		onboarding.CreatedAt(), onboarding.UpdatedAt(),
	)
	return mapError(err, "failed to save onboarding of account %s", onboarding.AccountID())
}

func (r *onboardingRepository) GetByAccountID(ctx context.Context, accountID string) (*aggregate.Onboarding, error) {
	var row onboardingRow
	err := sqlx.GetContext(ctx, r.uow.ext(), &row,
		`SELECT id, account_id, data, context, created_at, updated_at FROM onboarding WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, mapError(err, "onboarding of account %s", accountID)
	}
	return aggregate.ReconstructOnboarding(row.ID, row.AccountID, row.Data, row.Context, row.CreatedAt, row.UpdatedAt), nil
}
