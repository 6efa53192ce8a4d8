package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type commissionRuleRepository struct {
	uow *UnitOfWork
}

// Save inserts the rate once and upserts the rule
func (r *commissionRuleRepository) Save(ctx context.Context, rule *aggregate.CommissionRule) error {
	rate := rule.Rate()
	var pct interface{}
	if p := rate.PercentageRate(); p != nil {
		pct = *p
	}
	_, err := r.uow.ext().ExecContext(ctx, `
		INSERT INTO commission_rate (id, type, percentage_rate, include_tax, flat_amount, min_amount, max_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		rate.ID(), string(rate.Type()), pct, rate.IncludeTax(),
		amountSetJSON(rate.FlatAmount()), amountSetJSON(rate.MinAmount()), amountSetJSON(rate.MaxAmount()), rate.CreatedAt(),
	)
	if err != nil {
		return mapError(err, "failed to save commission rate %s", rate.ID())
	}

	_, err = r.uow.ext().ExecContext(ctx, `
		INSERT INTO commission_rule (id, name, reference, reference_id, is_active, rate_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			rate_id = EXCLUDED.rate_id,
			updated_at = EXCLUDED.updated_at`,
		rule.ID(), rule.Name(), string(rule.Reference()), rule.ReferenceID(), rule.IsActive(), rate.ID(),
		rule.CreatedAt(), rule.UpdatedAt(),
	)
	return mapError(err, "failed to save commission rule %s", rule.ID())
}

func (r *commissionRuleRepository) GetByID(ctx context.Context, id string) (*aggregate.CommissionRule, error) {
	var row ruleRow
	if err := sqlx.GetContext(ctx, r.uow.ext(), &row, `SELECT `+ruleColumns+` WHERE r.id = $1`, id); err != nil {
		return nil, mapError(err, "commission rule %s", id)
	}
	return row.toAggregate(), nil
}

func (r *commissionRuleRepository) FindActive(ctx context.Context, q repository.RuleQuery) ([]*aggregate.CommissionRule, error) {
	query := `SELECT ` + ruleColumns + ` WHERE r.is_active AND (
		r.reference = ?
		OR (r.reference = ? AND r.reference_id = ?)
		OR (r.reference = ? AND r.reference_id = ?)`
	args := []interface{}{
		string(aggregate.RuleReferenceGlobal),
		string(aggregate.RuleReferenceSeller), q.SellerID,
		string(aggregate.RuleReferenceProduct), q.ProductID,
	}
	if len(q.CategoryIDs) > 0 {
		query += ` OR (r.reference = ? AND r.reference_id IN (?))`
		args = append(args, string(aggregate.RuleReferenceCategory), q.CategoryIDs)
	}
	query += `) ORDER BY r.id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	ext := r.uow.ext()
	query = ext.Rebind(query)

	var rows []ruleRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, mapError(err, "failed to find active commission rules")
	}
	rules := make([]*aggregate.CommissionRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toAggregate())
	}
	return rules, nil
}

func (r *commissionRuleRepository) List(ctx context.Context, offset, limit int) ([]*aggregate.CommissionRule, error) {
	var rows []ruleRow
	err := sqlx.SelectContext(ctx, r.uow.ext(), &rows,
		`SELECT `+ruleColumns+` ORDER BY r.created_at, r.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, mapError(err, "failed to list commission rules")
	}
	rules := make([]*aggregate.CommissionRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toAggregate())
	}
	return rules, nil
}

type commissionLineRepository struct {
	uow *UnitOfWork
}

const lineColumns = `id, order_id, item_line_id, seller_id, rule_id, currency_code, value, raw_value, gross_amount,
	version, created_at, updated_at, deleted_at`

// Create relies on the partial unique index over active item lines
func (r *commissionLineRepository) Create(ctx context.Context, line *aggregate.CommissionLine) error {
	_, err := sqlx.NamedExecContext(ctx, r.uow.ext(), `
		INSERT INTO commission_line (`+lineColumns+`)
		VALUES (:id, :order_id, :item_line_id, :seller_id, :rule_id, :currency_code, :value, :raw_value, :gross_amount,
			:version, :created_at, :updated_at, :deleted_at)`,
		newLineRow(line),
	)
	return mapError(err, "failed to create commission line for item line %s", line.ItemLineID())
}

func (r *commissionLineRepository) Save(ctx context.Context, line *aggregate.CommissionLine) error {
	res, err := sqlx.NamedExecContext(ctx, r.uow.ext(), `
		UPDATE commission_line SET version = :version, updated_at = :updated_at, deleted_at = :deleted_at
		WHERE id = :id`,
		newLineRow(line),
	)
	if err != nil {
		return mapError(err, "failed to save commission line %s", line.ID())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("commission line %s: %w", line.ID(), repository.ErrNotFound)
	}
	return nil
}

func (r *commissionLineRepository) GetActiveByItemLineID(ctx context.Context, itemLineID string) (*aggregate.CommissionLine, error) {
	var row lineRow
	err := sqlx.GetContext(ctx, r.uow.ext(), &row,
		`SELECT `+lineColumns+` FROM commission_line WHERE item_line_id = $1 AND deleted_at IS NULL`+r.uow.forUpdate(), itemLineID)
	if err != nil {
		return nil, mapError(err, "commission for item line %s", itemLineID)
	}
	return row.toAggregate(), nil
}

func (r *commissionLineRepository) ListByOrderID(ctx context.Context, orderID string, includeDeleted bool) ([]*aggregate.CommissionLine, error) {
	query := `SELECT ` + lineColumns + ` FROM commission_line WHERE order_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id` + r.uow.forUpdate()

	var rows []lineRow
	if err := sqlx.SelectContext(ctx, r.uow.ext(), &rows, query, orderID); err != nil {
		return nil, mapError(err, "failed to list commission lines of order %s", orderID)
	}
	lines := make([]*aggregate.CommissionLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toAggregate())
	}
	return lines, nil
}
