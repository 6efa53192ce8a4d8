package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"marketplace-settlement/internal/domain/repository"
)

// UnitOfWork runs repositories on one READ COMMITTED transaction. Rows a transaction reads for
// update are locked with FOR UPDATE, so concurrent writers to the same rows queue instead of failing.
type UnitOfWork struct {
	db    *sqlx.DB
	tx    *sqlx.Tx
	mutex sync.RWMutex
}

// NewUnitOfWork creates a new Postgres unit of work
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (uow *UnitOfWork) Begin(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.tx != nil {
		return fmt.Errorf("unit of work is already in transaction")
	}
	tx, err := uow.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	uow.tx = tx
	return nil
}

func (uow *UnitOfWork) Commit(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.tx == nil {
		return fmt.Errorf("no active transaction to commit")
	}
	err := uow.tx.Commit()
	uow.tx = nil
	return mapError(err, "failed to commit transaction")
}

func (uow *UnitOfWork) Rollback(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.tx == nil {
		return fmt.Errorf("no active transaction to rollback")
	}
	err := uow.tx.Rollback()
	uow.tx = nil
	if err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (uow *UnitOfWork) CommissionRuleRepository() repository.CommissionRuleRepository {
	return &commissionRuleRepository{uow: uow}
}

func (uow *UnitOfWork) CommissionLineRepository() repository.CommissionLineRepository {
	return &commissionLineRepository{uow: uow}
}

func (uow *UnitOfWork) PayoutAccountRepository() repository.PayoutAccountRepository {
	return &payoutAccountRepository{uow: uow}
}

func (uow *UnitOfWork) OnboardingRepository() repository.OnboardingRepository {
	return &onboardingRepository{uow: uow}
}

func (uow *UnitOfWork) PayoutRepository() repository.PayoutRepository {
	return &payoutRepository{uow: uow}
}

func (uow *UnitOfWork) BalanceRepository() repository.BalanceRepository {
	return &balanceRepository{uow: uow}
}

// Close rolls back a transaction left open
func (uow *UnitOfWork) Close() error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.tx != nil {
		_ = uow.tx.Rollback()
		uow.tx = nil
	}
	return nil
}

func (uow *UnitOfWork) IsInTransaction() bool {
	uow.mutex.RLock()
	defer uow.mutex.RUnlock()
	return uow.tx != nil
}

// ext is the active transaction, or the pool for reads outside one
func (uow *UnitOfWork) ext() sqlx.ExtContext {
	uow.mutex.RLock()
	defer uow.mutex.RUnlock()
	if uow.tx != nil {
		return uow.tx
	}
	return uow.db
}

// forUpdate is the locking clause for reads that precede a write. Outside a transaction there is
// nothing to hold the lock, so it is empty.
func (uow *UnitOfWork) forUpdate() string {
	uow.mutex.RLock()
	defer uow.mutex.RUnlock()
	if uow.tx != nil {
		return ` FOR UPDATE`
	}
	return ""
}

// UnitOfWorkFactory creates Postgres units of work over a shared pool
type UnitOfWorkFactory struct {
	db *sqlx.DB
}

func NewUnitOfWorkFactory(db *sqlx.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

func (f *UnitOfWorkFactory) CreateUnitOfWork() repository.UnitOfWork {
	return NewUnitOfWork(f.db)
}
