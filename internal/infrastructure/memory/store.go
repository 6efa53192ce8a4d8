package memory

import (
	"context"
	"fmt"
	"sync"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

// Store keeps every collection in process memory. A transaction holds the store's write lock from
// Begin to Commit, so transactions are serialized and rollback replays an undo journal.
type Store struct {
	mu sync.RWMutex

	rules        map[string]*aggregate.CommissionRule
	lines        map[string]*aggregate.CommissionLine
	accounts     map[string]*aggregate.PayoutAccount
	onboardings  map[string]*aggregate.Onboarding
	payouts      map[string]*aggregate.Payout
	balances     map[string]*aggregate.PayoutBalance
	transactions []aggregate.PayoutTransaction
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rules:       make(map[string]*aggregate.CommissionRule),
		lines:       make(map[string]*aggregate.CommissionLine),
		accounts:    make(map[string]*aggregate.PayoutAccount),
		onboardings: make(map[string]*aggregate.Onboarding),
		payouts:     make(map[string]*aggregate.Payout),
		balances:    make(map[string]*aggregate.PayoutBalance),
	}
}

// UnitOfWork implements repository.UnitOfWork over a Store
type UnitOfWork struct {
	store         *Store
	mutex         sync.Mutex
	inTransaction bool
	undo          []func()
}

// NewUnitOfWork creates a unit of work bound to store
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// Begin takes the store lock
func (uow *UnitOfWork) Begin(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.inTransaction {
		return fmt.Errorf("unit of work is already in transaction")
	}
	uow.store.mu.Lock()
	uow.inTransaction = true
	uow.undo = nil
	return nil
}

// Commit keeps the writes and releases the lock
func (uow *UnitOfWork) Commit(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to commit")
	}
	uow.endTransaction()
	return nil
}

// Rollback undoes the writes in reverse order and releases the lock
func (uow *UnitOfWork) Rollback(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to rollback")
	}
	uow.rollback()
	return nil
}

// Close rolls back a transaction left open
func (uow *UnitOfWork) Close() error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.inTransaction {
		uow.rollback()
	}
	return nil
}

// IsInTransaction returns whether the unit of work is in a transaction
func (uow *UnitOfWork) IsInTransaction() bool {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()
	return uow.inTransaction
}

func (uow *UnitOfWork) rollback() {
	for i := len(uow.undo) - 1; i >= 0; i-- {
		uow.undo[i]()
	}
	uow.endTransaction()
}

func (uow *UnitOfWork) endTransaction() {
	uow.undo = nil
	uow.inTransaction = false
	uow.store.mu.Unlock()
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

// read runs fn under the read lock unless the transaction already holds the store
func (uow *UnitOfWork) read(fn func(s *Store) error) error {
	if uow.IsInTransaction() {
		return fn(uow.store)
	}
	uow.store.mu.RLock()
	defer uow.store.mu.RUnlock()
	return fn(uow.store)
}

// write runs fn and journals its undo step when inside a transaction
func (uow *UnitOfWork) write(fn func(s *Store) (func(), error)) error {
	if uow.IsInTransaction() {
		undo, err := fn(uow.store)
		if err != nil {
			return err
		}
		uow.mutex.Lock()
		uow.undo = append(uow.undo, undo)
		uow.mutex.Unlock()
		return nil
	}
	uow.store.mu.Lock()
	defer uow.store.mu.Unlock()
	_, err := fn(uow.store)
	return err
}

// put stores v under k and returns the step that restores the previous value
func put[K comparable, V any](m map[K]V, k K, v V) func() {
	prev, had := m[k]
	m[k] = v
	return func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// UnitOfWorkFactory creates memory unit of work instances
type UnitOfWorkFactory struct {
	store *Store
}

// NewUnitOfWorkFactory creates a factory over store
func NewUnitOfWorkFactory(store *Store) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{store: store}
}

// CreateUnitOfWork creates a new unit of work instance
func (f *UnitOfWorkFactory) CreateUnitOfWork() repository.UnitOfWork {
	return NewUnitOfWork(f.store)
}
