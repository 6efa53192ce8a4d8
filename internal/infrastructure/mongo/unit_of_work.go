package mongo

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"marketplace-settlement/internal/domain/repository"
)

// MongoUnitOfWork runs repositories inside one snapshot session transaction
type MongoUnitOfWork struct {
	client        *mongo.Client
	session       mongo.Session
	mutex         sync.RWMutex
	inTransaction bool

	ruleRepo       *commissionRuleRepository
	lineRepo       *commissionLineRepository
	accountRepo    *payoutAccountRepository
	onboardingRepo *onboardingRepository
	payoutRepo     *payoutRepository
	balanceRepo    *balanceRepository
}

// NewMongoUnitOfWork creates a new MongoDB unit of work
func NewMongoUnitOfWork(client *mongo.Client, database *mongo.Database) *MongoUnitOfWork {
	return &MongoUnitOfWork{
		client:         client,
		ruleRepo:       newCommissionRuleRepository(database),
		lineRepo:       newCommissionLineRepository(database),
		accountRepo:    newPayoutAccountRepository(database),
		onboardingRepo: newOnboardingRepository(database),
		payoutRepo:     newPayoutRepository(database),
		balanceRepo:    newBalanceRepository(database),
	}
}

// Begin starts a new transaction
func (uow *MongoUnitOfWork) Begin(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.inTransaction {
		return fmt.Errorf("unit of work is already in transaction")
	}

	session, err := uow.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	txOptions := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txOptions); err != nil {
		session.EndSession(ctx)
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	uow.session = session
	uow.inTransaction = true
	uow.setTransaction(session)
	return nil
}

// Commit commits the current transaction
func (uow *MongoUnitOfWork) Commit(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to commit")
	}

	if err := uow.session.CommitTransaction(ctx); err != nil {
		_ = uow.session.AbortTransaction(ctx)
		uow.endTransaction(ctx)
		return mapError(err, "failed to commit transaction")
	}

	uow.endTransaction(ctx)
	return nil
}

// Rollback rolls back the current transaction
func (uow *MongoUnitOfWork) Rollback(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to rollback")
	}

	err := uow.session.AbortTransaction(ctx)
	uow.endTransaction(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (uow *MongoUnitOfWork) CommissionRuleRepository() repository.CommissionRuleRepository {
	return uow.ruleRepo
}

func (uow *MongoUnitOfWork) CommissionLineRepository() repository.CommissionLineRepository {
	return uow.lineRepo
}

func (uow *MongoUnitOfWork) PayoutAccountRepository() repository.PayoutAccountRepository {
	return uow.accountRepo
}

func (uow *MongoUnitOfWork) OnboardingRepository() repository.OnboardingRepository {
	return uow.onboardingRepo
}

func (uow *MongoUnitOfWork) PayoutRepository() repository.PayoutRepository {
	return uow.payoutRepo
}

func (uow *MongoUnitOfWork) BalanceRepository() repository.BalanceRepository {
	return uow.balanceRepo
}

// Close aborts a transaction left open
func (uow *MongoUnitOfWork) Close() error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.inTransaction && uow.session != nil {
		ctx := context.Background()
		_ = uow.session.AbortTransaction(ctx)
		uow.endTransaction(ctx)
	}
	return nil
}

// IsInTransaction returns whether the unit of work is in a transaction
func (uow *MongoUnitOfWork) IsInTransaction() bool {
	uow.mutex.RLock()
	defer uow.mutex.RUnlock()
	return uow.inTransaction
}

func (uow *MongoUnitOfWork) endTransaction(ctx context.Context) {
	if uow.session != nil {
		uow.session.EndSession(ctx)
		uow.session = nil
	}
	uow.inTransaction = false
	uow.setTransaction(nil)
}

func (uow *MongoUnitOfWork) setTransaction(tx interface{}) {
	repos := []repository.TransactionalRepository{
		uow.ruleRepo, uow.lineRepo, uow.accountRepo, uow.onboardingRepo, uow.payoutRepo, uow.balanceRepo,
	}
	for _, repo := range repos {
		repo.SetTransaction(tx)
	}
}

// MongoUnitOfWorkFactory creates MongoDB unit of work instances
type MongoUnitOfWorkFactory struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoUnitOfWorkFactory creates a new MongoDB unit of work factory
func NewMongoUnitOfWorkFactory(client *mongo.Client, database *mongo.Database) *MongoUnitOfWorkFactory {
	return &MongoUnitOfWorkFactory{client: client, database: database}
}

// CreateUnitOfWork creates a new unit of work instance
func (f *MongoUnitOfWorkFactory) CreateUnitOfWork() repository.UnitOfWork {
	return NewMongoUnitOfWork(f.client, f.database)
}
