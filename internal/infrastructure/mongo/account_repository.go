package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type payoutAccountRepository struct {
	sessionRepository
	accounts *mongo.Collection
}

func newPayoutAccountRepository(database *mongo.Database) *payoutAccountRepository {
	return &payoutAccountRepository{accounts: database.Collection(collectionAccounts)}
}

func (r *payoutAccountRepository) Create(ctx context.Context, account *aggregate.PayoutAccount) error {
	_, err := r.accounts.InsertOne(r.getContext(ctx), newAccountDocument(account))
	return mapError(err, "failed to create payout account for seller %s", account.SellerID())
}

func (r *payoutAccountRepository) Save(ctx context.Context, account *aggregate.PayoutAccount) error {
	doc := newAccountDocument(account)
	res, err := r.accounts.ReplaceOne(r.getContext(ctx), bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mapError(err, "failed to save payout account %s", doc.ID)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("payout account %s: %w", doc.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *payoutAccountRepository) GetByID(ctx context.Context, id string) (*aggregate.PayoutAccount, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "payout account "+id)
}

func (r *payoutAccountRepository) GetBySellerID(ctx context.Context, sellerID string) (*aggregate.PayoutAccount, error) {
	return r.findOne(ctx, bson.M{"seller_id": sellerID}, "payout account of seller "+sellerID)
}

func (r *payoutAccountRepository) GetByReference(ctx context.Context, provider, referenceID string) (*aggregate.PayoutAccount, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("payout account without reference: %w", repository.ErrNotFound)
	}
	return r.findOne(ctx, bson.M{"provider": provider, "reference_id": referenceID}, "payout account "+provider+"/"+referenceID)
}

func (r *payoutAccountRepository) ListByStatus(ctx context.Context, status aggregate.AccountStatus, offset, limit int) ([]*aggregate.PayoutAccount, error) {
	ctx = r.getContext(ctx)

	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.accounts.Find(ctx, bson.M{"status": string(status)}, opts)
	if err != nil {
		return nil, mapError(err, "failed to list %s payout accounts", status)
	}
	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode payout accounts")
	}
	accounts := make([]*aggregate.PayoutAccount, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, doc.toAggregate())
	}
	return accounts, nil
}

func (r *payoutAccountRepository) findOne(ctx context.Context, filter bson.M, what string) (*aggregate.PayoutAccount, error) {
	var doc accountDocument
	if err := r.accounts.FindOne(r.getContext(ctx), filter).Decode(&doc); err != nil {
		return nil, mapError(err, "%s", what)
	}
	return doc.toAggregate(), nil
}

type onboardingRepository struct {
	sessionRepository
	onboardings *mongo.Collection
}

func newOnboardingRepository(database *mongo.Database) *onboardingRepository {
	return &onboardingRepository{onboardings: database.Collection(collectionOnboardings)}
}

// Save keeps one onboarding per account
func (r *onboardingRepository) Save(ctx context.Context, onboarding *aggregate.Onboarding) error {
	doc := onboardingDocument{
		ID:        onboarding.ID(),
		AccountID: onboarding.AccountID(),
		Data:      string(onboarding.Data()),
		Context:   string(onboarding.Context()),
		CreatedAt: onboarding.CreatedAt(),
		UpdatedAt: onboarding.UpdatedAt(),
	}
	_, err := r.onboardings.ReplaceOne(r.getContext(ctx), bson.M{"account_id": doc.AccountID}, doc, options.Replace().SetUpsert(true))
	return mapError(err, "failed to save onboarding of account %s", doc.AccountID)
}

func (r *onboardingRepository) GetByAccountID(ctx context.Context, accountID string) (*aggregate.Onboarding, error) {
	var doc onboardingDocument
	if err := r.onboardings.FindOne(r.getContext(ctx), bson.M{"account_id": accountID}).Decode(&doc); err != nil {
		return nil, mapError(err, "onboarding of account %s", accountID)
	}
	return doc.toAggregate(), nil
}
