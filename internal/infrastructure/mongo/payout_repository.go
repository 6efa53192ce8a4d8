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

type payoutRepository struct {
	sessionRepository
	payouts *mongo.Collection
}

func newPayoutRepository(database *mongo.Database) *payoutRepository {
	return &payoutRepository{payouts: database.Collection(collectionPayouts)}
}

func (r *payoutRepository) Create(ctx context.Context, payout *aggregate.Payout) error {
	_, err := r.payouts.InsertOne(r.getContext(ctx), newPayoutDocument(payout))
	return mapError(err, "failed to create payout %s", payout.ID())
}

func (r *payoutRepository) Save(ctx context.Context, payout *aggregate.Payout) error {
	doc := newPayoutDocument(payout)
	res, err := r.payouts.ReplaceOne(r.getContext(ctx), bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mapError(err, "failed to save payout %s", doc.ID)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("payout %s: %w", doc.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*aggregate.Payout, error) {
	var doc payoutDocument
	if err := r.payouts.FindOne(r.getContext(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapError(err, "payout %s", id)
	}
	return doc.toAggregate(), nil
}

func (r *payoutRepository) GetByProviderReference(ctx context.Context, reference string) (*aggregate.Payout, error) {
	if reference == "" {
		return nil, fmt.Errorf("payout without provider reference: %w", repository.ErrNotFound)
	}
	var doc payoutDocument
	if err := r.payouts.FindOne(r.getContext(ctx), bson.M{"provider_reference": reference}).Decode(&doc); err != nil {
		return nil, mapError(err, "payout with provider reference %s", reference)
	}
	return doc.toAggregate(), nil
}

func (r *payoutRepository) ListByOrderID(ctx context.Context, orderID string) ([]*aggregate.Payout, error) {
	return r.find(ctx, bson.M{"order_id": orderID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

// ListByAccountID returns newest first
func (r *payoutRepository) ListByAccountID(ctx context.Context, accountID string, offset, limit int) ([]*aggregate.Payout, error) {
	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return r.find(ctx, bson.M{"account_id": accountID}, opts)
}

func (r *payoutRepository) ListByAccountAndStatus(ctx context.Context, accountID string, statuses []aggregate.PayoutStatus) ([]*aggregate.Payout, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	filter := bson.M{"account_id": accountID, "status": bson.M{"$in": values}}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

func (r *payoutRepository) ListByStatus(ctx context.Context, status aggregate.PayoutStatus, offset, limit int) ([]*aggregate.Payout, error) {
	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"status": string(status)}, opts)
}

func (r *payoutRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*aggregate.Payout, error) {
	ctx = r.getContext(ctx)

	cursor, err := r.payouts.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err, "failed to find payouts")
	}
	var docs []payoutDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode payouts")
	}
	payouts := make([]*aggregate.Payout, 0, len(docs))
	for _, doc := range docs {
		payouts = append(payouts, doc.toAggregate())
	}
	return payouts, nil
}
