package mongo

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type balanceRepository struct {
	sessionRepository
	balances     *mongo.Collection
	transactions *mongo.Collection
}

func newBalanceRepository(database *mongo.Database) *balanceRepository {
	return &balanceRepository{
		balances:     database.Collection(collectionBalances),
		transactions: database.Collection(collectionTransactions),
	}
}

// ApplyDelta increments the balance document in place. Guarded debits carry the sufficiency check
// in the filter, so a miss means the funds are not there.
func (r *balanceRepository) ApplyDelta(ctx context.Context, tx aggregate.PayoutTransaction, delta aggregate.BalanceDelta) (*aggregate.PayoutBalance, error) {
	ctx = r.getContext(ctx)
	currency := aggregate.NormalizeCurrency(delta.CurrencyCode)

	filter := bson.M{"account_id": delta.AccountID, "currency_code": currency}
	guarded := delta.RequireFunds && delta.Amount.IsNegative()
	if guarded {
		filter["balance"] = bson.M{"$gte": toDecimal128(delta.Amount.Neg())}
	}

	update := bson.M{
		"$inc": bson.M{
			"balance":     toDecimal128(delta.Amount),
			"raw_balance": toDecimal128(delta.Raw()),
		},
		"$set": bson.M{"updated_at": tx.CreatedAt},
		"$setOnInsert": bson.M{
			"_id":        uuid.New().String(),
			"created_at": tx.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(!guarded).
		SetReturnDocument(options.After)

	var doc balanceDocument
	err := r.balances.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	switch {
	case guarded && stderrors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("%w: %s %s requested from account %s", aggregate.ErrInsufficientFunds, delta.Amount.Neg(), currency, delta.AccountID)
	case err != nil && mongo.IsDuplicateKeyError(err):
		// two first deltas raced on the upsert
		return nil, fmt.Errorf("balance %s/%s: %w", delta.AccountID, currency, repository.ErrTransactionConflict)
	case err != nil:
		return nil, mapError(err, "failed to apply balance delta")
	}

	if _, err := r.transactions.InsertOne(ctx, newTransactionDocument(tx)); err != nil {
		return nil, mapError(err, "failed to append payout transaction %s", tx.ID)
	}
	return doc.toAggregate(), nil
}

func (r *balanceRepository) GetBalance(ctx context.Context, accountID, currencyCode string) (*aggregate.PayoutBalance, error) {
	var doc balanceDocument
	filter := bson.M{"account_id": accountID, "currency_code": aggregate.NormalizeCurrency(currencyCode)}
	if err := r.balances.FindOne(r.getContext(ctx), filter).Decode(&doc); err != nil {
		return nil, mapError(err, "balance %s/%s", accountID, currencyCode)
	}
	return doc.toAggregate(), nil
}

func (r *balanceRepository) ListBalances(ctx context.Context, accountID string) ([]*aggregate.PayoutBalance, error) {
	ctx = r.getContext(ctx)

	cursor, err := r.balances.Find(ctx, bson.M{"account_id": accountID}, options.Find().SetSort(bson.D{{Key: "currency_code", Value: 1}}))
	if err != nil {
		return nil, mapError(err, "failed to list balances of account %s", accountID)
	}
	var docs []balanceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode balances")
	}
	balances := make([]*aggregate.PayoutBalance, 0, len(docs))
	for _, doc := range docs {
		balances = append(balances, doc.toAggregate())
	}
	return balances, nil
}

// ListTransactions returns entries newest first
func (r *balanceRepository) ListTransactions(ctx context.Context, accountID, currencyCode string, offset, limit int) ([]aggregate.PayoutTransaction, error) {
	ctx = r.getContext(ctx)

	filter := bson.M{"account_id": accountID}
	if currencyCode != "" {
		filter["currency_code"] = aggregate.NormalizeCurrency(currencyCode)
	}
	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.transactions.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err, "failed to list transactions of account %s", accountID)
	}
	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode transactions")
	}
	txs := make([]aggregate.PayoutTransaction, 0, len(docs))
	for _, doc := range docs {
		txs = append(txs, doc.toAggregate())
	}
	return txs, nil
}

func (r *balanceRepository) SumTransactions(ctx context.Context, accountID, currencyCode string) (decimal.Decimal, decimal.Decimal, error) {
	ctx = r.getContext(ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID, "currency_code": aggregate.NormalizeCurrency(currencyCode)}}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"sum": bson.M{"$sum": "$amount"},
			"raw": bson.M{"$sum": "$raw_amount"},
		}}},
	}
	cursor, err := r.transactions.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, decimal.Zero, mapError(err, "failed to sum transactions of account %s", accountID)
	}
	var rows []struct {
		Sum primitive.Decimal128 `bson:"sum"`
		Raw primitive.Decimal128 `bson:"raw"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, decimal.Zero, mapError(err, "failed to decode transaction sums")
	}
	if len(rows) == 0 {
		return decimal.Zero, decimal.Zero, nil
	}
	return fromDecimal128(rows[0].Sum), fromDecimal128(rows[0].Raw), nil
}
