package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	collectionRates        = "commission_rates"
	collectionRules        = "commission_rules"
	collectionLines        = "commission_lines"
	collectionAccounts     = "payout_accounts"
	collectionOnboardings  = "onboardings"
	collectionPayouts      = "payouts"
	collectionBalances     = "payout_balances"
	collectionTransactions = "payout_transactions"
)

// MongoConfig holds configuration for MongoDB connection
type MongoConfig struct {
	URI      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// MongoClient wraps the MongoDB client and database
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
	config   *MongoConfig
}

// NewMongoClient connects and pings. Multi-document transactions need a replica set.
func NewMongoClient(config *MongoConfig) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetServerSelectionTimeout(config.Timeout)

	if config.Username != "" && config.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.Username,
			Password: config.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoClient{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
	}, nil
}

// GetDatabase returns the MongoDB database
func (mc *MongoClient) GetDatabase() *mongo.Database {
	return mc.database
}

// GetClient returns the underlying MongoDB client
func (mc *MongoClient) GetClient() *mongo.Client {
	return mc.client
}

// EnsureIndexes creates the unique keys the repositories rely on for ErrDuplicate
func (mc *MongoClient) EnsureIndexes(ctx context.Context) error {
	for name, models := range settlementIndexes() {
		if _, err := mc.database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// settlementIndexes lists the indexes of every collection
func settlementIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		collectionRules: {
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "reference", Value: 1}, {Key: "reference_id", Value: 1}}},
		},
		collectionLines: {
			{
				Keys: bson.D{{Key: "item_line_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"deleted": false}),
			},
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionAccounts: {
			{Keys: bson.D{{Key: "seller_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "reference_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionOnboardings: {
			{Keys: bson.D{{Key: "account_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionPayouts: {
			{Keys: bson.D{{Key: "provider_reference", Value: 1}}},
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionBalances: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "currency_code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionTransactions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "currency_code", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "reference", Value: 1}, {Key: "reference_id", Value: 1}}},
		},
	}
}

// Close closes the MongoDB connection
func (mc *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mc.config.Timeout)
	defer cancel()

	return mc.client.Disconnect(ctx)
}

// Ping tests the MongoDB connection
func (mc *MongoClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), mc.config.Timeout)
	defer cancel()

	return mc.client.Ping(ctx, nil)
}
