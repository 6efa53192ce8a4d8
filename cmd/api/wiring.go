package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"marketplace-settlement/config"
	"marketplace-settlement/internal/domain/provider"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/internal/infrastructure/memory"
	"marketplace-settlement/internal/infrastructure/mongo"
	"marketplace-settlement/internal/infrastructure/payos"
	"marketplace-settlement/internal/infrastructure/postgres"
	"marketplace-settlement/internal/infrastructure/stripeconnect"
)

// openStore returns the unit of work factory for the configured driver and a cleanup func
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (repository.UnitOfWorkFactory, func(), error) {
	switch cfg.Store.Driver {
	case "memory", "":
		zl.Warn("using in-memory store, data is lost on restart")
		return memory.NewUnitOfWorkFactory(memory.NewStore()), func() {}, nil

	case "mongo":
		client, err := mongo.NewMongoClient(&mongo.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		zl.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
		cleanup := func() {
			if err := client.Close(); err != nil {
				zl.Warn("error closing MongoDB connection", zap.Error(err))
			}
		}
		return mongo.NewMongoUnitOfWorkFactory(client.GetClient(), client.GetDatabase()), cleanup, nil

	case "postgres":
		db, err := postgres.NewPostgres(ctx, &postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		zl.Info("connected to Postgres")
		cleanup := func() {
			if err := db.Close(); err != nil {
				zl.Warn("error closing Postgres pool", zap.Error(err))
			}
		}
		return postgres.NewUnitOfWorkFactory(db), cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
}

// buildProviders registers every provider with credentials. The configured default must be one of them.
func buildProviders(cfg *config.Config, zl *zap.Logger) (*provider.Registry, error) {
	var adapters []provider.Adapter
	httpClient := &http.Client{Timeout: cfg.Payout.ProviderTimeout}

	if cfg.Stripe.SecretKey != "" {
		adapter, err := stripeconnect.NewAdapter(stripeconnect.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Country:       cfg.Stripe.Country,
			ReturnURL:     cfg.Stripe.ReturnURL,
			RefreshURL:    cfg.Stripe.RefreshURL,
			HTTPClient:    httpClient,
		}, zl)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}

	if cfg.PayOS.ClientID != "" {
		client := payos.NewClient(payos.Config{
			ClientID:    cfg.PayOS.ClientID,
			APIKey:      cfg.PayOS.APIKey,
			ChecksumKey: cfg.PayOS.ChecksumKey,
			BaseURL:     cfg.PayOS.BaseURL,
		}, httpClient)
		adapters = append(adapters, payos.NewAdapter(client, zl))
	}

	registry, err := provider.NewRegistry(cfg.Payout.Provider, adapters...)
	if err != nil {
		return nil, fmt.Errorf("%w (set the provider credentials)", err)
	}
	zl.Info("payout providers registered", zap.Strings("providers", registry.Names()), zap.String("default", cfg.Payout.Provider))
	return registry, nil
}
