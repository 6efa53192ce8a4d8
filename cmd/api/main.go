package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketplace-settlement/config"
	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/application/services"
	"marketplace-settlement/internal/domain/commission"
	"marketplace-settlement/internal/infrastructure/bus"
	"marketplace-settlement/internal/infrastructure/catalog"
	httpHandler "marketplace-settlement/internal/infrastructure/http"
	"marketplace-settlement/internal/infrastructure/kafka"
	"marketplace-settlement/internal/infrastructure/memory"
	redisstore "marketplace-settlement/internal/infrastructure/redis"
	"marketplace-settlement/pkg/jwt"
	"marketplace-settlement/pkg/logger"
	"marketplace-settlement/pkg/middleware"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or could not be loaded")
	}

	cfg := config.LoadEnv()
	zl, err := logger.New(cfg.Server.AppEnv, cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("marketplace settlement stopped with error", zap.Error(err))
	}
	zl.Info("marketplace settlement stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	zl.Info("starting marketplace settlement",
		zap.String("env", cfg.Server.AppEnv),
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", cfg.Payout.Provider))

	uowFactory, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	providers, err := buildProviders(cfg, zl)
	if err != nil {
		return err
	}

	eventBus := bus.NewAsyncEventBus(zl)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		if err := eventBus.Subscribe(bus.AllEvents, publisher); err != nil {
			return err
		}
	}
	if err := eventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer eventBus.Stop()

	var dedup command.WebhookDeduplicator = memory.NewDeduplicator(cfg.Redis.DedupTTL)
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		dedup = redisstore.NewDeduplicator(client, cfg.Redis.DedupTTL)
	}

	rules, err := catalog.LoadFile(cfg.Commission.RulesFile)
	if err != nil {
		return err
	}
	resolver := commission.NewResolver(rules.Categories)
	defaultProvider := providers.Default().Name()

	// Command handlers
	computeHandler := command.NewComputeAndRecordCommissionWithUoWHandler(uowFactory, resolver, eventBus, defaultProvider, zl)
	recordHandler := command.NewRecordCommissionWithUoWHandler(uowFactory, eventBus, defaultProvider, zl)
	reverseHandler := command.NewReverseCommissionWithUoWHandler(uowFactory, eventBus, zl)
	reverseOrderHandler := command.NewReverseOrderCommissionWithUoWHandler(uowFactory, eventBus, zl)
	upsertRuleHandler := command.NewUpsertCommissionRuleWithUoWHandler(uowFactory, eventBus, zl)
	createAccountHandler := command.NewCreatePayoutAccountWithUoWHandler(uowFactory, providers, eventBus, zl)
	syncAccountHandler := command.NewSyncAccountStatusWithUoWHandler(uowFactory, providers, eventBus, zl)
	applyDeltaHandler := command.NewApplyBalanceDeltaWithUoWHandler(uowFactory, eventBus, zl)
	requestPayoutHandler := command.NewRequestPayoutWithUoWHandler(uowFactory, providers, eventBus, cfg.Payout.ProviderTimeout, zl)
	reversePayoutHandler := command.NewReversePayoutWithUoWHandler(uowFactory, eventBus, zl)
	syncPayoutHandler := command.NewSyncPayoutStatusWithUoWHandler(uowFactory, providers, requestPayoutHandler, eventBus, zl)
	webhookHandler := command.NewProcessWebhookEventWithUoWHandler(uowFactory, providers, dedup, eventBus, zl)

	// Application services
	commissionService := services.NewCommissionService(
		computeHandler,
		recordHandler,
		reverseHandler,
		reverseOrderHandler,
		upsertRuleHandler,
		query.NewListOrderCommissionHandler(uowFactory),
		query.NewListCommissionRulesHandler(uowFactory),
	)
	payoutService := services.NewPayoutService(services.PayoutHandlers{
		CreateAccount:    createAccountHandler,
		SyncAccount:      syncAccountHandler,
		ApplyDelta:       applyDeltaHandler,
		RequestPayout:    requestPayoutHandler,
		ReversePayout:    reversePayoutHandler,
		SyncPayout:       syncPayoutHandler,
		ProcessWebhook:   webhookHandler,
		GetAccount:       query.NewGetAccountBySellerHandler(uowFactory),
		GetOnboarding:    query.NewGetOnboardingHandler(uowFactory),
		GetBalances:      query.NewGetBalancesHandler(uowFactory),
		ListTransactions: query.NewListTransactionsHandler(uowFactory),
		Reconcile:        query.NewReconcileBalanceHandler(uowFactory),
		GetPayout:        query.NewGetPayoutHandler(uowFactory),
		ListPayouts:      query.NewListPayoutsHandler(uowFactory),
	})
	orderService := services.NewOrderService(commissionService, payoutService)

	if err := catalog.Seed(ctx, commissionService, rules, zl); err != nil {
		return err
	}

	router := httpHandler.NewRouter(httpHandler.RouterConfig{
		Vendor:         httpHandler.NewVendorPayoutController(payoutService),
		Admin:          httpHandler.NewAdminController(commissionService, payoutService),
		Orders:         httpHandler.NewOrderController(orderService),
		Webhooks:       httpHandler.NewWebhookController(payoutService),
		JWTManager:     jwt.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Issuer),
		RateLimiter:    middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         zl,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		zl.Info("shutting down http server")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Payout.ReconcileInterval > 0 {
		poller := services.NewPayoutReconciliationService(
			uowFactory, syncPayoutHandler, syncAccountHandler, requestPayoutHandler,
			cfg.Payout.ReconcileInterval, cfg.Payout.StaleAfter, zl,
		)
		g.Go(func() error {
			poller.Start(gctx)
			return nil
		})
	}

	if cfg.Payout.ScheduleInterval > 0 {
		minAmount, err := decimal.NewFromString(cfg.Payout.MinAmount)
		if err != nil {
			return fmt.Errorf("invalid PAYOUT_MIN_AMOUNT %q: %w", cfg.Payout.MinAmount, err)
		}
		scheduler := services.NewPayoutScheduler(
			uowFactory, requestPayoutHandler, cfg.Payout.ScheduleInterval, minAmount, cfg.Payout.BatchConcurrency, zl,
		)
		g.Go(func() error {
			scheduler.Start(gctx)
			return nil
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		listener, err := kafka.NewOrderListener(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrderTopic, orderService, zl)
		if err != nil {
			return err
		}
		defer listener.Close()
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	return g.Wait()
}
