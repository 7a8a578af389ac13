package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	channelapp "github.com/marketrelay/backend/internal/application/channel"
	commissionapp "github.com/marketrelay/backend/internal/application/commission"
	relayapp "github.com/marketrelay/backend/internal/application/relay"
	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/marketrelay/backend/internal/infrastructure/cache"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/event"
	"github.com/marketrelay/backend/internal/infrastructure/fulfillment"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/infrastructure/migration"
	"github.com/marketrelay/backend/internal/infrastructure/notification"
	"github.com/marketrelay/backend/internal/infrastructure/persistence"
	"github.com/marketrelay/backend/internal/infrastructure/statement"
	"github.com/marketrelay/backend/internal/infrastructure/storage"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"github.com/marketrelay/backend/internal/interfaces/http/handler"
	"github.com/marketrelay/backend/internal/interfaces/http/router"
	"github.com/marketrelay/backend/migrations"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			MarketRelay API
//	@version		1.0
//	@description	Marketplace order relay, commission and settlement service
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/marketrelay/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

const appVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}
	base, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, log, err := startObservability(ctx, cfg, base)
	if err != nil {
		base.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		obs.shutdown(context.Background(), log)
		_ = logger.Sync(log)
	}()

	log.Info("Starting MarketRelay",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", appVersion),
	)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := migrate(db, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}
	dbInst, err := telemetry.InstrumentDB(db.DB, telemetry.DBConfig{
		Tracing:            cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		DBName:             cfg.Database.DBName,
	}, obs.metrics, log)
	if err != nil {
		log.Warn("Failed to instrument database", zap.Error(err))
	}
	defer dbInst.Stop()

	// Without redis, idempotency keys and sandbox orders stay in process
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
		}
		defer func() { _ = client.Close() }()
		redisClient = client
	}

	codec := event.DomainCodec()
	// relay events are committed with the relay and redelivered until handled
	relayRepo := persistence.NewGormOrderRelayRepository(db.DB).WithOutbox(codec)
	commissionRepo := persistence.NewGormCommissionRepository(db.DB)
	batchRepo := persistence.NewGormSettlementBatchRepository(db.DB)
	accountRepo := persistence.NewGormChannelAccountRepository(db.DB)
	linkRepo := persistence.NewGormListingLinkRepository(db.DB)

	eventBus := event.NewInMemoryEventBus(log)
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(redisClient,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	deduper := event.NewDeduper(idempotencyStore, shared.IdempotencyConfig{
		TTL:              cfg.Event.IdempotencyTTL,
		Enabled:          true,
		ReleaseOnFailure: true,
	}, log)
	subscribe := func(h shared.EventHandler) { eventBus.Subscribe(deduper.Wrap(h)) }

	gateway := fulfillment.NewHTTPGateway(fulfillment.Config{
		BaseURL:       cfg.Relay.SupplierBaseURL,
		Timeout:       cfg.Relay.SupplierTimeout,
		SigningSecret: cfg.Relay.SigningSecret,
	}, log)
	relayService := relayapp.NewService(relayRepo, gateway, relayapp.Config{
		MaxRetries:        cfg.Relay.MaxRetries,
		RetryBackoff:      cfg.Relay.RetryBackoff,
		DispatchBatchSize: cfg.Relay.DispatchBatchSize,
		DispatchLease:     cfg.Relay.DispatchLease,
	}, log)
	outbox := event.NewOutboxProcessor(persistence.NewGormOutboxRepository(db.DB), eventBus, codec, event.OutboxConfig{
		BatchSize:    cfg.Event.OutboxBatchSize,
		PollInterval: cfg.Event.OutboxPollInterval,
		RetryBackoff: cfg.Event.OutboxRetryBackoff,
		ClaimLease:   cfg.Event.OutboxClaimLease,
		Retention:    cfg.Event.OutboxRetention,
	}, log)
	relayService.SetEventPublisher(outbox)

	policies, err := buildPolicies(cfg.Commission.Policies, cfg.Commission.DefaultHoldWindow)
	if err != nil {
		log.Fatal("Invalid commission policy", zap.Error(err))
	}
	policyProvider, err := commissionapp.NewStaticPolicyProvider(cfg.Commission.DefaultPolicyID, policies)
	if err != nil {
		log.Fatal("Invalid commission policy set", zap.Error(err))
	}
	commissionService := commissionapp.NewService(commissionRepo, policyProvider,
		commissionapp.NewRelayOrderState(relayRepo), cfg.Commission.SweepBatchSize, log)
	commissionService.SetEventPublisher(eventBus)

	settlementConfig, err := buildSettlementConfig(cfg.Settlement)
	if err != nil {
		log.Fatal("Invalid settlement configuration", zap.Error(err))
	}
	settlementService := settlementapp.NewService(batchRepo, settlementConfig, log)
	settlementService.SetEventPublisher(eventBus)

	registry := buildConnectorRegistry(cfg.Channel, newOrderStore(redisClient), log)
	channelService := channelapp.NewService(accountRepo, linkRepo, registry, relayService,
		channelapp.Config{PageSize: cfg.Channel.PageSize}, log)

	subscribe(commissionapp.NewRelayCreatedHandler(commissionService, log))
	subscribe(commissionapp.NewRelayCancelledHandler(commissionService, log))

	notifier, err := newNotifier(ctx, cfg.Notification, log)
	if err != nil {
		log.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	defer func() { _ = notifier.Close() }()
	subscribe(notification.NewEventHandler(notifier, codec, log))

	var statementLinker handler.StatementLinker
	if cfg.Settlement.StatementExport {
		objectStore, err := storage.NewS3(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to initialize statement storage", zap.Error(err))
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			log.Warn("Statement bucket check failed", zap.String("bucket", objectStore.Bucket()), zap.Error(err))
		}
		exporter := statement.NewExporter(settlementService, objectStore, cfg.Storage.Prefix, log)
		subscribe(exporter)
		statementLinker = exporter
	}

	businessMetrics, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:           obs.metrics.Meter("marketrelay/business"),
		Logger:          log,
		BacklogProvider: telemetry.NewGormBacklogProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize business metrics", zap.Error(err))
	}
	eventBus.Subscribe(businessMetrics)
	eventBus.SetObserver(businessMetrics)
	businessMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsExportInterval)
	defer businessMetrics.Stop()

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() { _ = eventBus.Stop(context.Background()) }()

	workers, err := startWorkers(ctx, cfg, services{
		outbox:     outbox,
		relay:      relayService,
		commission: commissionService,
		settlement: settlementService,
		channel:    channelService,
		location:   settlementConfig.Location,
	}, log)
	if err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		workers.stop(stopCtx)
	}()

	health := map[string]handler.HealthCheck{"database": db.Ping}
	if redisClient != nil {
		health["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	engine := newEngine(ctx, cfg, log, obs.metrics, health, router.Handlers{
		Relay:      handler.NewRelayHandler(relayService),
		Commission: handler.NewCommissionHandler(commissionService),
		Settlement: handler.NewSettlementHandler(settlementService, statementLinker, cfg.Storage.URLExpiry),
		Channel:    handler.NewChannelHandler(channelService),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
}

// migrate applies the embedded migrations. The migrator is not closed:
// closing its postgres driver would close the shared pool.
func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}
