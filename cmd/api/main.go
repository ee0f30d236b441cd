package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/api"
	"github.com/sanosuguru/go-event-price-tracker/internal/api/handler"
	"github.com/sanosuguru/go-event-price-tracker/internal/api/middleware"
	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/config"
	"github.com/sanosuguru/go-event-price-tracker/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-event-price-tracker/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/telemetry"
	"github.com/sanosuguru/go-event-price-tracker/internal/worker"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}); err != nil {
		logger.Fatal("トレース初期化エラー", zap.Error(err))
	}

	// データベース
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	version, err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath)
	if err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}
	logger.Info("マイグレーション適用済み", zap.Uint("version", version))

	m := metrics.Init()

	// Redis は任意。接続できなければロック・キャッシュ・キューなしで起動する
	var (
		redisClient *goredis.Client
		locker      application.IdentityLocker
		priceCache  application.PriceCache
		queue       *redisinfra.SnapshotQueue
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			logger.Warn("Redisに接続できないため分散ロックとキャッシュを無効化します", zap.Error(err))
		} else {
			defer redisClient.Close()
			locker = redisinfra.NewLockManager(redisClient, redisinfra.LockOptions{
				TTL:        cfg.Reconcile.LockTTL,
				MaxRetries: cfg.Reconcile.LockRetries,
			}, m)
			priceCache = redisinfra.NewPriceCache(redisClient, cfg.Redis.CacheTTL)
			queue = redisinfra.NewSnapshotQueue(redisClient)
		}
	}

	// リポジトリ
	txManager := postgres.NewTxManager(db, cfg.Reconcile.LockTimeout)
	eventRepo := postgres.NewEventRepository(db)
	priceRepo := postgres.NewPriceRepository(db)
	historyRepo := postgres.NewHistoryRepository(db)
	venueRepo := postgres.NewVenueRepository(db)

	// サービス
	gateway := application.NewGateway(txManager, priceRepo, historyRepo, cfg.Reconcile.TxTimeout)
	identities := application.NewIdentityRegistry(eventRepo, cfg.Reconcile.SourceKeyProviders)
	venues := application.NewVenueResolver(venueRepo, cfg.Reconcile.VenueMatchThreshold, m)
	reconciler := application.NewReconcileService(gateway, identities, venues, locker, priceCache, m)
	queries := application.NewQueryService(eventRepo, priceRepo, historyRepo, priceCache)

	// 取り込みワーカー
	var ingester *worker.SnapshotIngester
	if cfg.Ingest.Enabled && queue != nil {
		ingester = worker.NewSnapshotIngester(queue, reconciler,
			cfg.Ingest.Providers, cfg.Ingest.Interval, cfg.Ingest.BatchSize, cfg.Ingest.RatePerSecond, m)
		go ingester.Start(ctx)
	} else if cfg.Ingest.Enabled {
		logger.Warn("Redisが無効なため取り込みワーカーを起動しません")
	}

	// HTTP サーバー
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	metricsCfg := middleware.LoadMetricsConfig()
	if metricsCfg.IsEnabled() {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(metricsCfg))
	} else {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, redisClient) }
	}

	var snapshotQueue handler.SnapshotQueueInterface
	if queue != nil {
		snapshotQueue = queue
	}
	handler.RegisterRoutes(e, handler.Handlers{
		Health:    handler.NewHealthHandler(checks),
		Snapshots: handler.NewSnapshotHandler(reconciler, snapshotQueue),
		Events:    handler.NewEventHandler(queries),
		Venues:    handler.NewVenueHandler(venues),
	})

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	if ingester != nil {
		ingester.Stop()
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("トレース終了エラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
