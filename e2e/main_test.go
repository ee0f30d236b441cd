package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-event-price-tracker/internal/api"
	"github.com/sanosuguru/go-event-price-tracker/internal/api/handler"
	"github.com/sanosuguru/go-event-price-tracker/internal/api/middleware"
	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/config"
	"github.com/sanosuguru/go-event-price-tracker/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-event-price-tracker/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
)

var (
	testServer  *TestServer
	testDB      *sqlx.DB
	redisClient *redis.Client
)

// TestMain はE2Eテストのエントリポイント
// パッケージ全体で1回だけサーバーを起動することで高速化
func TestMain(m *testing.M) {
	cfg := config.Load()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		os.Exit(0) // DB未起動時はスキップ
	}
	testDB = db

	if _, err := postgres.RunMigrations(db.DB, "../migrations"); err != nil {
		db.Close()
		os.Exit(0)
	}

	// Redis接続
	rc, err := redisinfra.NewClient(&cfg.Redis)
	if err != nil {
		db.Close()
		os.Exit(0) // Redis未起動時はスキップ
	}
	redisClient = rc

	// サービス初期化
	mtr := metrics.NewWithRegistry(prometheus.NewRegistry())
	lockManager := redisinfra.NewLockManager(redisClient, redisinfra.LockOptions{
		TTL:        cfg.Reconcile.LockTTL,
		MaxRetries: 20,
	}, mtr)
	priceCache := redisinfra.NewPriceCache(redisClient, cfg.Redis.CacheTTL)
	queue := redisinfra.NewSnapshotQueue(redisClient)

	eventRepo := postgres.NewEventRepository(db)
	priceRepo := postgres.NewPriceRepository(db)
	historyRepo := postgres.NewHistoryRepository(db)
	venueRepo := postgres.NewVenueRepository(db)
	txManager := postgres.NewTxManager(db, cfg.Reconcile.LockTimeout)

	gateway := application.NewGateway(txManager, priceRepo, historyRepo, cfg.Reconcile.TxTimeout)
	identities := application.NewIdentityRegistry(eventRepo, []string{"Bubilet"})
	venues := application.NewVenueResolver(venueRepo, cfg.Reconcile.VenueMatchThreshold, mtr)
	reconciler := application.NewReconcileService(gateway, identities, venues, lockManager, priceCache, mtr)
	queries := application.NewQueryService(eventRepo, priceRepo, historyRepo, priceCache)

	// Echo セットアップ
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)

	handler.RegisterRoutes(e, handler.Handlers{
		Health:    handler.NewHealthHandler(nil),
		Snapshots: handler.NewSnapshotHandler(reconciler, queue),
		Events:    handler.NewEventHandler(queries),
		Venues:    handler.NewVenueHandler(venues),
	})

	testServer = &TestServer{Echo: e, Reconciler: reconciler, Queue: queue}

	// テスト実行
	code := m.Run()

	// 最終クリーンアップ
	cleanupTables()
	redisClient.Close()
	db.Close()

	os.Exit(code)
}

// getTestServer は共有サーバーを取得（テスト前にテーブルをクリーンアップ）
func getTestServer(t *testing.T) *TestServer {
	t.Helper()
	if testServer == nil {
		t.Skip("テスト環境が利用できません")
	}
	cleanupTables()
	return testServer
}

// cleanupTables はテーブルとキャッシュをクリーンアップ
func cleanupTables() {
	testDB.Exec("TRUNCATE TABLE price_history, prices, events, unmatched_venues, manual_venue_map, canonical_venues RESTART IDENTITY CASCADE")
	redisClient.FlushDB(context.Background())
}
