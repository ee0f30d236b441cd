package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション設定を表す
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Reconcile ReconcileConfig
	Ingest    IngestConfig
	Telemetry TelemetryConfig
}

// AppConfig は実行環境の設定
type AppConfig struct {
	Env      string
	LogLevel string
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration // 有効価格キャッシュの有効期間
}

// ReconcileConfig は照合処理の設定
type ReconcileConfig struct {
	TxTimeout           time.Duration // 1イベントのトランザクション上限
	LockTimeout         time.Duration // 行ロック待ちの上限（SET LOCAL lock_timeout）
	LockTTL             time.Duration // 分散ロックの有効期間
	LockRetries         int
	SourceKeyProviders  []string // 販売元IDで識別する販売元
	VenueMatchThreshold float64
}

// IngestConfig はキュー取り込みワーカーの設定
type IngestConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Providers []string

	// RatePerSecond は1秒あたりのバッチ実行数の上限。0以下なら無制限
	RatePerSecond float64
}

// TelemetryConfig はトレース設定
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// Load は環境変数から設定を読み込む
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5433"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "price_tracker"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Reconcile: ReconcileConfig{
			TxTimeout:           getDurationEnv("RECONCILE_TX_TIMEOUT", 10*time.Second),
			LockTimeout:         getDurationEnv("RECONCILE_LOCK_TIMEOUT", 3*time.Second),
			LockTTL:             getDurationEnv("RECONCILE_LOCK_TTL", 30*time.Second),
			LockRetries:         getIntEnv("RECONCILE_LOCK_RETRIES", 3),
			SourceKeyProviders:  getListEnv("RECONCILE_SOURCE_KEY_PROVIDERS", []string{"Bubilet"}),
			VenueMatchThreshold: getFloatEnv("VENUE_MATCH_THRESHOLD", 0.75),
		},
		Ingest: IngestConfig{
			Enabled:       getBoolEnv("INGEST_ENABLED", false),
			Interval:      getDurationEnv("INGEST_INTERVAL", time.Minute),
			BatchSize:     getIntEnv("INGEST_BATCH_SIZE", 100),
			Providers:     getListEnv("INGEST_PROVIDERS", []string{"Biletinial", "Bugece", "Passo", "Biletix", "Bubilet"}),
			RatePerSecond: getFloatEnv("INGEST_RATE_PER_SECOND", 5),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getBoolEnv("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "event-price-tracker"),
			SampleRatio: getFloatEnv("OTEL_SAMPLE_RATIO", 1.0),
		},
	}

	// DATABASE_URL / REDIS_URL が設定されていれば個別の値より優先する（Railway等のPaaS向け）
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}

	return cfg
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.DBName = name
	}
	// マネージドDBはTLS必須のことが多いため、指定がなければ require
	c.SSLMode = "require"
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); err == nil {
		c.DB = db
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv はカンマ区切りの値を読み込む。空要素は無視する
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
