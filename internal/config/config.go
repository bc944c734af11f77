package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable ("30s", "5m") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("invalid duration for %s, using default %s", key, defaultVal)
	}
	return defaultVal
}

// GetDecimalEnv returns a monetary environment variable or a default value.
func GetDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
		log.Printf("invalid amount for %s, using default %s", key, defaultVal)
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
	LogLevel    string
	Production  bool
}

type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	SQLitePath      string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type CacheConfig struct {
	Backend             string // memory or redis
	TTL                 time.Duration
	InvalidationChannel string
	JanitorInterval     time.Duration
}

type WalletConfig struct {
	Currency           string
	MinDeposit         decimal.Decimal
	MaxDeposit         decimal.Decimal
	DailyLimit         decimal.Decimal
	MonthlyLimit       decimal.Decimal
	MaxBalance         decimal.Decimal
	DailySpendingLimit decimal.Decimal
	RecentTransactions int
}

type GatewayConfig struct {
	Provider          string // paystack or stripe
	PaystackSecretKey string
	PaystackBaseURL   string
	StripeSecretKey   string
	StripeWebhookKey  string
	CallbackURL       string
	CancelURL         string
	Timeout           time.Duration
}

type ReconcilerConfig struct {
	Enabled  bool
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
	// PendingExpiry is how long a deposit may stay unpaid before it is failed.
	PendingExpiry time.Duration
}

// AppConfig groups everything cmd/server needs.
type AppConfig struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Wallet     WalletConfig
	Gateway    GatewayConfig
	Reconciler ReconcilerConfig
	JWTSecret  string
	NATSURL    string
}

// Load reads the application configuration from the environment.
func Load() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:        GetEnv("PORT", "3000"),
			CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
			LogLevel:    strings.ToLower(GetEnv("LOG_LEVEL", "info")),
			Production:  IsProduction(),
		},
		Database: DatabaseConfig{
			Driver:          GetEnv("DB_DRIVER", "postgres"),
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "bundlepay"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			SQLitePath:      GetEnv("DB_SQLITE_PATH", "bundlepay.db"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Backend:             GetEnv("CACHE_BACKEND", "memory"),
			TTL:                 GetDurationEnv("CACHE_TTL", 30*time.Second),
			InvalidationChannel: GetEnv("CACHE_INVALIDATION_CHANNEL", "wallet:invalidate"),
			JanitorInterval:     GetDurationEnv("CACHE_JANITOR_INTERVAL", time.Minute),
		},
		Wallet: WalletConfig{
			Currency:           GetEnv("WALLET_CURRENCY", "GHS"),
			MinDeposit:         GetDecimalEnv("WALLET_MIN_DEPOSIT", decimal.NewFromInt(10)),
			MaxDeposit:         GetDecimalEnv("WALLET_MAX_DEPOSIT", decimal.NewFromInt(100000)),
			DailyLimit:         GetDecimalEnv("WALLET_DAILY_LIMIT", decimal.NewFromInt(10000)),
			MonthlyLimit:       GetDecimalEnv("WALLET_MONTHLY_LIMIT", decimal.NewFromInt(50000)),
			MaxBalance:         GetDecimalEnv("WALLET_MAX_BALANCE", decimal.NewFromInt(100000)),
			DailySpendingLimit: GetDecimalEnv("WALLET_DAILY_SPENDING_LIMIT", decimal.NewFromInt(5000)),
			RecentTransactions: GetIntEnv("WALLET_RECENT_TRANSACTIONS", 10),
		},
		Gateway: GatewayConfig{
			Provider:          strings.ToLower(GetEnv("PAYMENT_GATEWAY", "paystack")),
			PaystackSecretKey: GetEnv("PAYSTACK_SECRET_KEY", ""),
			PaystackBaseURL:   GetEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			StripeSecretKey:   GetEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookKey:  GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			CallbackURL:       GetEnv("PAYMENT_CALLBACK_URL", "http://localhost:5173/wallet/deposit/callback"),
			CancelURL:         GetEnv("PAYMENT_CANCEL_URL", "http://localhost:5173/wallet"),
			Timeout:           GetDurationEnv("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Enabled:  GetBoolEnv("RECONCILER_ENABLED", true),
			Interval: GetDurationEnv("RECONCILER_INTERVAL", 5*time.Minute),
			MinAge:   GetDurationEnv("RECONCILER_MIN_AGE", 10*time.Minute),
			Batch:    GetIntEnv("RECONCILER_BATCH", 50),

			PendingExpiry: GetDurationEnv("DEPOSIT_PENDING_EXPIRY", 24*time.Hour),
		},
		JWTSecret: GetEnv("JWT_SECRET", "bundlepay"),
		NATSURL:   GetEnv("NATS_URL", ""),
	}
}
