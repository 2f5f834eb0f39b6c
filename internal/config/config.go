package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	StorageDriver string
	MySQLDSN      string
	DatabaseURL   string
	RunMigrations bool

	RedisAddr string
	CartTTL   time.Duration

	// Zero means checkouts wait for row locks without bound. A non-zero
	// CheckoutTimeout also caps the lock wait, so both must be zero for an
	// unbounded wait.
	LockTimeout     time.Duration
	CheckoutTimeout time.Duration

	KafkaBrokers     string
	KafkaOrdersTopic string

	SessionSecret string
	LogLevel      slog.Level
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}

	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:         getEnv("GRPC_ADDR", ":50051"),
		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", DriverMySQL)),
		MySQLDSN:         getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RunMigrations:    getBool("RUN_MIGRATIONS", true),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		CartTTL:          getDuration("CART_TTL", 72*time.Hour),
		LockTimeout:      getDuration("CHECKOUT_LOCK_TIMEOUT", 0),
		CheckoutTimeout:  getDuration("CHECKOUT_TIMEOUT", 0),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		KafkaOrdersTopic: getEnv("KAFKA_ORDERS_TOPIC", "orders"),
		SessionSecret:    getEnv("SESSION_SECRET", "dev-session-secret-change-me"),
		LogLevel:         getLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid bool, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return b
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", raw)
		return fallback
	}
	return lvl
}
