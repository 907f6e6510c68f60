package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store and lock backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (seat locks)
	Redis RedisConfig

	// Kafka configuration (booking events)
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking lifecycle configuration
	Booking BookingConfig

	// Pricing policy
	Pricing PricingConfig

	// Refund policy
	Refund RefundConfig

	// Seat reservation throttling
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	MigrationsEnabled  bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL      string
	PoolSize int
}

// KafkaConfig holds the booking event publisher settings
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
	Required          bool // reject anonymous requests when true
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds hold durations, timeouts and backend selection
type BookingConfig struct {
	HoldDuration      time.Duration // pending booking lifetime
	SeatLockTTL       time.Duration // lifetime of a fresh seat lock
	PaymentSessionTTL time.Duration // capped to the booking's expiry
	GatewayTimeout    time.Duration
	SweepInterval     time.Duration
	SweepBatchSize    int
	Currency          string
	StoreBackend      string // memory | postgres
	LockBackend       string // memory | postgres | redis
}

// PricingConfig holds the fare policy. Amounts are in minor units.
type PricingConfig struct {
	ConvenienceFeePercent decimal.Decimal
	ConvenienceFeeFixed   decimal.Decimal
	BankChargePercent     decimal.Decimal
	BankChargeFixed       decimal.Decimal
	RoundingUnit          decimal.Decimal
	MinTotal              decimal.Decimal
	MaxTotal              decimal.Decimal
	MinPrice              decimal.Decimal
	MaxPrice              decimal.Decimal
}

// RefundConfig holds the refund tiers
type RefundConfig struct {
	FullRefundHours    float64
	PartialRefundHours float64
	PartialRefundRate  decimal.Decimal
}

// RateLimitConfig holds the reservation throttling limits
type RateLimitConfig struct {
	Enabled            bool
	MaxSessionRequests int
	SessionWindow      time.Duration
	MaxIPRequests      int
	IPWindow           time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			MigrationsEnabled:  getEnvAsBool("DATABASE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			Required:          getEnvAsBool("JWT_REQUIRED", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Session-ID"}),
		},
		Booking: BookingConfig{
			HoldDuration:      getEnvAsDuration("BOOKING_HOLD_DURATION", 15*time.Minute),
			SeatLockTTL:       getEnvAsDuration("SEAT_LOCK_TTL", 15*time.Minute),
			PaymentSessionTTL: getEnvAsDuration("PAYMENT_SESSION_TTL", 10*time.Minute),
			GatewayTimeout:    getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			SweepBatchSize:    getEnvAsInt("SWEEP_BATCH_SIZE", 100),
			Currency:          getEnv("BOOKING_CURRENCY", "LKR"),
			StoreBackend:      getEnv("BOOKING_STORE", BackendMemory),
			LockBackend:       getEnv("SEAT_LOCK_STORE", BackendMemory),
		},
		Pricing: PricingConfig{
			ConvenienceFeePercent: getEnvAsDecimal("PRICING_CONVENIENCE_FEE_PERCENT", decimal.RequireFromString("0.02")),
			ConvenienceFeeFixed:   getEnvAsDecimal("PRICING_CONVENIENCE_FEE_FIXED", decimal.NewFromInt(2000)),
			BankChargePercent:     getEnvAsDecimal("PRICING_BANK_CHARGE_PERCENT", decimal.RequireFromString("0.015")),
			BankChargeFixed:       getEnvAsDecimal("PRICING_BANK_CHARGE_FIXED", decimal.Zero),
			RoundingUnit:          getEnvAsDecimal("PRICING_ROUNDING_UNIT", decimal.NewFromInt(1000)),
			MinTotal:              getEnvAsDecimal("PRICING_MIN_TOTAL", decimal.NewFromInt(10000)),
			MaxTotal:              getEnvAsDecimal("PRICING_MAX_TOTAL", decimal.NewFromInt(50000000)),
			MinPrice:              getEnvAsDecimal("PRICING_MIN_PRICE", decimal.NewFromInt(1000)),
			MaxPrice:              getEnvAsDecimal("PRICING_MAX_PRICE", decimal.NewFromInt(10000000)),
		},
		Refund: RefundConfig{
			FullRefundHours:    getEnvAsFloat("REFUND_FULL_HOURS", 24),
			PartialRefundHours: getEnvAsFloat("REFUND_PARTIAL_HOURS", 12),
			PartialRefundRate:  getEnvAsDecimal("REFUND_PARTIAL_RATE", decimal.RequireFromString("0.5")),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getEnvAsBool("RATE_LIMIT_ENABLED", true),
			MaxSessionRequests: getEnvAsInt("RATE_LIMIT_SESSION_MAX", 20),
			SessionWindow:      getEnvAsDuration("RATE_LIMIT_SESSION_WINDOW", time.Minute),
			MaxIPRequests:      getEnvAsInt("RATE_LIMIT_IP_MAX", 120),
			IPWindow:           getEnvAsDuration("RATE_LIMIT_IP_WINDOW", time.Minute),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	b := c.Booking
	if b.HoldDuration <= 0 || b.SeatLockTTL <= 0 || b.PaymentSessionTTL <= 0 {
		return fmt.Errorf("booking hold, seat lock and payment session TTLs must be positive")
	}
	if b.GatewayTimeout <= 0 {
		return fmt.Errorf("PAYMENT_GATEWAY_TIMEOUT must be positive")
	}
	if b.SweepInterval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1s")
	}

	switch b.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid BOOKING_STORE: %s (must be 'memory' or 'postgres')", b.StoreBackend)
	}
	switch b.LockBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("invalid SEAT_LOCK_STORE: %s (must be 'memory', 'postgres' or 'redis')", b.LockBackend)
	}

	if b.LockBackend == BackendPostgres && b.StoreBackend != BackendPostgres {
		return fmt.Errorf("SEAT_LOCK_STORE=postgres requires BOOKING_STORE=postgres")
	}
	if (b.StoreBackend == BackendPostgres || b.LockBackend == BackendPostgres) && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if b.LockBackend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis seat lock store")
	}
	if c.JWT.Required && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required when JWT_REQUIRED is set")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_BOOKING_TOPIC are required when Kafka is enabled")
	}

	p := c.Pricing
	if !p.RoundingUnit.IsPositive() {
		return fmt.Errorf("PRICING_ROUNDING_UNIT must be positive")
	}
	if p.MinTotal.GreaterThan(p.MaxTotal) {
		return fmt.Errorf("PRICING_MIN_TOTAL must not exceed PRICING_MAX_TOTAL")
	}
	if !p.MinTotal.Mod(p.RoundingUnit).IsZero() || !p.MaxTotal.Mod(p.RoundingUnit).IsZero() {
		return fmt.Errorf("PRICING_MIN_TOTAL and PRICING_MAX_TOTAL must be multiples of PRICING_ROUNDING_UNIT")
	}
	if p.MinPrice.IsNegative() || p.MinPrice.GreaterThan(p.MaxPrice) {
		return fmt.Errorf("PRICING_MIN_PRICE must be non-negative and not exceed PRICING_MAX_PRICE")
	}
	if p.ConvenienceFeePercent.IsNegative() || p.BankChargePercent.IsNegative() {
		return fmt.Errorf("fee percentages must not be negative")
	}

	r := c.Refund
	if r.PartialRefundHours < 0 || r.PartialRefundHours > r.FullRefundHours {
		return fmt.Errorf("REFUND_PARTIAL_HOURS must be between 0 and REFUND_FULL_HOURS")
	}
	if r.PartialRefundRate.IsNegative() || r.PartialRefundRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("REFUND_PARTIAL_RATE must be within [0, 1]")
	}

	rl := c.RateLimit
	if rl.Enabled && (rl.SessionWindow <= 0 || rl.IPWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_SESSION_WINDOW and RATE_LIMIT_IP_WINDOW must be positive")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15m") or plain seconds ("900")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("Invalid decimal value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
