package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Relay    RelayConfig
	Ranking  RankingConfig
	Batch    BatchConfig
	HTTP     HTTPConfig
	Logging  LoggingConfig
}

// ServiceConfig holds service-level configuration
type ServiceConfig struct {
	Name        string
	Environment string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	URL      string
}

// KafkaConfig holds Kafka broker and consumer-group configuration
type KafkaConfig struct {
	Brokers             []string
	WorkflowGroupID     string
	MetricsGroupID      string
	RankingGroupID      string
	ConsumerConcurrency int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds payment-gateway client configuration
type GatewayConfig struct {
	BaseURL        string
	CallbackURL    string
	RequestTimeout time.Duration
	MaxRetries     int
	BreakerName    string
}

// RelayConfig holds outbox relay configuration
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// RankingConfig holds ranking index weights and retention
type RankingConfig struct {
	LikeWeight      float64
	ViewWeight      float64
	OrderWeight     float64
	KeyTTL          time.Duration
	CarryOverWeight float64
}

// BatchConfig holds batch ranker configuration
type BatchConfig struct {
	ChunkSize int
	TopN      int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "commerce-core"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "commerce"),
		},
		Kafka: KafkaConfig{
			Brokers:             getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			WorkflowGroupID:     getEnv("KAFKA_WORKFLOW_GROUP_ID", "order-workflow"),
			MetricsGroupID:      getEnv("KAFKA_METRICS_GROUP_ID", "product-metrics-consumer"),
			RankingGroupID:      getEnv("KAFKA_RANKING_GROUP_ID", "ranking-consumer"),
			ConsumerConcurrency: getEnvInt("KAFKA_CONSUMER_CONCURRENCY", 3),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("PG_BASE_URL", "http://localhost:8090"),
			CallbackURL:    getEnv("PG_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
			RequestTimeout: getEnvDuration("PG_REQUEST_TIMEOUT", 3*time.Second),
			MaxRetries:     getEnvInt("PG_MAX_RETRIES", 3),
			BreakerName:    getEnv("PG_BREAKER_NAME", "payment-gateway"),
		},
		Relay: RelayConfig{
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
		},
		Ranking: RankingConfig{
			LikeWeight:      getEnvFloat("RANKING_LIKE_WEIGHT", 0.2),
			ViewWeight:      getEnvFloat("RANKING_VIEW_WEIGHT", 0.1),
			OrderWeight:     getEnvFloat("RANKING_ORDER_WEIGHT", 0.6),
			KeyTTL:          getEnvDuration("RANKING_KEY_TTL", 2*24*time.Hour),
			CarryOverWeight: getEnvFloat("RANKING_CARRY_OVER_WEIGHT", 0.1),
		},
		Batch: BatchConfig{
			ChunkSize: getEnvInt("BATCH_CHUNK_SIZE", 100),
			TopN:      getEnvInt("BATCH_TOP_N", 100),
		},
		HTTP: HTTPConfig{
			Port: getEnvInt("HTTP_PORT", 9092),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Build database URL
	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
	)

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvSlice gets a comma-separated environment variable as a slice
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
