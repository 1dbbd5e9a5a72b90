package config

import (
	"os"
	"strconv"
	"time"

	"tixledger/internal/cache"
	"tixledger/internal/database"
	"tixledger/internal/external"
	"tixledger/internal/messaging"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	StorageDriver string
	Database      database.Config

	NATSEnabled bool
	NATS        messaging.Config

	ValkeyEnabled bool
	Valkey        cache.Config

	Elasticsearch ElasticsearchConfig

	Payment external.PaymentConfig
	Minter  external.MinterConfig

	Security SecurityConfig
	Fees     FeeConfig
	Sweep    SweepConfig
}

// ElasticsearchConfig - индекс аудита сверки платежей
type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
}

// SecurityConfig - секреты подписи и токенов
type SecurityConfig struct {
	WebhookSecret string
	JWTSecret     string
	JWTExpiry     time.Duration
	QRSecret      string
}

// FeeConfig - комиссии, добавляемые к цене билетов, в минимальных единицах
type FeeConfig struct {
	Platform   int64
	Blockchain int64
}

// SweepConfig - фоновые задачи: истечение брони и довыпуск билетов
type SweepConfig struct {
	PurchaseTTL     time.Duration
	Interval        time.Duration
	ReissueBatch    int
	MaxIssueAttempt int
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		// Performance monitoring
		PprofEnabled: getEnvBool("PPROF_ENABLED", false),
		PprofPort:    getEnv("PPROF_PORT", "6060"),

		StorageDriver: getEnv("STORAGE_DRIVER", StoragePostgres),
		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tixledger"),
			Password:           getEnv("DB_PASSWORD", "tixledger"),
			DBName:             getEnv("DB_NAME", "tixledger"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
			ConnectRetries:     getEnvInt("DB_CONNECT_RETRIES", 5),
		},

		NATSEnabled: getEnvBool("NATS_ENABLED", true),
		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "tixledger"),
			ClientID:  getEnv("NATS_CLIENT_ID", "tixledger-api"),
		},

		ValkeyEnabled: getEnvBool("VALKEY_ENABLED", false),
		Valkey: cache.Config{
			Addr:      getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "purchase:status:"),
			TTL:       time.Duration(getEnvInt("VALKEY_TTL_SEC", 3600)) * time.Second,
		},

		Elasticsearch: ElasticsearchConfig{
			Enabled:    getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Index:      getEnv("ELASTICSEARCH_INDEX", "payment-reconciliations"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
			Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 30*time.Second),
		},

		Payment: external.PaymentConfig{
			BaseURL: getEnv("PROVIDER_BASE_URL", ""),
			APIKey:  getEnv("PROVIDER_API_KEY", ""),
			Timeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SEC", 30)) * time.Second,
		},

		Minter: external.MinterConfig{
			BaseURL: getEnv("MINTER_BASE_URL", ""),
			Timeout: time.Duration(getEnvInt("MINTER_TIMEOUT_SEC", 30)) * time.Second,
		},

		Security: SecurityConfig{
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			JWTSecret:     getEnv("JWT_SECRET", ""),
			JWTExpiry:     time.Duration(getEnvInt("JWT_EXPIRY_MIN", 60)) * time.Minute,
			QRSecret:      getEnv("TICKET_QR_SECRET", ""),
		},

		Fees: FeeConfig{
			Platform:   getEnvInt64("PLATFORM_FEE", 0),
			Blockchain: getEnvInt64("BLOCKCHAIN_FEE", 0),
		},

		Sweep: SweepConfig{
			PurchaseTTL:     time.Duration(getEnvInt("PURCHASE_TTL_MIN", 15)) * time.Minute,
			Interval:        time.Duration(getEnvInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
			ReissueBatch:    getEnvInt("REISSUE_BATCH", 100),
			MaxIssueAttempt: getEnvInt("TICKET_ISSUE_MAX_ATTEMPTS", 5),
		},
	}
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration принимает значения вида "3s", "500ms"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
