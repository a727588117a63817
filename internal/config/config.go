package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// CatalogBaseURL serves both /products/{id} and /stock/{id}.
	CatalogBaseURL string
	CatalogTimeout time.Duration

	StorageDriver string
	StorageKey    string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDBName   string

	MongoMaxPoolSize    uint64
	MongoConnectTimeout time.Duration

	KafkaBrokers      []string
	NotificationTopic string

	OTLPEndpoint string
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal outside local development
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	requestTimeout, err := getDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	catalogTimeout, err := getDuration("CATALOG_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	mongoConnectTimeout, err := getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	mongoPoolSize, err := strconv.ParseUint(getEnv("MONGO_MAX_POOL_SIZE", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("MONGO_MAX_POOL_SIZE must be a positive integer: %w", err)
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: 10 * time.Second,

		CatalogBaseURL: getEnv("CATALOG_BASE_URL", "http://localhost:3333"),
		CatalogTimeout: catalogTimeout,

		StorageDriver: strings.ToLower(getEnv("CART_STORAGE_DRIVER", StorageSQLite)),
		StorageKey:    getEnv("CART_STORAGE_KEY", "@RocketShoes:cart"),
		SQLitePath:    getEnv("SQLITE_PATH", "cart.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),

		MongoMaxPoolSize:    mongoPoolSize,
		MongoConnectTimeout: mongoConnectTimeout,

		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "")),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "cart-notifications"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	switch cfg.StorageDriver {
	case StorageMemory, StorageSQLite, StorageRedis, StorageMongo:
	default:
		return nil, fmt.Errorf("CART_STORAGE_DRIVER must be one of memory, sqlite, redis, mongo; got %q", cfg.StorageDriver)
	}
	if cfg.StorageKey == "" {
		return nil, fmt.Errorf("CART_STORAGE_KEY must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration or a number of seconds: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
