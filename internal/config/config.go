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

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	WorkerCount        int

	// Postgres sink and weather observation source. Both are optional:
	// with no DSN the service writes to Kafka only and the weather pass
	// is skipped for every store.
	PostgresDSN      string
	PostgresEnabled  bool
	WeatherCacheSize int

	// Optional JSON file holding scenario parameter sets. Absent, the
	// built-in default scenario is the only one that runs.
	ScenariosPath string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}

	batchSize, err := parseBoundedInt("BATCH_SIZE", 50, 1, 5000)
	if err != nil {
		return nil, err
	}

	workerCount, err := parseBoundedInt("WORKER_COUNT", 4, 1, 64)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseBoundedInt("WEATHER_CACHE_SIZE", 1000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}

	postgresDSN := os.Getenv("POSTGRES_DSN")
	postgresEnabled := postgresDSN != ""
	if v := os.Getenv("POSTGRES_ENABLED"); v != "" {
		postgresEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "forecast-input-lines"),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "order-forecast-records"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "order-forecast"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		WorkerCount:        workerCount,

		PostgresDSN:      postgresDSN,
		PostgresEnabled:  postgresEnabled,
		WeatherCacheSize: cacheSize,

		ScenariosPath: os.Getenv("SCENARIOS_PATH"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.PostgresEnabled && cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_ENABLED is true but POSTGRES_DSN is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if b := strings.TrimSpace(p); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBoundedInt(key string, fallback, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, min, max)
	}
	return n, nil
}
