package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Changelog backends.
const (
	BackendKafka  = "kafka"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const maxConsumers = 64

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers           []string
	KafkaSourceTopic       string
	KafkaChangelogTopic    string
	KafkaGroupID           string
	KafkaReplicationFactor int
	KafkaSourcePartitions  int

	ConsumerCount int
	MaxRetries    int

	ChangelogBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	SQLitePath string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	OTLPEndpoint    string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	replication, err := positiveInt("KAFKA_REPLICATION_FACTOR", 1)
	if err != nil {
		return nil, err
	}
	partitions, err := positiveInt("KAFKA_SOURCE_PARTITIONS", 1)
	if err != nil {
		return nil, err
	}
	consumers, err := positiveInt("CONSUMER_COUNT", 1)
	if err != nil {
		return nil, err
	}
	if consumers > maxConsumers {
		return nil, fmt.Errorf("invalid CONSUMER_COUNT: must be at most %d", maxConsumers)
	}
	maxRetries, err := positiveInt("MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	cfg := &Config{
		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:       sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "org.chicago.cta.connectors.stations"),
		KafkaChangelogTopic:    sharedcfg.EnvOrDefault("KAFKA_CHANGELOG_TOPIC", "org.chicago.cta.stations.table.v1"),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "stations-stream"),
		KafkaReplicationFactor: replication,
		KafkaSourcePartitions:  partitions,
		ConsumerCount:          consumers,
		MaxRetries:             maxRetries,
		ChangelogBackend:       sharedcfg.EnvOrDefault("CHANGELOG_BACKEND", BackendKafka),
		RedisAddr:              sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		RedisStream:            sharedcfg.EnvOrDefault("REDIS_STREAM", "station-table-changelog"),
		SQLitePath:             sharedcfg.EnvOrDefault("SQLITE_PATH", "station-table.db"),
		HTTPAddr:               sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownTimeout:        shutdownTimeout,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaGroupID == "" {
		return nil, errors.New("KAFKA_GROUP_ID is required")
	}

	switch cfg.ChangelogBackend {
	case BackendKafka:
		if cfg.KafkaChangelogTopic == "" {
			return nil, errors.New("KAFKA_CHANGELOG_TOPIC is required")
		}
		if cfg.KafkaChangelogTopic == cfg.KafkaSourceTopic {
			return nil, errors.New("KAFKA_CHANGELOG_TOPIC must differ from KAFKA_SOURCE_TOPIC")
		}
	case BackendRedis:
		if cfg.RedisStream == "" {
			return nil, errors.New("REDIS_STREAM is required")
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("invalid CHANGELOG_BACKEND %q", cfg.ChangelogBackend)
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
