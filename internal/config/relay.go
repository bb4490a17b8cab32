package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// RelayConfig configures the location relay that moves mirrored samples from
// Kafka into the Redis presence store.
type RelayConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	MetricsAddr string
	LogLevel    string
}

func LoadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaTopic:     "driver-locations",
		KafkaGroup:     "dispatch-location-relay",
		RedisAddr:      "localhost:6379",
		RedisKeyPrefix: "dispatch:",
		MetricsAddr:    ":2112",
		LogLevel:       "info",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.KafkaTopic == "" || cfg.KafkaGroup == "" {
		errs = append(errs, fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP must be set"))
	}
	return cfg, errors.Join(errs...)
}
