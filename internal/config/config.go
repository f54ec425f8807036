package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultFeedURL      = "https://api.coindesk.com/v1/bpi/currentprice.json"
	DefaultPollInterval = 10 * time.Second
)

// Config holds the runtime settings of the comparator service. Values come
// from the environment (optionally seeded from a .env file) and may be
// overridden by command line flags in main.
type Config struct {
	Port       string
	InstanceID string

	FeedURL      string
	PollInterval time.Duration
	FetchTimeout time.Duration

	LogLevel string
	LogFile  string

	// Optional sinks. Empty address disables the integration.
	RedisAddr           string
	TargetRatePerMinute int
	KafkaBroker         string
	KafkaTopic          string

	OTelEnabled bool
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		InstanceID:          getEnvOrDefault("INSTANCE_ID", "comparator-1"),
		FeedURL:             getEnvOrDefault("FEED_URL", DefaultFeedURL),
		PollInterval:        getEnvDurationOrDefault("POLL_INTERVAL", DefaultPollInterval),
		FetchTimeout:        getEnvDurationOrDefault("FETCH_TIMEOUT", 8*time.Second),
		LogLevel:            strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("LOG_FILE", ""),
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", ""),
		TargetRatePerMinute: getEnvIntOrDefault("TARGET_RATE_PER_MINUTE", 600),
		KafkaBroker:         getEnvOrDefault("KAFKA_BROKER", ""),
		KafkaTopic:          getEnvOrDefault("KAFKA_TOPIC", "price.updates"),
		OTelEnabled:         getEnvBoolOrDefault("OTEL_ENABLED", false),
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TargetRatePerMinute < 1 {
		cfg.TargetRatePerMinute = 1
	}
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
