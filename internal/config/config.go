package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the dispatch API process.
// Values are loaded from environment variables with defaults that run the
// mock simulation locally with no backing services.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers       []string
	KafkaStatusTopic   string
	KafkaLocationTopic string

	PGDSN         string
	RunMigrations bool

	DispatchMode      string // mock | fleet
	ConfirmDelay      time.Duration
	EnRouteDelay      time.Duration
	ETAInterval       time.Duration
	InitialETAMinutes int
	WebhookURL        string
	WebhookKey        string
	OSRMEndpoint      string
	ETACacheTTL       time.Duration
	DefaultSpeedMps   float64
	MatcherTopN       int
	EventBuffer       int

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "ambulances_geo",
		KafkaStatusTopic:   "dispatch-status",
		KafkaLocationTopic: "ambulance-locations",
		DispatchMode:       "mock",
		ConfirmDelay:       3 * time.Second,
		EnRouteDelay:       2 * time.Second,
		ETAInterval:        time.Minute,
		InitialETAMinutes:  8,
		ETACacheTTL:        5 * time.Minute,
		DefaultSpeedMps:    10,
		MatcherTopN:        8,
		EventBuffer:        256,
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaStatusTopic, "KAFKA_STATUS_TOPIC")
	setStringFromEnv(&cfg.KafkaLocationTopic, "KAFKA_LOCATION_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if v := os.Getenv("DISPATCH_MODE"); v != "" {
		cfg.DispatchMode = strings.ToLower(strings.TrimSpace(v))
	}
	setDurationFromEnv(&cfg.ConfirmDelay, "DISPATCH_CONFIRM_DELAY", &errs)
	setDurationFromEnv(&cfg.EnRouteDelay, "DISPATCH_ENROUTE_DELAY", &errs)
	setDurationFromEnv(&cfg.ETAInterval, "DISPATCH_ETA_INTERVAL", &errs)
	setIntFromEnv(&cfg.InitialETAMinutes, "DISPATCH_INITIAL_ETA_MINUTES", &errs)
	cfg.WebhookURL = strings.TrimSpace(os.Getenv("DISPATCH_WEBHOOK_URL"))
	cfg.WebhookKey = os.Getenv("DISPATCH_WEBHOOK_KEY")
	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "ETA_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.MatcherTopN, "MATCHER_TOP_N", &errs)
	setIntFromEnv(&cfg.EventBuffer, "EVENT_BUFFER", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.DispatchMode != "mock" && cfg.DispatchMode != "fleet" {
		errs = append(errs, fmt.Errorf("DISPATCH_MODE must be mock or fleet, got %q", cfg.DispatchMode))
	}
	for key, d := range map[string]time.Duration{
		"DISPATCH_CONFIRM_DELAY": cfg.ConfirmDelay,
		"DISPATCH_ENROUTE_DELAY": cfg.EnRouteDelay,
		"DISPATCH_ETA_INTERVAL":  cfg.ETAInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}
	if cfg.InitialETAMinutes <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_INITIAL_ETA_MINUTES must be > 0"))
	}
	if cfg.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if cfg.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_BUFFER must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig drives the fleet location consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	Retries       int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "ambulance-locations",
		KafkaGroup:   "fleet-location-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "ambulances_geo",
		Retries:      3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setIntFromEnv(&cfg.Retries, "CONSUMER_RETRIES", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.Retries <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_RETRIES must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
