package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
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

	// LayerWindowSize caps how many recent features each published layer covers.
	LayerWindowSize int

	// INGV FDSN feed configuration.
	INGVBaseURL   string
	INGVTimeout   time.Duration
	INGVCacheSize int
	INGVCacheTTL  time.Duration

	// INGVPollInterval enables the built-in feed poller when non-zero. Each
	// poll queries the last INGVPollLookback of events at or above INGVMinMag
	// and publishes them to the source topic.
	INGVPollInterval time.Duration
	INGVPollLookback time.Duration
	INGVMinMag       float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	windowSize, err := parsePositiveInt("LAYER_WINDOW_SIZE", "500")
	if err != nil {
		return nil, err
	}

	ingvTimeout, err := parsePositiveDuration("INGV_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	ingvCacheTTL, err := parsePositiveDuration("INGV_CACHE_TTL", "1m")
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseNonNegativeDuration("INGV_POLL_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}

	pollLookback, err := parsePositiveDuration("INGV_POLL_LOOKBACK", "1h")
	if err != nil {
		return nil, err
	}

	minMag, err := parseMinMagnitude()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-earthquake-features"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "earthquake-marker-layers"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "quake-map-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		LayerWindowSize:    windowSize,

		INGVBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("INGV_BASE_URL", "https://webservices.ingv.it/fdsnws/event/1/query"), "/"),
		INGVTimeout:   ingvTimeout,
		INGVCacheSize: parseCacheSize(),
		INGVCacheTTL:  ingvCacheTTL,

		INGVPollInterval: pollInterval,
		INGVPollLookback: pollLookback,
		INGVMinMag:       minMag,
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
	if cfg.KafkaSourceTopic == cfg.KafkaSinkTopic {
		return nil, errors.New("KAFKA_SOURCE_TOPIC and KAFKA_SINK_TOPIC must differ")
	}
	if !strings.HasPrefix(cfg.INGVBaseURL, "http://") && !strings.HasPrefix(cfg.INGVBaseURL, "https://") {
		return nil, errors.New("INGV_BASE_URL must be an http(s) URL")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseNonNegativeDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative duration", key)
	}
	return d, nil
}

func parseMinMagnitude() (float64, error) {
	m, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("INGV_MIN_MAG", "0"), 64)
	if err != nil || m < 0 || m > 10 {
		return 0, errors.New("invalid INGV_MIN_MAG: must be between 0 and 10")
	}
	return m, nil
}

func parsePositiveInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("INGV_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
