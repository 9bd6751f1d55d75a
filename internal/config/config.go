package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	MetricsNamespace string

	AcceptThreshold  float64
	SwitchThreshold  float64
	SchemaPath       string
	FallbackMessages []string
	SessionTTL       time.Duration
	RateLimitPerMin  int64

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
}

// Load returns configuration populated from environment variables with fallbacks.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getenvDefault("APP_ENV", "development"),
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		HTTPListenAddr:   getenvDefault("HTTP_LISTEN_ADDR", ":8080"),
		MetricsNamespace: getenvDefault("METRICS_NAMESPACE", "echofi"),
		SchemaPath:       trimmedEnv("SCHEMA_PATH"),
		FallbackMessages: splitMessages(trimmedEnv("FALLBACK_MESSAGES")),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		RedisAddr:        trimmedEnv("REDIS_ADDR"),
		RedisPassword:    trimmedEnv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.AcceptThreshold, err = parseFloatEnv("ACCEPT_CONFIDENCE_THRESHOLD", 0.5); err != nil {
		return nil, err
	}
	if cfg.SwitchThreshold, err = parseFloatEnv("SWITCH_CONFIDENCE_THRESHOLD", 0.75); err != nil {
		return nil, err
	}
	if cfg.AcceptThreshold < 0 || cfg.AcceptThreshold > 1 {
		return nil, fmt.Errorf("ACCEPT_CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	if cfg.SwitchThreshold <= cfg.AcceptThreshold {
		return nil, fmt.Errorf("SWITCH_CONFIDENCE_THRESHOLD must be strictly above ACCEPT_CONFIDENCE_THRESHOLD")
	}

	ttlStr := getenvDefault("SESSION_TTL", "30m")
	if cfg.SessionTTL, err = time.ParseDuration(ttlStr); err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL duration: %w", err)
	}

	rateStr := getenvDefault("RATE_LIMIT_PER_MINUTE", "30")
	if cfg.RateLimitPerMin, err = strconv.ParseInt(rateStr, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE value: %w", err)
	}

	if redisDBStr := getenvDefault("REDIS_DB", "0"); redisDBStr != "" {
		db, convErr := strconv.Atoi(redisDBStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid REDIS_DB value: %w", convErr)
		}
		cfg.RedisDB = db
	}
	cfg.RedisTLS = strings.EqualFold(getenvDefault("REDIS_TLS", "false"), "true")

	return cfg, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	raw := trimmedEnv(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return val, nil
}

func splitMessages(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, "|")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

func getenvDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimmedEnv(key string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return ""
}
