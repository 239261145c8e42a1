package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the gateway
type Config struct {
	Addr                  string
	RedisURL              string
	DatabaseURL           string
	TickInterval          time.Duration
	NonceTTL              time.Duration
	DailyMatchLimit       int
	CreditsPerPayment     int
	PaymentCallbackSecret string
	WorldIDAppID          string
	WorldIDAPIURL         string
	SIWEDomain            string
	CookieSecure          bool
	LogLevel              slog.Level
	MatchTopic            string
	ConsumerGroup         string
}

// Default returns the development configuration
func Default() Config {
	return Config{
		Addr:              ":9000",
		TickInterval:      1500 * time.Millisecond,
		NonceTTL:          5 * time.Minute,
		DailyMatchLimit:   10,
		CreditsPerPayment: 5,
		LogLevel:          slog.LevelInfo,
		MatchTopic:        "pairgate.matched",
		ConsumerGroup:     "pairgate-quota",
	}
}

// FromEnv builds a Config from environment variables so main stays lean
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PAIRGATE_ADDR", &cfg.Addr)
	str("REDIS_URL", &cfg.RedisURL)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("WORLDID_APP_ID", &cfg.WorldIDAppID)
	str("WORLDID_API_URL", &cfg.WorldIDAPIURL)
	str("SIWE_DOMAIN", &cfg.SIWEDomain)
	str("MATCH_TOPIC", &cfg.MatchTopic)
	str("CONSUMER_GROUP", &cfg.ConsumerGroup)
	str("PAYMENT_CALLBACK_SECRET", &cfg.PaymentCallbackSecret)

	var err error
	if cfg.TickInterval, err = duration(lookup, "TICK_INTERVAL", cfg.TickInterval); err != nil {
		return Config{}, err
	}
	if cfg.NonceTTL, err = duration(lookup, "NONCE_TTL", cfg.NonceTTL); err != nil {
		return Config{}, err
	}
	if cfg.DailyMatchLimit, err = integer(lookup, "DAILY_MATCH_LIMIT", cfg.DailyMatchLimit); err != nil {
		return Config{}, err
	}
	if cfg.CreditsPerPayment, err = integer(lookup, "CREDITS_PER_PAYMENT", cfg.CreditsPerPayment); err != nil {
		return Config{}, err
	}

	if v, ok := lookup("COOKIE_SECURE"); ok && v != "" {
		cfg.CookieSecure, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("COOKIE_SECURE: %w", err)
		}
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive")
	}
	return cfg, nil
}

func duration(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func integer(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
