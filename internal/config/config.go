// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"pdptw/internal/opt"
)

// Service is the runtime configuration of the API server.
type Service struct {
	Port                string
	DatabaseURL         string
	Migrate             bool
	RedisURL            string
	LogLevel            string
	LogFormat           string
	OptimizerConfig     string
	RateLimitRPS        float64
	RateLimitBurst      int
	WebhookMaxAttempts  int
	MaxConcurrentSolves int64
}

// LoadDotEnv loads .env files into the environment. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug("no .env file found (using environment variables)")
	}
}

// FromEnv reads the service configuration. Unset variables take their defaults.
func FromEnv() (Service, error) {
	s := Service{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Migrate:         os.Getenv("DB_MIGRATE") != "false",
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		OptimizerConfig: os.Getenv("OPTIMIZER_CONFIG"),
	}
	var err error
	if s.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 5); err != nil {
		return s, err
	}
	if s.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 10); err != nil {
		return s, err
	}
	if s.WebhookMaxAttempts, err = intEnv("WEBHOOK_MAX_ATTEMPTS", 10); err != nil {
		return s, err
	}
	n, err := intEnv("MAX_CONCURRENT_SOLVES", 4)
	if err != nil {
		return s, err
	}
	s.MaxConcurrentSolves = int64(n)
	return s, nil
}

// Optimizer returns the default optimizer configuration, read from
// OptimizerConfig when it is set.
func (s Service) Optimizer() (opt.Config, error) {
	if s.OptimizerConfig == "" {
		return opt.DefaultConfig(), nil
	}
	return opt.LoadConfig(s.OptimizerConfig)
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func (s Service) ConfigureLogging() error {
	lvl, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	if strings.EqualFold(s.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, v)
	}
	return f, nil
}
