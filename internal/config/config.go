// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full runtime configuration
type Config struct {
	Host string
	Port int

	// Vendor API
	QwenBaseURL     string
	QwenAuthToken   string
	RequestTimeout  time.Duration
	DefaultModel    string
	AvailableModels []string

	// Persistence
	DatabaseDSN string
	RedisDSN    string
	SessionTTL  time.Duration

	LogLevel string
}

// Load reads .env (when present) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Debugf("No .env file loaded: %v", err)
	}

	cfg := &Config{
		Host:            envOr("HOST", "0.0.0.0"),
		Port:            envIntOr("PORT", 8080),
		QwenBaseURL:     strings.TrimSuffix(envOr("QWEN_BASE_URL", "https://chat.qwen.ai"), "/"),
		QwenAuthToken:   os.Getenv("QWEN_AUTH_TOKEN"),
		RequestTimeout:  time.Duration(envIntOr("REQUEST_TIMEOUT", 60)) * time.Second,
		DefaultModel:    envOr("DEFAULT_MODEL", "qwen3-max"),
		AvailableModels: envListOr("AVAILABLE_MODELS", []string{"qwen3-max", "qwen3-coder-plus", "qwen3-vl-plus"}),
		DatabaseDSN:     envOr("DATABASE_DSN", "./data/qwen-bridge.db"),
		RedisDSN:        os.Getenv("REDIS_DSN"),
		SessionTTL:      time.Duration(envIntOr("SESSION_TTL_HOURS", 72)) * time.Hour,
		LogLevel:        envOr("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.QwenBaseURL == "" {
		return fmt.Errorf("QWEN_BASE_URL must not be empty")
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL must not be empty")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetupLogging applies the configured log level to logrus
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid log level %q, falling back to info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func envListOr(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
