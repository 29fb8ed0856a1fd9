package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/servicedesk/go/internal/timers"
	"github.com/mcdev12/servicedesk/go/internal/timers/cache"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	NatsURL  string `yaml:"nats_url"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Rounding timers.RoundingPolicy `yaml:"rounding"`
	Cache    cache.KVConfig        `yaml:"cache"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Port:           "8080",
		LogLevel:       "info",
		Rounding:       timers.DefaultRoundingPolicy(),
		Cache:          cache.DefaultKVConfig(),
		AllowedOrigins: []string{"*"},
	}
	cfg.Auth.Issuer = "servicedesk"
	cfg.Auth.TokenTTL = 12 * time.Hour
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults. A missing file is
// not an error; env vars are applied last.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Rounding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rounding policy: %w", err)
	}
	if config.Auth.JWTSecret == "" {
		return nil, errors.New("jwt secret is required (auth.jwt_secret or JWT_SECRET)")
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NatsURL = getEnv("NATS_URL", c.NatsURL)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Rounding.IncrementMinutes = getEnvAsInt("ROUNDING_INCREMENT_MINUTES", c.Rounding.IncrementMinutes)
	c.Rounding.MinimumMinutes = getEnvAsInt("ROUNDING_MINIMUM_MINUTES", c.Rounding.MinimumMinutes)
	if mode := os.Getenv("ROUNDING_MODE"); mode != "" {
		c.Rounding.Mode = timers.RoundingMode(mode)
	}
}
