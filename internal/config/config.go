package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Env                string        `koanf:"env"`
	HTTPPort           string        `koanf:"http_port"`
	DatabaseURL        string        `koanf:"database_url"`
	LogLevel           string        `koanf:"log_level"`
	LogFormat          string        `koanf:"log_format"`
	JWTSecret          string        `koanf:"jwt_secret"`
	SessionTTL         time.Duration `koanf:"session_ttl"`
	GeminiAPIKey       string        `koanf:"gemini_api_key"`
	RedisURL           string        `koanf:"redis_url"`
	CORSOrigins        []string      `koanf:"cors_origins"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
}

var AppConfig Config

func defaultConfig() Config {
	return Config{
		Env:                "development",
		HTTPPort:           "8080",
		DatabaseURL:        "myblog.db",
		LogLevel:           "info",
		LogFormat:          "json",
		SessionTTL:         24 * time.Hour,
		CORSOrigins:        []string{"*"},
		RateLimitPerMinute: 60,
	}
}

// LoadConfig fills AppConfig from, in increasing priority: built-in defaults,
// an optional YAML file, and the environment (a .env file is loaded first if present).
func LoadConfig() error {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Environment values arrive as comma-separated strings.
	if raw, ok := k.Get("cors_origins").(string); ok {
		if err := k.Set("cors_origins", splitList(raw)); err != nil {
			return fmt.Errorf("failed to parse cors_origins: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	AppConfig = cfg
	return nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.Env == "production" && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE cannot be negative, got %d", c.RateLimitPerMinute)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
