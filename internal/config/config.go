package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileEnv = "CONFIG_FILE"

type Config struct {
	Port                  string `yaml:"port"`
	AllowedOrigin         string `yaml:"allowed_origin"`
	DatabaseURL           string `yaml:"database_url"`
	AutoMigrate           bool   `yaml:"auto_migrate"`
	RedisAddr             string `yaml:"redis_addr"`
	RedisPassword         string `yaml:"redis_password"`
	RedisDB               int    `yaml:"redis_db"`
	NozzleCacheTTLSeconds int    `yaml:"nozzle_cache_ttl_seconds"`
	AuthSecret            string `yaml:"auth_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	OCREndpoint           string `yaml:"ocr_endpoint"`
	OCRAPIKey             string `yaml:"ocr_api_key"`
	OCRPollAttempts       int    `yaml:"ocr_poll_attempts"`
	OCRPollIntervalMS     int    `yaml:"ocr_poll_interval_ms"`
	LogLevel              string `yaml:"log_level"`
	LogFile               string `yaml:"log_file"`
}

func defaults() Config {
	return Config{
		Port:                  "8080",
		AllowedOrigin:         "http://127.0.0.1:3000",
		NozzleCacheTTLSeconds: 300,
		AccessTokenTTLMinutes: 480,
		OCRPollAttempts:       10,
		OCRPollIntervalMS:     1000,
		LogLevel:              "info",
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment overrides. Secrets never get defaults.
func Load() (Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB, 0)
	cfg.NozzleCacheTTLSeconds = getEnvInt("NOZZLE_CACHE_TTL_SECONDS", cfg.NozzleCacheTTLSeconds, 1)
	cfg.AuthSecret = strings.TrimSpace(getEnv("AUTH_SECRET", cfg.AuthSecret))
	cfg.AccessTokenTTLMinutes = getEnvInt("ACCESS_TOKEN_TTL_MINUTES", cfg.AccessTokenTTLMinutes, 1)
	cfg.OCREndpoint = strings.TrimSpace(getEnv("OCR_ENDPOINT", cfg.OCREndpoint))
	cfg.OCRAPIKey = strings.TrimSpace(getEnv("OCR_API_KEY", cfg.OCRAPIKey))
	cfg.OCRPollAttempts = getEnvInt("OCR_POLL_ATTEMPTS", cfg.OCRPollAttempts, 1)
	cfg.OCRPollIntervalMS = getEnvInt("OCR_POLL_INTERVAL_MS", cfg.OCRPollIntervalMS, 0)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	fallback := defaults()
	if cfg.NozzleCacheTTLSeconds < 1 {
		cfg.NozzleCacheTTLSeconds = fallback.NozzleCacheTTLSeconds
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = fallback.AccessTokenTTLMinutes
	}
	if cfg.OCRPollAttempts < 1 {
		cfg.OCRPollAttempts = fallback.OCRPollAttempts
	}
	if cfg.OCRPollIntervalMS < 0 {
		cfg.OCRPollIntervalMS = fallback.OCRPollIntervalMS
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) OCRPollInterval() time.Duration {
	return time.Duration(c.OCRPollIntervalMS) * time.Millisecond
}

func (c Config) NozzleCacheTTL() time.Duration {
	return time.Duration(c.NozzleCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt keeps fallback when the variable is unset, malformed or below floor.
func getEnvInt(key string, fallback int, floor int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || val < floor {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
