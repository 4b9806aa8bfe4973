// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Settlement SettlementConfig `yaml:"settlement"`
	CORS       CORSConfig       `yaml:"cors"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// OracleConfig configures the brokerage relay and the shared token its
// callbacks must present.
type OracleConfig struct {
	BaseURL       string `yaml:"base_url"`
	AuthToken     string `yaml:"auth_token"`
	CallbackToken string `yaml:"callback_token"`
	// Stub runs an in-process oracle instead of the HTTP relay.
	Stub bool `yaml:"stub"`
}

// SettlementConfig holds the engine knobs.
type SettlementConfig struct {
	Owner               string `yaml:"owner"`
	BaseCurrency        string `yaml:"base_currency"`
	RequestTimeout      int    `yaml:"request_timeout"` // seconds
	MinAmount           string `yaml:"min_amount"`
	MaxAmount           string `yaml:"max_amount"`
	RequestCooldown     int    `yaml:"request_cooldown"` // seconds
	MaxCleanupBatchSize int    `yaml:"max_cleanup_batch_size"`
	SlippageMinBP       uint32 `yaml:"slippage_min_bp"`
	SlippageMaxBP       uint32 `yaml:"slippage_max_bp"`
	CleanupInterval     int    `yaml:"cleanup_interval"` // seconds
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var AppConfig *Config

// LoadConfig reads the configuration file, applies defaults and
// environment overrides, and installs the result in AppConfig.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// no file is fine, run on defaults and environment
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	overrideFromEnv(&config)

	AppConfig = &config
	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Settlement.BaseCurrency == "" {
		config.Settlement.BaseCurrency = "USD"
	}
	if config.Settlement.RequestTimeout == 0 {
		config.Settlement.RequestTimeout = 3600
	}
	// clamp into the allowed deadline window
	if config.Settlement.RequestTimeout < 300 {
		config.Settlement.RequestTimeout = 300
	}
	if config.Settlement.RequestTimeout > 86400 {
		config.Settlement.RequestTimeout = 86400
	}
	if config.Settlement.RequestCooldown == 0 {
		config.Settlement.RequestCooldown = 300
	}
	if config.Settlement.MaxCleanupBatchSize == 0 {
		config.Settlement.MaxCleanupBatchSize = 50
	}
	if config.Settlement.SlippageMinBP == 0 && config.Settlement.SlippageMaxBP == 0 {
		config.Settlement.SlippageMinBP = 9800
		config.Settlement.SlippageMaxBP = 10200
	}
	if config.Settlement.CleanupInterval == 0 {
		config.Settlement.CleanupInterval = 60
	}
	if config.Settlement.MinAmount == "" {
		config.Settlement.MinAmount = "1"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if oracleURL := os.Getenv("ORACLE_BASE_URL"); oracleURL != "" {
		config.Oracle.BaseURL = oracleURL
	}
	if token := os.Getenv("ORACLE_AUTH_TOKEN"); token != "" {
		config.Oracle.AuthToken = token
	}
	if token := os.Getenv("ORACLE_CALLBACK_TOKEN"); token != "" {
		config.Oracle.CallbackToken = token
	}
	if stub := os.Getenv("ORACLE_STUB"); stub != "" {
		config.Oracle.Stub = stub == "true"
	}
	if owner := os.Getenv("SETTLEMENT_OWNER"); owner != "" {
		config.Settlement.Owner = owner
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		config.CORS.AllowedOrigins = config.CORS.AllowedOrigins[:0]
		for _, origin := range parts {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// RequestTimeoutDuration returns the configured request timeout.
func (c *SettlementConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RequestCooldownDuration returns the configured submission cooldown.
func (c *SettlementConfig) RequestCooldownDuration() time.Duration {
	return time.Duration(c.RequestCooldown) * time.Second
}

// CleanupIntervalDuration returns the background sweep interval.
func (c *SettlementConfig) CleanupIntervalDuration() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}
