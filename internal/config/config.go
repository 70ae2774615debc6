package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Paddle  PaddleConfig  `yaml:"paddle" envconfig:"PADDLE"`
	Keygen  KeygenConfig  `yaml:"keygen" envconfig:"KEYGEN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// PaddleConfig contains the Paddle vendor account credentials and the public
// key used to verify inbound webhook signatures.
type PaddleConfig struct {
	PublicKey  string        `yaml:"public_key" envconfig:"PUBLIC_KEY" validate:"required"`
	VendorID   string        `yaml:"vendor_id" envconfig:"VENDOR_ID" validate:"required"`
	APIKey     string        `yaml:"api_key" envconfig:"API_KEY" validate:"required"`
	PlanID     string        `yaml:"plan_id" envconfig:"PLAN_ID" validate:"required"`
	VendorsURL string        `yaml:"vendors_url" envconfig:"VENDORS_URL" default:"https://vendors.paddle.com/api/2.0" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// KeygenConfig contains the Keygen account scope and product token.
type KeygenConfig struct {
	AccountID    string        `yaml:"account_id" envconfig:"ACCOUNT_ID" validate:"required"`
	ProductToken string        `yaml:"product_token" envconfig:"PRODUCT_TOKEN" validate:"required"`
	PolicyID     string        `yaml:"policy_id" envconfig:"POLICY_ID" validate:"required"`
	BaseURL      string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://api.keygen.sh/v1" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/seatsync.log"`
}

// Load loads configuration from environment variables and, if present, a
// YAML config file. Environment variables take precedence. The returned
// Config is immutable by convention: it is built once at startup and passed
// by reference into the clients and the reconciler, which never read
// ambient environment state themselves.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SEATSYNC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configFilePath returns the config file location, overridable for tests
// and containerized deployments.
func configFilePath() string {
	if path := os.Getenv("SEATSYNC_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// merge merges file config with env config (env takes precedence)
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Paddle.PublicKey == "" {
		envCfg.Paddle.PublicKey = fileCfg.Paddle.PublicKey
	}
	if envCfg.Paddle.VendorID == "" {
		envCfg.Paddle.VendorID = fileCfg.Paddle.VendorID
	}
	if envCfg.Paddle.APIKey == "" {
		envCfg.Paddle.APIKey = fileCfg.Paddle.APIKey
	}
	if envCfg.Paddle.PlanID == "" {
		envCfg.Paddle.PlanID = fileCfg.Paddle.PlanID
	}
	if envCfg.Keygen.AccountID == "" {
		envCfg.Keygen.AccountID = fileCfg.Keygen.AccountID
	}
	if envCfg.Keygen.ProductToken == "" {
		envCfg.Keygen.ProductToken = fileCfg.Keygen.ProductToken
	}
	if envCfg.Keygen.PolicyID == "" {
		envCfg.Keygen.PolicyID = fileCfg.Keygen.PolicyID
	}
	if fileCfg.Server.Port != 0 && os.Getenv("SEATSYNC_SERVER_PORT") == "" {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	return envCfg
}

// validate checks structural constraints and presence of all partner
// credentials. The relay cannot run degraded: every credential is required
// for correct operation, so absence is a startup failure here, never a
// runtime branch inside the engine.
func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
