package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xaviergoby/bstdethintg-sub000/internal/lock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
)

// Config is the full service configuration, loaded from a YAML file with
// environment-variable overrides for deployment-specific values.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Lock     lock.Config    `yaml:"lock"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig carries the postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString renders the lib/pq connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// LedgerConfig parameterizes the ledger core.
type LedgerConfig struct {
	// ReferenceCurrency is the currency rate snapshots are quoted in.
	ReferenceCurrency string `yaml:"reference_currency"`
	// AllowNegativeFiat lets fiat holdings overdraw (settlement lag).
	AllowNegativeFiat bool `yaml:"allow_negative_fiat"`
	// AllocationEpsilon is the tolerance on the 100% funding sum.
	AllocationEpsilon string `yaml:"allocation_epsilon"`
	// CloseWorkers is the period-close worker pool size.
	CloseWorkers int `yaml:"close_workers"`
}

// ExchangeConfig carries exchange collaborator credentials.
type ExchangeConfig struct {
	APIKey     string  `yaml:"api_key"`
	APISecret  string  `yaml:"api_secret"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	UseTestnet bool    `yaml:"use_testnet"`
}

// ExplorerConfig carries block-explorer collaborator settings. Wallet
// and Contracts drive the periodic on-chain balance audit.
type ExplorerConfig struct {
	URL        string   `yaml:"url"`
	APIKey     string   `yaml:"api_key"`
	RatePerSec float64  `yaml:"rate_per_sec"`
	Wallet     string   `yaml:"wallet"`
	Contracts  []string `yaml:"contracts"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads the YAML file at path and applies defaults and environment
// overrides. A missing file is not an error: defaults plus environment
// carry a local run.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Password == "" {
		c.Database.Password = "postgres"
	}
	if c.Database.Name == "" {
		c.Database.Name = "fundledger"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Ledger.ReferenceCurrency == "" {
		c.Ledger.ReferenceCurrency = "USD"
	}
	if c.Ledger.CloseWorkers <= 0 {
		c.Ledger.CloseWorkers = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

func (c *Config) applyEnv() {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfPresent(&c.Database.Host, "DB_HOST")
	setIfPresent(&c.Database.Port, "DB_PORT")
	setIfPresent(&c.Database.User, "DB_USER")
	setIfPresent(&c.Database.Password, "DB_PASSWORD")
	setIfPresent(&c.Database.Name, "DB_NAME")
	setIfPresent(&c.Exchange.APIKey, "EXCHANGE_API_KEY")
	setIfPresent(&c.Exchange.APISecret, "EXCHANGE_API_SECRET")
	setIfPresent(&c.Explorer.APIKey, "EXPLORER_API_KEY")
	setIfPresent(&c.Lock.Redis.Addr, "REDIS_ADDR")
	setIfPresent(&c.Lock.Redis.Password, "REDIS_PASSWORD")
}
