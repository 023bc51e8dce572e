package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr                  string `yaml:"addr"`
		HMACSecret            string `yaml:"hmac_secret"`
		ClockSkewSeconds      int    `yaml:"clock_skew_seconds"`
		IdempotencyWindowSecs int    `yaml:"idempotency_window_seconds"`
		IdempotencyStorePath  string `yaml:"idempotency_store_path"`
		IdempotencyDSN        string `yaml:"idempotency_dsn"`
	} `yaml:"server"`
	Chain struct {
		RPCURL               string           `yaml:"rpc_url"`
		PrivateKey           string           `yaml:"private_key"`
		Contracts            map[int64]string `yaml:"contracts"`
		CommitTimeoutMinutes int              `yaml:"commit_timeout_minutes"`
	} `yaml:"chain"`
	Oracle struct {
		BaseURL           string  `yaml:"base_url"`
		Currency          string  `yaml:"currency"`
		PriceChainID      int64   `yaml:"price_chain_id"`
		CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
		RefreshSeconds    int     `yaml:"refresh_seconds"`
		StableToken       string  `yaml:"stable_token"`
		StableChainID     int64   `yaml:"stable_chain_id"`
		FallbackNativeINR float64 `yaml:"fallback_native_inr"`
		FallbackStableINR float64 `yaml:"fallback_stable_inr"`
	} `yaml:"oracle"`
	Metadata struct {
		Mode    string `yaml:"mode"` // memory, http or postgres
		BaseURL string `yaml:"base_url"`
		DSN     string `yaml:"dsn"`
	} `yaml:"metadata"`
	Platform struct {
		UPIID string `yaml:"upi_id"`
		Name  string `yaml:"name"`
	} `yaml:"platform"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Chain.RPCURL == "" {
		return nil, errors.New("chain.rpc_url is required")
	}
	if cfg.Oracle.BaseURL == "" {
		return nil, errors.New("oracle.base_url is required")
	}
	switch cfg.Metadata.Mode {
	case "", "memory":
		cfg.Metadata.Mode = "memory"
	case "http":
		if cfg.Metadata.BaseURL == "" {
			return nil, errors.New("metadata.base_url is required in http mode")
		}
	case "postgres":
		if cfg.Metadata.DSN == "" {
			return nil, errors.New("metadata.dsn is required in postgres mode")
		}
	default:
		return nil, fmt.Errorf("unknown metadata.mode %q", cfg.Metadata.Mode)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ClockSkewSeconds <= 0 {
		cfg.Server.ClockSkewSeconds = 60
	}
	if cfg.Server.IdempotencyWindowSecs <= 0 {
		cfg.Server.IdempotencyWindowSecs = 300
	}
	if cfg.Server.IdempotencyStorePath == "" {
		cfg.Server.IdempotencyStorePath = filepath.Join(os.TempDir(), "upirails-idem.json")
	}
	if cfg.Chain.CommitTimeoutMinutes <= 0 {
		cfg.Chain.CommitTimeoutMinutes = 5
	}
	if cfg.Oracle.Currency == "" {
		cfg.Oracle.Currency = "INR"
	}
	if cfg.Oracle.CacheTTLSeconds <= 0 {
		cfg.Oracle.CacheTTLSeconds = 60
	}
	if cfg.Oracle.RefreshSeconds <= 0 {
		cfg.Oracle.RefreshSeconds = 30
	}
	if cfg.Oracle.StableChainID <= 0 {
		cfg.Oracle.StableChainID = cfg.Oracle.PriceChainID
	}
	if cfg.Oracle.FallbackNativeINR <= 0 {
		cfg.Oracle.FallbackNativeINR = 200000
	}
	if cfg.Oracle.FallbackStableINR <= 0 {
		cfg.Oracle.FallbackStableINR = 83
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("HMAC_SECRET"); v != "" {
		cfg.Server.HMACSecret = v
	}
	if v := os.Getenv("IDEMPOTENCY_STORE_PATH"); v != "" {
		cfg.Server.IdempotencyStorePath = v
	}
	if v := os.Getenv("IDEMPOTENCY_DSN"); v != "" {
		cfg.Server.IdempotencyDSN = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("COMMIT_TIMEOUT_MINUTES"); v != "" {
		cfg.Chain.CommitTimeoutMinutes = atoiOr(cfg.Chain.CommitTimeoutMinutes, v)
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("ORACLE_PRICE_CHAIN_ID"); v != "" {
		cfg.Oracle.PriceChainID = atoi64Or(cfg.Oracle.PriceChainID, v)
	}
	if v := os.Getenv("METADATA_MODE"); v != "" {
		cfg.Metadata.Mode = v
	}
	if v := os.Getenv("METADATA_BASE_URL"); v != "" {
		cfg.Metadata.BaseURL = v
	}
	if v := os.Getenv("METADATA_DSN"); v != "" {
		cfg.Metadata.DSN = v
	}
	if v := os.Getenv("PLATFORM_UPI_ID"); v != "" {
		cfg.Platform.UPIID = v
	}
}

// Derived durations.

func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.Server.ClockSkewSeconds) * time.Second
}

func (c *Config) IdempotencyWindow() time.Duration {
	return time.Duration(c.Server.IdempotencyWindowSecs) * time.Second
}

func (c *Config) CommitTimeout() time.Duration {
	return time.Duration(c.Chain.CommitTimeoutMinutes) * time.Minute
}

func (c *Config) OracleCacheTTL() time.Duration {
	return time.Duration(c.Oracle.CacheTTLSeconds) * time.Second
}

func (c *Config) OracleRefreshInterval() time.Duration {
	return time.Duration(c.Oracle.RefreshSeconds) * time.Second
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
