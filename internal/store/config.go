package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ai-trader-arena/internal/types"
)

// TraderConfig configures one competing trader agent.
type TraderConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Model string `yaml:"model"` // e.g. deepseek-chat, qwen3-max

	// OpenAI-compatible endpoint for the model. APIKeyEnv names the
	// environment variable holding the key, so keys stay out of the file.
	APIURL    string `yaml:"api_url"`
	APIKeyEnv string `yaml:"api_key_env"`

	// Exchange credentials (env variable names). Empty in DRY_RUN mode.
	ExchangeKeyEnv    string `yaml:"exchange_key_env"`
	ExchangeSecretEnv string `yaml:"exchange_secret_env"`

	InitialBalance      float64 `yaml:"initial_balance"`
	ScanIntervalMinutes int     `yaml:"scan_interval_minutes"`
	Enabled             *bool   `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true when the field is omitted.
func (t TraderConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

type Config struct {
	Mode       string `yaml:"mode"` // DRY_RUN or LIVE
	ServerPort int    `yaml:"server_port"`
	LogDBPath  string `yaml:"log_db_path"`

	OracleTimeoutSeconds int `yaml:"oracle_timeout_seconds"`
	FetchTimeoutSeconds  int `yaml:"fetch_timeout_seconds"`

	Market struct {
		ShortInterval string `yaml:"short_interval"`
		LongInterval  string `yaml:"long_interval"`
		ShortLimit    int    `yaml:"short_limit"`
		LongLimit     int    `yaml:"long_limit"`
	} `yaml:"market"`

	Pool struct {
		APIURL             string   `yaml:"api_url"`
		Static             []string `yaml:"static"`
		MinOpenInterestUSD float64  `yaml:"min_open_interest_usd_m"` // millions
		RefreshMinutes     int      `yaml:"refresh_minutes"`
	} `yaml:"pool"`

	Risk struct {
		MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
		MaxAllocationPerSymbol float64 `yaml:"max_allocation_per_symbol"` // fraction of equity
		MinRiskReward          float64 `yaml:"min_risk_reward"`
	} `yaml:"risk"`

	Leverage struct {
		Major   int `yaml:"major"` // BTC/ETH tier
		Altcoin int `yaml:"altcoin"`
	} `yaml:"leverage"`

	Traders []TraderConfig `yaml:"traders"`
}

// RiskLimits assembles the typed limits handed to the risk validator.
func (c *Config) RiskLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxConcurrentPositions: c.Risk.MaxConcurrentPositions,
		MaxAllocationPerSymbol: c.Risk.MaxAllocationPerSymbol,
		MajorLeverageCap:       c.Leverage.Major,
		AltcoinLeverageCap:     c.Leverage.Altcoin,
		MinRiskReward:          c.Risk.MinRiskReward,
	}
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}
	if c.LogDBPath == "" {
		c.LogDBPath = "data/decisions.db"
	}
	if c.OracleTimeoutSeconds == 0 {
		c.OracleTimeoutSeconds = 30
	}
	if c.FetchTimeoutSeconds == 0 {
		c.FetchTimeoutSeconds = 20
	}
	if c.Market.ShortInterval == "" {
		c.Market.ShortInterval = "3m"
	}
	if c.Market.LongInterval == "" {
		c.Market.LongInterval = "4h"
	}
	if c.Market.ShortLimit == 0 {
		c.Market.ShortLimit = 120
	}
	if c.Market.LongLimit == 0 {
		c.Market.LongLimit = 60
	}
	if c.Pool.MinOpenInterestUSD == 0 {
		c.Pool.MinOpenInterestUSD = 15
	}
	if c.Pool.RefreshMinutes == 0 {
		c.Pool.RefreshMinutes = 10
	}
	if c.Risk.MaxConcurrentPositions == 0 {
		c.Risk.MaxConcurrentPositions = 3
	}
	if c.Risk.MaxAllocationPerSymbol == 0 {
		c.Risk.MaxAllocationPerSymbol = 1.5
	}
	if c.Risk.MinRiskReward == 0 {
		c.Risk.MinRiskReward = 2.0
	}
	if c.Leverage.Major == 0 {
		c.Leverage.Major = 5
	}
	if c.Leverage.Altcoin == 0 {
		c.Leverage.Altcoin = 5
	}
	for i := range c.Traders {
		if c.Traders[i].ScanIntervalMinutes == 0 {
			c.Traders[i].ScanIntervalMinutes = 3
		}
	}
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Traders) == 0 {
		return errors.New("at least one trader must be configured")
	}
	if c.Pool.APIURL == "" && len(c.Pool.Static) == 0 {
		return errors.New("pool.static cannot be empty when pool.api_url is unset")
	}
	if c.Risk.MinRiskReward < 1 {
		return fmt.Errorf("risk.min_risk_reward must be >= 1, got %.2f", c.Risk.MinRiskReward)
	}

	seen := map[string]bool{}
	for i, t := range c.Traders {
		if t.ID == "" {
			return fmt.Errorf("traders[%d]: id cannot be empty", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("traders[%d]: duplicate id '%s'", i, t.ID)
		}
		seen[t.ID] = true
		if t.Name == "" {
			return fmt.Errorf("traders[%d]: name cannot be empty", i)
		}
		if t.Model == "" {
			return fmt.Errorf("traders[%d]: model cannot be empty", i)
		}
		if t.APIURL == "" || t.APIKeyEnv == "" {
			return fmt.Errorf("traders[%d]: api_url and api_key_env are required", i)
		}
		if os.Getenv(t.APIKeyEnv) == "" {
			return fmt.Errorf("traders[%d]: environment variable %s is not set", i, t.APIKeyEnv)
		}
		if t.InitialBalance <= 0 {
			return fmt.Errorf("traders[%d]: initial_balance must be > 0", i)
		}
		if c.Mode == "LIVE" {
			if t.ExchangeKeyEnv == "" || t.ExchangeSecretEnv == "" {
				return fmt.Errorf("traders[%d]: LIVE mode requires exchange_key_env and exchange_secret_env", i)
			}
			if os.Getenv(t.ExchangeKeyEnv) == "" || os.Getenv(t.ExchangeSecretEnv) == "" {
				return fmt.Errorf("traders[%d]: exchange credentials for '%s' are not set", i, t.ID)
			}
		}
	}
	return nil
}
