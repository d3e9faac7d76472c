package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
mode: DRY_RUN
pool:
  static: [BTCUSDT, ETHUSDT, SOLUSDT]
traders:
  - id: alpha
    name: Alpha
    model: deepseek-chat
    api_url: https://api.deepseek.com/v1
    api_key_env: TEST_ORACLE_KEY
    initial_balance: 1000
`

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "sk-test")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.OracleTimeoutSeconds != 30 {
		t.Errorf("OracleTimeoutSeconds = %d, want 30", cfg.OracleTimeoutSeconds)
	}
	if cfg.Market.ShortInterval != "3m" || cfg.Market.LongInterval != "4h" {
		t.Errorf("market intervals = %s/%s, want 3m/4h", cfg.Market.ShortInterval, cfg.Market.LongInterval)
	}
	if cfg.Risk.MaxConcurrentPositions != 3 {
		t.Errorf("MaxConcurrentPositions = %d, want 3", cfg.Risk.MaxConcurrentPositions)
	}
	if cfg.Risk.MinRiskReward != 2.0 {
		t.Errorf("MinRiskReward = %v, want 2.0", cfg.Risk.MinRiskReward)
	}
	if cfg.Pool.MinOpenInterestUSD != 15 {
		t.Errorf("MinOpenInterestUSD = %v, want 15", cfg.Pool.MinOpenInterestUSD)
	}
	if cfg.Traders[0].ScanIntervalMinutes != 3 {
		t.Errorf("ScanIntervalMinutes = %d, want 3", cfg.Traders[0].ScanIntervalMinutes)
	}
	if !cfg.Traders[0].IsEnabled() {
		t.Error("trader should default to enabled")
	}
}

func TestLoadConfigInvalidMode(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "sk-test")

	body := `
mode: PAPER
pool:
  static: [BTCUSDT]
traders:
  - id: alpha
    name: Alpha
    model: deepseek-chat
    api_url: https://api.deepseek.com/v1
    api_key_env: TEST_ORACLE_KEY
    initial_balance: 1000
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for invalid mode, got nil")
	}
}

func TestLoadConfigMissingOracleKey(t *testing.T) {
	body := `
mode: DRY_RUN
pool:
  static: [BTCUSDT]
traders:
  - id: alpha
    name: Alpha
    model: deepseek-chat
    api_url: https://api.deepseek.com/v1
    api_key_env: TEST_UNSET_ORACLE_KEY
    initial_balance: 1000
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unset api key env, got nil")
	}
}

func TestLoadConfigLiveRequiresExchangeCreds(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "sk-test")

	body := `
mode: LIVE
pool:
  static: [BTCUSDT]
traders:
  - id: alpha
    name: Alpha
    model: deepseek-chat
    api_url: https://api.deepseek.com/v1
    api_key_env: TEST_ORACLE_KEY
    initial_balance: 1000
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for LIVE mode without exchange creds, got nil")
	}
}

func TestLoadConfigDuplicateTraderID(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "sk-test")

	body := `
mode: DRY_RUN
pool:
  static: [BTCUSDT]
traders:
  - id: alpha
    name: Alpha
    model: deepseek-chat
    api_url: https://api.deepseek.com/v1
    api_key_env: TEST_ORACLE_KEY
    initial_balance: 1000
  - id: alpha
    name: AlphaTwo
    model: qwen3-max
    api_url: https://dashscope.aliyuncs.com/compatible-mode/v1
    api_key_env: TEST_ORACLE_KEY
    initial_balance: 1000
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for duplicate trader id, got nil")
	}
}
