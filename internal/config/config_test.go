package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POLYGON_API_KEY", "POLYGON_BASE_URL", "POLYGON_WS_URL",
		"POLYGON_ACCESS_KEY", "POLYGON_SECRET_KEY",
		"POLYGON_OPTION_TRADE_VALUE_THRESHOLD",
		"OPTION_QUOTES_CHUNK_SIZE", "OPTION_CONCURRENCY_LIMIT",
		"POLYGON_SKIP_OPTION_CONTRACTS", "POLYGON_SKIP_OPTION_TRADES", "POLYGON_SKIP_OPTION_QUOTES",
		"ALPACA_API_KEY_ID", "ALPACA_API_SECRET_KEY", "ALPACA_BASE_URL", "ALPACA_SKIP_STOCK_AGGREGATES",
		"QUESTDB_HOST", "QUESTDB_PORT", "BACKFILL_MAX_DAYS", "TICKERS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearPipelineEnv(t)
	yaml := `
polygon:
  api_key: file-key
  trade_value_threshold: 5000
questdb:
  host: db.internal
  port: 9001
tickers:
  - SPY
  - QQQ
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Polygon.APIKey != "file-key" {
		t.Errorf("api_key = %q", cfg.Polygon.APIKey)
	}
	if cfg.Polygon.TradeValueThreshold != 5000 {
		t.Errorf("threshold = %v", cfg.Polygon.TradeValueThreshold)
	}
	if cfg.QuestDB.Host != "db.internal" || cfg.QuestDB.Port != 9001 {
		t.Errorf("questdb = %+v", cfg.QuestDB)
	}
	if len(cfg.Tickers) != 2 || cfg.Tickers[0] != "SPY" {
		t.Errorf("tickers = %v", cfg.Tickers)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("POLYGON_API_KEY", "env-key")
	t.Setenv("OPTION_CONCURRENCY_LIMIT", "9")
	t.Setenv("POLYGON_SKIP_OPTION_QUOTES", "true")
	t.Setenv("TICKERS", "spy, qqq,iwm")

	yaml := `
polygon:
  api_key: file-key
  concurrency_limit: 2
tickers:
  - OLD
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Polygon.APIKey != "env-key" {
		t.Errorf("api_key = %q, want env override", cfg.Polygon.APIKey)
	}
	if cfg.Polygon.ConcurrencyLimit != 9 {
		t.Errorf("concurrency = %d, want 9", cfg.Polygon.ConcurrencyLimit)
	}
	if !cfg.Polygon.SkipOptionQuotes {
		t.Error("skip_option_quotes not applied from env")
	}
	want := []string{"SPY", "QQQ", "IWM"}
	if len(cfg.Tickers) != len(want) {
		t.Fatalf("tickers = %v, want %v", cfg.Tickers, want)
	}
	for i, w := range want {
		if cfg.Tickers[i] != w {
			t.Errorf("ticker %d = %q, want %q", i, cfg.Tickers[i], w)
		}
	}
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("POLYGON_API_KEY", "k")
	t.Setenv("TICKERS", "SPY")
	t.Setenv("ALPACA_SKIP_STOCK_AGGREGATES", "true")

	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Polygon.BaseURL != DefaultPolygonBaseURL {
		t.Errorf("base_url = %q", cfg.Polygon.BaseURL)
	}
	if cfg.Polygon.TradeValueThreshold != DefaultTradeValueThreshold {
		t.Errorf("threshold = %v", cfg.Polygon.TradeValueThreshold)
	}
	if cfg.Polygon.QuotesChunkSize != DefaultQuotesChunkSize {
		t.Errorf("chunk size = %d", cfg.Polygon.QuotesChunkSize)
	}
	if cfg.QuestDB.Host != DefaultQuestDBHost || cfg.QuestDB.Port != DefaultQuestDBPort {
		t.Errorf("questdb = %+v", cfg.QuestDB)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.Polygon.APIKey = "" }},
		{"no tickers", func(c *Config) { c.Tickers = nil }},
		{"bad port", func(c *Config) { c.QuestDB.Port = 0 }},
		{"bad chunk size", func(c *Config) { c.Polygon.QuotesChunkSize = 0 }},
		{"missing alpaca creds", func(c *Config) { c.Alpaca.APIKeyID = "" }},
		{"negative max days", func(c *Config) { c.Backfill.MaxDays = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Tickers: []string{"SPY"},
			}
			cfg.Polygon.APIKey = "k"
			cfg.Alpaca.APIKeyID = "id"
			cfg.Alpaca.APISecretKey = "sec"
			cfg.applyDefaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate passed, want error")
			}
		})
	}
}
