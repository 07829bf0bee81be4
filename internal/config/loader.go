package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the optional YAML file at path (skipped when path is empty or
// the file is absent) and overlays environment variables on top. A `.env`
// file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded file values.
func (c *Config) applyEnv() {
	envStr(&c.Polygon.APIKey, "POLYGON_API_KEY")
	envStr(&c.Polygon.BaseURL, "POLYGON_BASE_URL")
	envStr(&c.Polygon.WSURL, "POLYGON_WS_URL")
	envStr(&c.Polygon.AccessKey, "POLYGON_ACCESS_KEY")
	envStr(&c.Polygon.SecretKey, "POLYGON_SECRET_KEY")
	envFloat(&c.Polygon.TradeValueThreshold, "POLYGON_OPTION_TRADE_VALUE_THRESHOLD")
	envInt(&c.Polygon.QuotesChunkSize, "OPTION_QUOTES_CHUNK_SIZE")
	envInt(&c.Polygon.ConcurrencyLimit, "OPTION_CONCURRENCY_LIMIT")
	envBool(&c.Polygon.SkipOptionContracts, "POLYGON_SKIP_OPTION_CONTRACTS")
	envBool(&c.Polygon.SkipOptionTrades, "POLYGON_SKIP_OPTION_TRADES")
	envBool(&c.Polygon.SkipOptionQuotes, "POLYGON_SKIP_OPTION_QUOTES")

	envStr(&c.Alpaca.APIKeyID, "ALPACA_API_KEY_ID")
	envStr(&c.Alpaca.APISecretKey, "ALPACA_API_SECRET_KEY")
	envStr(&c.Alpaca.BaseURL, "ALPACA_BASE_URL")
	envBool(&c.Alpaca.SkipStockAggregates, "ALPACA_SKIP_STOCK_AGGREGATES")

	envStr(&c.QuestDB.Host, "QUESTDB_HOST")
	envInt(&c.QuestDB.Port, "QUESTDB_PORT")

	envInt(&c.Backfill.MaxDays, "BACKFILL_MAX_DAYS")

	if v := os.Getenv("TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, strings.ToUpper(t))
			}
		}
		c.Tickers = tickers
	}
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
