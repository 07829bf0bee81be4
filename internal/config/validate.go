package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Polygon.APIKey == "" {
		return errors.New("polygon.api_key is required (POLYGON_API_KEY)")
	}
	if c.Polygon.TradeValueThreshold < 0 {
		return errors.New("polygon.trade_value_threshold must be >= 0")
	}
	if c.Polygon.QuotesChunkSize < 1 {
		return errors.New("polygon.quotes_chunk_size must be >= 1")
	}
	if c.Polygon.ConcurrencyLimit < 1 {
		return errors.New("polygon.concurrency_limit must be >= 1")
	}

	if !c.Alpaca.SkipStockAggregates {
		if c.Alpaca.APIKeyID == "" || c.Alpaca.APISecretKey == "" {
			return errors.New("alpaca credentials are required unless ALPACA_SKIP_STOCK_AGGREGATES is set")
		}
	}

	if c.QuestDB.Host == "" {
		return errors.New("questdb.host is required")
	}
	if c.QuestDB.Port < 1 || c.QuestDB.Port > 65535 {
		return fmt.Errorf("questdb.port must be between 1 and 65535, got %d", c.QuestDB.Port)
	}

	if c.Backfill.MaxDays < 0 {
		return errors.New("backfill.max_days must be >= 0")
	}

	if len(c.Tickers) == 0 {
		return errors.New("at least one ticker is required (TICKERS)")
	}
	return nil
}
