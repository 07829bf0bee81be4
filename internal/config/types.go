// Package config loads pipeline configuration from an optional YAML file
// overlaid with environment variables. Env vars always win so deployments
// can keep secrets out of the file.
package config

// Config is the root pipeline configuration.
type Config struct {
	Polygon  PolygonConfig  `yaml:"polygon"`
	Alpaca   AlpacaConfig   `yaml:"alpaca"`
	QuestDB  QuestDBConfig  `yaml:"questdb"`
	Backfill BackfillConfig `yaml:"backfill"`
	Tickers  []string       `yaml:"tickers"`
}

// PolygonConfig covers the options REST/WS vendor and its flat-file store.
type PolygonConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`

	// Flat-file (bulk download) credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	TradeValueThreshold float64 `yaml:"trade_value_threshold"`
	QuotesChunkSize     int     `yaml:"quotes_chunk_size"`
	ConcurrencyLimit    int     `yaml:"concurrency_limit"`

	SkipOptionContracts bool `yaml:"skip_option_contracts"`
	SkipOptionTrades    bool `yaml:"skip_option_trades"`
	SkipOptionQuotes    bool `yaml:"skip_option_quotes"`
}

// AlpacaConfig covers the equity-bars vendor.
type AlpacaConfig struct {
	APIKeyID            string `yaml:"api_key_id"`
	APISecretKey        string `yaml:"api_secret_key"`
	BaseURL             string `yaml:"base_url"`
	SkipStockAggregates bool   `yaml:"skip_stock_aggregates"`
}

// QuestDBConfig covers the store's HTTP SQL endpoint.
type QuestDBConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackfillConfig covers coordinator limits.
type BackfillConfig struct {
	MaxDays int `yaml:"max_days"` // Cap on any day walk, 0 = uncapped
}
