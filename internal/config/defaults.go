package config

// Default values for optional configuration fields.
const (
	DefaultPolygonBaseURL = "https://api.polygon.io"
	DefaultPolygonWSURL   = "wss://socket.polygon.io/options"
	DefaultAlpacaBaseURL  = "https://data.alpaca.markets"

	DefaultTradeValueThreshold = 10_000
	DefaultQuotesChunkSize     = 1000
	DefaultConcurrencyLimit    = 5

	DefaultQuestDBHost = "localhost"
	DefaultQuestDBPort = 9000
)

func (c *Config) applyDefaults() {
	if c.Polygon.BaseURL == "" {
		c.Polygon.BaseURL = DefaultPolygonBaseURL
	}
	if c.Polygon.WSURL == "" {
		c.Polygon.WSURL = DefaultPolygonWSURL
	}
	if c.Polygon.TradeValueThreshold == 0 {
		c.Polygon.TradeValueThreshold = DefaultTradeValueThreshold
	}
	if c.Polygon.QuotesChunkSize == 0 {
		c.Polygon.QuotesChunkSize = DefaultQuotesChunkSize
	}
	if c.Polygon.ConcurrencyLimit == 0 {
		c.Polygon.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if c.Alpaca.BaseURL == "" {
		c.Alpaca.BaseURL = DefaultAlpacaBaseURL
	}

	if c.QuestDB.Host == "" {
		c.QuestDB.Host = DefaultQuestDBHost
	}
	if c.QuestDB.Port == 0 {
		c.QuestDB.Port = DefaultQuestDBPort
	}
}
