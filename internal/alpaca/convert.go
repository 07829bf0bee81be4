package alpaca

import (
	"time"

	"github.com/rickgao/options-data/internal/model"
)

// ToModel converts a vendor bar to the stored aggregate. The vendor's
// timestamp string must be a valid ISO-8601 instant.
func (b Bar) ToModel(symbol string) (model.StockAggregate, error) {
	ts, err := time.Parse(time.RFC3339, b.Timestamp)
	if err != nil {
		return model.StockAggregate{}, err
	}
	return model.StockAggregate{
		Symbol:           symbol,
		Timestamp:        ts.UTC(),
		Open:             b.Open,
		High:             b.High,
		Low:              b.Low,
		Close:            b.Close,
		Volume:           b.Volume,
		VWAP:             b.VWAP,
		TransactionCount: b.TransactionCount,
	}, nil
}
