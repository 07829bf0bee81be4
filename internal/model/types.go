package model

import "time"

// -----------------------------------------------------------------------------
// Equity Types
// -----------------------------------------------------------------------------

// StockAggregate represents one OHLCV minute bar for an equity symbol.
// (symbol, timestamp) is unique per bar; rows are inserted if absent and
// never updated in place.
type StockAggregate struct {
	Symbol           string    // Equity ticker (e.g., "AAPL")
	Timestamp        time.Time // Bar open time (UTC)
	Open             float64   // Opening price
	High             float64   // High price
	Low              float64   // Low price
	Close            float64   // Closing price
	Volume           float64   // Share volume
	VWAP             float64   // Volume-weighted average price
	TransactionCount int64     // Number of trades in the bar
}

// SyncState tracks equity-bar streaming / catch-up state per ticker.
type SyncState struct {
	Ticker                 string     // Primary key
	LastAggregateTimestamp *time.Time // Newest bar ingested, nil when none
	LastSync               time.Time  // Last successful sync run
	IsStreaming            bool       // True while the real-time poller owns the ticker
}

// -----------------------------------------------------------------------------
// Option Types
// -----------------------------------------------------------------------------

// OptionContract represents a listed option contract definition.
// Keyed by ticker; re-writes update the mutable fields. The contract table
// carries no as_of column: historical membership lives in OptionContractIndex.
type OptionContract struct {
	Ticker            string    // Primary key (e.g., "O:AAPL260320C00250000")
	UnderlyingTicker  string    // Equity ticker the contract references
	ContractType      string    // "call" or "put"
	ExerciseStyle     string    // "american" or "european"
	ExpirationDate    time.Time // Expiration date (UTC midnight)
	SharesPerContract int       // Usually 100
	StrikePrice       float64   // Strike price
}

// OptionContractIndex marks that a contract snapshot was taken for
// (underlying, as_of). AsOf is always midnight-normalized UTC. Re-inserting
// the same pair is idempotent; readers aggregate with MIN/MAX.
type OptionContractIndex struct {
	UnderlyingTicker string    // Underlying equity ticker
	AsOf             time.Time // Snapshot date (UTC midnight)
}

// OptionTrade represents a single tick-level option trade.
// (ticker, timestamp, sequence_number) guides uniqueness; the store's
// dedup on the key tuple makes batched upserts at-least-once safe.
type OptionTrade struct {
	Ticker           string    // Option ticker
	UnderlyingTicker string    // Parsed underlying
	Timestamp        time.Time // SIP timestamp (nanosecond source, UTC)
	Price            float64   // Trade price
	Size             float64   // Contracts traded
	Conditions       string    // JSON array of condition codes
	Exchange         int       // Exchange ID (0 when missing)
	Tape             int       // Tape ID (0 when missing)
	SequenceNumber   int64     // Vendor sequence number (0 when missing)
}

// OptionQuote represents a single tick-level NBBO quote.
type OptionQuote struct {
	Ticker           string    // Option ticker
	UnderlyingTicker string    // Parsed underlying
	Timestamp        time.Time // SIP timestamp (UTC)
	BidPrice         float64   // Best bid
	BidSize          float64   // Size at best bid
	AskPrice         float64   // Best ask
	AskSize          float64   // Size at best ask
	BidExchange      int       // Bid exchange ID
	AskExchange      int       // Ask exchange ID
	SequenceNumber   int64     // Vendor sequence number
}

// OptionTradeIndex is the per-option-ticker high-water mark for resumable
// trade backfill.
type OptionTradeIndex struct {
	Ticker   string    // Option ticker (primary key)
	LastSync time.Time // Newest instant successfully ingested
}
