// Package backfill contains the historical ingestion engines and the
// coordinator that reconciles stored date ranges against vendor data.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/options-data/internal/dates"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/polygon"
	"github.com/rickgao/options-data/internal/questdb"
)

// OptionsVendor is the slice of the options REST client the engine needs.
type OptionsVendor interface {
	GetOptionTrades(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Trade, error)
	GetOptionQuotes(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Quote, error)
}

// OptionsWriter is the slice of the write layer the engine needs.
type OptionsWriter interface {
	BatchUpsertOptionTrades(ctx context.Context, rows []model.OptionTrade) error
	UpsertOptionTradeIndex(ctx context.Context, row model.OptionTradeIndex) error
	OptionTradeLastSync(ctx context.Context, ticker string) (string, bool, error)
	BatchUpsertOptionQuotes(ctx context.Context, rows []model.OptionQuote) error
}

// OptionsConfig holds trades/quotes engine tuning.
type OptionsConfig struct {
	ContractsTable string  // Physical name of option_contracts
	Threshold      float64 // Minimum notional (price × shares × size) to keep a trade
	Workers        int64   // Bounded per-ticker concurrency
	QuoteChunkSize int     // Rows per quote write chunk
}

// DefaultOptionsConfig returns the production settings.
func DefaultOptionsConfig() OptionsConfig {
	return OptionsConfig{
		ContractsTable: questdb.TableName("option_contracts"),
		Threshold:      10_000,
		Workers:        5,
		QuoteChunkSize: 1000,
	}
}

// OptionsEngine backfills tick-level option trades and quotes.
type OptionsEngine struct {
	cfg    OptionsConfig
	vendor OptionsVendor
	writer OptionsWriter
	gw     dates.Executor
	logger *slog.Logger
}

// NewOptionsEngine creates a trades/quotes backfill engine.
func NewOptionsEngine(cfg OptionsConfig, vendor OptionsVendor, writer OptionsWriter, gw dates.Executor, logger *slog.Logger) *OptionsEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.QuoteChunkSize <= 0 {
		cfg.QuoteChunkSize = 1000
	}
	return &OptionsEngine{cfg: cfg, vendor: vendor, writer: writer, gw: gw, logger: logger}
}

// resolveOptionTickers returns the option tickers for an underlying whose
// expiration is on or after the window start. Expired-before-window
// contracts can have no trades inside it.
func (e *OptionsEngine) resolveOptionTickers(ctx context.Context, underlying string, from time.Time) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT ticker FROM %s WHERE underlying_ticker=$1 AND expiration_date>=$2 ORDER BY ticker",
		e.cfg.ContractsTable,
	)
	res, err := e.gw.Exec(ctx, sql, underlying, dates.NormalizeToMidnight(from))
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(res.Dataset))
	for _, row := range res.Dataset {
		if len(row) == 0 {
			continue
		}
		if s, ok := row[0].(string); ok && s != "" {
			tickers = append(tickers, s)
		}
	}
	return tickers, nil
}

// sharesPerContract reads the contract's multiplier, defaulting to 100 when
// the contract row is missing or the field is unset. The default is never
// written back.
func (e *OptionsEngine) sharesPerContract(ctx context.Context, ticker string) int {
	sql := fmt.Sprintf("SELECT shares_per_contract FROM %s WHERE ticker=$1 LIMIT 1", e.cfg.ContractsTable)
	res, err := e.gw.Exec(ctx, sql, ticker)
	if err != nil {
		e.logger.Warn("shares_per_contract lookup failed, using default",
			"ticker", ticker, "error", err)
		return 100
	}
	if len(res.Dataset) == 0 || len(res.Dataset[0]) == 0 {
		return 100
	}
	if f, ok := res.Dataset[0][0].(float64); ok && f > 0 {
		return int(f)
	}
	return 100
}

// BackfillOptionTrades ingests trades for every option ticker of an
// underlying over [from, to). Each ticker resumes from its high-water mark
// and failures are isolated per ticker. Returns the number of trades
// written.
func (e *OptionsEngine) BackfillOptionTrades(ctx context.Context, underlying string, from, to time.Time) (int, error) {
	tickers, err := e.resolveOptionTickers(ctx, underlying, from)
	if err != nil {
		return 0, fmt.Errorf("resolving option tickers for %s: %w", underlying, err)
	}
	e.logger.Info("option trade backfill starting",
		"underlying", underlying,
		"tickers", len(tickers),
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
	)

	sem := semaphore.NewWeighted(e.cfg.Workers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		canceled error
	)

	for _, ticker := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			return inserted, err
		}
		wg.Add(1)
		go func(ticker string) {
			defer sem.Release(1)
			defer wg.Done()

			n, err := e.backfillTickerTrades(ctx, ticker, from, to)
			mu.Lock()
			inserted += n
			if err != nil && isCancellation(err) && canceled == nil {
				canceled = err
			}
			mu.Unlock()
			if err != nil && !isCancellation(err) {
				e.logger.Error("trade backfill failed for ticker, continuing",
					"ticker", ticker, "error", err)
			}
		}(ticker)
	}

	wg.Wait()
	return inserted, canceled
}

// backfillTickerTrades ingests one option ticker's trades over the window,
// resuming past the stored high-water mark.
func (e *OptionsEngine) backfillTickerTrades(ctx context.Context, ticker string, from, to time.Time) (int, error) {
	underlying := polygon.ExtractUnderlyingTicker(ticker)
	if underlying == "" {
		e.logger.Warn("skipping unparseable option ticker", "ticker", ticker)
		return 0, nil
	}

	effectiveFrom := from
	if raw, ok, err := e.writer.OptionTradeLastSync(ctx, ticker); err != nil {
		return 0, err
	} else if ok {
		if last, parsed := dates.ParseInstant(raw); parsed {
			if resume := last.Add(time.Nanosecond); resume.After(effectiveFrom) {
				effectiveFrom = resume
			}
		}
	}
	if !effectiveFrom.Before(to) {
		return 0, nil
	}

	vendorTrades, err := e.vendor.GetOptionTrades(ctx, ticker, effectiveFrom, to)
	if err != nil {
		return 0, err
	}

	spc := e.sharesPerContract(ctx, ticker)
	rows := make([]model.OptionTrade, 0, len(vendorTrades))
	for _, vt := range vendorTrades {
		if vt.Price*float64(spc)*vt.Size < e.cfg.Threshold {
			continue
		}
		rows = append(rows, model.OptionTrade{
			Ticker:           ticker,
			UnderlyingTicker: underlying,
			Timestamp:        polygon.ConvertTimestamp(vt.SipTimestamp, true),
			Price:            vt.Price,
			Size:             vt.Size,
			Conditions:       marshalConditions(vt.Conditions),
			Exchange:         vt.Exchange,
			Tape:             vt.Tape,
			SequenceNumber:   vt.SequenceNumber,
		})
	}

	if err := e.writer.BatchUpsertOptionTrades(ctx, rows); err != nil {
		return 0, err
	}
	if err := e.writer.UpsertOptionTradeIndex(ctx, model.OptionTradeIndex{Ticker: ticker, LastSync: to}); err != nil {
		return len(rows), err
	}
	return len(rows), nil
}

// BackfillOptionQuotes ingests quotes for every option ticker of an
// underlying over [from, to), with the same bounded pool and per-ticker
// isolation as the trade path.
func (e *OptionsEngine) BackfillOptionQuotes(ctx context.Context, underlying string, from, to time.Time) (int, error) {
	tickers, err := e.resolveOptionTickers(ctx, underlying, from)
	if err != nil {
		return 0, fmt.Errorf("resolving option tickers for %s: %w", underlying, err)
	}

	sem := semaphore.NewWeighted(e.cfg.Workers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		canceled error
	)

	for _, ticker := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			return inserted, err
		}
		wg.Add(1)
		go func(ticker string) {
			defer sem.Release(1)
			defer wg.Done()

			n, err := e.IngestOptionQuotes(ctx, ticker, from, to)
			mu.Lock()
			inserted += n
			if err != nil && isCancellation(err) && canceled == nil {
				canceled = err
			}
			mu.Unlock()
			if err != nil && !isCancellation(err) {
				e.logger.Error("quote backfill failed for ticker, continuing",
					"ticker", ticker, "error", err)
			}
		}(ticker)
	}

	wg.Wait()
	return inserted, canceled
}

// IngestOptionQuotes fetches quotes for one ticker over [from, to), split
// into one-day sub-intervals. Chunk write failures log and the remaining
// chunks continue.
func (e *OptionsEngine) IngestOptionQuotes(ctx context.Context, ticker string, from, to time.Time) (int, error) {
	underlying := polygon.ExtractUnderlyingTicker(ticker)
	if underlying == "" {
		e.logger.Warn("skipping unparseable option ticker", "ticker", ticker)
		return 0, nil
	}

	inserted := 0
	for cursor := from; cursor.Before(to); {
		dayEnd := cursor.AddDate(0, 0, 1)
		if dayEnd.After(to) {
			dayEnd = to
		}

		vendorQuotes, err := e.vendor.GetOptionQuotes(ctx, ticker, cursor, dayEnd)
		if err != nil {
			return inserted, err
		}

		if len(vendorQuotes) > 0 {
			rows := make([]model.OptionQuote, 0, len(vendorQuotes))
			for _, vq := range vendorQuotes {
				rows = append(rows, model.OptionQuote{
					Ticker:           ticker,
					UnderlyingTicker: underlying,
					Timestamp:        polygon.ConvertTimestamp(vq.SipTimestamp, true),
					BidPrice:         vq.BidPrice,
					BidSize:          vq.BidSize,
					AskPrice:         vq.AskPrice,
					AskSize:          vq.AskSize,
					BidExchange:      vq.BidExchange,
					AskExchange:      vq.AskExchange,
					SequenceNumber:   vq.SequenceNumber,
				})
			}
			for i := 0; i < len(rows); i += e.cfg.QuoteChunkSize {
				end := i + e.cfg.QuoteChunkSize
				if end > len(rows) {
					end = len(rows)
				}
				if err := e.writer.BatchUpsertOptionQuotes(ctx, rows[i:end]); err != nil {
					if isCancellation(err) {
						return inserted, err
					}
					e.logger.Error("quote chunk write failed, continuing",
						"ticker", ticker, "chunk_start", i, "error", err)
					continue
				}
				inserted += end - i
			}
		}

		cursor = dayEnd
	}

	return inserted, nil
}

// marshalConditions JSON-encodes vendor condition codes. Missing conditions
// become an empty array, not null.
func marshalConditions(codes []int) string {
	if len(codes) == 0 {
		return "[]"
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
