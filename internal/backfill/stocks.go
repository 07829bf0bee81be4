package backfill

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/options-data/internal/alpaca"
	"github.com/rickgao/options-data/internal/dates"
	"github.com/rickgao/options-data/internal/model"
)

// StocksVendor is the slice of the equity-bars REST client the engine needs.
type StocksVendor interface {
	GetHistoricalBars(ctx context.Context, symbol string, from, to time.Time, granularity string) ([]alpaca.Bar, error)
}

// StocksWriter is the slice of the write layer the engine needs.
type StocksWriter interface {
	BatchInsertIfAbsentStockAggregates(ctx context.Context, rows []model.StockAggregate) error
}

// StocksConfig holds stock-bars engine tuning.
type StocksConfig struct {
	Granularity string        // Bar interval requested from the vendor
	DayPause    time.Duration // Throttle between per-day vendor calls
	MaxDays     int           // Cap on days per walk, 0 = no cap
}

// DefaultStocksConfig returns the production settings.
func DefaultStocksConfig() StocksConfig {
	return StocksConfig{
		Granularity: "1Min",
		DayPause:    100 * time.Millisecond,
	}
}

// StocksEngine backfills minute bars one day at a time.
type StocksEngine struct {
	cfg     StocksConfig
	vendor  StocksVendor
	writer  StocksWriter
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewStocksEngine creates a stock-bars backfill engine.
func NewStocksEngine(cfg StocksConfig, vendor StocksVendor, writer StocksWriter, logger *slog.Logger) *StocksEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Granularity == "" {
		cfg.Granularity = "1Min"
	}
	if cfg.DayPause == 0 {
		cfg.DayPause = 100 * time.Millisecond
	}
	return &StocksEngine{
		cfg:     cfg,
		vendor:  vendor,
		writer:  writer,
		limiter: rate.NewLimiter(rate.Every(cfg.DayPause), 1),
		logger:  logger,
	}
}

// Backfill scans [startDate, endDate] forward one day at a time, writing
// bars with insert-if-absent semantics. Out-of-range inputs warn but never
// fail; per-day errors log and the scan continues. Returns the number of
// bars written.
func (e *StocksEngine) Backfill(ctx context.Context, ticker string, startDate, endDate time.Time) (int, error) {
	startDate = dates.NormalizeToMidnight(startDate)
	endDate = dates.NormalizeToMidnight(endDate)
	now := time.Now().UTC()

	if endDate.After(now) {
		e.logger.Warn("stock backfill end date is in the future",
			"ticker", ticker, "end", endDate.Format("2006-01-02"))
	}
	if startDate.After(endDate) {
		e.logger.Warn("stock backfill start date is after end date, nothing to do",
			"ticker", ticker,
			"start", startDate.Format("2006-01-02"),
			"end", endDate.Format("2006-01-02"),
		)
		return 0, nil
	}

	inserted := 0
	days := 0
	for cursor := startDate; !cursor.After(endDate); cursor = cursor.AddDate(0, 0, 1) {
		if e.cfg.MaxDays > 0 && days >= e.cfg.MaxDays {
			e.logger.Info("stock backfill day cap reached",
				"ticker", ticker, "max_days", e.cfg.MaxDays)
			break
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return inserted, err
		}

		n, err := e.backfillDay(ctx, ticker, cursor)
		if err != nil {
			if isCancellation(err) {
				return inserted, err
			}
			e.logger.Error("stock backfill day failed, continuing",
				"ticker", ticker,
				"date", cursor.Format("2006-01-02"),
				"error", err,
			)
		}
		inserted += n
		days++
	}

	e.logger.Info("stock backfill complete",
		"ticker", ticker,
		"start", startDate.Format("2006-01-02"),
		"end", endDate.Format("2006-01-02"),
		"inserted", inserted,
	)
	return inserted, nil
}

func (e *StocksEngine) backfillDay(ctx context.Context, ticker string, day time.Time) (int, error) {
	bars, err := e.vendor.GetHistoricalBars(ctx, ticker, day, day.AddDate(0, 0, 1), e.cfg.Granularity)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	rows := make([]model.StockAggregate, 0, len(bars))
	for _, bar := range bars {
		row, err := bar.ToModel(ticker)
		if err != nil {
			e.logger.Warn("skipping bar with bad timestamp",
				"ticker", ticker, "timestamp", bar.Timestamp, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if err := e.writer.BatchInsertIfAbsentStockAggregates(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
