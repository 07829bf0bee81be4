// Package contracts is the snapshot engine: it tracks which option
// contracts existed "as of" each historical date via the contract table
// plus the (underlying, as_of) index table.
package contracts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/options-data/internal/dates"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/polygon"
	"github.com/rickgao/options-data/internal/questdb"
)

// VendorClient is the slice of the options REST client the engine needs.
type VendorClient interface {
	GetOptionContracts(ctx context.Context, underlying string, asOf time.Time) ([]polygon.Contract, error)
}

// Writer is the slice of the write layer the engine needs.
type Writer interface {
	BatchUpsertOptionContracts(ctx context.Context, rows []model.OptionContract) error
	UpsertOptionContractIndex(ctx context.Context, row model.OptionContractIndex) error
}

// Config holds engine tuning.
type Config struct {
	IndexTable string        // Physical name of option_contracts_index
	DayPause   time.Duration // Throttle between per-day vendor calls
	MaxDays    int           // Cap on days per walk, 0 = no cap
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		IndexTable: questdb.TableName("option_contracts_index"),
		DayPause:   100 * time.Millisecond,
	}
}

// Engine ingests per-day contract snapshots.
type Engine struct {
	cfg     Config
	vendor  VendorClient
	writer  Writer
	gw      dates.Executor
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a snapshot engine.
func New(cfg Config, vendor VendorClient, writer Writer, gw dates.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DayPause == 0 {
		cfg.DayPause = 100 * time.Millisecond
	}
	return &Engine{
		cfg:     cfg,
		vendor:  vendor,
		writer:  writer,
		gw:      gw,
		limiter: rate.NewLimiter(rate.Every(cfg.DayPause), 1),
		logger:  logger,
	}
}

// IngestContractsAsOf pulls the vendor's contract list for (underlying,
// asOf), upserts the contracts, and records the snapshot marker. Returns
// the number of contracts ingested.
func (e *Engine) IngestContractsAsOf(ctx context.Context, underlying string, asOf time.Time) (int, error) {
	vendorContracts, err := e.vendor.GetOptionContracts(ctx, underlying, asOf)
	if err != nil {
		return 0, err
	}

	rows := make([]model.OptionContract, 0, len(vendorContracts))
	for _, vc := range vendorContracts {
		row, err := vc.ToModel()
		if err != nil {
			e.logger.Warn("skipping contract with bad expiration date",
				"ticker", vc.Ticker,
				"expiration_date", vc.ExpirationDate,
				"error", err,
			)
			continue
		}
		rows = append(rows, row)
	}

	if err := e.writer.BatchUpsertOptionContracts(ctx, rows); err != nil {
		return 0, err
	}

	err = e.writer.UpsertOptionContractIndex(ctx, model.OptionContractIndex{
		UnderlyingTicker: underlying,
		AsOf:             dates.NormalizeToMidnight(asOf),
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

// BackfillWithAsOf walks backwards one day at a time, from the day before
// `from` down to `to` inclusive, ingesting a snapshot for each day.
// Individual day failures log and the walk continues; cancellation
// propagates immediately.
func (e *Engine) BackfillWithAsOf(ctx context.Context, underlying string, from, to time.Time) error {
	cursor := dates.NormalizeToMidnight(from).AddDate(0, 0, -1)
	to = dates.NormalizeToMidnight(to)

	days := 0
	for !cursor.Before(to) {
		if e.cfg.MaxDays > 0 && days >= e.cfg.MaxDays {
			e.logger.Info("contract backfill day cap reached",
				"underlying", underlying, "max_days", e.cfg.MaxDays)
			return nil
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		n, err := e.IngestContractsAsOf(ctx, underlying, cursor)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			e.logger.Error("contract snapshot failed, continuing to previous day",
				"underlying", underlying,
				"as_of", cursor.Format("2006-01-02"),
				"error", err,
			)
		default:
			e.logger.Debug("contract snapshot ingested",
				"underlying", underlying,
				"as_of", cursor.Format("2006-01-02"),
				"contracts", n,
			)
		}

		cursor = cursor.AddDate(0, 0, -1)
		days++
	}

	return nil
}

// CatchUp walks forward from the newest stored as_of to the current day.
// When no snapshot exists yet, today's snapshot is taken and the walk
// stops.
func (e *Engine) CatchUp(ctx context.Context, underlying string) error {
	today := dates.NormalizeToMidnight(time.Now())

	newest, ok, err := dates.MaxDate(ctx, e.gw, dates.Probe{
		Ticker:      underlying,
		TickerField: "underlying_ticker",
		DateField:   "as_of",
		Table:       e.cfg.IndexTable,
	})
	if err != nil {
		return err
	}

	if !ok {
		_, err := e.IngestContractsAsOf(ctx, underlying, today)
		return err
	}

	days := 0
	for cursor := dates.NormalizeToMidnight(newest).AddDate(0, 0, 1); !cursor.After(today); cursor = cursor.AddDate(0, 0, 1) {
		if e.cfg.MaxDays > 0 && days >= e.cfg.MaxDays {
			return nil
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		if _, err := e.IngestContractsAsOf(ctx, underlying, cursor); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			e.logger.Error("contract catch-up failed, continuing to next day",
				"underlying", underlying,
				"as_of", cursor.Format("2006-01-02"),
				"error", err,
			)
		}
		days++
	}

	return nil
}
