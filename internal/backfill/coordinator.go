package backfill

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/options-data/internal/dates"
	"github.com/rickgao/options-data/internal/questdb"
)

// Store is the gateway surface the coordinator needs.
type Store interface {
	Connect(ctx context.Context) error
	RunSchema(ctx context.Context) error
	Exec(ctx context.Context, sql string, params ...any) (*questdb.Result, error)
}

// ContractSnapshotter walks contract snapshots backwards over a date range.
type ContractSnapshotter interface {
	BackfillWithAsOf(ctx context.Context, underlying string, from, to time.Time) error
}

// OptionBackfiller ingests trades and quotes for an underlying's contracts.
type OptionBackfiller interface {
	BackfillOptionTrades(ctx context.Context, underlying string, from, to time.Time) (int, error)
	BackfillOptionQuotes(ctx context.Context, underlying string, from, to time.Time) (int, error)
}

// StockBackfiller ingests minute bars over a date range.
type StockBackfiller interface {
	Backfill(ctx context.Context, ticker string, startDate, endDate time.Time) (int, error)
}

// CoordinatorConfig holds coordinator settings.
type CoordinatorConfig struct {
	Tickers           []string
	SkipContracts     bool
	SkipTrades        bool
	SkipQuotes        bool
	SkipStocks        bool
	StockLookbackDays int // Default window when no bars are stored yet

	StocksTable string // Physical name of stock_aggregates
	IndexTable  string // Physical name of option_contracts_index
}

// DefaultCoordinatorConfig returns the production settings.
func DefaultCoordinatorConfig(tickers []string) CoordinatorConfig {
	return CoordinatorConfig{
		Tickers:           tickers,
		StockLookbackDays: 365,
		StocksTable:       questdb.TableName("stock_aggregates"),
		IndexTable:        questdb.TableName("option_contracts_index"),
	}
}

// Coordinator reconciles stored date ranges against vendor data per ticker.
// The stock and options paths of a ticker run independently; re-running any
// variant is idempotent because each path starts from what is already
// stored.
type Coordinator struct {
	cfg       CoordinatorConfig
	gw        Store
	contracts ContractSnapshotter
	options   OptionBackfiller
	stocks    StockBackfiller
	logger    *slog.Logger

	readyOnce sync.Once
	readyErr  error
}

// NewCoordinator creates a backfill coordinator.
func NewCoordinator(cfg CoordinatorConfig, gw Store, contracts ContractSnapshotter, options OptionBackfiller, stocks StockBackfiller, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StockLookbackDays <= 0 {
		cfg.StockLookbackDays = 365
	}
	return &Coordinator{
		cfg:       cfg,
		gw:        gw,
		contracts: contracts,
		options:   options,
		stocks:    stocks,
		logger:    logger,
	}
}

// ensureReady connects the gateway and applies the schema once per process.
func (c *Coordinator) ensureReady(ctx context.Context) error {
	c.readyOnce.Do(func() {
		if err := c.gw.Connect(ctx); err != nil {
			c.readyErr = err
			return
		}
		c.readyErr = c.gw.RunSchema(ctx)
	})
	return c.readyErr
}

// BackfillTickerToDate extends one ticker's stored history back to endDate.
// The stock and options paths run in parallel; each path skips itself when
// its stored range already reaches endDate.
func (c *Coordinator) BackfillTickerToDate(ctx context.Context, ticker string, endDate time.Time) (int, error) {
	if err := c.ensureReady(ctx); err != nil {
		return 0, err
	}
	endDate = dates.NormalizeToMidnight(endDate)

	var (
		mu       sync.Mutex
		inserted int
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := c.runStockPath(gctx, ticker, endDate)
		mu.Lock()
		inserted += n
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		n, err := c.runOptionsPath(gctx, ticker, endDate)
		mu.Lock()
		inserted += n
		mu.Unlock()
		return err
	})

	err := g.Wait()
	return inserted, err
}

// runStockPath backfills minute bars from endDate forward to the oldest
// stored bar. With no prior bars the lookback window applies instead.
func (c *Coordinator) runStockPath(ctx context.Context, ticker string, endDate time.Time) (int, error) {
	if c.cfg.SkipStocks {
		return 0, nil
	}

	probe := dates.Probe{
		Ticker:      ticker,
		TickerField: "symbol",
		DateField:   "timestamp",
		Table:       c.cfg.StocksTable,
	}
	has, err := dates.HasData(ctx, c.gw, probe)
	if err != nil {
		return 0, err
	}
	oldest, err := dates.MinDate(ctx, c.gw, probe)
	if err != nil {
		return 0, err
	}
	oldest = dates.NormalizeToMidnight(oldest)

	if has && !oldest.After(endDate) {
		c.logger.Info("stock history already reaches target date, skipping",
			"ticker", ticker,
			"oldest", oldest.Format("2006-01-02"),
			"end", endDate.Format("2006-01-02"),
		)
		return 0, nil
	}

	start := endDate
	if !has {
		start = endDate.AddDate(0, 0, -c.cfg.StockLookbackDays)
	}
	return c.stocks.Backfill(ctx, ticker, start, oldest)
}

// runOptionsPath walks contract snapshots back to endDate, then backfills
// trades and quotes over the newly covered window.
func (c *Coordinator) runOptionsPath(ctx context.Context, ticker string, endDate time.Time) (int, error) {
	if c.cfg.SkipContracts && c.cfg.SkipTrades && c.cfg.SkipQuotes {
		return 0, nil
	}

	probe := dates.Probe{
		Ticker:      ticker,
		TickerField: "underlying_ticker",
		DateField:   "as_of",
		Table:       c.cfg.IndexTable,
	}
	has, err := dates.HasData(ctx, c.gw, probe)
	if err != nil {
		return 0, err
	}
	oldest, err := dates.MinDate(ctx, c.gw, probe)
	if err != nil {
		return 0, err
	}
	oldest = dates.NormalizeToMidnight(oldest)

	if has && !oldest.After(endDate) {
		c.logger.Info("contract snapshots already reach target date, skipping",
			"ticker", ticker,
			"oldest", oldest.Format("2006-01-02"),
			"end", endDate.Format("2006-01-02"),
		)
		return 0, nil
	}

	start := oldest
	if !has {
		start = dates.NormalizeToMidnight(time.Now())
	}

	if !c.cfg.SkipContracts {
		if err := c.contracts.BackfillWithAsOf(ctx, ticker, start, endDate); err != nil {
			return 0, err
		}
	}

	now := time.Now().UTC()
	inserted := 0
	if !c.cfg.SkipTrades {
		n, err := c.options.BackfillOptionTrades(ctx, ticker, endDate, now)
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	if !c.cfg.SkipQuotes {
		n, err := c.options.BackfillOptionQuotes(ctx, ticker, endDate, now)
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// BackfillAllToDate runs BackfillTickerToDate for every configured ticker.
// Failures are isolated at the ticker boundary and collected in the report;
// only cancellation aborts the loop.
func (c *Coordinator) BackfillAllToDate(ctx context.Context, endDate time.Time) (*RunReport, error) {
	report := NewRunReport()
	defer report.Finish()

	for _, ticker := range c.cfg.Tickers {
		start := time.Now()
		n, err := c.BackfillTickerToDate(ctx, ticker, endDate)
		report.Add(TickerResult{
			Ticker:   ticker,
			Inserted: n,
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			if isCancellation(err) {
				return report, err
			}
			c.logger.Error("ticker backfill failed, continuing",
				"ticker", ticker, "error", err)
		}
	}

	c.logger.Info("backfill run complete",
		"run_id", report.ID,
		"tickers", len(report.Results),
		"inserted", report.TotalInserted(),
		"failed", len(report.Failed()),
	)
	return report, nil
}

// BackfillAll backfills every ticker up to today and then extends contract
// snapshots one week into the future, so contracts listed for upcoming
// expirations are present before their first trades arrive.
func (c *Coordinator) BackfillAll(ctx context.Context) (*RunReport, error) {
	now := dates.NormalizeToMidnight(time.Now())

	report, err := c.BackfillAllToDate(ctx, now)
	if err != nil {
		return report, err
	}

	if !c.cfg.SkipContracts {
		// Walk (now, now+7d] via the same backwards day walk.
		from := now.AddDate(0, 0, 8)
		to := now.AddDate(0, 0, 1)
		for _, ticker := range c.cfg.Tickers {
			if err := c.contracts.BackfillWithAsOf(ctx, ticker, from, to); err != nil {
				if isCancellation(err) {
					return report, err
				}
				c.logger.Error("forward snapshot extension failed, continuing",
					"ticker", ticker, "error", err)
			}
		}
	}

	return report, nil
}
