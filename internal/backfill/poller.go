package backfill

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/options-data/internal/alpaca"
	"github.com/rickgao/options-data/internal/model"
)

// LatestBarSource fetches the most recent bar for a symbol.
type LatestBarSource interface {
	GetLatestBar(ctx context.Context, symbol string) (*alpaca.Bar, error)
}

// AggregateSink persists polled bars and per-ticker streaming state.
type AggregateSink interface {
	UpsertStockAggregate(ctx context.Context, row model.StockAggregate) error
	UpsertSyncState(ctx context.Context, row model.SyncState) error
}

// PollerConfig holds latest-bar poller configuration.
type PollerConfig struct {
	Tickers  []string
	Interval time.Duration // Poll interval (default: 10s)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig(tickers []string) PollerConfig {
	return PollerConfig{
		Tickers:  tickers,
		Interval: 10 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Poller periodically fetches the latest bar per configured ticker and
// upserts it.
type Poller struct {
	cfg    PollerConfig
	vendor LatestBarSource
	sink   AggregateSink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polled atomic.Int64
	errs   atomic.Int64
}

// NewPoller creates a latest-bar poller.
func NewPoller(cfg PollerConfig, vendor LatestBarSource, sink AggregateSink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Poller{cfg: cfg, vendor: vendor, sink: sink, logger: logger}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("latest-bar poller started",
		"tickers", len(p.cfg.Tickers),
		"interval", p.cfg.Interval,
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("latest-bar poller stopped",
			"polled", p.polled.Load(), "errors", p.errs.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

func (p *Poller) pollAll() {
	for _, symbol := range p.cfg.Tickers {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.pollSymbol(symbol); err != nil {
			p.logger.Warn("latest-bar poll failed",
				"symbol", symbol, "err", err)
			p.errs.Add(1)
			continue
		}
		p.polled.Add(1)
	}
}

func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	bar, err := p.vendor.GetLatestBar(ctx, symbol)
	if err != nil {
		return err
	}
	if bar == nil {
		return nil
	}

	row, err := bar.ToModel(symbol)
	if err != nil {
		return err
	}
	if err := p.sink.UpsertStockAggregate(ctx, row); err != nil {
		return err
	}
	return p.sink.UpsertSyncState(ctx, model.SyncState{
		Ticker:                 symbol,
		LastAggregateTimestamp: &row.Timestamp,
		LastSync:               time.Now().UTC(),
		IsStreaming:            true,
	})
}
