// Package stream is the real-time trade engine: it supervises the options
// WebSocket connection, filters incoming trades, and flushes them to the
// store in batches.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/polygon"
)

// ErrTooManyFailures is reported on Fatal after the reconnect budget is
// exhausted.
var ErrTooManyFailures = errors.New("stream: too many consecutive connection failures")

// Source is one WebSocket connection to the trade stream. Connections are
// single-use; the engine dials a fresh one on every reconnect.
type Source interface {
	Connect(ctx context.Context) error
	Close() error
	Trades() <-chan polygon.TradeEvent
	Errors() <-chan error
	// Done is closed on teardown; the event channels stay open, so this is
	// the only reliable end-of-connection signal.
	Done() <-chan struct{}
	Open() bool
	LastMessageAt() time.Time
}

// Dialer creates a fresh stream connection.
type Dialer func() Source

// Sink persists flushed trade batches.
type Sink interface {
	BatchUpsertOptionTrades(ctx context.Context, rows []model.OptionTrade) error
}

// Config holds stream engine settings.
type Config struct {
	Tickers          []string      // Underlyings to keep
	Threshold        float64       // Minimum notional (price × 100 × size)
	FlushSize        int           // Flush when the buffer reaches this many trades
	FlushInterval    time.Duration // Periodic flush regardless of size
	HealthInterval   time.Duration // Watchdog check cadence
	SilenceLimit     time.Duration // Reconnect after this much read silence
	ReconnectMaxWait time.Duration // Backoff cap
	MaxFailures      int           // Consecutive failures before giving up
	FlushTimeout     time.Duration // Store write deadline per flush
}

// DefaultConfig returns the production settings.
func DefaultConfig(tickers []string) Config {
	return Config{
		Tickers:          tickers,
		Threshold:        10_000,
		FlushSize:        100,
		FlushInterval:    5 * time.Second,
		HealthInterval:   30 * time.Second,
		SilenceLimit:     90 * time.Second,
		ReconnectMaxWait: 30 * time.Second,
		MaxFailures:      5,
		FlushTimeout:     30 * time.Second,
	}
}

// Stats counts engine activity since start.
type Stats struct {
	Received          int64
	Kept              int64
	DroppedThreshold  int64
	DroppedUnderlying int64
	DroppedInvalid    int64
	Flushes           int64
	Flushed           int64
	Reconnects        int64
}

// Engine owns the stream connection and the trade buffer.
type Engine struct {
	cfg         Config
	dial        Dialer
	sink        Sink
	logger      *slog.Logger
	underlyings map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientMu sync.Mutex
	client   Source

	bufMu sync.Mutex
	buf   []model.OptionTrade

	fatal     chan error
	fatalOnce sync.Once

	received          atomic.Int64
	kept              atomic.Int64
	droppedThreshold  atomic.Int64
	droppedUnderlying atomic.Int64
	droppedInvalid    atomic.Int64
	flushes           atomic.Int64
	flushed           atomic.Int64
	reconnects        atomic.Int64
}

// New creates a stream engine.
func New(cfg Config, dial Dialer, sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}

	underlyings := make(map[string]struct{}, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		underlyings[t] = struct{}{}
	}
	return &Engine{
		cfg:         cfg,
		dial:        dial,
		sink:        sink,
		logger:      logger,
		underlyings: underlyings,
		fatal:       make(chan error, 1),
	}
}

// Start launches the supervisor, the periodic flusher, and the watchdog.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(3)
	go e.supervise()
	go e.flushLoop()
	go e.watchdog()

	e.logger.Info("stream engine started",
		"underlyings", len(e.underlyings),
		"threshold", e.cfg.Threshold,
	)
	return nil
}

// Stop shuts the engine down and flushes the buffer once.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.closeClient()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("stream shutdown timeout, forcing close")
	}

	e.flush()

	s := e.Stats()
	e.logger.Info("stream engine stopped",
		"received", s.Received,
		"kept", s.Kept,
		"flushed", s.Flushed,
		"reconnects", s.Reconnects,
	)
	return nil
}

// Fatal reports an unrecoverable stream failure. The CLI exits non-zero
// when it fires.
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Received:          e.received.Load(),
		Kept:              e.kept.Load(),
		DroppedThreshold:  e.droppedThreshold.Load(),
		DroppedUnderlying: e.droppedUnderlying.Load(),
		DroppedInvalid:    e.droppedInvalid.Load(),
		Flushes:           e.flushes.Load(),
		Flushed:           e.flushed.Load(),
		Reconnects:        e.reconnects.Load(),
	}
}

// supervise owns the connection: dial, consume until failure, reconnect
// with doubling backoff, give up after MaxFailures consecutive failures.
func (e *Engine) supervise() {
	defer e.wg.Done()

	failures := 0
	wait := time.Duration(0) // first attempt is immediate

	for {
		if wait > 0 {
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		if e.ctx.Err() != nil {
			return
		}

		client := e.dial()
		if err := client.Connect(e.ctx); err != nil {
			if errors.Is(err, polygon.ErrMaxConnections) {
				e.reportFatal(err)
				return
			}
			failures++
			e.logger.Warn("stream connect failed",
				"attempt", failures, "error", err)
			if failures >= e.cfg.MaxFailures {
				e.reportFatal(ErrTooManyFailures)
				return
			}
			if wait == 0 {
				wait = time.Second
			} else {
				wait *= 2
			}
			if wait > e.cfg.ReconnectMaxWait {
				wait = e.cfg.ReconnectMaxWait
			}
			continue
		}

		failures = 0
		wait = 0
		e.setClient(client)

		fatal := e.consume(client)
		e.setClient(nil)
		client.Close()
		if fatal != nil {
			e.reportFatal(fatal)
			return
		}
		if e.ctx.Err() != nil {
			return
		}

		e.reconnects.Add(1)
		e.logger.Info("stream connection lost, reconnecting")
	}
}

// consume drains one connection's channels until it dies. A non-nil return
// is unrecoverable. The connection's Done channel is what ends a silent
// connection: the watchdog's forced Close fires it without ever touching
// the event channels.
func (e *Engine) consume(client Source) error {
	for {
		select {
		case <-e.ctx.Done():
			return nil
		case <-client.Done():
			return nil
		case ev, ok := <-client.Trades():
			if !ok {
				return nil
			}
			e.handle(ev)
		case err, ok := <-client.Errors():
			if !ok {
				return nil
			}
			if errors.Is(err, polygon.ErrMaxConnections) {
				return err
			}
			e.logger.Warn("stream error", "error", err)
			return nil
		}
	}
}

// handle filters one trade event and buffers the survivors.
func (e *Engine) handle(ev polygon.TradeEvent) {
	e.received.Add(1)

	if ev.Price <= 0 || ev.Size <= 0 {
		e.droppedInvalid.Add(1)
		e.logger.Warn("dropping invalid trade event",
			"symbol", ev.Symbol, "price", ev.Price, "size", ev.Size)
		return
	}
	if ev.Price*100*ev.Size < e.cfg.Threshold {
		e.droppedThreshold.Add(1)
		return
	}
	underlying := polygon.ExtractUnderlyingTicker(ev.Symbol)
	if underlying == "" {
		e.droppedInvalid.Add(1)
		e.logger.Warn("dropping trade with unparseable symbol", "symbol", ev.Symbol)
		return
	}
	if _, ok := e.underlyings[underlying]; !ok {
		e.droppedUnderlying.Add(1)
		return
	}

	row := model.OptionTrade{
		Ticker:           ev.Symbol,
		UnderlyingTicker: underlying,
		Timestamp:        polygon.ConvertTimestamp(ev.Timestamp, false),
		Price:            ev.Price,
		Size:             ev.Size,
		Conditions:       marshalConditions(ev.Conditions),
		Exchange:         ev.Exchange,
		SequenceNumber:   ev.SequenceNumber,
	}
	e.kept.Add(1)

	e.bufMu.Lock()
	e.buf = append(e.buf, row)
	full := len(e.buf) >= e.cfg.FlushSize
	e.bufMu.Unlock()

	if full {
		e.flush()
	}
}

// flushLoop drains the buffer on a fixed cadence.
func (e *Engine) flushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

// flush swaps the buffer out and writes it. Write failures drop the batch;
// the store's dedup makes a later backfill pass safe.
func (e *Engine) flush() {
	e.bufMu.Lock()
	if len(e.buf) == 0 {
		e.bufMu.Unlock()
		return
	}
	batch := e.buf
	e.buf = nil
	e.bufMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FlushTimeout)
	defer cancel()

	if err := e.sink.BatchUpsertOptionTrades(ctx, batch); err != nil {
		e.logger.Error("stream flush failed, dropping batch",
			"rows", len(batch), "error", err)
		return
	}
	e.flushes.Add(1)
	e.flushed.Add(int64(len(batch)))
}

// watchdog forces a reconnect when the connection goes silent or drops out
// of the open state.
func (e *Engine) watchdog() {
	defer e.wg.Done()

	if e.cfg.HealthInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			client := e.currentClient()
			if client == nil {
				continue
			}
			silence := time.Since(client.LastMessageAt())
			if !client.Open() || silence > e.cfg.SilenceLimit {
				e.logger.Warn("stream unhealthy, forcing reconnect",
					"open", client.Open(),
					"silence", silence.Round(time.Second),
				)
				client.Close()
			}
		}
	}
}

func (e *Engine) setClient(client Source) {
	e.clientMu.Lock()
	e.client = client
	e.clientMu.Unlock()
}

func (e *Engine) currentClient() Source {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	return e.client
}

func (e *Engine) closeClient() {
	if client := e.currentClient(); client != nil {
		client.Close()
	}
}

func (e *Engine) reportFatal(err error) {
	e.fatalOnce.Do(func() {
		e.fatal <- err
	})
}

// marshalConditions JSON-encodes vendor condition codes, empty array when
// missing.
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
