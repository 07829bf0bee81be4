package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/options-data/internal/backfill"
	"github.com/rickgao/options-data/internal/polygon"
	"github.com/rickgao/options-data/internal/stream"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the real-time poller and streaming trade engine",
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.gw.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Health probe before starting anything long-lived.
	if err := a.gw.Connect(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := a.gw.RunSchema(ctx); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	streamCfg := stream.DefaultConfig(a.cfg.Tickers)
	streamCfg.Threshold = a.cfg.Polygon.TradeValueThreshold
	dial := func() stream.Source {
		wsCfg := polygon.DefaultStreamConfig()
		wsCfg.URL = a.cfg.Polygon.WSURL
		wsCfg.APIKey = a.cfg.Polygon.APIKey
		return polygon.NewStreamClient(wsCfg, a.logger)
	}
	engine := stream.New(streamCfg, dial, a.writer, a.logger)
	if err := engine.Start(ctx); err != nil {
		return err
	}

	var poller *backfill.Poller
	if !a.cfg.Alpaca.SkipStockAggregates {
		poller = backfill.NewPoller(backfill.DefaultPollerConfig(a.cfg.Tickers), a.alpacaClient(), a.writer, a.logger)
		if err := poller.Start(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "ingest running, press Ctrl-C to stop")

	var fatal error
	select {
	case <-ctx.Done():
	case fatal = <-engine.Fatal():
		a.logger.Error("stream failed permanently", "error", fatal)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if poller != nil {
		if err := poller.Stop(shutdownCtx); err != nil {
			a.logger.Warn("poller shutdown", "error", err)
		}
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		a.logger.Warn("stream shutdown", "error", err)
	}

	st := a.writer.Stats()
	a.logger.Info("writer totals",
		"trades", st.OptionTrades, "aggregates", st.StockAggregates, "batches", st.Batches)

	return fatal
}
