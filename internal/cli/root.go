// Package cli wires the pipeline components behind cobra commands. Each
// command builds only what it needs and exits 0 on success, 1 on any
// uncaught error.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/options-data/internal/alpaca"
	"github.com/rickgao/options-data/internal/backfill"
	"github.com/rickgao/options-data/internal/config"
	"github.com/rickgao/options-data/internal/contracts"
	"github.com/rickgao/options-data/internal/polygon"
	"github.com/rickgao/options-data/internal/questdb"
	"github.com/rickgao/options-data/internal/store"
	"github.com/rickgao/options-data/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "US equity and options market-data ingestion pipeline",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to optional YAML config file")
	rootCmd.AddCommand(backfillCmd, ingestCmd, resetCmd, bulkfilesCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// app bundles the constructed pipeline components.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	gw     *questdb.Gateway
	writer *store.Writer
}

// newApp loads config and builds the shared store plumbing.
func newApp() (*app, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	gw := questdb.NewGateway(cfg.QuestDB.Host, cfg.QuestDB.Port, questdb.WithLogger(logger))
	writer := store.NewWriter(gw, store.DefaultTables(), logger)

	return &app{cfg: cfg, logger: logger, gw: gw, writer: writer}, nil
}

func (a *app) polygonClient() *polygon.Client {
	return polygon.NewClient(a.cfg.Polygon.BaseURL, a.cfg.Polygon.APIKey,
		polygon.WithLogger(a.logger))
}

func (a *app) alpacaClient() *alpaca.Client {
	return alpaca.NewClient(a.cfg.Alpaca.BaseURL, a.cfg.Alpaca.APIKeyID, a.cfg.Alpaca.APISecretKey,
		alpaca.WithLogger(a.logger))
}

// coordinator assembles the full backfill stack.
func (a *app) coordinator() *backfill.Coordinator {
	pc := a.polygonClient()

	snapCfg := contracts.DefaultConfig()
	snapCfg.MaxDays = a.cfg.Backfill.MaxDays
	snapshots := contracts.New(snapCfg, pc, a.writer, a.gw, a.logger)

	optCfg := backfill.DefaultOptionsConfig()
	optCfg.Threshold = a.cfg.Polygon.TradeValueThreshold
	optCfg.Workers = int64(a.cfg.Polygon.ConcurrencyLimit)
	optCfg.QuoteChunkSize = a.cfg.Polygon.QuotesChunkSize
	options := backfill.NewOptionsEngine(optCfg, pc, a.writer, a.gw, a.logger)

	stockCfg := backfill.DefaultStocksConfig()
	stockCfg.MaxDays = a.cfg.Backfill.MaxDays
	stocks := backfill.NewStocksEngine(stockCfg, a.alpacaClient(), a.writer, a.logger)

	coordCfg := backfill.DefaultCoordinatorConfig(a.cfg.Tickers)
	coordCfg.SkipContracts = a.cfg.Polygon.SkipOptionContracts
	coordCfg.SkipTrades = a.cfg.Polygon.SkipOptionTrades
	coordCfg.SkipQuotes = a.cfg.Polygon.SkipOptionQuotes
	coordCfg.SkipStocks = a.cfg.Alpaca.SkipStockAggregates

	return backfill.NewCoordinator(coordCfg, a.gw, snapshots, options, stocks, a.logger)
}
