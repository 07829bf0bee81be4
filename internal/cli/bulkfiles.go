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
	"github.com/rickgao/options-data/internal/bulkfile"
)

const bulkEndpoint = "https://files.polygon.io"

var bulkfilesCmd = &cobra.Command{
	Use:   "bulkfiles <YYYY-MM-DD> [YYYY-MM-DD]",
	Short: "Ingest daily bulk trade files for a date or date range",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBulkfiles,
}

func runBulkfiles(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.gw.Disconnect()
	if a.cfg.Polygon.AccessKey == "" || a.cfg.Polygon.SecretKey == "" {
		return fmt.Errorf("bulk file credentials are required (POLYGON_ACCESS_KEY, POLYGON_SECRET_KEY)")
	}

	start, ok := parseDate(args[0])
	if !ok {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
	}
	end := start
	if len(args) == 2 {
		if end, ok = parseDate(args[1]); !ok {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[1])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.gw.Connect(ctx); err != nil {
		return err
	}
	if err := a.gw.RunSchema(ctx); err != nil {
		return err
	}

	cfg := bulkfile.DefaultConfig()
	cfg.Threshold = a.cfg.Polygon.TradeValueThreshold
	s3c := bulkfile.NewS3Client(bulkEndpoint, a.cfg.Polygon.AccessKey, a.cfg.Polygon.SecretKey)
	fetcher := bulkfile.New(cfg, s3c, a.writer, a.logger)

	began := time.Now()
	n, err := fetcher.IngestRange(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d trades in %s\n",
		n, backfill.FormatDuration(time.Since(began)))
	return nil
}
