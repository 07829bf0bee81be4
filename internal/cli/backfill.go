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
	"github.com/rickgao/options-data/internal/dates"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill [ticker|YYYY-MM-DD] [YYYY-MM-DD]",
	Short: "Backfill historical data up to a target date",
	Long: `Backfill extends stored history backwards.

  backfill                     all configured tickers to now
  backfill SPY                 one ticker to now
  backfill SPY 2024-01-02      one ticker to the given date
  backfill 2024-01-02          all configured tickers to the given date`,
	Args: cobra.MaximumNArgs(2),
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.gw.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := a.coordinator()

	var (
		report *backfill.RunReport
		runErr error
	)
	switch len(args) {
	case 0:
		report, runErr = coord.BackfillAll(ctx)
	case 1:
		if endDate, ok := parseDate(args[0]); ok {
			report, runErr = coord.BackfillAllToDate(ctx, endDate)
		} else {
			report, runErr = singleTickerRun(ctx, coord, args[0], dates.NormalizeToMidnight(time.Now()))
		}
	case 2:
		endDate, ok := parseDate(args[1])
		if !ok {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[1])
		}
		report, runErr = singleTickerRun(ctx, coord, args[0], endDate)
	}

	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report.String())
	}
	return runErr
}

// singleTickerRun wraps one ticker's backfill in a run report.
func singleTickerRun(ctx context.Context, coord *backfill.Coordinator, ticker string, endDate time.Time) (*backfill.RunReport, error) {
	report := backfill.NewRunReport()
	defer report.Finish()

	start := time.Now()
	n, err := coord.BackfillTickerToDate(ctx, ticker, endDate)
	report.Add(backfill.TickerResult{
		Ticker:   ticker,
		Inserted: n,
		Duration: time.Since(start),
		Err:      err,
	})
	return report, err
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
