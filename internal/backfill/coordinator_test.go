package backfill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/options-data/internal/questdb"
)

// fakeCoordStore answers the coordinator's probes per table.
type fakeCoordStore struct {
	mu        sync.Mutex
	stockMin  string // "" = no rows
	indexMin  string
	connected bool
	schemaRan bool
}

func (f *fakeCoordStore) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeCoordStore) RunSchema(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaRan = true
	return nil
}

func (f *fakeCoordStore) Exec(_ context.Context, sql string, _ ...any) (*questdb.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := f.stockMin
	if strings.Contains(sql, "option_contracts_index") {
		min = f.indexMin
	}
	switch {
	case strings.HasPrefix(sql, "SELECT MIN"):
		if min == "" {
			return &questdb.Result{Dataset: [][]any{{nil}}}, nil
		}
		return &questdb.Result{Dataset: [][]any{{min}}}, nil
	case strings.HasPrefix(sql, "SELECT 1"):
		if min == "" {
			return &questdb.Result{}, nil
		}
		return &questdb.Result{Dataset: [][]any{{float64(1)}}}, nil
	}
	return &questdb.Result{}, nil
}

type fakeSnapshotter struct {
	mu    sync.Mutex
	calls []string // "underlying from..to"
	err   error
}

func (f *fakeSnapshotter) BackfillWithAsOf(_ context.Context, underlying string, from, to time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, underlying+" "+from.Format("2006-01-02")+".."+to.Format("2006-01-02"))
	return f.err
}

type fakeOptionBackfiller struct {
	mu         sync.Mutex
	trades     int
	quotes     int
	tradeCalls []string
	quoteCalls []string
	err        map[string]error // per underlying
}

func (f *fakeOptionBackfiller) BackfillOptionTrades(_ context.Context, underlying string, _, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradeCalls = append(f.tradeCalls, underlying)
	if err := f.err[underlying]; err != nil {
		return 0, err
	}
	return f.trades, nil
}

func (f *fakeOptionBackfiller) BackfillOptionQuotes(_ context.Context, underlying string, _, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls = append(f.quoteCalls, underlying)
	return f.quotes, nil
}

type fakeStockBackfiller struct {
	mu       sync.Mutex
	inserted int
	calls    []string // "ticker start..end"
	err      map[string]error
}

func (f *fakeStockBackfiller) Backfill(_ context.Context, ticker string, startDate, endDate time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ticker+" "+startDate.Format("2006-01-02")+".."+endDate.Format("2006-01-02"))
	if err := f.err[ticker]; err != nil {
		return 0, err
	}
	return f.inserted, nil
}

func testCoordinator(tickers []string, gw *fakeCoordStore, contracts *fakeSnapshotter, options *fakeOptionBackfiller, stocks *fakeStockBackfiller) *Coordinator {
	cfg := DefaultCoordinatorConfig(tickers)
	cfg.SkipQuotes = true
	return NewCoordinator(cfg, gw, contracts, options, stocks, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBackfillTickerToDateSkipsCoveredOptionsPath(t *testing.T) {
	gw := &fakeCoordStore{
		indexMin: "2024-01-01", // already older than the target
		stockMin: "2024-01-10",
	}
	contracts := &fakeSnapshotter{}
	options := &fakeOptionBackfiller{}
	stocks := &fakeStockBackfiller{inserted: 7}
	coord := testCoordinator([]string{"X"}, gw, contracts, options, stocks)

	endDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	n, err := coord.BackfillTickerToDate(context.Background(), "X", endDate)
	if err != nil {
		t.Fatalf("BackfillTickerToDate: %v", err)
	}

	// Option path fully skipped: no snapshot walk, no trade calls.
	if len(contracts.calls) != 0 {
		t.Errorf("contract walks = %v, want none", contracts.calls)
	}
	if len(options.tradeCalls) != 0 {
		t.Errorf("trade calls = %v, want none", options.tradeCalls)
	}
	// Stock path runs independently per its own state (oldest 01-10 > 01-05).
	want := "X 2024-01-05..2024-01-10"
	if len(stocks.calls) != 1 || stocks.calls[0] != want {
		t.Errorf("stock calls = %v, want [%s]", stocks.calls, want)
	}
	if n != 7 {
		t.Errorf("inserted = %d, want 7", n)
	}
	if !gw.connected || !gw.schemaRan {
		t.Error("gateway not prepared before backfilling")
	}
}

func TestBackfillTickerToDateRunsOptionsWalkThenTrades(t *testing.T) {
	gw := &fakeCoordStore{
		indexMin: "2024-01-10",
		stockMin: "2024-01-01", // stock path covered
	}
	contracts := &fakeSnapshotter{}
	options := &fakeOptionBackfiller{trades: 4}
	stocks := &fakeStockBackfiller{}
	coord := testCoordinator([]string{"X"}, gw, contracts, options, stocks)

	endDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	n, err := coord.BackfillTickerToDate(context.Background(), "X", endDate)
	if err != nil {
		t.Fatalf("BackfillTickerToDate: %v", err)
	}
	if len(stocks.calls) != 0 {
		t.Errorf("stock calls = %v, want none", stocks.calls)
	}
	want := "X 2024-01-10..2024-01-05"
	if len(contracts.calls) != 1 || contracts.calls[0] != want {
		t.Errorf("contract walks = %v, want [%s]", contracts.calls, want)
	}
	if len(options.tradeCalls) != 1 {
		t.Errorf("trade calls = %v, want one", options.tradeCalls)
	}
	if n != 4 {
		t.Errorf("inserted = %d, want 4", n)
	}
}

func TestBackfillTickerToDateNoPriorStockData(t *testing.T) {
	gw := &fakeCoordStore{
		stockMin: "",           // no bars yet
		indexMin: "2024-01-01", // options covered
	}
	contracts := &fakeSnapshotter{}
	options := &fakeOptionBackfiller{}
	stocks := &fakeStockBackfiller{}
	coord := testCoordinator([]string{"X"}, gw, contracts, options, stocks)

	endDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := coord.BackfillTickerToDate(context.Background(), "X", endDate); err != nil {
		t.Fatalf("BackfillTickerToDate: %v", err)
	}
	if len(stocks.calls) != 1 {
		t.Fatalf("stock calls = %v, want one", stocks.calls)
	}
	// Lookback start: endDate minus 365 days.
	if !strings.HasPrefix(stocks.calls[0], "X 2023-06-02..") {
		t.Errorf("stock call = %s, want start 2023-06-02", stocks.calls[0])
	}
}

func TestBackfillAllToDateIsolatesTickerFailure(t *testing.T) {
	gw := &fakeCoordStore{
		stockMin: "", // both tickers take the lookback path
		indexMin: "2020-01-01",
	}
	contracts := &fakeSnapshotter{}
	options := &fakeOptionBackfiller{}
	stocks := &fakeStockBackfiller{
		inserted: 2,
		err:      map[string]error{"BAD": errors.New("vendor down")},
	}
	coord := testCoordinator([]string{"BAD", "GOOD"}, gw, contracts, options, stocks)

	endDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	report, err := coord.BackfillAllToDate(context.Background(), endDate)
	if err != nil {
		t.Fatalf("BackfillAllToDate: %v (ticker failures must not abort the run)", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Ticker != "BAD" {
		t.Fatalf("failed = %v, want BAD only", failed)
	}
	if report.TotalInserted() != 2 {
		t.Errorf("total inserted = %d, want 2 from GOOD", report.TotalInserted())
	}
	if report.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("report has no run ID")
	}
}

func TestBackfillAllExtendsSnapshotsOneWeek(t *testing.T) {
	gw := &fakeCoordStore{
		stockMin: "2000-01-01", // stock path covered for any endDate
		indexMin: "2000-01-01", // options path covered
	}
	contracts := &fakeSnapshotter{}
	options := &fakeOptionBackfiller{}
	stocks := &fakeStockBackfiller{}
	coord := testCoordinator([]string{"X"}, gw, contracts, options, stocks)

	if _, err := coord.BackfillAll(context.Background()); err != nil {
		t.Fatalf("BackfillAll: %v", err)
	}

	// The main pass skipped both paths; the only snapshot walk is the
	// one-week forward extension.
	if len(contracts.calls) != 1 {
		t.Fatalf("contract walks = %v, want the extension only", contracts.calls)
	}
	now := time.Now().UTC()
	wantFrom := now.AddDate(0, 0, 8).Format("2006-01-02")
	wantTo := now.AddDate(0, 0, 1).Format("2006-01-02")
	if got, want := contracts.calls[0], "X "+wantFrom+".."+wantTo; got != want {
		t.Errorf("extension walk = %s, want %s", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h 0m 0s"},
		{90 * time.Second, "0h 1m 30s"},
		{3*time.Hour + 5*time.Minute + 9*time.Second, "3h 5m 9s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
