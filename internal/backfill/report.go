package backfill

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TickerResult is the outcome of one ticker's backfill pass.
type TickerResult struct {
	Ticker   string
	Inserted int
	Duration time.Duration
	Err      error
}

// RunReport collects per-ticker outcomes for a whole coordinator run.
// Loop failures are isolated at the ticker boundary, so the report is how
// they surface to the operator.
type RunReport struct {
	ID        uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Results   []TickerResult
}

// NewRunReport starts a report for a run beginning now.
func NewRunReport() *RunReport {
	return &RunReport{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
	}
}

// Add records one ticker's outcome.
func (r *RunReport) Add(res TickerResult) {
	r.Results = append(r.Results, res)
}

// Finish stamps the total duration.
func (r *RunReport) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

// TotalInserted sums rows written across all tickers.
func (r *RunReport) TotalInserted() int {
	total := 0
	for _, res := range r.Results {
		total += res.Inserted
	}
	return total
}

// Failed returns the results that ended in error.
func (r *RunReport) Failed() []TickerResult {
	var failed []TickerResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// String renders the report for CLI output.
func (r *RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d tickers, %d rows, %s\n",
		r.ID, len(r.Results), r.TotalInserted(), FormatDuration(r.Duration))
	for _, res := range r.Results {
		status := "ok"
		if res.Err != nil {
			status = "FAILED: " + res.Err.Error()
		}
		fmt.Fprintf(&b, "  %-8s %8d rows  %-10s %s\n",
			res.Ticker, res.Inserted, FormatDuration(res.Duration), status)
	}
	return b.String()
}

// FormatDuration renders a duration as "Xh Ym Zs".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
