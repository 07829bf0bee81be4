// Package dates provides the date arithmetic and stored-range probes used
// by the backfill coordinator and the contract snapshot engine.
//
// All midnight normalization is UTC. Normalization is applied before any
// comparison so local-clock drift cannot skew range reconciliation.
package dates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/options-data/internal/questdb"
)

// Executor is the slice of the store gateway the probes need.
type Executor interface {
	Exec(ctx context.Context, sql string, params ...any) (*questdb.Result, error)
}

// Probe identifies a (ticker, table) range lookup.
type Probe struct {
	Ticker      string
	TickerField string
	DateField   string
	Table       string
}

// MinDate returns the oldest stored instant for the probe.
//
// When the table has no rows for the ticker it returns the current instant:
// callers treat the missing-data sentinel as "nothing to backfill behind".
// Callers that need true absence must use HasData.
func MinDate(ctx context.Context, gw Executor, p Probe) (time.Time, error) {
	sql := fmt.Sprintf("SELECT MIN(%s) FROM %s WHERE %s=$1", p.DateField, p.Table, p.TickerField)
	res, err := gw.Exec(ctx, sql, strings.ToUpper(p.Ticker))
	if err != nil {
		return time.Time{}, err
	}
	if ts, ok := firstInstant(res); ok {
		return ts, nil
	}
	return time.Now().UTC(), nil
}

// MaxDate returns the newest stored instant for the probe, or ok=false
// when no data is stored.
func MaxDate(ctx context.Context, gw Executor, p Probe) (time.Time, bool, error) {
	sql := fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s=$1", p.DateField, p.Table, p.TickerField)
	res, err := gw.Exec(ctx, sql, strings.ToUpper(p.Ticker))
	if err != nil {
		return time.Time{}, false, err
	}
	ts, ok := firstInstant(res)
	return ts, ok, nil
}

// HasData reports whether any row exists for the ticker.
func HasData(ctx context.Context, gw Executor, p Probe) (bool, error) {
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s=$1 LIMIT 1", p.Table, p.TickerField)
	res, err := gw.Exec(ctx, sql, strings.ToUpper(p.Ticker))
	if err != nil {
		return false, err
	}
	return len(res.Dataset) > 0, nil
}

// firstInstant extracts the first cell of the first row as an instant.
func firstInstant(res *questdb.Result) (time.Time, bool) {
	if res == nil || len(res.Dataset) == 0 || len(res.Dataset[0]) == 0 {
		return time.Time{}, false
	}
	return ParseInstant(res.Dataset[0][0])
}

// ParseInstant converts a store cell value to a UTC instant.
func ParseInstant(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeToMidnight returns the same calendar date with the time-of-day
// zeroed, in UTC.
func NormalizeToMidnight(d time.Time) time.Time {
	d = d.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns the midnight-normalized days from start to end inclusive,
// walking forward. Empty when start is after end.
func Days(start, end time.Time) []time.Time {
	start = NormalizeToMidnight(start)
	end = NormalizeToMidnight(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// SameDay reports whether a and b fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool {
	return NormalizeToMidnight(a).Equal(NormalizeToMidnight(b))
}
