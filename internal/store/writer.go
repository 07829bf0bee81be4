// Package store is the write layer: it translates entities to SQL,
// enforces upsert / insert-if-absent semantics, and chunks large writes
// to respect the store's payload and latency limits.
//
// Errors from the gateway surface unchanged to the caller. Batch methods
// have no partial-commit guarantee across chunks; resumability belongs to
// the caller.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/rickgao/options-data/internal/questdb"
)

// Chunk sizes for batched bulk inserts.
const (
	StockAggregateChunkSize = 50
	OptionTradeChunkSize    = 100
	OptionQuoteChunkSize    = 100
)

// Gateway is the slice of the store gateway the writer needs.
type Gateway interface {
	Exec(ctx context.Context, sql string, params ...any) (*questdb.Result, error)
	BulkExec(ctx context.Context, sql string) (*questdb.Result, error)
}

// Tables holds the physical table names the writer targets.
type Tables struct {
	StockAggregates      string
	OptionContracts      string
	OptionContractsIndex string
	OptionTrades         string
	OptionQuotes         string
	OptionTradesIndex    string
	SyncState            string
}

// DefaultTables resolves the production table names, honoring the
// test-mode prefix.
func DefaultTables() Tables {
	return Tables{
		StockAggregates:      questdb.TableName("stock_aggregates"),
		OptionContracts:      questdb.TableName("option_contracts"),
		OptionContractsIndex: questdb.TableName("option_contracts_index"),
		OptionTrades:         questdb.TableName("option_trades"),
		OptionQuotes:         questdb.TableName("option_quotes"),
		OptionTradesIndex:    questdb.TableName("option_trades_index"),
		SyncState:            questdb.TableName("sync_state"),
	}
}

// Stats is a point-in-time snapshot of the writer's counters.
type Stats struct {
	StockAggregates int64
	OptionContracts int64
	OptionTrades    int64
	OptionQuotes    int64
	Batches         int64
}

// Writer writes pipeline entities through the store gateway.
type Writer struct {
	gw     Gateway
	tables Tables
	logger *slog.Logger

	stockRows    atomic.Int64
	contractRows atomic.Int64
	tradeRows    atomic.Int64
	quoteRows    atomic.Int64
	batches      atomic.Int64
}

// NewWriter creates a writer over gw targeting the given tables.
func NewWriter(gw Gateway, tables Tables, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{gw: gw, tables: tables, logger: logger}
}

// Stats snapshots the cumulative row and batch counters.
func (w *Writer) Stats() Stats {
	return Stats{
		StockAggregates: w.stockRows.Load(),
		OptionContracts: w.contractRows.Load(),
		OptionTrades:    w.tradeRows.Load(),
		OptionQuotes:    w.quoteRows.Load(),
		Batches:         w.batches.Load(),
	}
}

// exists runs a presence-check query and reports whether any row came back.
func (w *Writer) exists(ctx context.Context, sql string, params ...any) (bool, error) {
	res, err := w.gw.Exec(ctx, sql, params...)
	if err != nil {
		return false, err
	}
	return len(res.Dataset) > 0, nil
}

// bulkValues renders one (v1, v2, ...) tuple for a multi-VALUES insert.
func bulkValues(b *strings.Builder, values ...any) error {
	b.WriteByte('(')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		lit, err := questdb.Literal(v)
		if err != nil {
			return err
		}
		b.WriteString(lit)
	}
	b.WriteByte(')')
	return nil
}

// chunk splits rows into slices of at most size elements.
func chunk[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(rows)+size-1)/size)
	for size < len(rows) {
		rows, chunks = rows[size:], append(chunks, rows[:size])
	}
	return append(chunks, rows)
}
