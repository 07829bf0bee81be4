package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/options-data/internal/model"
)

const stockAggregateColumns = "symbol, timestamp, open, high, low, close, volume, vwap, transaction_count"

// UpsertStockAggregate writes one minute bar. The store's dedup on
// (timestamp, symbol) absorbs duplicate writes.
func (w *Writer) UpsertStockAggregate(ctx context.Context, row model.StockAggregate) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		w.tables.StockAggregates, stockAggregateColumns,
	)
	_, err := w.gw.Exec(ctx, sql,
		row.Symbol, row.Timestamp, row.Open, row.High, row.Low, row.Close,
		row.Volume, row.VWAP, row.TransactionCount)
	return err
}

// BatchUpsertStockAggregates bulk-writes bars in chunks of at most 50.
// Empty input is a no-op.
func (w *Writer) BatchUpsertStockAggregates(ctx context.Context, rows []model.StockAggregate) error {
	for _, part := range chunk(rows, StockAggregateChunkSize) {
		if err := w.bulkInsertStockAggregates(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

// InsertIfAbsentStockAggregate inserts the bar only when no row exists for
// (symbol, timestamp).
func (w *Writer) InsertIfAbsentStockAggregate(ctx context.Context, row model.StockAggregate) error {
	present, err := w.exists(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE symbol=$1 AND timestamp=$2", w.tables.StockAggregates),
		row.Symbol, row.Timestamp)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	return w.UpsertStockAggregate(ctx, row)
}

// BatchInsertIfAbsentStockAggregates bulk-writes bars in chunks of at most
// 50, relying on the store's key dedup for the absent-only guarantee.
// Empty input issues no SQL.
func (w *Writer) BatchInsertIfAbsentStockAggregates(ctx context.Context, rows []model.StockAggregate) error {
	for _, part := range chunk(rows, StockAggregateChunkSize) {
		if err := w.bulkInsertStockAggregates(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) bulkInsertStockAggregates(ctx context.Context, rows []model.StockAggregate) error {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", w.tables.StockAggregates, stockAggregateColumns)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := bulkValues(&b, r.Symbol, r.Timestamp, r.Open, r.High, r.Low, r.Close, r.Volume, r.VWAP, r.TransactionCount); err != nil {
			return err
		}
	}
	if _, err := w.gw.BulkExec(ctx, b.String()); err != nil {
		return err
	}
	w.stockRows.Add(int64(len(rows)))
	w.batches.Add(1)
	return nil
}
