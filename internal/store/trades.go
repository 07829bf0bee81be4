package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/options-data/internal/model"
)

const optionTradeColumns = "ticker, underlying_ticker, timestamp, price, size, conditions, exchange, tape, sequence_number"

// UpsertOptionTrade writes one tick-level trade. The store's dedup on
// (timestamp, ticker, sequence_number) absorbs replays.
func (w *Writer) UpsertOptionTrade(ctx context.Context, row model.OptionTrade) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		w.tables.OptionTrades, optionTradeColumns,
	)
	_, err := w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.Timestamp, row.Price, row.Size,
		row.Conditions, row.Exchange, row.Tape, row.SequenceNumber)
	return err
}

// BatchUpsertOptionTrades bulk-writes trades in chunks of at most 100.
// Empty input is a no-op.
func (w *Writer) BatchUpsertOptionTrades(ctx context.Context, rows []model.OptionTrade) error {
	for _, part := range chunk(rows, OptionTradeChunkSize) {
		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", w.tables.OptionTrades, optionTradeColumns)
		for i, r := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := bulkValues(&b, r.Ticker, r.UnderlyingTicker, r.Timestamp, r.Price, r.Size, r.Conditions, r.Exchange, r.Tape, r.SequenceNumber); err != nil {
				return err
			}
		}
		if _, err := w.gw.BulkExec(ctx, b.String()); err != nil {
			return err
		}
		w.tradeRows.Add(int64(len(part)))
		w.batches.Add(1)
	}
	return nil
}

// UpsertOptionTradeIndex advances the per-ticker high-water mark, updating
// last_sync when the ticker already has a row.
func (w *Writer) UpsertOptionTradeIndex(ctx context.Context, row model.OptionTradeIndex) error {
	present, err := w.exists(ctx,
		fmt.Sprintf("SELECT ticker FROM %s WHERE ticker=$1", w.tables.OptionTradesIndex),
		row.Ticker)
	if err != nil {
		return err
	}

	if present {
		sql := fmt.Sprintf("UPDATE %s SET last_sync=$1 WHERE ticker=$2", w.tables.OptionTradesIndex)
		_, err = w.gw.Exec(ctx, sql, row.LastSync, row.Ticker)
		return err
	}

	sql := fmt.Sprintf("INSERT INTO %s (ticker, last_sync) VALUES ($1, $2)", w.tables.OptionTradesIndex)
	_, err = w.gw.Exec(ctx, sql, row.Ticker, row.LastSync)
	return err
}

// OptionTradeLastSync reads the high-water mark for a ticker, ok=false
// when none is recorded.
func (w *Writer) OptionTradeLastSync(ctx context.Context, ticker string) (string, bool, error) {
	res, err := w.gw.Exec(ctx,
		fmt.Sprintf("SELECT last_sync FROM %s WHERE ticker=$1", w.tables.OptionTradesIndex),
		ticker)
	if err != nil {
		return "", false, err
	}
	if len(res.Dataset) == 0 || len(res.Dataset[0]) == 0 {
		return "", false, nil
	}
	s, ok := res.Dataset[0][0].(string)
	return s, ok && s != "", nil
}
