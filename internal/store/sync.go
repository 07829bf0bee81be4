package store

import (
	"context"
	"fmt"

	"github.com/rickgao/options-data/internal/model"
)

// UpsertSyncState writes the equity-bar catch-up state for a ticker.
// A nil LastAggregateTimestamp serializes as NULL.
func (w *Writer) UpsertSyncState(ctx context.Context, row model.SyncState) error {
	present, err := w.exists(ctx,
		fmt.Sprintf("SELECT ticker FROM %s WHERE ticker=$1", w.tables.SyncState),
		row.Ticker)
	if err != nil {
		return err
	}

	if present {
		sql := fmt.Sprintf(
			"UPDATE %s SET last_aggregate_timestamp=$1, last_sync=$2, is_streaming=$3 WHERE ticker=$4",
			w.tables.SyncState,
		)
		_, err = w.gw.Exec(ctx, sql, row.LastAggregateTimestamp, row.LastSync, row.IsStreaming, row.Ticker)
		return err
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, last_aggregate_timestamp, last_sync, is_streaming) VALUES ($1, $2, $3, $4)",
		w.tables.SyncState,
	)
	_, err = w.gw.Exec(ctx, sql, row.Ticker, row.LastAggregateTimestamp, row.LastSync, row.IsStreaming)
	return err
}
