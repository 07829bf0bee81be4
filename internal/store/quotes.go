package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/options-data/internal/model"
)

const optionQuoteColumns = "ticker, underlying_ticker, timestamp, bid_price, bid_size, ask_price, ask_size, bid_exchange, ask_exchange, sequence_number"

// UpsertOptionQuote writes one NBBO quote.
func (w *Writer) UpsertOptionQuote(ctx context.Context, row model.OptionQuote) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		w.tables.OptionQuotes, optionQuoteColumns,
	)
	_, err := w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.Timestamp, row.BidPrice, row.BidSize,
		row.AskPrice, row.AskSize, row.BidExchange, row.AskExchange, row.SequenceNumber)
	return err
}

// BatchUpsertOptionQuotes bulk-writes quotes in chunks of at most 100.
// Empty input is a no-op.
func (w *Writer) BatchUpsertOptionQuotes(ctx context.Context, rows []model.OptionQuote) error {
	for _, part := range chunk(rows, OptionQuoteChunkSize) {
		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", w.tables.OptionQuotes, optionQuoteColumns)
		for i, r := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := bulkValues(&b, r.Ticker, r.UnderlyingTicker, r.Timestamp, r.BidPrice, r.BidSize, r.AskPrice, r.AskSize, r.BidExchange, r.AskExchange, r.SequenceNumber); err != nil {
				return err
			}
		}
		if _, err := w.gw.BulkExec(ctx, b.String()); err != nil {
			return err
		}
		w.quoteRows.Add(int64(len(part)))
		w.batches.Add(1)
	}
	return nil
}
