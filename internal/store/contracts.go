package store

import (
	"context"
	"fmt"

	"github.com/rickgao/options-data/internal/model"
)

// UpsertOptionContract writes a contract definition keyed by ticker:
// present rows get an UPDATE of the non-key fields, absent rows an INSERT.
func (w *Writer) UpsertOptionContract(ctx context.Context, row model.OptionContract) error {
	present, err := w.exists(ctx,
		fmt.Sprintf("SELECT ticker FROM %s WHERE ticker=$1", w.tables.OptionContracts),
		row.Ticker)
	if err != nil {
		return err
	}

	if present {
		sql := fmt.Sprintf(
			"UPDATE %s SET underlying_ticker=$1, contract_type=$2, exercise_style=$3, expiration_date=$4, shares_per_contract=$5, strike_price=$6 WHERE ticker=$7",
			w.tables.OptionContracts,
		)
		_, err = w.gw.Exec(ctx, sql,
			row.UnderlyingTicker, row.ContractType, row.ExerciseStyle,
			row.ExpirationDate, row.SharesPerContract, row.StrikePrice, row.Ticker)
		return err
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, underlying_ticker, contract_type, exercise_style, expiration_date, shares_per_contract, strike_price) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		w.tables.OptionContracts,
	)
	_, err = w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.ContractType, row.ExerciseStyle,
		row.ExpirationDate, row.SharesPerContract, row.StrikePrice)
	return err
}

// BatchUpsertOptionContracts upserts each contract in turn. Contract sets
// per snapshot are small enough that the per-row protocol is the batch.
func (w *Writer) BatchUpsertOptionContracts(ctx context.Context, rows []model.OptionContract) error {
	for _, row := range rows {
		if err := w.UpsertOptionContract(ctx, row); err != nil {
			return err
		}
	}
	w.contractRows.Add(int64(len(rows)))
	return nil
}

// UpsertOptionContractIndex records that a snapshot was taken for
// (underlying, as_of). Re-inserting an existing pair is a no-op, which
// makes snapshot runs idempotent.
func (w *Writer) UpsertOptionContractIndex(ctx context.Context, row model.OptionContractIndex) error {
	present, err := w.exists(ctx,
		fmt.Sprintf("SELECT underlying_ticker FROM %s WHERE underlying_ticker=$1 AND as_of=$2", w.tables.OptionContractsIndex),
		row.UnderlyingTicker, row.AsOf)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	sql := fmt.Sprintf("INSERT INTO %s (underlying_ticker, as_of) VALUES ($1, $2)", w.tables.OptionContractsIndex)
	_, err = w.gw.Exec(ctx, sql, row.UnderlyingTicker, row.AsOf)
	return err
}
