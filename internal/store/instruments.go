package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"spotmarket/pkg/types"
)

func (t *sqlTx) InsertInstrument(ctx context.Context, in types.Instrument) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO instruments (ticker, name) VALUES ($1, $2)`,
		in.Ticker, in.Name,
	)
	if isPgErr(err, pgUniqueViolation) {
		return &types.InstrumentAlreadyExistsError{Ticker: in.Ticker}
	}
	if err != nil {
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

func (t *sqlTx) scanInstrument(row pgx.Row, ticker string) (*types.Instrument, error) {
	var in types.Instrument
	err := row.Scan(&in.Ticker, &in.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.InstrumentNotFoundError{Ticker: ticker}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch instrument: %w", err)
	}
	return &in, nil
}

func (t *sqlTx) InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT ticker, name FROM instruments WHERE ticker = $1`, ticker)
	return t.scanInstrument(row, ticker)
}

func (t *sqlTx) InstrumentByTickerForUpdate(ctx context.Context, ticker string) (*types.Instrument, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT ticker, name FROM instruments WHERE ticker = $1 FOR UPDATE`, ticker)
	return t.scanInstrument(row, ticker)
}

// DeleteInstrument removes the instrument; balances and orders cascade,
// transactions are retained.
func (t *sqlTx) DeleteInstrument(ctx context.Context, ticker string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM instruments WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.InstrumentNotFoundError{Ticker: ticker}
	}
	return nil
}

func (t *sqlTx) Instruments(ctx context.Context) ([]types.Instrument, error) {
	rows, err := t.tx.Query(ctx, `SELECT ticker, name FROM instruments ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer rows.Close()

	var out []types.Instrument
	for rows.Next() {
		var in types.Instrument
		if err := rows.Scan(&in.Ticker, &in.Name); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
