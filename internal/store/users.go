package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"spotmarket/pkg/types"
)

func (t *sqlTx) InsertUser(ctx context.Context, u *types.User) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (id, name, role) VALUES ($1, $2, $3)
		 RETURNING created_at`,
		u.ID, u.Name, u.Role,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (t *sqlTx) scanUser(row pgx.Row, id uuid.UUID) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.UserNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return &u, nil
}

func (t *sqlTx) UserByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, role, created_at FROM users WHERE id = $1`, id)
	return t.scanUser(row, id)
}

func (t *sqlTx) UserByIDForUpdate(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, role, created_at FROM users WHERE id = $1 FOR UPDATE`, id)
	return t.scanUser(row, id)
}

// DeleteUser removes the user row; balances, history and orders go with it
// via ON DELETE CASCADE. Transaction rows are preserved.
func (t *sqlTx) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.UserNotFoundError{ID: id}
	}
	return nil
}

func (t *sqlTx) Balance(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	var amount int64
	err := t.tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE user_id = $1 AND ticker = $2`,
		userID, ticker,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return amount, nil
}

func (t *sqlTx) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT ticker, amount FROM balances WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var ticker string
		var amount int64
		if err := rows.Scan(&ticker, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[ticker] = amount
	}
	return out, rows.Err()
}

// AddToBalance applies a signed delta, creating the row at zero when
// absent. A debit that would take the balance negative trips the amount
// check constraint and is reported as a CriticalError: admission checks
// should have made that impossible.
func (t *sqlTx) AddToBalance(ctx context.Context, userID uuid.UUID, ticker string, delta int64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (user_id, ticker, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, ticker)
		 DO UPDATE SET amount = balances.amount + $3`,
		userID, ticker, delta,
	)
	if isPgErr(err, pgCheckViolation) {
		return types.Criticalf("balance of %s/%s would go negative", userID, ticker)
	}
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// EnsureBalance creates a zero balance row if none exists.
func (t *sqlTx) EnsureBalance(ctx context.Context, userID uuid.UUID, ticker string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (user_id, ticker, amount) VALUES ($1, $2, 0)
		 ON CONFLICT (user_id, ticker) DO NOTHING`,
		userID, ticker,
	)
	if err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertBalanceEntry(ctx context.Context, e *types.BalanceEntry) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO balance_history (id, user_id, ticker, amount, operation)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING executed_at`,
		e.ID, e.UserID, e.Ticker, e.Amount, e.Operation,
	).Scan(&e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert balance history: %w", err)
	}
	return nil
}
