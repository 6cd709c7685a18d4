package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"spotmarket/pkg/types"
)

const orderColumns = `id, user_id, ticker, type, direction, status, quantity, price, filled, created_at, updated_at`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var o types.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Ticker, &o.Type, &o.Direction, &o.Status,
		&o.Quantity, &o.Price, &o.Filled, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *types.Order) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, ticker, type, direction, status, quantity, price, filled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Ticker, o.Type, o.Direction, o.Status, o.Quantity, o.Price, o.Filled,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateOrder(ctx context.Context, o *types.Order) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, filled = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		o.ID, o.Status, o.Filled,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &types.OrderNotFoundError{ID: o.ID}
	}
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (t *sqlTx) OrderByID(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.OrderNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	return o, nil
}

func (t *sqlTx) OrdersByUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// OpenOrders returns all NEW orders for the instrument in admission order.
// The matching engine relies on created_at ordering for its price
// tie-break and for market-order queue order.
func (t *sqlTx) OpenOrders(ctx context.Context, ticker string) ([]*types.Order, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE ticker = $1 AND status = 'NEW'
		 ORDER BY created_at`, ticker)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	defer rows.Close()

	var out []*types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReservedSell is the quantity of the instrument earmarked by the user's
// open SELL orders. Derived, never stored.
func (t *sqlTx) ReservedSell(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	var reserved int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity - filled), 0) FROM orders
		 WHERE user_id = $1 AND ticker = $2 AND direction = 'SELL' AND status = 'NEW'`,
		userID, ticker,
	).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("sum sell reservation: %w", err)
	}
	return reserved, nil
}

// ReservedBuy is the settlement cash earmarked by the user's open LIMIT
// BUY orders across all instruments.
func (t *sqlTx) ReservedBuy(ctx context.Context, userID uuid.UUID) (int64, error) {
	var reserved int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM((quantity - filled) * price), 0) FROM orders
		 WHERE user_id = $1 AND direction = 'BUY' AND type = 'LIMIT' AND status = 'NEW'`,
		userID,
	).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("sum buy reservation: %w", err)
	}
	return reserved, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr *types.Transaction) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (id, ticker, buyer_order_id, seller_order_id, quantity, price)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING executed_at`,
		tr.ID, tr.Ticker, tr.BuyerOrderID, tr.SellerOrderID, tr.Quantity, tr.Price,
	).Scan(&tr.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Transactions(ctx context.Context, ticker string, limit int) ([]types.Transaction, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, ticker, buyer_order_id, seller_order_id, quantity, price, executed_at
		 FROM transactions WHERE ticker = $1
		 ORDER BY executed_at DESC LIMIT $2`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		var tr types.Transaction
		if err := rows.Scan(&tr.ID, &tr.Ticker, &tr.BuyerOrderID, &tr.SellerOrderID,
			&tr.Quantity, &tr.Price, &tr.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
