// Package store is the Postgres persistence layer of the exchange.
//
// The database is the single source of truth: no in-memory book is kept
// anywhere. All access goes through a transaction scope (InTx) so that a
// matching pass, an admission check, or a deposit is a single atomic unit.
// Row-level serialization uses SELECT ... FOR UPDATE on the principal row
// (user, instrument); the matching engine itself is serialized per
// instrument by a distributed lock, not by row locks on orders.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spotmarket/pkg/types"
)

// Postgres error codes checked when translating constraint violations.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Tx is the set of queries available inside a transaction scope. The
// Postgres implementation lives in this package; tests use the in-memory
// implementation from store/memstore.
type Tx interface {
	// Users
	InsertUser(ctx context.Context, u *types.User) error
	UserByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	UserByIDForUpdate(ctx context.Context, id uuid.UUID) (*types.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Instruments
	InsertInstrument(ctx context.Context, in types.Instrument) error
	InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error)
	InstrumentByTickerForUpdate(ctx context.Context, ticker string) (*types.Instrument, error)
	DeleteInstrument(ctx context.Context, ticker string) error
	Instruments(ctx context.Context) ([]types.Instrument, error)

	// Balances
	Balance(ctx context.Context, userID uuid.UUID, ticker string) (int64, error)
	Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error)
	AddToBalance(ctx context.Context, userID uuid.UUID, ticker string, delta int64) error
	EnsureBalance(ctx context.Context, userID uuid.UUID, ticker string) error
	InsertBalanceEntry(ctx context.Context, e *types.BalanceEntry) error

	// Orders
	InsertOrder(ctx context.Context, o *types.Order) error
	UpdateOrder(ctx context.Context, o *types.Order) error
	OrderByID(ctx context.Context, id uuid.UUID) (*types.Order, error)
	OrdersByUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error)
	OpenOrders(ctx context.Context, ticker string) ([]*types.Order, error)
	ReservedSell(ctx context.Context, userID uuid.UUID, ticker string) (int64, error)
	ReservedBuy(ctx context.Context, userID uuid.UUID) (int64, error)

	// Transactions
	InsertTransaction(ctx context.Context, t *types.Transaction) error
	Transactions(ctx context.Context, ticker string, limit int) ([]types.Transaction, error)
}

// DB opens transaction scopes. Services depend on this interface rather
// than on the concrete pool so the engine can be tested without Postgres.
type DB interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store is the pgx-backed DB implementation.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.With("component", "store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InTx runs fn inside a database transaction, committing on nil and
// rolling back on error. Domain errors pass through untouched so the RPC
// layer can serialize them.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate applies the schema (idempotent).
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.logger.Info("schema applied", "statements", len(schema))
	return nil
}

// sqlTx implements Tx over a pgx transaction.
type sqlTx struct {
	tx pgx.Tx
}

func isPgErr(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
