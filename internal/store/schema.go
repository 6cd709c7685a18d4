package store

// schema is the full DDL, applied in order by Migrate. Statements are
// idempotent so migrate can run on every service start.
//
// Cascade semantics: deleting a user removes their balances, history and
// orders; deleting an instrument removes its balances and orders.
// Transactions are the audit trail and survive both: their order
// references go NULL instead of cascading, and the ticker is a plain
// column rather than a foreign key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		role       TEXT NOT NULL DEFAULT 'USER',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS instruments (
		ticker TEXT PRIMARY KEY,
		name   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS balances (
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ticker  TEXT NOT NULL REFERENCES instruments(ticker) ON DELETE CASCADE,
		amount  BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
		PRIMARY KEY (user_id, ticker)
	)`,

	`CREATE TABLE IF NOT EXISTS balance_history (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ticker      TEXT NOT NULL,
		amount      BIGINT NOT NULL CHECK (amount > 0),
		operation   TEXT NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ticker     TEXT NOT NULL REFERENCES instruments(ticker) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		direction  TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'NEW',
		quantity   BIGINT NOT NULL CHECK (quantity > 0),
		price      BIGINT CHECK (price > 0),
		filled     BIGINT NOT NULL DEFAULT 0 CHECK (filled >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_orders_open
		ON orders (ticker, created_at) WHERE status = 'NEW'`,

	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id              UUID PRIMARY KEY,
		ticker          TEXT NOT NULL,
		buyer_order_id  UUID REFERENCES orders(id) ON DELETE SET NULL,
		seller_order_id UUID REFERENCES orders(id) ON DELETE SET NULL,
		quantity        BIGINT NOT NULL CHECK (quantity > 0),
		price           BIGINT NOT NULL CHECK (price > 0),
		executed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_transactions_ticker
		ON transactions (ticker, executed_at DESC)`,
}
