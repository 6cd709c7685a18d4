// Package memstore is an in-memory store.DB used by service tests. It
// mirrors the Postgres semantics the services rely on: transactional
// rollback on error, balance non-negativity, cascade deletes, and
// created_at ordering of open orders.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

// DB is the in-memory database. A coarse mutex serializes transactions,
// which also stands in for the per-instrument matching lock in tests.
type DB struct {
	mu    sync.Mutex
	state state
	clock int64
}

type state struct {
	users        map[uuid.UUID]types.User
	instruments  map[string]types.Instrument
	balances     map[uuid.UUID]map[string]int64
	history      []types.BalanceEntry
	orders       map[uuid.UUID]types.Order
	transactions []types.Transaction
}

// New returns an empty database.
func New() *DB {
	return &DB{state: state{
		users:       make(map[uuid.UUID]types.User),
		instruments: make(map[string]types.Instrument),
		balances:    make(map[uuid.UUID]map[string]int64),
		orders:      make(map[uuid.UUID]types.Order),
	}}
}

// InTx runs fn against a copy of the state and commits the copy on
// success. On error the copy is discarded, so partial writes never land.
func (d *DB) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	work := d.state.clone()
	tx := &memTx{db: d, s: &work}
	if err := fn(tx); err != nil {
		return err
	}
	d.state = work
	return nil
}

// now hands out strictly increasing timestamps so created_at ordering is
// deterministic even when rows are inserted within the same nanosecond.
func (d *DB) now() time.Time {
	d.clock++
	return time.Unix(0, d.clock*int64(time.Millisecond)).UTC()
}

func (s state) clone() state {
	out := state{
		users:        make(map[uuid.UUID]types.User, len(s.users)),
		instruments:  make(map[string]types.Instrument, len(s.instruments)),
		balances:     make(map[uuid.UUID]map[string]int64, len(s.balances)),
		history:      append([]types.BalanceEntry(nil), s.history...),
		orders:       make(map[uuid.UUID]types.Order, len(s.orders)),
		transactions: append([]types.Transaction(nil), s.transactions...),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.instruments {
		out.instruments[k] = v
	}
	for k, v := range s.balances {
		m := make(map[string]int64, len(v))
		for t, a := range v {
			m[t] = a
		}
		out.balances[k] = m
	}
	for k, v := range s.orders {
		if v.Price != nil {
			p := *v.Price
			v.Price = &p
		}
		out.orders[k] = v
	}
	return out
}

type memTx struct {
	db *DB
	s  *state
}

func (t *memTx) InsertUser(ctx context.Context, u *types.User) error {
	u.CreatedAt = t.db.now()
	t.s.users[u.ID] = *u
	return nil
}

func (t *memTx) UserByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, &types.UserNotFoundError{ID: id}
	}
	return &u, nil
}

func (t *memTx) UserByIDForUpdate(ctx context.Context, id uuid.UUID) (*types.User, error) {
	return t.UserByID(ctx, id)
}

func (t *memTx) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.s.users[id]; !ok {
		return &types.UserNotFoundError{ID: id}
	}
	delete(t.s.users, id)
	delete(t.s.balances, id)
	for oid, o := range t.s.orders {
		if o.UserID == id {
			delete(t.s.orders, oid)
		}
	}
	kept := t.s.history[:0]
	for _, e := range t.s.history {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	t.s.history = kept
	return nil
}

func (t *memTx) InsertInstrument(ctx context.Context, in types.Instrument) error {
	if _, ok := t.s.instruments[in.Ticker]; ok {
		return &types.InstrumentAlreadyExistsError{Ticker: in.Ticker}
	}
	t.s.instruments[in.Ticker] = in
	return nil
}

func (t *memTx) InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error) {
	in, ok := t.s.instruments[ticker]
	if !ok {
		return nil, &types.InstrumentNotFoundError{Ticker: ticker}
	}
	return &in, nil
}

func (t *memTx) InstrumentByTickerForUpdate(ctx context.Context, ticker string) (*types.Instrument, error) {
	return t.InstrumentByTicker(ctx, ticker)
}

func (t *memTx) DeleteInstrument(ctx context.Context, ticker string) error {
	if _, ok := t.s.instruments[ticker]; !ok {
		return &types.InstrumentNotFoundError{Ticker: ticker}
	}
	delete(t.s.instruments, ticker)
	for _, m := range t.s.balances {
		delete(m, ticker)
	}
	for oid, o := range t.s.orders {
		if o.Ticker == ticker {
			delete(t.s.orders, oid)
		}
	}
	return nil
}

func (t *memTx) Instruments(ctx context.Context) ([]types.Instrument, error) {
	out := make([]types.Instrument, 0, len(t.s.instruments))
	for _, in := range t.s.instruments {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (t *memTx) Balance(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	return t.s.balances[userID][ticker], nil
}

func (t *memTx) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	out := make(map[string]int64)
	for ticker, amount := range t.s.balances[userID] {
		out[ticker] = amount
	}
	return out, nil
}

func (t *memTx) AddToBalance(ctx context.Context, userID uuid.UUID, ticker string, delta int64) error {
	m := t.s.balances[userID]
	if m == nil {
		m = make(map[string]int64)
		t.s.balances[userID] = m
	}
	if m[ticker]+delta < 0 {
		return types.Criticalf("balance of %s/%s would go negative", userID, ticker)
	}
	m[ticker] += delta
	return nil
}

func (t *memTx) EnsureBalance(ctx context.Context, userID uuid.UUID, ticker string) error {
	m := t.s.balances[userID]
	if m == nil {
		m = make(map[string]int64)
		t.s.balances[userID] = m
	}
	if _, ok := m[ticker]; !ok {
		m[ticker] = 0
	}
	return nil
}

func (t *memTx) InsertBalanceEntry(ctx context.Context, e *types.BalanceEntry) error {
	e.ExecutedAt = t.db.now()
	t.s.history = append(t.s.history, *e)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *types.Order) error {
	now := t.db.now()
	o.CreatedAt = now
	o.UpdatedAt = now
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *types.Order) error {
	stored, ok := t.s.orders[o.ID]
	if !ok {
		return &types.OrderNotFoundError{ID: o.ID}
	}
	stored.Status = o.Status
	stored.Filled = o.Filled
	stored.UpdatedAt = t.db.now()
	t.s.orders[o.ID] = stored
	o.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *memTx) OrderByID(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, &types.OrderNotFoundError{ID: id}
	}
	return &o, nil
}

func (t *memTx) OrdersByUser(ctx context.Context, userID uuid.UUID) ([]types.Order, error) {
	var out []types.Order
	for _, o := range t.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) OpenOrders(ctx context.Context, ticker string) ([]*types.Order, error) {
	var out []*types.Order
	for _, o := range t.s.orders {
		if o.Ticker == ticker && o.Status == types.StatusNew {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) ReservedSell(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	var reserved int64
	for _, o := range t.s.orders {
		if o.UserID == userID && o.Ticker == ticker &&
			o.Direction == types.Sell && o.Status == types.StatusNew {
			reserved += o.Remaining()
		}
	}
	return reserved, nil
}

func (t *memTx) ReservedBuy(ctx context.Context, userID uuid.UUID) (int64, error) {
	var reserved int64
	for _, o := range t.s.orders {
		if o.UserID == userID && o.Direction == types.Buy &&
			o.Type == types.OrderLimit && o.Status == types.StatusNew {
			reserved += o.Remaining() * *o.Price
		}
	}
	return reserved, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr *types.Transaction) error {
	tr.ExecutedAt = t.db.now()
	t.s.transactions = append(t.s.transactions, *tr)
	return nil
}

func (t *memTx) Transactions(ctx context.Context, ticker string, limit int) ([]types.Transaction, error) {
	var out []types.Transaction
	for i := len(t.s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if t.s.transactions[i].Ticker == ticker {
			out = append(out, t.s.transactions[i])
		}
	}
	return out, nil
}
