// Package orders is the matching-and-settlement engine. Admission,
// matching, cancellation and the book/history read paths all live here;
// the database is the only book there is.
package orders

import (
	"context"
	"log/slog"
	"sort"

	"spotmarket/internal/rpc"
	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

// Locker serializes matching passes per instrument across the fleet.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// TradeStream receives settled trades after the matching transaction
// commits. May be nil when no stream is wired.
type TradeStream interface {
	PublishTrade(ctx context.Context, tr types.Transaction)
}

// Service implements the orders queue methods.
type Service struct {
	db     store.DB
	locker Locker
	stream TradeStream
	logger *slog.Logger
}

// NewService wires the engine to its store, lock and trade stream.
func NewService(db store.DB, locker Locker, stream TradeStream, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		locker: locker,
		stream: stream,
		logger: logger.With("service", "orders"),
	}
}

// Register binds the engine's methods onto its worker.
func (s *Service) Register(w *rpc.Worker) {
	w.Register("Orders.create_order", rpc.NewHandler(s.CreateOrder))
	w.Register("Orders.cancel_order", rpc.NewHandler(s.CancelOrder))
	w.Register("Orders.get_order", rpc.NewHandler(s.GetOrder))
	w.Register("Orders.list_orders", rpc.NewHandler(s.ListOrders))
	w.Register("Orders.get_orderbook", rpc.NewHandler(s.GetOrderbook))
	w.Register("Orders.get_transactions", rpc.NewHandler(s.GetTransactions))
}

const defaultQueryLimit = 10

// GetOrder returns one of the caller's orders with the reported status
// projection applied. Orders belonging to other users read as not found.
func (s *Service) GetOrder(ctx context.Context, req types.GetOrderRequest) (*types.Order, error) {
	var out *types.Order
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		o, err := tx.OrderByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.UserID != req.UserID {
			return &types.OrderNotFoundError{ID: req.OrderID}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Status = out.PublicStatus()
	return out, nil
}

// ListOrders returns all of the caller's orders, oldest first.
func (s *Service) ListOrders(ctx context.Context, req types.ListOrdersRequest) ([]types.Order, error) {
	var out []types.Order
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		orders, err := tx.OrdersByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		out = orders
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Status = out[i].PublicStatus()
	}
	if out == nil {
		out = []types.Order{}
	}
	return out, nil
}

// GetOrderbook aggregates open limit orders into price levels: bids
// descending, asks ascending, each truncated to the requested depth.
func (s *Service) GetOrderbook(ctx context.Context, req types.GetOrderbookRequest) (*types.Orderbook, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var open []*types.Order
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.InstrumentByTicker(ctx, req.Ticker); err != nil {
			return err
		}
		orders, err := tx.OpenOrders(ctx, req.Ticker)
		if err != nil {
			return err
		}
		open = orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	bids := make(map[int64]int64)
	asks := make(map[int64]int64)
	for _, o := range open {
		if o.Type != types.OrderLimit {
			continue
		}
		if o.Direction == types.Buy {
			bids[*o.Price] += o.Remaining()
		} else {
			asks[*o.Price] += o.Remaining()
		}
	}

	book := &types.Orderbook{
		BidLevels: levels(bids, true, limit),
		AskLevels: levels(asks, false, limit),
	}
	return book, nil
}

func levels(byPrice map[int64]int64, descending bool, limit int) []types.OrderbookLevel {
	out := make([]types.OrderbookLevel, 0, len(byPrice))
	for price, qty := range byPrice {
		out = append(out, types.OrderbookLevel{Price: price, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetTransactions returns the most recent trades for the instrument,
// newest first.
func (s *Service) GetTransactions(ctx context.Context, req types.GetTransactionsRequest) ([]types.Transaction, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var out []types.Transaction
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.InstrumentByTicker(ctx, req.Ticker); err != nil {
			return err
		}
		trs, err := tx.Transactions(ctx, req.Ticker, limit)
		if err != nil {
			return err
		}
		out = trs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.Transaction{}
	}
	return out, nil
}
