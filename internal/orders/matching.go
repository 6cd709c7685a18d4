package orders

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"spotmarket/internal/rpc"
	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

// ExecuteOrders runs one matching pass for the instrument under its
// cross-process lock. Any order committed before the pass begins is
// visible to it; orders admitted mid-pass are picked up by the pass
// their own admission triggers.
func (s *Service) ExecuteOrders(ctx context.Context, ticker string) error {
	run := func(ctx context.Context) error { return s.matchPass(ctx, ticker) }
	if s.locker == nil {
		return run(ctx)
	}
	return s.locker.WithLock(ctx, rpc.OrdersLockKey(ticker), run)
}

// matchPass is one pass in one transaction: load the open book, run the
// market phase then the limit phase, commit everything or nothing.
func (s *Service) matchPass(ctx context.Context, ticker string) error {
	var settled []types.Transaction
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		open, err := tx.OpenOrders(ctx, ticker)
		if err != nil {
			return err
		}

		var market []*types.Order
		var buys, sells []*types.Order
		for _, o := range open {
			switch {
			case o.Type == types.OrderMarket:
				market = append(market, o)
			case o.Direction == types.Buy:
				buys = append(buys, o)
			default:
				sells = append(sells, o)
			}
		}
		// Stable keeps admission order within a price level.
		sort.SliceStable(buys, func(i, j int) bool { return *buys[i].Price > *buys[j].Price })
		sort.SliceStable(sells, func(i, j int) bool { return *sells[i].Price < *sells[j].Price })

		settled = settled[:0]
		record := func(tr types.Transaction) { settled = append(settled, tr) }

		// Market phase. Each market order walks the far side of the
		// book and is finalized after its walk: market orders never
		// rest, so anything short of EXECUTED is terminal.
		for _, m := range market {
			side := sells
			if m.Direction == types.Sell {
				side = buys
			}
			if err := s.walk(ctx, tx, m, side, record); err != nil {
				return err
			}
			if m.Status != types.StatusExecuted {
				m.Status = types.StatusPartiallyExecuted
				if err := tx.UpdateOrder(ctx, m); err != nil {
					return err
				}
			}
		}

		// Limit phase. Highest bid first; once a bid fails to clear,
		// no lower bid can either.
		for _, b := range buys {
			if err := s.walk(ctx, tx, b, sells, record); err != nil {
				return err
			}
			if b.Status != types.StatusExecuted {
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.stream != nil {
		for _, tr := range settled {
			s.stream.PublishTrade(ctx, tr)
		}
	}
	if len(settled) > 0 {
		s.logger.Info("matching pass settled trades", "ticker", ticker, "trades", len(settled))
	}
	return nil
}

// walk matches o against the ordered counterparty side, settling each
// trade as it is produced and stopping at the first candidate that
// yields none.
func (s *Service) walk(ctx context.Context, tx store.Tx, o *types.Order, side []*types.Order, record func(types.Transaction)) error {
	for _, c := range side {
		trade, err := pair(ctx, tx, o, c)
		if err != nil {
			return err
		}
		if trade == nil {
			return nil
		}
		tr, err := settle(ctx, tx, trade)
		if err != nil {
			return err
		}
		record(*tr)
	}
	return nil
}

// trade is one planned fill, not yet settled.
type trade struct {
	buy, sell *types.Order
	price     int64
	quantity  int64
}

// pair decides whether two orders cross and at what price and quantity.
//
// Price selection: a market order takes the limit side's price; two
// limits cross when sell.price <= buy.price at the price of whichever
// order was created earlier; two markets never cross. Quantity is the
// smaller remainder, further clamped by the buyer's live settlement
// cash. That clamp is what makes an unchecked market BUY safe.
func pair(ctx context.Context, tx store.Tx, o1, o2 *types.Order) (*trade, error) {
	if o1.Direction == o2.Direction {
		return nil, nil
	}
	if o1.Status != types.StatusNew || o2.Status != types.StatusNew {
		return nil, nil
	}

	buy, sell := o1, o2
	if o1.Direction == types.Sell {
		buy, sell = o2, o1
	}

	var price int64
	switch {
	case buy.Type == types.OrderMarket && sell.Type == types.OrderMarket:
		return nil, nil
	case buy.Type == types.OrderMarket:
		price = *sell.Price
	case sell.Type == types.OrderMarket:
		price = *buy.Price
	default:
		if *sell.Price > *buy.Price {
			return nil, nil
		}
		if buy.CreatedAt.Before(sell.CreatedAt) {
			price = *buy.Price
		} else {
			price = *sell.Price
		}
	}

	buyerCash, err := tx.Balance(ctx, buy.UserID, types.SettlementTicker)
	if err != nil {
		return nil, err
	}

	q := min(buy.Remaining(), sell.Remaining(), buyerCash/price)
	if q <= 0 {
		return nil, nil
	}
	return &trade{buy: buy, sell: sell, price: price, quantity: q}, nil
}

// settle writes one trade: both order rows advance, up to four balance
// rows move, one transaction row is appended. A self-trade moves no
// balances but still records the trade and advances filled; the
// holdings check there guards the no-manufactured-balance invariant.
func settle(ctx context.Context, tx store.Tx, t *trade) (*types.Transaction, error) {
	q, price := t.quantity, t.price
	total := q * price
	ticker := t.buy.Ticker

	for _, o := range []*types.Order{t.buy, t.sell} {
		o.Filled += q
		if o.Filled == o.Quantity {
			o.Status = types.StatusExecuted
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return nil, err
		}
	}

	if t.buy.UserID == t.sell.UserID {
		user := t.buy.UserID
		held, err := tx.Balance(ctx, user, ticker)
		if err != nil {
			return nil, err
		}
		cash, err := tx.Balance(ctx, user, types.SettlementTicker)
		if err != nil {
			return nil, err
		}
		if held < q || cash < total {
			return nil, types.Criticalf(
				"self-trade by %s not covered: holds %d/%d %s, %d/%d %s",
				user, held, q, ticker, cash, total, types.SettlementTicker)
		}
	} else {
		if err := tx.AddToBalance(ctx, t.sell.UserID, ticker, -q); err != nil {
			return nil, err
		}
		if err := tx.AddToBalance(ctx, t.buy.UserID, ticker, q); err != nil {
			return nil, err
		}
		if err := tx.AddToBalance(ctx, t.buy.UserID, types.SettlementTicker, -total); err != nil {
			return nil, err
		}
		if err := tx.AddToBalance(ctx, t.sell.UserID, types.SettlementTicker, total); err != nil {
			return nil, err
		}
	}

	tr := &types.Transaction{
		ID:            uuid.New(),
		Ticker:        ticker,
		BuyerOrderID:  t.buy.ID,
		SellerOrderID: t.sell.ID,
		Quantity:      q,
		Price:         price,
	}
	if err := tx.InsertTransaction(ctx, tr); err != nil {
		return nil, err
	}
	return tr, nil
}
