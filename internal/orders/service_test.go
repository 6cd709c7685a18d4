package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotmarket/internal/store"
	"spotmarket/internal/store/memstore"
	"spotmarket/pkg/types"
)

type fixture struct {
	t   *testing.T
	db  *memstore.DB
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	db := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{t: t, db: db, svc: NewService(db, nil, nil, logger)}
	f.addInstrument(types.SettlementTicker, "Russian Rouble")
	f.addInstrument("AAPL", "Apple")
	return f
}

func (f *fixture) addInstrument(ticker, name string) {
	f.t.Helper()
	err := f.db.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertInstrument(context.Background(), types.Instrument{Ticker: ticker, Name: name})
	})
	require.NoError(f.t, err)
}

func (f *fixture) addUser(name string) uuid.UUID {
	f.t.Helper()
	u := &types.User{ID: uuid.New(), Name: name, Role: types.RoleUser}
	err := f.db.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertUser(context.Background(), u)
	})
	require.NoError(f.t, err)
	return u.ID
}

func (f *fixture) fund(user uuid.UUID, ticker string, amount int64) {
	f.t.Helper()
	err := f.db.InTx(context.Background(), func(tx store.Tx) error {
		return tx.AddToBalance(context.Background(), user, ticker, amount)
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(user uuid.UUID, ticker string) int64 {
	f.t.Helper()
	var out int64
	err := f.db.InTx(context.Background(), func(tx store.Tx) error {
		b, err := tx.Balance(context.Background(), user, ticker)
		out = b
		return err
	})
	require.NoError(f.t, err)
	return out
}

// order fetches the stored row, without the public status projection.
func (f *fixture) order(id uuid.UUID) *types.Order {
	f.t.Helper()
	var out *types.Order
	err := f.db.InTx(context.Background(), func(tx store.Tx) error {
		o, err := tx.OrderByID(context.Background(), id)
		out = o
		return err
	})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) limit(user uuid.UUID, dir types.Direction, ticker string, qty, price int64) uuid.UUID {
	f.t.Helper()
	resp, err := f.svc.CreateOrder(context.Background(), types.CreateOrderRequest{
		UserID: user,
		Body: types.OrderBody{
			Type: types.OrderLimit, Direction: dir,
			Ticker: ticker, Quantity: qty, Price: &price,
		},
	})
	require.NoError(f.t, err)
	return resp.OrderID
}

func (f *fixture) market(user uuid.UUID, dir types.Direction, ticker string, qty int64) uuid.UUID {
	f.t.Helper()
	resp, err := f.svc.CreateOrder(context.Background(), types.CreateOrderRequest{
		UserID: user,
		Body: types.OrderBody{
			Type: types.OrderMarket, Direction: dir,
			Ticker: ticker, Quantity: qty,
		},
	})
	require.NoError(f.t, err)
	return resp.OrderID
}

func (f *fixture) transactions(ticker string) []types.Transaction {
	f.t.Helper()
	out, err := f.svc.GetTransactions(context.Background(), types.GetTransactionsRequest{Ticker: ticker, Limit: 100})
	require.NoError(f.t, err)
	return out
}

func TestFullLimitCross(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 1000)
	f.fund(seller, "AAPL", 10)

	buyID := f.limit(buyer, types.Buy, "AAPL", 10, 100)
	sellID := f.limit(seller, types.Sell, "AAPL", 10, 100)

	buy, sell := f.order(buyID), f.order(sellID)
	assert.Equal(t, types.StatusExecuted, buy.Status)
	assert.Equal(t, types.StatusExecuted, sell.Status)
	assert.Equal(t, int64(10), buy.Filled)
	assert.Equal(t, int64(10), sell.Filled)

	assert.Equal(t, int64(10), f.balance(buyer, "AAPL"))
	assert.Equal(t, int64(0), f.balance(buyer, "RUB"))
	assert.Equal(t, int64(0), f.balance(seller, "AAPL"))
	assert.Equal(t, int64(1000), f.balance(seller, "RUB"))

	trs := f.transactions("AAPL")
	require.Len(t, trs, 1)
	assert.Equal(t, int64(10), trs[0].Quantity)
	assert.Equal(t, int64(100), trs[0].Price)
	assert.Equal(t, buyID, trs[0].BuyerOrderID)
	assert.Equal(t, sellID, trs[0].SellerOrderID)
}

func TestPartialLimitCross(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 1000)
	f.fund(seller, "AAPL", 10)

	buyID := f.limit(buyer, types.Buy, "AAPL", 10, 100)
	sellID := f.limit(seller, types.Sell, "AAPL", 5, 100)

	sell := f.order(sellID)
	assert.Equal(t, types.StatusExecuted, sell.Status)
	assert.Equal(t, int64(5), sell.Filled)

	// Stored NEW so it stays matchable, reported PARTIALLY_EXECUTED.
	buy := f.order(buyID)
	assert.Equal(t, types.StatusNew, buy.Status)
	assert.Equal(t, int64(5), buy.Filled)
	reported, err := f.svc.GetOrder(context.Background(), types.GetOrderRequest{UserID: buyer, OrderID: buyID})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyExecuted, reported.Status)

	assert.Equal(t, int64(5), f.balance(buyer, "AAPL"))
	assert.Equal(t, int64(500), f.balance(buyer, "RUB"))
	assert.Equal(t, int64(5), f.balance(seller, "AAPL"))
	assert.Equal(t, int64(500), f.balance(seller, "RUB"))
}

func TestNonCrossingLimits(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 900)
	f.fund(seller, "AAPL", 10)

	buyID := f.limit(buyer, types.Buy, "AAPL", 10, 90)
	sellID := f.limit(seller, types.Sell, "AAPL", 10, 100)

	for _, id := range []uuid.UUID{buyID, sellID} {
		o := f.order(id)
		assert.Equal(t, types.StatusNew, o.Status)
		assert.Zero(t, o.Filled)
	}
	assert.Equal(t, int64(900), f.balance(buyer, "RUB"))
	assert.Equal(t, int64(10), f.balance(seller, "AAPL"))
	assert.Empty(t, f.transactions("AAPL"))

	book, err := f.svc.GetOrderbook(context.Background(), types.GetOrderbookRequest{Ticker: "AAPL", Limit: 10})
	require.NoError(t, err)
	require.Len(t, book.BidLevels, 1)
	require.Len(t, book.AskLevels, 1)
	assert.Equal(t, types.OrderbookLevel{Price: 90, Qty: 10}, book.BidLevels[0])
	assert.Equal(t, types.OrderbookLevel{Price: 100, Qty: 10}, book.AskLevels[0])
}

func TestMarketBuyClampedByCash(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 100)
	f.fund(seller, "AAPL", 10)

	sellID := f.limit(seller, types.Sell, "AAPL", 10, 100)
	buyID := f.market(buyer, types.Buy, "AAPL", 10)

	trs := f.transactions("AAPL")
	require.Len(t, trs, 1)
	assert.Equal(t, int64(1), trs[0].Quantity)
	assert.Equal(t, int64(100), trs[0].Price)

	assert.Equal(t, int64(1), f.balance(buyer, "AAPL"))
	assert.Equal(t, int64(0), f.balance(buyer, "RUB"))
	assert.Equal(t, int64(9), f.balance(seller, "AAPL"))
	assert.Equal(t, int64(100), f.balance(seller, "RUB"))

	// The market order's partial fill is stored and terminal.
	buy := f.order(buyID)
	assert.Equal(t, types.StatusPartiallyExecuted, buy.Status)
	assert.Equal(t, int64(1), buy.Filled)

	sell := f.order(sellID)
	assert.Equal(t, types.StatusNew, sell.Status)
	assert.Equal(t, int64(1), sell.Filled)
}

func TestSelfTrade(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("solo")
	f.fund(user, "AAPL", 10)
	f.fund(user, "RUB", 1000)

	buyID := f.limit(user, types.Buy, "AAPL", 10, 100)
	sellID := f.limit(user, types.Sell, "AAPL", 5, 100)

	sell := f.order(sellID)
	assert.Equal(t, types.StatusExecuted, sell.Status)
	assert.Equal(t, int64(5), sell.Filled)

	buy := f.order(buyID)
	assert.Equal(t, types.StatusNew, buy.Status)
	assert.Equal(t, int64(5), buy.Filled)

	// Balances untouched, trade still on the record.
	assert.Equal(t, int64(10), f.balance(user, "AAPL"))
	assert.Equal(t, int64(1000), f.balance(user, "RUB"))
	trs := f.transactions("AAPL")
	require.Len(t, trs, 1)
	assert.Equal(t, int64(5), trs[0].Quantity)
	assert.Equal(t, int64(100), trs[0].Price)
}

func TestCancellationReleasesReservation(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("seller")
	f.fund(user, "AAPL", 10)

	firstID := f.limit(user, types.Sell, "AAPL", 10, 100)

	price := int64(100)
	_, err := f.svc.CreateOrder(context.Background(), types.CreateOrderRequest{
		UserID: user,
		Body: types.OrderBody{
			Type: types.OrderLimit, Direction: types.Sell,
			Ticker: "AAPL", Quantity: 1, Price: &price,
		},
	})
	var insufficient *types.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.Requested)
	assert.Equal(t, int64(0), insufficient.Available)

	_, err = f.svc.CancelOrder(context.Background(), types.CancelOrderRequest{UserID: user, OrderID: firstID})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, f.order(firstID).Status)

	f.limit(user, types.Sell, "AAPL", 1, 100)
}

func TestCrossingPriceUsesEarlierOrder(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 3000)
	f.fund(seller, "AAPL", 20)

	// Buy posted first at 110, sell crosses at 100: trade at 110.
	f.limit(buyer, types.Buy, "AAPL", 10, 110)
	f.limit(seller, types.Sell, "AAPL", 10, 100)
	trs := f.transactions("AAPL")
	require.Len(t, trs, 1)
	assert.Equal(t, int64(110), trs[0].Price)

	// Sell posted first at 100, buy crosses at 110: trade at 100.
	f.limit(seller, types.Sell, "AAPL", 10, 100)
	f.limit(buyer, types.Buy, "AAPL", 10, 110)
	trs = f.transactions("AAPL")
	require.Len(t, trs, 2)
	assert.Equal(t, int64(100), trs[0].Price)
}

func TestMarketOrderNoCounterparties(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	f.fund(buyer, "RUB", 1000)

	id := f.market(buyer, types.Buy, "AAPL", 5)

	// Nothing to match against: terminal with zero fills.
	o := f.order(id)
	assert.Equal(t, types.StatusPartiallyExecuted, o.Status)
	assert.Zero(t, o.Filled)
	assert.Equal(t, int64(1000), f.balance(buyer, "RUB"))
}

func TestMarketSell(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 500)
	f.fund(seller, "AAPL", 5)

	f.limit(buyer, types.Buy, "AAPL", 5, 100)
	sellID := f.market(seller, types.Sell, "AAPL", 5)

	sell := f.order(sellID)
	assert.Equal(t, types.StatusExecuted, sell.Status)
	assert.Equal(t, int64(5), sell.Filled)
	assert.Equal(t, int64(5), f.balance(buyer, "AAPL"))
	assert.Equal(t, int64(500), f.balance(seller, "RUB"))
}

func TestAdmission(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("trader")
	f.fund(user, "RUB", 1000)
	f.fund(user, "AAPL", 10)

	ctx := context.Background()
	price := int64(100)

	t.Run("unknown instrument", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: user,
			Body: types.OrderBody{
				Type: types.OrderLimit, Direction: types.Buy,
				Ticker: "MSFT", Quantity: 1, Price: &price,
			},
		})
		var notFound *types.InstrumentNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "MSFT", notFound.Ticker)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: uuid.New(),
			Body: types.OrderBody{
				Type: types.OrderLimit, Direction: types.Buy,
				Ticker: "AAPL", Quantity: 1, Price: &price,
			},
		})
		var notFound *types.UserNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("limit buy over cash", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: user,
			Body: types.OrderBody{
				Type: types.OrderLimit, Direction: types.Buy,
				Ticker: "AAPL", Quantity: 11, Price: &price,
			},
		})
		var insufficient *types.InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(1100), insufficient.Requested)
		assert.Equal(t, int64(1000), insufficient.Available)
	})

	t.Run("sell over holdings", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: user,
			Body: types.OrderBody{
				Type: types.OrderMarket, Direction: types.Sell,
				Ticker: "AAPL", Quantity: 11,
			},
		})
		var insufficient *types.InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
	})

	t.Run("market buy skips cash check", func(t *testing.T) {
		broke := f.addUser("broke")
		id := f.market(broke, types.Buy, "AAPL", 5)
		assert.Equal(t, types.StatusPartiallyExecuted, f.order(id).Status)
	})

	t.Run("oversized limit buy", func(t *testing.T) {
		// qty*price wraps int64 to 0 here; the per-factor cap must
		// reject it before the cash check is even reached.
		broke := f.addUser("whale")
		big := int64(1) << 32
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: broke,
			Body: types.OrderBody{
				Type: types.OrderLimit, Direction: types.Buy,
				Ticker: "AAPL", Quantity: big, Price: &big,
			},
		})
		var critical *types.CriticalError
		require.ErrorAs(t, err, &critical)

		out, err := f.svc.ListOrders(ctx, types.ListOrdersRequest{UserID: broke})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("oversized market sell", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, types.CreateOrderRequest{
			UserID: user,
			Body: types.OrderBody{
				Type: types.OrderMarket, Direction: types.Sell,
				Ticker: "AAPL", Quantity: types.MaxOrderUnit + 1,
			},
		})
		var critical *types.CriticalError
		require.ErrorAs(t, err, &critical)
	})
}

// Admin withdraw deliberately ignores sell reservations, so a resting
// sell can lose its backing before it crosses. The would-be-negative
// debit must then abort the whole pass: no fills, no balance moves, no
// transaction row.
func TestSettlementAbortRollsBackPass(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 1000)
	f.fund(seller, "AAPL", 10)

	sellID := f.limit(seller, types.Sell, "AAPL", 10, 100)
	f.fund(seller, "AAPL", -10)

	// Admission commits the buy and the failed pass is only logged, so
	// the caller still gets an order id back.
	buyID := f.limit(buyer, types.Buy, "AAPL", 10, 100)

	buy, sell := f.order(buyID), f.order(sellID)
	assert.Equal(t, types.StatusNew, buy.Status)
	assert.Zero(t, buy.Filled)
	assert.Equal(t, types.StatusNew, sell.Status)
	assert.Zero(t, sell.Filled)

	assert.Equal(t, int64(1000), f.balance(buyer, "RUB"))
	assert.Zero(t, f.balance(buyer, "AAPL"))
	assert.Zero(t, f.balance(seller, "RUB"))
	assert.Empty(t, f.transactions("AAPL"))
}

func TestOpenLimitBuysReserveCash(t *testing.T) {
	f := newFixture(t)
	f.addInstrument("MSFT", "Microsoft")
	user := f.addUser("buyer")
	f.fund(user, "RUB", 1000)

	f.limit(user, types.Buy, "AAPL", 6, 100)

	// Reservation spans instruments: 600 of the 1000 is spoken for.
	price := int64(100)
	_, err := f.svc.CreateOrder(context.Background(), types.CreateOrderRequest{
		UserID: user,
		Body: types.OrderBody{
			Type: types.OrderLimit, Direction: types.Buy,
			Ticker: "MSFT", Quantity: 5, Price: &price,
		},
	})
	var insufficient *types.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(400), insufficient.Available)

	f.limit(user, types.Buy, "MSFT", 4, 100)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 1000)
	f.fund(seller, "AAPL", 10)
	ctx := context.Background()

	t.Run("market order", func(t *testing.T) {
		id := f.market(buyer, types.Buy, "AAPL", 1)
		_, err := f.svc.CancelOrder(ctx, types.CancelOrderRequest{UserID: buyer, OrderID: id})
		var cannot *types.CannotCancelError
		require.ErrorAs(t, err, &cannot)
	})

	t.Run("not owner", func(t *testing.T) {
		id := f.limit(buyer, types.Buy, "AAPL", 1, 100)
		_, err := f.svc.CancelOrder(ctx, types.CancelOrderRequest{UserID: seller, OrderID: id})
		var notFound *types.OrderNotFoundError
		require.ErrorAs(t, err, &notFound)
		_, err = f.svc.CancelOrder(ctx, types.CancelOrderRequest{UserID: buyer, OrderID: id})
		require.NoError(t, err)
	})

	t.Run("executed order", func(t *testing.T) {
		buyID := f.limit(buyer, types.Buy, "AAPL", 2, 100)
		f.limit(seller, types.Sell, "AAPL", 2, 100)
		require.Equal(t, types.StatusExecuted, f.order(buyID).Status)
		_, err := f.svc.CancelOrder(ctx, types.CancelOrderRequest{UserID: buyer, OrderID: buyID})
		var cannot *types.CannotCancelError
		require.ErrorAs(t, err, &cannot)
	})
}

func TestGetOrderHidesOthers(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	other := f.addUser("other")
	f.fund(buyer, "RUB", 100)
	id := f.limit(buyer, types.Buy, "AAPL", 1, 100)

	_, err := f.svc.GetOrder(context.Background(), types.GetOrderRequest{UserID: other, OrderID: id})
	var notFound *types.OrderNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	user := f.addUser("trader")
	f.fund(user, "RUB", 1000)

	first := f.limit(user, types.Buy, "AAPL", 1, 100)
	second := f.limit(user, types.Buy, "AAPL", 2, 90)

	out, err := f.svc.ListOrders(context.Background(), types.ListOrdersRequest{UserID: user})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, first, out[0].ID)
	assert.Equal(t, second, out[1].ID)

	empty, err := f.svc.ListOrders(context.Background(), types.ListOrdersRequest{UserID: f.addUser("idle")})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestOrderbookAggregation(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 10000)
	f.fund(seller, "AAPL", 100)

	f.limit(buyer, types.Buy, "AAPL", 3, 90)
	f.limit(buyer, types.Buy, "AAPL", 2, 90)
	f.limit(buyer, types.Buy, "AAPL", 5, 95)
	f.limit(seller, types.Sell, "AAPL", 4, 100)
	f.limit(seller, types.Sell, "AAPL", 1, 105)

	book, err := f.svc.GetOrderbook(context.Background(), types.GetOrderbookRequest{Ticker: "AAPL", Limit: 10})
	require.NoError(t, err)

	require.Equal(t, []types.OrderbookLevel{{Price: 95, Qty: 5}, {Price: 90, Qty: 5}}, book.BidLevels)
	require.Equal(t, []types.OrderbookLevel{{Price: 100, Qty: 4}, {Price: 105, Qty: 1}}, book.AskLevels)

	// Bid prices strictly descending, ask prices strictly ascending.
	for i := 1; i < len(book.BidLevels); i++ {
		assert.Greater(t, book.BidLevels[i-1].Price, book.BidLevels[i].Price)
	}
	for i := 1; i < len(book.AskLevels); i++ {
		assert.Less(t, book.AskLevels[i-1].Price, book.AskLevels[i].Price)
	}

	truncated, err := f.svc.GetOrderbook(context.Background(), types.GetOrderbookRequest{Ticker: "AAPL", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, truncated.BidLevels, 1)
	assert.Len(t, truncated.AskLevels, 1)

	_, err = f.svc.GetOrderbook(context.Background(), types.GetOrderbookRequest{Ticker: "NOPE", Limit: 1})
	var notFound *types.InstrumentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 10000)
	f.fund(seller, "AAPL", 100)

	for _, qty := range []int64{1, 2, 3} {
		f.limit(buyer, types.Buy, "AAPL", qty, 100)
		f.limit(seller, types.Sell, "AAPL", qty, 100)
	}

	trs := f.transactions("AAPL")
	require.Len(t, trs, 3)
	assert.Equal(t, int64(3), trs[0].Quantity)
	assert.Equal(t, int64(1), trs[2].Quantity)

	limited, err := f.svc.GetTransactions(context.Background(), types.GetTransactionsRequest{Ticker: "AAPL", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// Value conservation: a cross moves instrument and cash between the two
// parties and creates or destroys nothing.
func TestSettlementConservation(t *testing.T) {
	f := newFixture(t)
	buyer := f.addUser("buyer")
	seller := f.addUser("seller")
	f.fund(buyer, "RUB", 5000)
	f.fund(seller, "AAPL", 50)
	f.fund(seller, "RUB", 700)

	f.limit(buyer, types.Buy, "AAPL", 30, 100)
	f.limit(seller, types.Sell, "AAPL", 20, 100)
	f.market(seller, types.Sell, "AAPL", 10)

	totalRUB := f.balance(buyer, "RUB") + f.balance(seller, "RUB")
	totalAAPL := f.balance(buyer, "AAPL") + f.balance(seller, "AAPL")
	assert.Equal(t, int64(5700), totalRUB)
	assert.Equal(t, int64(50), totalAAPL)
}
