// Package types holds the shared domain model of the exchange: users,
// instruments, orders, balances, transactions, and the request/response
// bodies that cross the RPC and HTTP boundaries.
//
// All monetary values are integers. Prices are denominated in the settlement
// currency (RUB); there are no fractional units anywhere in the system.
package types

import (
	"time"

	"github.com/google/uuid"
)

// SettlementTicker is the reserved ticker of the settlement currency.
// Every trade prices the non-settlement instrument in this currency, and
// it must exist as an instrument before any trade can settle.
const SettlementTicker = "RUB"

// TickerPattern is the validation pattern for instrument tickers.
const TickerPattern = `^[A-Z]{2,10}$`

// MaxOrderUnit caps order quantity and price. With both bounded the
// order cost quantity*price stays below 1e18 and cannot wrap int64,
// and a user's summed limit-buy reservations stay below their cash.
const MaxOrderUnit int64 = 1_000_000_000

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type OrderType string

const (
	OrderLimit  OrderType = "LIMIT"
	OrderMarket OrderType = "MARKET"
)

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

type OrderStatus string

const (
	StatusNew               OrderStatus = "NEW"
	StatusExecuted          OrderStatus = "EXECUTED"
	StatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	StatusCancelled         OrderStatus = "CANCELLED"
)

type OperationType string

const (
	OpDeposit  OperationType = "DEPOSIT"
	OpWithdraw OperationType = "WITHDRAW"
)

// User is a registered account holder.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Instrument is a tradeable asset, keyed by its ticker.
type Instrument struct {
	Ticker string `json:"ticker" validate:"required,ticker"`
	Name   string `json:"name" validate:"required"`
}

// Order is a limit or market order. Price is nil iff Type is MARKET.
type Order struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Ticker    string      `json:"ticker"`
	Type      OrderType   `json:"type"`
	Direction Direction   `json:"direction"`
	Status    OrderStatus `json:"status"`
	Quantity  int64       `json:"qty"`
	Price     *int64      `json:"price,omitempty"`
	Filled    int64       `json:"filled"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Remaining is the unfilled part of the order.
func (o *Order) Remaining() int64 { return o.Quantity - o.Filled }

// Fillable reports whether the matching engine may still fill this order.
func (o *Order) Fillable() bool { return o.Status == StatusNew && o.Filled < o.Quantity }

// PublicStatus is the status reported to callers. A partially filled limit
// order is stored as NEW (it stays matchable) but reported as
// PARTIALLY_EXECUTED; for market orders the stored status is already final.
func (o *Order) PublicStatus() OrderStatus {
	if o.Status == StatusNew && o.Filled > 0 && o.Filled < o.Quantity {
		return StatusPartiallyExecuted
	}
	return o.Status
}

// Transaction is an immutable record of one settled trade.
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	Ticker        string    `json:"ticker"`
	BuyerOrderID  uuid.UUID `json:"buyer_order_id"`
	SellerOrderID uuid.UUID `json:"seller_order_id"`
	Quantity      int64     `json:"qty"`
	Price         int64     `json:"price"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// BalanceEntry is one row of the append-only deposit/withdraw history.
type BalanceEntry struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"user_id"`
	Ticker     string        `json:"ticker"`
	Amount     int64         `json:"amount"`
	Operation  OperationType `json:"operation"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// OrderBody is the tagged union of limit and market order bodies. Type is
// the discriminator: the gateway infers it from the presence of the price
// field and rejects a client-supplied type that disagrees. Quantity and
// price are capped at MaxOrderUnit.
type OrderBody struct {
	Type      OrderType `json:"type"`
	Direction Direction `json:"direction" validate:"required,oneof=BUY SELL"`
	Ticker    string    `json:"ticker" validate:"required,ticker"`
	Quantity  int64     `json:"qty" validate:"required,gt=0,lte=1000000000"`
	Price     *int64    `json:"price,omitempty" validate:"omitempty,gt=0,lte=1000000000"`
}

// OrderbookLevel is one aggregated price level of the book.
type OrderbookLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Orderbook is the aggregated view of open limit orders for one instrument:
// bids sorted by price descending, asks ascending.
type Orderbook struct {
	BidLevels []OrderbookLevel `json:"bid_levels"`
	AskLevels []OrderbookLevel `json:"ask_levels"`
}

// RPC request/response payloads. Method identifiers are "<Service>.<method>";
// each service registers its handlers explicitly at startup.

type CreateOrderRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Body   OrderBody `json:"body"`
}

type CreateOrderResponse struct {
	OrderID uuid.UUID `json:"order_id"`
}

type CancelOrderRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	OrderID uuid.UUID `json:"order_id"`
}

type GetOrderRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	OrderID uuid.UUID `json:"order_id"`
}

type ListOrdersRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type GetOrderbookRequest struct {
	Ticker string `json:"ticker"`
	Limit  int    `json:"limit"`
}

type GetTransactionsRequest struct {
	Ticker string `json:"ticker"`
	Limit  int    `json:"limit"`
}

type CreateUserRequest struct {
	Name string   `json:"name" validate:"required,min=3"`
	Role UserRole `json:"role,omitempty"`
}

type GetUserRequest struct {
	ID uuid.UUID `json:"id"`
}

type DeleteUserRequest struct {
	ID uuid.UUID `json:"id"`
}

type GetBalanceRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// BalanceOpRequest is the shared body of deposit and withdraw.
type BalanceOpRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker" validate:"required,ticker"`
	Amount int64     `json:"amount" validate:"required,gt=0"`
}

type AddInstrumentRequest struct {
	Instrument Instrument `json:"instrument"`
}

type DeleteInstrumentRequest struct {
	Ticker string `json:"ticker"`
}
