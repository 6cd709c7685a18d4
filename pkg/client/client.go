// Package client is the Go SDK for the exchange HTTP API.
//
// It covers the whole surface:
//   - Register:          POST   /public/register
//   - Instruments:       GET    /public/instrument
//   - Orderbook:         GET    /public/orderbook/{ticker}
//   - Transactions:      GET    /public/transactions/{ticker}
//   - Balance:           GET    /balance
//   - CreateLimitOrder / CreateMarketOrder: POST /order
//   - Orders / Order / CancelOrder: GET /order, GET/DELETE /order/{id}
//   - AddInstrument, DeleteInstrument, DeleteUser, Deposit, Withdraw
//     (admin token required)
//
// Typed domain errors are reconstructed from error responses, so callers
// can errors.As against types.InsufficientFundsError and friends.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"spotmarket/pkg/types"
)

// Client talks to the exchange gateway. Set a user token or the admin
// token depending on which endpoints you call.
type Client struct {
	http *resty.Client
}

// New builds a client against the gateway base URL, e.g.
// "http://localhost:8080".
func New(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetTimeout(15*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient}
}

// SetToken installs the token sent on authenticated calls: a user's
// api_key or the admin shared secret.
func (c *Client) SetToken(token string) *Client {
	c.http.SetHeader("Authorization", "TOKEN "+token)
	return c
}

type errorBody struct {
	Code   types.ErrorCode `json:"code"`
	Detail string          `json:"detail"`
}

// apiError turns a non-2xx response into a typed domain error where the
// body carries a known code.
func apiError(resp *resty.Response) error {
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Code != "" {
		wire := types.WireError{Code: body.Code, Message: body.Detail}
		return wire.Err()
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: %w", op, apiError(resp))
	}
	return nil
}

// RegisterResponse is the created user plus their api_key token.
type RegisterResponse struct {
	types.User
	APIKey string `json:"api_key"`
}

// Register creates a user and returns the credentials to trade with.
func (c *Client) Register(ctx context.Context, name string) (*RegisterResponse, error) {
	var out RegisterResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetResult(&out).
		Post("/public/register")
	if err := check(resp, err, "register"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Instruments(ctx context.Context) ([]types.Instrument, error) {
	var out []types.Instrument
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/public/instrument")
	if err := check(resp, err, "list instruments"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Orderbook(ctx context.Context, ticker string, limit int) (*types.Orderbook, error) {
	var out types.Orderbook
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetResult(&out).
		Get("/public/orderbook/" + ticker)
	if err := check(resp, err, "get orderbook"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Transactions(ctx context.Context, ticker string, limit int) ([]types.Transaction, error) {
	var out []types.Transaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetResult(&out).
		Get("/public/transactions/" + ticker)
	if err := check(resp, err, "get transactions"); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the caller's holdings as ticker to amount.
func (c *Client) Balance(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/balance")
	if err := check(resp, err, "get balance"); err != nil {
		return nil, err
	}
	return out, nil
}

type createOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

// CreateLimitOrder posts a limit order and returns its id. The call
// returns after the matching pass it triggers completes.
func (c *Client) CreateLimitOrder(ctx context.Context, direction types.Direction, ticker string, qty, price int64) (uuid.UUID, error) {
	return c.createOrder(ctx, types.OrderBody{
		Type: types.OrderLimit, Direction: direction,
		Ticker: ticker, Quantity: qty, Price: &price,
	})
}

// CreateMarketOrder posts a market order and returns its id.
func (c *Client) CreateMarketOrder(ctx context.Context, direction types.Direction, ticker string, qty int64) (uuid.UUID, error) {
	return c.createOrder(ctx, types.OrderBody{
		Type: types.OrderMarket, Direction: direction,
		Ticker: ticker, Quantity: qty,
	})
}

func (c *Client) createOrder(ctx context.Context, body types.OrderBody) (uuid.UUID, error) {
	var out createOrderResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/order")
	if err := check(resp, err, "create order"); err != nil {
		return uuid.Nil, err
	}
	return out.OrderID, nil
}

func (c *Client) Orders(ctx context.Context) ([]types.Order, error) {
	var out []types.Order
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/order")
	if err := check(resp, err, "list orders"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Order(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	var out types.Order
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/order/" + id.String())
	if err := check(resp, err, "get order"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelOrder(ctx context.Context, id uuid.UUID) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/order/" + id.String())
	return check(resp, err, "cancel order")
}

// AddInstrument registers an instrument. Admin token required.
func (c *Client) AddInstrument(ctx context.Context, in types.Instrument) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(in).Post("/admin/instrument")
	return check(resp, err, "add instrument")
}

// DeleteInstrument removes an instrument. Admin token required.
func (c *Client) DeleteInstrument(ctx context.Context, ticker string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/admin/instrument/" + ticker)
	return check(resp, err, "delete instrument")
}

// DeleteUser removes a user. Admin token required.
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/admin/user/" + id.String())
	return check(resp, err, "delete user")
}

// Deposit credits a user's balance. Admin token required.
func (c *Client) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	return c.balanceOp(ctx, "/admin/balance/deposit", userID, ticker, amount)
}

// Withdraw debits a user's balance. Admin token required.
func (c *Client) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	return c.balanceOp(ctx, "/admin/balance/withdraw", userID, ticker, amount)
}

func (c *Client) balanceOp(ctx context.Context, path string, userID uuid.UUID, ticker string, amount int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(types.BalanceOpRequest{UserID: userID, Ticker: ticker, Amount: amount}).
		Post(path)
	return check(resp, err, "balance operation")
}
