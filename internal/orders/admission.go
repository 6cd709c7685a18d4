package orders

import (
	"context"

	"github.com/google/uuid"

	"spotmarket/internal/store"
	"spotmarket/pkg/types"
)

// CreateOrder admits an order and, on success, runs a matching pass for
// its instrument before replying, so a synchronous caller sees immediate
// fills in subsequent reads.
//
// Admission is one short transaction that never touches the matching
// lock. Sell orders must be covered by holdings net of the caller's
// open sell reservations; limit buys must be covered by settlement cash
// net of open limit-buy reservations. Market buys are not pre-checked:
// the engine clamps them against the buyer's live cash at match time.
func (s *Service) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (*types.CreateOrderResponse, error) {
	body := req.Body
	if err := checkBody(body); err != nil {
		return nil, err
	}

	order := &types.Order{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Ticker:    body.Ticker,
		Type:      body.Type,
		Direction: body.Direction,
		Status:    types.StatusNew,
		Quantity:  body.Quantity,
		Price:     body.Price,
	}

	err := s.db.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.InstrumentByTicker(ctx, body.Ticker); err != nil {
			return err
		}
		if _, err := tx.UserByID(ctx, req.UserID); err != nil {
			return err
		}

		switch {
		case body.Direction == types.Sell:
			held, err := tx.Balance(ctx, req.UserID, body.Ticker)
			if err != nil {
				return err
			}
			reserved, err := tx.ReservedSell(ctx, req.UserID, body.Ticker)
			if err != nil {
				return err
			}
			if available := held - reserved; available < body.Quantity {
				return &types.InsufficientFundsError{
					UserID:    req.UserID,
					Requested: body.Quantity,
					Available: available,
				}
			}
		case body.Type == types.OrderLimit:
			cash, err := tx.Balance(ctx, req.UserID, types.SettlementTicker)
			if err != nil {
				return err
			}
			reserved, err := tx.ReservedBuy(ctx, req.UserID)
			if err != nil {
				return err
			}
			// Cannot wrap: checkBody caps both factors.
			cost := body.Quantity * *body.Price
			if available := cash - reserved; available < cost {
				return &types.InsufficientFundsError{
					UserID:    req.UserID,
					Requested: cost,
					Available: available,
				}
			}
		}

		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order admitted",
		"order_id", order.ID, "user_id", order.UserID,
		"ticker", order.Ticker, "type", order.Type,
		"direction", order.Direction, "qty", order.Quantity)

	if err := s.ExecuteOrders(ctx, order.Ticker); err != nil {
		// The order is committed; a failed pass must not hide it.
		s.logger.Error("matching pass failed after admission",
			"ticker", order.Ticker, "order_id", order.ID, "error", err)
	}

	return &types.CreateOrderResponse{OrderID: order.ID}, nil
}

func checkBody(body types.OrderBody) error {
	switch body.Type {
	case types.OrderLimit:
		if body.Price == nil {
			return types.Criticalf("limit order without price")
		}
	case types.OrderMarket:
		if body.Price != nil {
			return types.Criticalf("market order with price")
		}
	default:
		return types.Criticalf("unknown order type %q", body.Type)
	}
	if body.Quantity <= 0 || body.Quantity > types.MaxOrderUnit {
		return types.Criticalf("quantity %d out of range", body.Quantity)
	}
	if body.Price != nil && (*body.Price <= 0 || *body.Price > types.MaxOrderUnit) {
		return types.Criticalf("price %d out of range", *body.Price)
	}
	return nil
}

// CancelOrder cancels one of the caller's resting limit orders. Market
// orders and terminal orders cannot be cancelled; a persisted
// PARTIALLY_EXECUTED market order counts as terminal. The freed
// remainder leaves the derived reservations the moment the status
// flips, so the next admission sees it.
func (s *Service) CancelOrder(ctx context.Context, req types.CancelOrderRequest) (*types.Order, error) {
	var out *types.Order
	err := s.db.InTx(ctx, func(tx store.Tx) error {
		o, err := tx.OrderByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.UserID != req.UserID {
			return &types.OrderNotFoundError{ID: req.OrderID}
		}
		if o.Type == types.OrderMarket {
			return &types.CannotCancelError{Reason: "market orders cannot be cancelled"}
		}
		if o.Status != types.StatusNew {
			return &types.CannotCancelError{Reason: "order is " + string(o.Status)}
		}
		o.Status = types.StatusCancelled
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order cancelled", "order_id", out.ID, "user_id", out.UserID, "filled", out.Filled)
	return out, nil
}
