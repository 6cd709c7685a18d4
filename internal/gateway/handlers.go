package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"spotmarket/internal/rpc"
	"spotmarket/pkg/types"
)

// tokenTTL is the lifetime of an api_key issued at registration.
const tokenTTL = 30 * 24 * time.Hour

type okBody struct {
	Success bool `json:"success"`
}

type registerRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

type registerResponse struct {
	types.User
	APIKey string `json:"api_key"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	var user types.User
	err := s.rpc.Call(c.Request().Context(), rpc.QueueUsers, "Users.create_user",
		types.CreateUserRequest{Name: req.Name}, &user)
	if err != nil {
		return err
	}
	apiKey, err := mintToken(s.cfg.JWTSecret, user.ID, tokenTTL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, registerResponse{User: user, APIKey: apiKey})
}

func (s *Server) handleListInstruments(c echo.Context) error {
	var out []types.Instrument
	err := s.rpc.Call(c.Request().Context(), rpc.QueueInstruments, "Instruments.get_instruments",
		struct{}{}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrderbook(c echo.Context) error {
	ticker, err := s.tickerParam(c)
	if err != nil {
		return err
	}
	var out types.Orderbook
	err = s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.get_orderbook",
		types.GetOrderbookRequest{Ticker: ticker, Limit: queryLimit(c)}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleTransactions(c echo.Context) error {
	ticker, err := s.tickerParam(c)
	if err != nil {
		return err
	}
	var out []types.Transaction
	err = s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.get_transactions",
		types.GetTransactionsRequest{Ticker: ticker, Limit: queryLimit(c)}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleBalance(c echo.Context) error {
	var out map[string]int64
	err := s.rpc.Call(c.Request().Context(), rpc.QueueUsers, "Users.get_balance",
		types.GetBalanceRequest{UserID: authedUser(c)}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type createOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

func (s *Server) handleCreateOrder(c echo.Context) error {
	var body types.OrderBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	// The discriminator is the presence of a price; a client-supplied
	// type must agree with it rather than be silently overridden.
	inferred := types.OrderMarket
	if body.Price != nil {
		inferred = types.OrderLimit
	}
	if body.Type != "" && body.Type != inferred {
		return echo.NewHTTPError(http.StatusBadRequest, "order type does not match price")
	}
	body.Type = inferred
	if err := s.validate.Struct(body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var out types.CreateOrderResponse
	err := s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.create_order",
		types.CreateOrderRequest{UserID: authedUser(c), Body: body}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, createOrderResponse{Success: true, OrderID: out.OrderID})
}

func (s *Server) handleListOrders(c echo.Context) error {
	var out []types.Order
	err := s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.list_orders",
		types.ListOrdersRequest{UserID: authedUser(c)}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetOrder(c echo.Context) error {
	orderID, err := uuidParam(c, "order_id")
	if err != nil {
		return err
	}
	var out types.Order
	err = s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.get_order",
		types.GetOrderRequest{UserID: authedUser(c), OrderID: orderID}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCancelOrder(c echo.Context) error {
	orderID, err := uuidParam(c, "order_id")
	if err != nil {
		return err
	}
	err = s.rpc.Call(c.Request().Context(), rpc.QueueOrders, "Orders.cancel_order",
		types.CancelOrderRequest{UserID: authedUser(c), OrderID: orderID}, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okBody{Success: true})
}

func (s *Server) handleAddInstrument(c echo.Context) error {
	var in types.Instrument
	if err := s.bind(c, &in); err != nil {
		return err
	}
	err := s.rpc.Call(c.Request().Context(), rpc.QueueInstruments, "Instruments.add_instrument",
		types.AddInstrumentRequest{Instrument: in}, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okBody{Success: true})
}

func (s *Server) handleDeleteInstrument(c echo.Context) error {
	ticker, err := s.tickerParam(c)
	if err != nil {
		return err
	}
	err = s.rpc.Call(c.Request().Context(), rpc.QueueInstruments, "Instruments.delete_instrument",
		types.DeleteInstrumentRequest{Ticker: ticker}, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okBody{Success: true})
}

func (s *Server) handleDeleteUser(c echo.Context) error {
	userID, err := uuidParam(c, "user_id")
	if err != nil {
		return err
	}
	var out types.User
	err = s.rpc.Call(c.Request().Context(), rpc.QueueUsers, "Users.delete_user",
		types.DeleteUserRequest{ID: userID}, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleBalanceOp(method string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req types.BalanceOpRequest
		if err := s.bind(c, &req); err != nil {
			return err
		}
		err := s.rpc.Call(c.Request().Context(), rpc.QueueUsers, method, req, nil)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, okBody{Success: true})
	}
}

func (s *Server) bind(c echo.Context, out any) error {
	if err := c.Bind(out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	if err := s.validate.Struct(out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (s *Server) tickerParam(c echo.Context) (string, error) {
	ticker := c.Param("ticker")
	if !tickerRe.MatchString(ticker) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid ticker")
	}
	return ticker, nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func queryLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	return limit
}
