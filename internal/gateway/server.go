// Package gateway is the public HTTP surface of the exchange. It
// translates REST calls into queue jobs, maps domain errors onto HTTP
// statuses, and streams settled trades over websockets.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"spotmarket/internal/config"
	"spotmarket/pkg/types"
)

var tickerRe = regexp.MustCompile(types.TickerPattern)

// Caller dispatches one RPC job and waits for its result.
type Caller interface {
	Call(ctx context.Context, queue, method string, req, out any) error
}

// Server is the gateway HTTP server.
type Server struct {
	cfg      config.GatewayConfig
	rpc      Caller
	hub      *Hub
	echo     *echo.Echo
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer wires routes, middleware and validation. The hub may be nil
// when the trade stream is not wired (tests).
func NewServer(cfg config.GatewayConfig, caller Caller, hub *Hub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		rpc:      caller,
		hub:      hub,
		echo:     echo.New(),
		validate: validator.New(),
		logger:   logger.With("component", "gateway"),
	}
	s.validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerRe.MatchString(fl.Field().String())
	})

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(50))))
	e.Use(requestMetrics)

	e.GET("/metrics", func(c echo.Context) error {
		metrics.WritePrometheus(c.Response(), true)
		return nil
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")

	public := api.Group("/public")
	public.POST("/register", s.handleRegister)
	public.GET("/instrument", s.handleListInstruments)
	public.GET("/orderbook/:ticker", s.handleOrderbook)
	public.GET("/transactions/:ticker", s.handleTransactions)
	if hub != nil {
		public.GET("/ws/transactions/:ticker", s.handleTradeStream)
	}

	user := api.Group("", s.userAuth)
	user.GET("/balance", s.handleBalance)
	user.POST("/order", s.handleCreateOrder)
	user.GET("/order", s.handleListOrders)
	user.GET("/order/:order_id", s.handleGetOrder)
	user.DELETE("/order/:order_id", s.handleCancelOrder)

	admin := api.Group("/admin", s.adminAuth)
	admin.POST("/instrument", s.handleAddInstrument)
	admin.DELETE("/instrument/:ticker", s.handleDeleteInstrument)
	admin.DELETE("/user/:user_id", s.handleDeleteUser)
	admin.POST("/balance/deposit", s.handleBalanceOp("Users.deposit"))
	admin.POST("/balance/withdraw", s.handleBalanceOp("Users.withdraw"))

	return s
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if s.hub != nil {
		go s.hub.Run(ctx)
	}
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("gateway listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		metrics.GetOrCreateCounter(fmt.Sprintf(`http_requests_total{method=%q,path=%q,status="%d"}`,
			c.Request().Method, path, c.Response().Status)).Inc()
		metrics.GetOrCreateSummary(fmt.Sprintf(`http_request_duration_seconds{method=%q,path=%q}`,
			c.Request().Method, path)).Update(time.Since(start).Seconds())
		return err
	}
}
