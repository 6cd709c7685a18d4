package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tradeEvent is one settled trade as sent to websocket clients.
type tradeEvent struct {
	Type   string          `json:"type"`
	Ticker string          `json:"ticker"`
	Data   json.RawMessage `json:"data"`
}

// Hub fans settled trades out to websocket clients. Trades arrive over
// Redis pub/sub from the matching workers; each client may filter to a
// single ticker.
type Hub struct {
	rdb        *redis.Client
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	logger     *slog.Logger
}

type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	ticker string
	send   chan []byte
}

func NewHub(rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		rdb:        rdb,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run consumes the trade channels and serves clients until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	sub := h.rdb.PSubscribe(ctx, "trades:*")
	defer sub.Close()
	trades := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("stream client connected", "ticker", client.ticker, "count", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.Info("stream client disconnected", "count", len(h.clients))

		case msg, ok := <-trades:
			if !ok {
				return
			}
			ticker := strings.TrimPrefix(msg.Channel, "trades:")
			raw, err := json.Marshal(tradeEvent{
				Type:   "trade",
				Ticker: ticker,
				Data:   json.RawMessage(msg.Payload),
			})
			if err != nil {
				continue
			}
			for client := range h.clients {
				if client.ticker != "" && client.ticker != ticker {
					continue
				}
				select {
				case client.send <- raw:
				default:
					// Client cannot keep up, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// handleTradeStream upgrades the connection and attaches it to the hub,
// filtered to the instrument named in the path.
func (s *Server) handleTradeStream(c echo.Context) error {
	ticker, err := s.tickerParam(c)
	if err != nil {
		return err
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}
	client := &wsClient{
		hub:    s.hub,
		conn:   conn,
		ticker: ticker,
		send:   make(chan []byte, 256),
	}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
	return nil
}

// writePump pushes trades and pings to the connection.
func (c *wsClient) writePump() {
	pings := time.NewTicker(pingPeriod)
	defer func() {
		pings.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pings.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection. The stream is read-only; client
// messages are ignored.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			return
		}
	}
}
