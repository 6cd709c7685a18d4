package orders

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"spotmarket/pkg/types"
)

// TradeChannel is the pub/sub channel carrying settled trades for one
// instrument. The gateway's websocket hub subscribes to these.
func TradeChannel(ticker string) string {
	return "trades:" + ticker
}

// RedisTradeStream publishes settled trades over Redis pub/sub.
// Publishing is fire-and-forget: a trade is already committed when it
// reaches the stream, so a failed publish is logged and dropped.
type RedisTradeStream struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisTradeStream(rdb *redis.Client, logger *slog.Logger) *RedisTradeStream {
	return &RedisTradeStream{rdb: rdb, logger: logger.With("component", "trade-stream")}
}

func (s *RedisTradeStream) PublishTrade(ctx context.Context, tr types.Transaction) {
	raw, err := json.Marshal(tr)
	if err != nil {
		s.logger.Error("encode trade failed", "transaction_id", tr.ID, "error", err)
		return
	}
	if err := s.rdb.Publish(context.WithoutCancel(ctx), TradeChannel(tr.Ticker), raw).Err(); err != nil {
		s.logger.Error("publish trade failed", "transaction_id", tr.ID, "error", err)
	}
}
