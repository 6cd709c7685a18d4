package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"spotmarket/pkg/types"
)

// Client enqueues jobs and waits for their results. Used by the gateway.
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
	ttl     time.Duration
}

// NewClient builds a client with the given call timeout and result TTL.
func NewClient(rdb *redis.Client, timeout, ttl time.Duration) *Client {
	return &Client{rdb: rdb, timeout: timeout, ttl: ttl}
}

// Call enqueues method on the given queue and decodes the result into
// out (which may be nil for methods with no response body). Domain
// errors come back typed; a missed deadline is a RequestTimeoutError,
// and the job keeps running on the worker side regardless.
func (c *Client) Call(ctx context.Context, queue, method string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	job := Job{ID: uuid.NewString(), Method: method, Payload: payload}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// Subscribe before enqueueing so the worker's publish cannot slip
	// between the push and the wait.
	sub := c.rdb.Subscribe(ctx, resultChan(job.ID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe result channel: %w", err)
	}

	if err := c.rdb.LPush(ctx, queueKey(queue), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`rpc_calls_total{queue=%q,method=%q}`, queue, method)).Inc()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case msg := <-sub.Channel():
		return decodeResult([]byte(msg.Payload), out)
	case <-ctx.Done():
		// The publish may have raced the subscription setup on a
		// reconnect; check the stored result before giving up.
		stored, err := c.rdb.Get(context.WithoutCancel(ctx), resultKey(job.ID)).Bytes()
		if err == nil {
			return decodeResult(stored, out)
		}
		metrics.GetOrCreateCounter(fmt.Sprintf(`rpc_timeouts_total{queue=%q,method=%q}`, queue, method)).Inc()
		return &types.RequestTimeoutError{}
	}
}

func decodeResult(raw []byte, out any) error {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if res.Error != nil {
		return res.Error.Err()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Payload, out); err != nil {
		return fmt.Errorf("decode result payload: %w", err)
	}
	return nil
}
