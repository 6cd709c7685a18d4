package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"

	"spotmarket/pkg/types"
)

// Handler processes one job payload. Implementations decode the payload
// themselves; use NewHandler for the typed adapter.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// NewHandler adapts a typed service method into a Handler.
func NewHandler[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, types.Criticalf("decode %T: %v", req, err)
		}
		return fn(ctx, req)
	}
}

// Worker consumes one service queue with a pool of goroutines.
type Worker struct {
	rdb      *redis.Client
	queue    string
	workers  int
	ttl      time.Duration
	logger   *slog.Logger
	handlers map[string]Handler
}

// NewWorker builds a worker for the named queue. Handlers are registered
// explicitly before Run.
func NewWorker(rdb *redis.Client, queue string, workers int, ttl time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		rdb:      rdb,
		queue:    queue,
		workers:  workers,
		ttl:      ttl,
		logger:   logger.With("component", "rpc", "queue", queue),
		handlers: make(map[string]Handler),
	}
}

// Register binds a method identifier to its handler. Registering the
// same method twice is a programming error.
func (w *Worker) Register(method string, h Handler) {
	if _, dup := w.handlers[method]; dup {
		panic("rpc: duplicate handler for " + method)
	}
	w.handlers[method] = h
}

// Run blocks until ctx is cancelled, consuming jobs with the configured
// pool size.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "pool", w.workers, "methods", len(w.handlers))
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		res, err := w.rdb.BRPop(ctx, 5*time.Second, queueKey(w.queue)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		w.process(ctx, []byte(res[1]))
	}
}

func (w *Worker) process(ctx context.Context, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		w.logger.Error("malformed job dropped", "error", err)
		return
	}

	started := time.Now()
	result := Result{JobID: job.ID}

	h, ok := w.handlers[job.Method]
	if !ok {
		result.Error = types.EncodeError(types.Criticalf("unknown method %s", job.Method))
	} else {
		out, err := h(ctx, job.Payload)
		if err != nil {
			result.Error = types.EncodeError(err)
		} else if out != nil {
			payload, merr := json.Marshal(out)
			if merr != nil {
				result.Error = types.EncodeError(types.Criticalf("encode %s result: %v", job.Method, merr))
			} else {
				result.Payload = payload
			}
		}
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`rpc_jobs_total{queue=%q,method=%q}`, w.queue, job.Method)).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`rpc_job_duration_seconds{queue=%q,method=%q}`, w.queue, job.Method)).
		Update(time.Since(started).Seconds())
	if result.Error != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`rpc_job_errors_total{queue=%q,method=%q,code=%q}`,
			w.queue, job.Method, result.Error.Code)).Inc()
		w.logger.Warn("job failed",
			"method", job.Method, "job_id", job.ID,
			"code", result.Error.Code, "error", result.Error.Message)
	} else {
		w.logger.Debug("job done",
			"method", job.Method, "job_id", job.ID,
			"duration", time.Since(started))
	}

	w.publish(ctx, job.ID, result)
}

// publish stores the result under its TTL and wakes the waiting caller.
// Delivery survives caller timeouts: the stored copy is what a late
// reader finds.
func (w *Worker) publish(ctx context.Context, jobID string, result Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("encode result failed", "job_id", jobID, "error", err)
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := w.rdb.Set(ctx, resultKey(jobID), raw, w.ttl).Err(); err != nil {
		w.logger.Error("store result failed", "job_id", jobID, "error", err)
	}
	if err := w.rdb.Publish(ctx, resultChan(jobID), raw).Err(); err != nil {
		w.logger.Error("publish result failed", "job_id", jobID, "error", err)
	}
}
