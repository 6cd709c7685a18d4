// Package rpc is the Redis work-queue runtime that connects the gateway
// to the backend services. Each service owns one queue ("queue:orders",
// "queue:users", "queue:instruments") and registers handlers by method
// identifier ("Orders.create_order"). The gateway enqueues a job and
// blocks on the job's result channel; workers BRPOP jobs, run the
// handler, store the result under a TTL and publish a wakeup.
package rpc

import (
	"encoding/json"

	"spotmarket/pkg/types"
)

// Service queue names. The queue key on Redis is "queue:<name>".
const (
	QueueOrders      = "orders"
	QueueUsers       = "users"
	QueueInstruments = "instruments"
)

func queueKey(queue string) string   { return "queue:" + queue }
func resultKey(jobID string) string  { return "result:" + jobID }
func resultChan(jobID string) string { return "result-ch:" + jobID }

// Job is one unit of work on a service queue.
type Job struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload"`
}

// Result is the stored outcome of a job. Exactly one of Payload and
// Error is set.
type Result struct {
	JobID   string           `json:"job_id"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Error   *types.WireError `json:"error,omitempty"`
}
