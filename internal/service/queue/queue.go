// Package queue holds avatar response messages until the renderer acknowledges them.
package queue

import (
	"sync"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/metrics"
)

// Queue is an unbounded FIFO of response messages.
// The head stays in place until acknowledged, so peeking is idempotent.
type Queue struct {
	mu      sync.Mutex
	items   []models.ResponseMessage
	metrics *metrics.Metrics
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{metrics: metrics.DefaultMetrics}
}

// Enqueue appends msg at the tail. Never blocks on the consumer.
func (q *Queue) Enqueue(msg models.ResponseMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.RecordEnqueue(n)
}

// PeekHead returns the oldest unacknowledged message.
func (q *Queue) PeekHead() (models.ResponseMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.ResponseMessage{}, false
	}
	return q.items[0], true
}

// AcknowledgeHead removes the head. Reports false on an empty queue.
func (q *Queue) AcknowledgeHead() bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	q.items[0] = models.ResponseMessage{}
	q.items = q.items[1:]
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.RecordAck(n)
	return true
}

// Len returns the number of unacknowledged messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
