package kernel

import (
	"sync/atomic"

	"npcsim.ai/internal/protocol"
)

// ViewBatch is one tick's views for the agents of a shard, sorted by agent id.
type ViewBatch struct {
	Tick  uint64
	Views []protocol.AgentView
}

// ViewQueue carries view batches from the main loop to one worker. Send never
// blocks: when the queue is full the oldest batch is dropped so a lagging
// worker always sees the newest state. It has exactly one producer and one
// consumer.
type ViewQueue struct {
	ch      chan ViewBatch
	dropped atomic.Uint64
	closed  atomic.Bool
}

func NewViewQueue(size int) *ViewQueue {
	if size <= 0 {
		size = 1
	}
	return &ViewQueue{ch: make(chan ViewBatch, size)}
}

// Send enqueues b, dropping the oldest queued batch if needed. It reports
// whether a batch was dropped. Send after Close is a no-op.
func (q *ViewQueue) Send(b ViewBatch) (dropped bool) {
	if q.closed.Load() {
		return false
	}
	select {
	case q.ch <- b:
		return false
	default:
	}
	select {
	case <-q.ch:
		dropped = true
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- b:
	default:
		// Unreachable with a single producer.
		dropped = true
		q.dropped.Add(1)
	}
	return dropped
}

// Replace swaps a queued batch the consumer has not taken yet for b. It
// reports false, and queues nothing, when the queue is empty.
func (q *ViewQueue) Replace(b ViewBatch) bool {
	if q.closed.Load() {
		return false
	}
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
		return false
	}
	q.ch <- b
	return true
}

func (q *ViewQueue) C() <-chan ViewBatch { return q.ch }

// Close ends the stream; the consumer sees it after draining what is queued.
func (q *ViewQueue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

func (q *ViewQueue) Dropped() uint64 { return q.dropped.Load() }

func (q *ViewQueue) Len() int { return len(q.ch) }

func (q *ViewQueue) Cap() int { return cap(q.ch) }
