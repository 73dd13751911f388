package signaling

import (
	"sync"
	"sync/atomic"
)

// sendQueue is a message-count-bounded FIFO.
//
// When full, Enqueue evicts the oldest pending envelope so the newest
// signaling state always gets through and producers never block.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	max   int
	items []Envelope

	drops  atomic.Uint64
	onDrop func()
}

func newSendQueue(max int, onDrop func()) *sendQueue {
	if max < 1 {
		max = 1
	}
	q := &sendQueue{max: max, onDrop: onDrop}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) DropCount() uint64 {
	return q.drops.Load()
}

// Enqueue appends env, evicting the oldest entry if the queue is full. It
// returns false only when the queue is closed. It never blocks.
func (q *sendQueue) Enqueue(env Envelope) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	dropped := false
	if len(q.items) >= q.max {
		q.items[0] = Envelope{}
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, env)
	q.notEmpty.Signal()
	q.mu.Unlock()

	if dropped {
		q.drops.Add(1)
		if q.onDrop != nil {
			q.onDrop()
		}
	}
	return true
}

// Dequeue blocks until an envelope is available or the queue is closed.
func (q *sendQueue) Dequeue() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return Envelope{}, false
	}
	env := q.items[0]
	q.items[0] = Envelope{}
	q.items = q.items[1:]
	return env, true
}

func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards pending envelopes and wakes any blocked Dequeue.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
