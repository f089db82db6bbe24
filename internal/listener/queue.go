package listener

import (
	"sync"

	"github.com/user/pskwatch/internal/model"
)

// queue is a bounded FIFO of receptions. When full, Push evicts the
// oldest entry so the newest data always gets through.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []model.Reception
	head   int
	size   int
	closed bool
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &queue{buf: make([]model.Reception, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends r and reports whether an older entry was evicted. Pushes
// after Close are ignored.
func (q *queue) Push(r model.Reception) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.size == len(q.buf) {
		q.buf[q.head] = model.Reception{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		evicted = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = r
	q.size++
	q.cond.Signal()
	return evicted
}

// Pop blocks until an entry is available. It returns false once the queue
// is closed and empty.
func (q *queue) Pop() (model.Reception, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.size == 0 {
		return model.Reception{}, false
	}
	r := q.buf[q.head]
	q.buf[q.head] = model.Reception{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return r, true
}

// Close wakes all waiters; queued entries remain poppable.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
