package candidates

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("candidate queue is closed")
	ErrTooManyDone = errors.New("Done called more times than items were queued")
)

type MemoryQueue struct {
	mu      sync.Mutex
	items   []string
	head    int
	pending int
	drained chan struct{}
	closed  bool
}

func NewMemoryQueue() *MemoryQueue {
	drained := make(chan struct{})
	close(drained)

	return &MemoryQueue{drained: drained}
}

func (q *MemoryQueue) Put(_ context.Context, items ...string) error {
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.pending == 0 {
		q.drained = make(chan struct{})
	}

	q.items = append(q.items, items...)
	q.pending += len(items)
	return nil
}

func (q *MemoryQueue) TryGet(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return "", false, nil
	}

	item := q.items[q.head]
	q.items[q.head] = ""
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 1024 && q.head*2 >= len(q.items) {
		q.items = append([]string(nil), q.items[q.head:]...)
		q.head = 0
	}

	return item, true, nil
}

func (q *MemoryQueue) Done(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == 0 {
		return ErrTooManyDone
	}

	q.pending--
	if q.pending == 0 {
		close(q.drained)
	}
	return nil
}

func (q *MemoryQueue) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of items not yet handed out.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items) - q.head
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}
