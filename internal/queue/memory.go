package queue

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process queue backed by a buffered channel. Items are lost
// if the process exits; stale jobs left behind are failed by the sweeper.
type Memory struct {
	items       chan WorkItem
	concurrency int

	mu     sync.RWMutex
	closed bool
}

// NewMemory returns a queue holding up to capacity items, consumed by
// concurrency goroutines.
func NewMemory(capacity, concurrency int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Memory{items: make(chan WorkItem, capacity), concurrency: concurrency}
}

// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
func (m *Memory) Enqueue(ctx context.Context, item WorkItem) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting items. Consumers drain what is already buffered.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.items)
	}
}

// Len reports the number of buffered items.
func (m *Memory) Len() int {
	return len(m.items)
}

// Consume runs the worker goroutines and blocks until ctx is cancelled or
// the queue is closed and drained. In-flight handlers finish before it returns.
func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	wg.Add(m.concurrency)
	for i := 0; i < m.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-m.items:
					if !ok {
						return
					}
					if err := handler(ctx, item); err != nil {
						slog.Error("work item dropped", "worker", workerID, "job_id", item.JobID, "error", err)
					}
				}
			}
		}(i)
	}
	wg.Wait()
	return nil
}

var (
	_ Queue    = (*Memory)(nil)
	_ Consumer = (*Memory)(nil)
)
