package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker for tests and the memory store
// backend. Countdown handling and revocation semantics match the Redis
// broker; durability obviously does not.
type MemoryBroker struct {
	mu      sync.Mutex
	pending map[string]*memoryTask
	revoked map[string]bool
	results map[string]Result
	tasks   chan Task
	started bool
}

type memoryTask struct {
	task    Task
	readyAt time.Time
	timer   *time.Timer
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		pending: make(map[string]*memoryTask),
		revoked: make(map[string]bool),
		results: make(map[string]Result),
		tasks:   make(chan Task, 256),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, task Task, countdown time.Duration) error {
	task.EnqueuedAt = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	mt := &memoryTask{task: task, readyAt: time.Now().Add(countdown)}
	b.pending[task.ID] = mt
	mt.timer = time.AfterFunc(countdown, func() { b.fire(task.ID) })
	return nil
}

func (b *MemoryBroker) fire(taskID string) {
	b.mu.Lock()
	mt, ok := b.pending[taskID]
	if ok {
		delete(b.pending, taskID)
	}
	revoked := b.revoked[taskID]
	if ok && revoked {
		// Dropped tasks are gone for good, no reason to remember the ID
		delete(b.revoked, taskID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if revoked {
		_ = b.StoreResult(context.Background(), Result{
			TaskID:      taskID,
			Status:      ResultRevoked,
			CompletedAt: time.Now(),
		})
		return
	}
	mt.task.ClaimedAt = time.Now()
	b.tasks <- mt.task
}

func (b *MemoryBroker) Revoke(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[taskID] = true
	if mt, ok := b.pending[taskID]; ok {
		mt.timer.Stop()
		delete(b.pending, taskID)
	}
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context) (<-chan Task, error) {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-b.tasks:
				select {
				case out <- task:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *MemoryBroker) Ack(ctx context.Context, taskID string) error {
	return nil
}

func (b *MemoryBroker) StoreResult(ctx context.Context, result Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[result.TaskID] = result
	return nil
}

func (b *MemoryBroker) GetResult(ctx context.Context, taskID string) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if result, ok := b.results[taskID]; ok {
		cp := result
		return &cp, nil
	}
	return nil, nil
}

// PendingCount reports how many tasks are still waiting on their
// countdown. Test helper.
func (b *MemoryBroker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// IsRevoked reports whether a task ID has been revoked. Test helper.
func (b *MemoryBroker) IsRevoked(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[taskID]
}
