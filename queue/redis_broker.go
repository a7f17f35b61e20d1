package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	delayedKey = "phishly:tasks:delayed"
	runningKey = "phishly:tasks:running"
	revokedKey = "phishly:tasks:revoked"
	resultKey  = "phishly:tasks:result:"
)

// RedisBroker stores delayed tasks in a sorted set scored by ready
// time. Claiming is a ZREM race, so exactly one consumer wins a task
// even with workers spread across processes; claimed tasks sit in a running
// hash until acked and are re-queued if a worker dies mid-task.
type RedisBroker struct {
	Client       *redis.Client
	Logger       *log.Logger
	PollInterval time.Duration
	ResultExpiry time.Duration
	// ReclaimAfter is how long a claimed task may sit unacked before it
	// is considered abandoned and re-queued.
	ReclaimAfter time.Duration
}

func NewRedisBroker(client *redis.Client, logger *log.Logger) *RedisBroker {
	return &RedisBroker{
		Client:       client,
		Logger:       logger,
		PollInterval: time.Second,
		ResultExpiry: time.Hour,
		ReclaimAfter: 5 * time.Minute,
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, task Task, countdown time.Duration) error {
	task.EnqueuedAt = time.Now()
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	readyAt := float64(time.Now().Add(countdown).Unix())
	if err := b.Client.ZAdd(ctx, delayedKey, &redis.Z{Score: readyAt, Member: payload}).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	return nil
}

func (b *RedisBroker) Revoke(ctx context.Context, taskID string) error {
	if err := b.Client.SAdd(ctx, revokedKey, taskID).Err(); err != nil {
		return fmt.Errorf("revoke task %s: %w", taskID, err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context) (<-chan Task, error) {
	tasks := make(chan Task)
	go func() {
		defer close(tasks)
		ticker := time.NewTicker(b.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.reclaimAbandoned(ctx)
				b.drainReady(ctx, tasks)
			}
		}
	}()
	return tasks, nil
}

// drainReady claims every task whose countdown has elapsed and hands it
// to the consumer channel.
func (b *RedisBroker) drainReady(ctx context.Context, tasks chan<- Task) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := b.Client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 50,
	}).Result()
	if err != nil {
		if err != redis.Nil {
			b.Logger.Printf("Error polling delayed tasks: %v", err)
		}
		return
	}

	for _, member := range members {
		// The ZREM is the claim: whoever removes the member owns it.
		removed, err := b.Client.ZRem(ctx, delayedKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			b.Logger.Printf("Dropping undecodable task payload: %v", err)
			continue
		}

		revoked, err := b.Client.SIsMember(ctx, revokedKey, task.ID).Result()
		if err == nil && revoked {
			b.Logger.Printf("Task %s revoked before execution", task.ID)
			_ = b.StoreResult(ctx, Result{
				TaskID:      task.ID,
				Status:      ResultRevoked,
				CompletedAt: time.Now(),
			})
			// The ID has served its purpose, keep the revoked set bounded
			_ = b.Client.SRem(ctx, revokedKey, task.ID).Err()
			continue
		}

		task.ClaimedAt = time.Now()
		claimed, err := json.Marshal(task)
		if err == nil {
			_ = b.Client.HSet(ctx, runningKey, task.ID, claimed).Err()
		}

		select {
		case tasks <- task:
		case <-ctx.Done():
			// Not delivered; leave it in the running hash so reclaim
			// returns it to the delayed set.
			return
		}
	}
}

// reclaimAbandoned returns claimed-but-never-acked tasks to the delayed
// set, preserving at-least-once delivery across worker crashes.
func (b *RedisBroker) reclaimAbandoned(ctx context.Context) {
	entries, err := b.Client.HGetAll(ctx, runningKey).Result()
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-b.ReclaimAfter)
	for id, payload := range entries {
		var task Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			_ = b.Client.HDel(ctx, runningKey, id).Err()
			continue
		}
		if task.ClaimedAt.After(cutoff) {
			continue
		}
		b.Logger.Printf("Reclaiming abandoned task %s", id)
		task.ClaimedAt = time.Time{}
		fresh, err := json.Marshal(task)
		if err != nil {
			continue
		}
		if err := b.Client.ZAdd(ctx, delayedKey, &redis.Z{
			Score:  float64(time.Now().Unix()),
			Member: fresh,
		}).Err(); err != nil {
			continue
		}
		_ = b.Client.HDel(ctx, runningKey, id).Err()
	}
}

func (b *RedisBroker) Ack(ctx context.Context, taskID string) error {
	return b.Client.HDel(ctx, runningKey, taskID).Err()
}

func (b *RedisBroker) StoreResult(ctx context.Context, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return b.Client.Set(ctx, resultKey+result.TaskID, payload, b.ResultExpiry).Err()
}

func (b *RedisBroker) GetResult(ctx context.Context, taskID string) (*Result, error) {
	payload, err := b.Client.Get(ctx, resultKey+taskID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
