// Package queue is the durable delivery broker between the dispatch
// scheduler and the delivery workers. Tasks are enqueued with a
// countdown and become visible to consumers only once it elapses; the
// queue, not the scheduler, enforces send timing.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskSendEmail is the only task name the delivery workers handle.
const TaskSendEmail = "tasks.send_phishing_email"

// Result statuses written to the result store.
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultRevoked = "revoked"
)

// Task is one unit of deferred work. Delivery is at-least-once;
// consumers must tolerate redelivery.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CampaignID uint      `json:"campaign_id"`
	TargetID   uint      `json:"target_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	ClaimedAt  time.Time `json:"claimed_at,omitempty"`
}

// Result is the terminal outcome of one task, kept for a bounded time
// so operators can correlate task IDs with outcomes.
type Result struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Broker is the task queue contract. Enqueue is fire-and-forget; the
// scheduler observes progress only through the state store.
type Broker interface {
	// Enqueue schedules the task to become consumable after countdown.
	Enqueue(ctx context.Context, task Task, countdown time.Duration) error
	// Revoke cancels a not-yet-claimed task by ID. Best effort: a task
	// already claimed by a worker is unaffected.
	Revoke(ctx context.Context, taskID string) error
	// Consume delivers ready tasks until ctx is cancelled.
	Consume(ctx context.Context) (<-chan Task, error)
	// Ack marks a claimed task as done so it is not redelivered.
	Ack(ctx context.Context, taskID string) error
	// StoreResult records the task outcome.
	StoreResult(ctx context.Context, result Result) error
	// GetResult loads a previously stored outcome.
	GetResult(ctx context.Context, taskID string) (*Result, error)
}

// GenerateTaskID builds the externally addressable task identifier the
// scheduler persists on the job row for later revocation.
// Format: phishly-c{campaign}-t{target}-{unix}-{random}.
func GenerateTaskID(campaignID, targetID uint) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("phishly-c%d-t%d-%d-%s", campaignID, targetID, time.Now().Unix(), suffix)
}
