package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ExpireDeliveryTask is scheduled once per delivery obligation and fires
	// at its deadline.
	ExpireDeliveryTask = "delivery:expire"

	maxRetry = 5
)

// ExpirePayload identifies the obligation a task belongs to. The obligation
// row remains the source of truth; the task only wakes the worker.
type ExpirePayload struct {
	ObligationID string `json:"obligation_id"`
}

// NewExpireTask builds the delayed task for an obligation.
func NewExpireTask(obligationID string) (*asynq.Task, error) {
	if obligationID == "" {
		return nil, errors.New("obligation id is required")
	}
	data, err := json.Marshal(ExpirePayload{ObligationID: obligationID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExpireDeliveryTask, data), nil
}

// ParseExpirePayload decodes a task payload.
func ParseExpirePayload(data []byte) (ExpirePayload, error) {
	var payload ExpirePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.ObligationID == "" {
		return payload, errors.New("decode payload: missing obligation id")
	}
	return payload, nil
}

// Enqueuer is the subset of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqQueue arms obligations as Redis-backed delayed tasks.
type AsynqQueue struct {
	client Enqueuer
}

// NewAsynqQueue wraps an asynq client.
func NewAsynqQueue(client Enqueuer) *AsynqQueue {
	return &AsynqQueue{client: client}
}

// Arm enqueues the expire task for processing at the given time. The task id
// is the obligation id, so arming twice is a no-op.
func (q *AsynqQueue) Arm(ctx context.Context, id string, at time.Time) error {
	task, err := NewExpireTask(id)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.ProcessAt(at),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue expire task: %w", err)
	}
	return nil
}
