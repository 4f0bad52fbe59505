package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FireFunc is invoked when an armed timer elapses.
type FireFunc func(ctx context.Context, id string) error

// TimerQueue arms in-process timers. It is used when no Redis is configured;
// timers do not survive a restart, which Recover compensates for.
type TimerQueue struct {
	ctx    context.Context
	fire   FireFunc
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerQueue constructs a TimerQueue whose callbacks run with ctx.
func NewTimerQueue(ctx context.Context, fire FireFunc, logger *slog.Logger) *TimerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerQueue{
		ctx:    ctx,
		fire:   fire,
		logger: logger.With(slog.String("component", "timer_queue")),
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// Arm schedules fire(id) at the given time. Re-arming an id replaces the
// previous timer.
func (q *TimerQueue) Arm(_ context.Context, id string, at time.Time) error {
	delay := at.Sub(q.now())
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.timers[id]; ok {
		prev.Stop()
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()
		if q.ctx.Err() != nil {
			return
		}
		if err := q.fire(q.ctx, id); err != nil {
			q.logger.Error("timer fire failed", slog.String("obligation_id", id), slog.Any("error", err))
		}
	})
	return nil
}

// Len returns the number of armed timers.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels every armed timer.
func (q *TimerQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
