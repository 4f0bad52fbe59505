// Package scheduler owns the deferred deletion of delivered messages.
// Obligations are persisted before anything is armed, so a restart or a lost
// timer can always be reconciled from the database.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/metrics"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// DefaultDeleteAfter is the lifetime of a delivered message.
const DefaultDeleteAfter = 15 * time.Minute

// Repository persists obligations. Claim must succeed for at most one caller
// per obligation and report apperr.ErrNotFound to everyone else.
type Repository interface {
	Create(ctx context.Context, o *model.DeliveryObligation) error
	Claim(ctx context.Context, id string, at time.Time) (*model.DeliveryObligation, error)
	Pending(ctx context.Context) ([]model.DeliveryObligation, error)
	Due(ctx context.Context, now time.Time) ([]model.DeliveryObligation, error)
}

// Deleter removes a chat message.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Queue arms a wake-up for an obligation. Arming the same id twice must be
// harmless.
type Queue interface {
	Arm(ctx context.Context, id string, at time.Time) error
}

// Scheduler persists and executes deletion obligations.
type Scheduler struct {
	repo    Repository
	deleter Deleter
	queue   Queue
	logger  *slog.Logger
	metrics *metrics.Metrics

	delay time.Duration
	now   func() time.Time
	newID func() string
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithDelay overrides DefaultDeleteAfter.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Scheduler) { s.now = fn }
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New constructs a Scheduler. queue may be set later with SetQueue when the
// queue itself needs the scheduler to fire.
func New(repo Repository, deleter Deleter, queue Queue, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		repo:    repo,
		deleter: deleter,
		queue:   queue,
		logger:  logger.With(slog.String("component", "scheduler")),
		delay:   DefaultDeleteAfter,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetQueue replaces the timer source.
func (s *Scheduler) SetQueue(q Queue) { s.queue = q }

// Delay returns the configured message lifetime.
func (s *Scheduler) Delay() time.Duration { return s.delay }

// Schedule persists an obligation to delete messageIDs from chatID once the
// delay has elapsed, then arms a timer. An arming failure is logged only:
// the sweep picks the obligation up when it falls due.
func (s *Scheduler) Schedule(ctx context.Context, chatID int64, messageIDs []int) (*model.DeliveryObligation, error) {
	if len(messageIDs) == 0 {
		return nil, fmt.Errorf("schedule deletion: no messages: %w", apperr.ErrValidation)
	}
	now := s.now().UTC()
	o := &model.DeliveryObligation{
		ID:         s.newID(),
		ChatID:     chatID,
		MessageIDs: append([]int(nil), messageIDs...),
		CreatedAt:  now,
		DeleteAt:   now.Add(s.delay),
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("schedule deletion: %w", err)
	}
	s.metrics.Scheduled()
	if s.queue != nil {
		if err := s.queue.Arm(ctx, o.ID, o.DeleteAt); err != nil {
			s.logger.Warn("arm deletion timer failed",
				slog.String("obligation_id", o.ID), slog.Any("error", err))
		}
	}
	s.logger.Debug("deletion scheduled",
		slog.String("obligation_id", o.ID),
		slog.Int64("chat_id", chatID),
		slog.Time("delete_at", o.DeleteAt))
	return o, nil
}

// Fire claims the obligation and deletes its messages. Firing an obligation
// that is already fired or unknown does nothing. Individual deletion
// failures are logged and swallowed.
func (s *Scheduler) Fire(ctx context.Context, id string) error {
	_, err := s.fire(ctx, id)
	return err
}

// fire reports whether this call claimed the obligation.
func (s *Scheduler) fire(ctx context.Context, id string) (bool, error) {
	o, err := s.repo.Claim(ctx, id, s.now().UTC())
	if errors.Is(err, apperr.ErrNotFound) {
		s.logger.Debug("obligation already fired", slog.String("obligation_id", id))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim obligation %s: %w", id, err)
	}
	s.metrics.Fired()
	for _, msgID := range o.MessageIDs {
		if err := s.deleter.DeleteMessage(ctx, o.ChatID, msgID); err != nil {
			s.metrics.DeleteFailed()
			s.logger.Warn("delete message failed",
				slog.String("obligation_id", o.ID),
				slog.Int64("chat_id", o.ChatID),
				slog.Int("message_id", msgID),
				slog.Any("error", err))
		}
	}
	s.logger.Info("obligation fired",
		slog.String("obligation_id", o.ID), slog.Int("messages", len(o.MessageIDs)))
	return true, nil
}

// Recover fires every overdue obligation and re-arms the rest. Run it once
// at startup.
func (s *Scheduler) Recover(ctx context.Context) (fired, armed int, err error) {
	pending, err := s.repo.Pending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("recover obligations: %w", err)
	}
	now := s.now()
	for _, o := range pending {
		if !o.DeleteAt.After(now) {
			claimed, err := s.fire(ctx, o.ID)
			if err != nil {
				s.logger.Error("fire overdue obligation failed",
					slog.String("obligation_id", o.ID), slog.Any("error", err))
				continue
			}
			if claimed {
				fired++
			}
			continue
		}
		if s.queue == nil {
			continue
		}
		if err := s.queue.Arm(ctx, o.ID, o.DeleteAt); err != nil {
			s.logger.Warn("re-arm obligation failed",
				slog.String("obligation_id", o.ID), slog.Any("error", err))
			continue
		}
		armed++
	}
	s.logger.Info("obligations recovered", slog.Int("fired", fired), slog.Int("armed", armed))
	return fired, armed, nil
}

// Sweep fires every obligation that is due and returns how many it fired.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.repo.Due(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep obligations: %w", err)
	}
	fired := 0
	for _, o := range due {
		claimed, err := s.fire(ctx, o.ID)
		if err != nil {
			s.logger.Error("sweep fire failed",
				slog.String("obligation_id", o.ID), slog.Any("error", err))
			continue
		}
		if claimed {
			fired++
		}
	}
	if fired > 0 {
		s.logger.Info("sweep fired obligations", slog.Int("count", fired))
	}
	return fired, nil
}
