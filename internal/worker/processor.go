package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/codegate/internal/queue"
)

// Firer executes a deletion obligation.
type Firer interface {
	Fire(ctx context.Context, id string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	firer  Firer
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(firer Firer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{firer: firer, logger: logger.With(slog.String("component", "worker"))}
}

// Handler registers the expire job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExpireDeliveryTask, p.handleExpire)
	return mux
}

func (p *Processor) handleExpire(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseExpirePayload(task.Payload())
	if err != nil {
		// a malformed task will never succeed
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := p.firer.Fire(ctx, payload.ObligationID); err != nil {
		p.logger.Error("expire failed", slog.String("obligation_id", payload.ObligationID), slog.Any("error", err))
		return err
	}
	return nil
}
