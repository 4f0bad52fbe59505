package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Scheduler.Sweep on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper registers the sweep job under spec, e.g. "@every 1m".
func NewSweeper(ctx context.Context, s *Scheduler, spec string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "sweeper"))
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logger.Error("sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{cron: c, logger: logger}, nil
}

// Start begins running the job in the background.
func (w *Sweeper) Start() {
	w.cron.Start()
	w.logger.Info("sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (w *Sweeper) Stop() {
	<-w.cron.Stop().Done()
}
