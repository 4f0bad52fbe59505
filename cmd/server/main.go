// Package main is the entry point for the CodeGate bot process. It serves
// Telegram updates, arms deletion timers and exposes health and metrics over
// HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dharsanguruparan/codegate/internal/access"
	"github.com/dharsanguruparan/codegate/internal/app"
	"github.com/dharsanguruparan/codegate/internal/bot"
	"github.com/dharsanguruparan/codegate/internal/broadcast"
	"github.com/dharsanguruparan/codegate/internal/catalog"
	"github.com/dharsanguruparan/codegate/internal/config"
	"github.com/dharsanguruparan/codegate/internal/delivery"
	"github.com/dharsanguruparan/codegate/internal/logger"
	"github.com/dharsanguruparan/codegate/internal/membership"
	"github.com/dharsanguruparan/codegate/internal/metrics"
	"github.com/dharsanguruparan/codegate/internal/processing"
	"github.com/dharsanguruparan/codegate/internal/queue"
	"github.com/dharsanguruparan/codegate/internal/s3storage"
	"github.com/dharsanguruparan/codegate/internal/scheduler"
	"github.com/dharsanguruparan/codegate/internal/server"
	"github.com/dharsanguruparan/codegate/internal/signing"
	"github.com/dharsanguruparan/codegate/internal/telegram"
	"github.com/dharsanguruparan/codegate/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.L

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("codegate stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	stores, err := app.Open(ctx, cfg.DatabaseURL, true)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	tg, err := telegram.New(cfg.BotToken, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(stores.Obligations, tg, nil, log,
		scheduler.WithDelay(cfg.DeleteAfter), scheduler.WithMetrics(m))
	if cfg.UseRedis() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		sched.SetQueue(queue.NewAsynqQueue(client))
		log.Info("deletion timers use asynq", slog.String("redis", cfg.RedisAddr))
	} else {
		timers := scheduler.NewTimerQueue(ctx, sched.Fire, log)
		defer timers.Stop()
		sched.SetQueue(timers)
		log.Info("deletion timers run in process")
	}
	fired, armed, err := sched.Recover(ctx)
	if err != nil {
		return err
	}
	log.Info("pending deletions recovered", slog.Int("fired", fired), slog.Int("armed", armed))

	sweeper, err := scheduler.NewSweeper(ctx, sched, cfg.SweepSpec, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	registry := access.NewRegistry(cfg.OwnerID, stores.Uploaders, log)
	cat := catalog.New(stores.Artifacts, log)
	gate := membership.NewGate(tg, cfg.ForceJoinChannel, log)

	deps := bot.Deps{
		Transport:   tg,
		Registry:    registry,
		Sessions:    upload.NewManager(cat, registry, log),
		Dispatcher:  delivery.NewDispatcher(gate, cat, tg, sched, log, m),
		Catalog:     cat,
		Users:       stores.Users,
		Obligations: stores.Obligations,
		Broadcaster: broadcast.New(stores.Users, tg, cfg.BroadcastRate, log, m),
		Signer:      signing.NewSigner(cfg.CallbackSecret),
		Pool:        processing.New(cfg.Workers, log),
		JoinURL:     cfg.JoinURL(),
		Logger:      log,
		Metrics:     m,
	}
	if cfg.BackupEnabled() {
		backup, err := s3storage.New(cfg)
		if err != nil {
			return err
		}
		if err := backup.EnsureBucket(ctx); err != nil {
			return err
		}
		deps.Backup = backup
	}
	svc, err := bot.New(deps)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Address, stores.DB, reg, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, component := range []func(context.Context) error{srv.Serve, svc.Run} {
		wg.Add(1)
		go func(serve func(context.Context) error) {
			defer wg.Done()
			errs <- serve(ctx)
		}(component)
	}
	log.Info("codegate running", slog.String("addr", cfg.Address), slog.String("channel", cfg.ForceJoinChannel))

	// The first component to return takes the other down with it.
	first := <-errs
	stopping := ctx.Err() != nil
	cancel()
	wg.Wait()
	if first == nil && !stopping {
		first = errors.New("component exited unexpectedly")
	}
	return first
}
