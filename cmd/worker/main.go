// Package main runs the asynq worker that deletes delivered messages once
// their obligation comes due. It is only needed when REDIS_ADDR is set.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"

	"github.com/dharsanguruparan/codegate/internal/app"
	"github.com/dharsanguruparan/codegate/internal/config"
	"github.com/dharsanguruparan/codegate/internal/logger"
	"github.com/dharsanguruparan/codegate/internal/queue"
	"github.com/dharsanguruparan/codegate/internal/scheduler"
	"github.com/dharsanguruparan/codegate/internal/telegram"
	"github.com/dharsanguruparan/codegate/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.L.With(slog.String("process", "worker"))

	if !cfg.UseRedis() {
		log.Error("REDIS_ADDR is not set; the bot process runs deletion timers itself")
		os.Exit(1)
	}

	stores, err := app.Open(ctx, cfg.DatabaseURL, false)
	if err != nil {
		log.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	tg, err := telegram.New(cfg.BotToken, log)
	if err != nil {
		log.Error("init telegram", slog.Any("error", err))
		os.Exit(1)
	}

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redis)
	defer client.Close()
	// Recovery and sweeping from this process re-arm through Redis too.
	sched := scheduler.New(stores.Obligations, tg, queue.NewAsynqQueue(client), log,
		scheduler.WithDelay(cfg.DeleteAfter))

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Workers,
	})
	processor := worker.NewProcessor(sched, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := server.Run(mux); err != nil {
		log.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
