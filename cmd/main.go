package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triagem/internal/app"
	"triagem/internal/bot"
	"triagem/internal/config"
	"triagem/internal/database"
	"triagem/internal/feed"
	"triagem/internal/metrics"
	"triagem/internal/scheduler"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	if err = cfg.RequireToken(); err != nil {
		log.ErrorContext(ctx, "TOKEN is required",
			"envVar", "TOKEN")

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	m := initMetrics(ctx, cfg.MetricsAddr, log)

	engines := app.NewEngines(ctx, cfg, m, log)
	engines.Warmup(ctx, log)

	fetcher := feed.NewFetcher(db, engines.Processor, log)

	botInst, err := bot.New(cfg.Token, db, fetcher, engines.Processor, cfg.AllowedUsers, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bot",
			"error", err,
			"allowedUsersCount", len(cfg.AllowedUsers))

		return
	}
	log.InfoContext(ctx, "Bot is initialized",
		"allowedUsersCount", len(cfg.AllowedUsers))

	sched := scheduler.New(ctx, botInst, fetcher, db, log)

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", scheduler.HourlyReportSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", scheduler.HourlyReportSpec,
		"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

	go func() {
		botInst.Start(ctx)
	}()
	log.InfoContext(ctx, "Bot is started",
		"updateTimeoutSeconds", bot.BotUpdateTimeout)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"signal", sig.String(),
		"uptimeSeconds", time.Since(start).Seconds())

	botInst.Stop()
	log.InfoContext(ctx, "Bot is stopped",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initMetrics(ctx context.Context, addr string, log *slog.Logger) *metrics.Metrics {
	if addr == "" {
		log.InfoContext(ctx, "METRICS_ADDR is missing so metrics are disabled",
			"envVar", "METRICS_ADDR")

		return nil
	}

	m := metrics.New()

	go func() {
		if err := m.Serve(ctx, addr, log); err != nil {
			log.ErrorContext(ctx, "Failed to serve metrics",
				"error", err,
				"addr", addr)
		}
	}()
	log.InfoContext(ctx, "Metrics server is started",
		"addr", addr)

	return m
}
