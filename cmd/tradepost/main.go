package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradepost/internal/config"
	"tradepost/internal/http/handlers"
	applog "tradepost/internal/log"
	"tradepost/internal/repos"
	"tradepost/internal/worker"
)

func main() {
	if err := run(); err != nil {
		applog.L().Error("server.exit", zap.Error(err))
		_ = applog.L().Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Optional file logging
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}
	logger := applog.New(cfg.LogLevel, out)
	applog.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedDemo {
		if err := repos.Seed(ctx, db, time.Now()); err != nil {
			return err
		}
	}

	deps := handlers.NewDeps(db, cfg, logger)

	w := worker.NewDispatchWorker(deps.Outbox, deps.Dispatcher, logger.Named("worker"),
		cfg.DispatchRetryInterval, cfg.DispatchMaxAttempts)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Start(ctx)
	}()

	app := handlers.NewApp(deps, handlers.AppOptions{CSRF: true, AccessLog: out})

	listenErr := make(chan error, 1)
	go func() {
		applog.L().Info("server.start", zap.String("port", cfg.Port))
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		stop()
		<-workerDone
		return err
	case <-ctx.Done():
	}

	applog.L().Info("server.shutdown")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	<-workerDone
	return nil
}
