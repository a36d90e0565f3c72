package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/book"
	"kucoin-depth-viewer/config"
	"kucoin-depth-viewer/display"
	"kucoin-depth-viewer/exchange"
	"kucoin-depth-viewer/logging"
	"kucoin-depth-viewer/monitoring"
	"kucoin-depth-viewer/services"
	"kucoin-depth-viewer/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := monitoring.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics listener stopped", logging.Err(err))
			}
		}()
	}

	logger.Info("starting depth viewer",
		logging.String("symbol", cfg.Feed.Symbol),
		logging.String("topic", cfg.Feed.Topic()),
		logging.Duration("ping_interval", cfg.Kucoin.PingInterval))

	tokens := exchange.NewKucoinTokenProvider(cfg.Kucoin.TokenURL, cfg.Kucoin.HTTPTimeout)
	newSession := func() book.FeedSession {
		return book.NewKucoinFeedSession(cfg.Kucoin.WSURL, cfg.Feed, logger)
	}
	service := services.NewDepthService(tokens, newSession, display.NewTableRenderer(os.Stdout), cfg.Kucoin.PingInterval, logger)

	var runner worker.SessionRunner = service
	if cfg.Reconnect.Enabled {
		runner = worker.NewSupervisor(service, cfg.Reconnect.MaxAttempts, cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay, logger)
	}

	return exitCode(runner.Run(ctx), logger)
}

func exitCode(err error, logger *logging.Logger) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("shutdown complete")
		return 0
	case errors.Is(err, apperrors.ErrEndOfStream):
		logger.Info("stream closed")
		return 0
	}

	kind, _ := apperrors.KindOf(err)
	logger.Error("depth viewer stopped", logging.String("kind", string(kind)), logging.Err(err))
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	return 1
}
