package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pricefeed/config"
	"pricefeed/internal/feed/collector"
	"pricefeed/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run feed until SIGINT/SIGTERM
	if err := collector.Run(ctx, cfg, log); err != nil {
		log.Error("price feed failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
