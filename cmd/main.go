package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sensorpipe/internal/app"
	"sensorpipe/internal/config"
)

func main() {
	logger, _ := zap.NewProduction(zap.AddStacktrace(zap.FatalLevel))
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		sugar.Fatalw("invalid configuration", "error", err)
	}

	if err := app.Run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("application stopped with error", "error", err)
	}
	sugar.Info("application shutdown completed")
}
