package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Novip1906/tasks-live/internal/app"
	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/pkg/logging"
)

func main() {
	cfg := config.MustLoadConfig()
	log := logging.SetupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := app.NewServer(ctx, cfg, log)

	if err := srv.Run(ctx); err != nil {
		log.Error("server run error", logging.Err(err))
		os.Exit(1)
	}
}
