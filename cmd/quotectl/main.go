package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/studio-ops/quotation-engine/cmd/quotectl/cli"
	"github.com/studio-ops/quotation-engine/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	code := cli.Run(ctx, jobsCLI, cli.CommandOptions{Args: os.Args[1:]})
	if err := jobsCLI.Close(); err != nil {
		slog.Default().Warn("close jobs cli", slog.Any("error", err))
	}
	stop()
	os.Exit(code)
}
