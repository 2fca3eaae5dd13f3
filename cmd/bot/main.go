package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivanoskov/copperx_bot/internal/app"
	"github.com/ivanoskov/copperx_bot/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	app.PrintBanner(cfg, "long polling")

	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.ServeMetrics(ctx)

	if err := a.Bot.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("bot stopped")
	return nil
}
