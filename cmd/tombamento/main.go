package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/tombamento-bot/internal/adapters/cli"
	"github.com/kirillkom/tombamento-bot/internal/bootstrap"
	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/observability/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("tombamento", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Options{
		Config: cfg,
		Logger: logger,
		Open: func(ctx context.Context) (*cli.Deps, error) {
			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
			return app.CLIDeps(), nil
		},
	})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
