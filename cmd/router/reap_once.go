package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/webordinary/router/internal/config"
)

func runReapOnce(args []string) error {
	fs := flag.NewFlagSet("reap-once", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("close app", "error", err)
		}
	}()

	result, err := a.core.Reaper.Run(ctx)
	if err != nil {
		return fmt.Errorf("reap: %w", err)
	}

	slog.Info("reap complete",
		"orphanedQueuesDeleted", result.OrphanedQueuesDeleted,
		"staleOwnershipFlipped", result.StaleOwnershipFlipped,
		"expiredThreadMappings", result.ExpiredThreadMappings)
	return nil
}
