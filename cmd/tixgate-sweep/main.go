// Command tixgate-sweep reconciles stale pending orders against the payment
// provider. Run it from cron with --once, or as a long-lived loop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirinyoku/tix-gate/internal/app"
	"github.com/kirinyoku/tix-gate/internal/config"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		once   = flag.Bool("once", false, "run a single sweep and exit")
		batch  = flag.Int("batch", 0, "orders per sweep (0 keeps SWEEP_BATCH)")
		dryRun = flag.Bool("dry-run", false, "query the provider but write nothing")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *batch > 0 {
		cfg.Sweep.Batch = *batch
	}
	cfg.Sweep.DryRun = *dryRun

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(cfg, logger, *once); err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, once bool) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sweeper := a.Services().Sweeper

	if !once {
		return sweeper.Loop(ctx, cfg.Sweep.Interval)
	}

	rep, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("sweep finished",
		"dry_run", cfg.Sweep.DryRun,
		"examined", rep.Examined,
		"completed", rep.Completed,
		"failed", rep.Failed,
		"pending", rep.StillPending,
		"already_processed", rep.AlreadyProcessed,
		"not_found", rep.NotFound,
		"errors", rep.Errors,
	)

	return nil
}
