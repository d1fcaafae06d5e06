package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/tix-gate/docs"
	"github.com/kirinyoku/tix-gate/internal/app"
	"github.com/kirinyoku/tix-gate/internal/config"
)

// @title TixGate API
// @version 1.0
// @description Payment reconciliation and gate validation for ticket orders.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey OperatorToken
// @in header
// @name Authorization
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
