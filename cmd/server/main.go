// Package main is the entry point for Refinery, a market reprocessing
// profitability service. It loads the static item dump, warms the persisted
// quote cache, and serves scan and sourcing optimization endpoints over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/refinery/internal/app"
	"github.com/aristath/refinery/internal/config"
	"github.com/aristath/refinery/internal/server"
	"github.com/aristath/refinery/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Refinery")

	// Databases, quote client, reference data and domain services.
	// Reference data failures abort startup.
	application, err := app.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer application.Close()

	application.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		CacheDB:   application.CacheDB,
		QuoteRepo: application.QuoteRepo,
		Index:     application.Index,
		Graph:     application.Graph,
		Market:    application.Market,
		Scanner:   application.Scanner,
		Sourcing:  application.Sourcing,
		Tycoon:    application.Tycoon,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
