package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Project-Sylos/Sylos-Cutover/internal/auth"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/middleware"
	"github.com/Project-Sylos/Sylos-Cutover/internal/server"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid server config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)
	log.Info().Msg("starting Sylos cutover server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coreBridge, err := corebridge.NewManager(ctx, log, cfg, corebridge.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize core bridge")
	}
	authManager, err := auth.NewManager(auth.Config{
		Secret:    cfg.JWT.Secret,
		TTL:       cfg.JWT.AccessTokenTTL,
		Operators: cfg.Auth.Operators,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth manager")
	}

	mw, err := middleware.New(log, cfg.Runtime.RuntimeLogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize request middleware")
	}
	defer mw.Close()

	router := routes.New(routes.Dependencies{
		Logger:      log,
		CoreBridge:  coreBridge,
		AuthManager: authManager,
		Middleware:  mw,
	})

	httpServer := server.New(server.Config{
		Address: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Router:  router,
		Logger:  log,
	})

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("server exited with error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("server stopped cleanly")
	}

	// A run interrupted by the signal still releases its locks before returning.
	coreBridge.Wait()
	log.Info().Msg("cutover runs settled")
}
