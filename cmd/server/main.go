package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beamdrop/beamdrop/internal/api"
	"github.com/beamdrop/beamdrop/internal/api/handlers"
	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/logger"
	"github.com/beamdrop/beamdrop/internal/repositories"
	"github.com/beamdrop/beamdrop/internal/sweeper"
	"github.com/beamdrop/beamdrop/internal/transfer"
	"github.com/beamdrop/beamdrop/internal/ws"
)

// @title BeamDrop API
// @version 1.0
// @description Transfer negotiation and signaling server for peer-to-peer
// @description file delivery with an object-storage fallback.
// @BasePath /
func main() {
	logger.Init(config.Envs.Environment)

	// Connect to database
	repositories.ConnectDatabase()
	rdb := repositories.ConnectRedis(config.Envs.Redis)

	transfers := repositories.NewTransferRepository(repositories.DB)
	users := repositories.NewUserRepository(repositories.DB)
	signals := repositories.NewSignalRepository(rdb)
	blobs := repositories.NewR2Store(config.Envs.R2)

	hub := ws.NewHub()
	svc := transfer.NewService(transfers, signals, users, blobs, hub)
	h := handlers.NewHandler(svc, users)

	mux := api.SetupRouter(h, hub, svc)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Envs.Port),
		Handler: mux,
		// Timeouts prevent resource exhaustion from slow clients. Hijacked
		// websocket connections manage their own deadlines.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info().Str("port", config.Envs.Port).Msg("Starting BeamDrop server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.New(svc, time.Minute).Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Fatal().Err(err).Msg("server exited")
	}
}
