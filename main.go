package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/log"
	"github.com/cbattlegear/azure-data-chat/server"
)

func main() {
	cfg := config.Get()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(startupCtx, cfg)
	startupCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("server initialization failed")
	}

	// Start server
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown with timeout to close remaining HTTP connections
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
