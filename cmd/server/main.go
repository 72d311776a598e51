package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/adapters/httpapi"
	wssignal "github.com/openmeet/openmeet/internal/adapters/signal"
	"github.com/openmeet/openmeet/internal/app"
	"github.com/openmeet/openmeet/internal/app/record"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/directory"
	"github.com/openmeet/openmeet/internal/engine/pion"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	engine, err := pion.New(cfg.RTC)
	if err != nil {
		log.Fatal().Err(err).Msg("media engine init")
	}
	pool, err := app.NewPool(engine.Workers())
	if err != nil {
		log.Fatal().Err(err).Msg("worker pool init")
	}

	dir := directory.NewStatic()
	rec := record.NewService(cfg.Rec)
	manager := app.NewManager(pool, dir, cfg.Peer, rec)
	if err := manager.CreateRooms(); err != nil {
		log.Fatal().Err(err).Msg("room creation")
	}

	r := httpapi.SetupRouter(cfg, manager, dir)
	sig := wssignal.NewController(manager, dir, cfg)
	r.GET("/sock/:userId/:peerId", func(c *gin.Context) {
		sig.Handle(ctx, c)
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Addr, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		var err error
		if cfg.HTTP.SSLCrt != "" && cfg.HTTP.SSLKey != "" {
			log.Info().Str("addr", addr).Msg("openmeet server started (https)")
			err = srv.ListenAndServeTLS(cfg.HTTP.SSLCrt, cfg.HTTP.SSLKey)
		} else {
			log.Info().Str("addr", addr).Msg("openmeet server started")
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	manager.Release()
	pool.Close()
	log.Info().Msg("Server exited gracefully")
}
