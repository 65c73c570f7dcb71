package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediactl/internal/adapters/bus"
	"github.com/dkeye/mediactl/internal/adapters/bus/redisbus"
	"github.com/dkeye/mediactl/internal/adapters/engine/pionengine"
	router "github.com/dkeye/mediactl/internal/adapters/http"
	"github.com/dkeye/mediactl/internal/app/session"
	"github.com/dkeye/mediactl/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	engine := pionengine.New(pionengine.Config{
		MinPort:     cfg.RTCMinPort,
		MaxPort:     cfg.RTCMaxPort,
		AnnouncedIP: cfg.AnnouncedIP,
	})
	mgr := session.NewManager(engine)
	go mgr.Run(ctx)

	rbus := redisbus.New(redisbus.Config{Addr: cfg.RedisAddr})
	bridge := bus.NewBridge(rbus, mgr, cfg.ChannelPrefix)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Error().Err(err).Msg("bridge stopped")
			cancel()
		}
	}()

	r := router.SetupRouter(cfg, mgr)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("mediactl server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	mgr.Shutdown()
	if err := rbus.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close bus")
	}
	log.Info().Msg("Server exited gracefully")
}
