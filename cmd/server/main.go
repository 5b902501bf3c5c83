package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Ping/internal/adapters/http"
	ws "github.com/dkeye/Ping/internal/adapters/signal"
	"github.com/dkeye/Ping/internal/app"
	"github.com/dkeye/Ping/internal/auth"
	"github.com/dkeye/Ping/internal/config"
	"github.com/dkeye/Ping/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	// One secret per process lifetime: restarting invalidates every credential.
	secret, err := auth.NewSecret()
	if err != nil {
		return err
	}
	authn := auth.New(secret, cfg.RoomCode)

	files := storage.NewFileStore(afero.NewOsFs(), cfg.UploadDir, cfg.MaxFileSize)
	if err := files.Init(); err != nil {
		return err
	}
	defer func() {
		if err := files.Cleanup(); err != nil {
			log.Error().Err(err).Msg("upload cleanup")
		}
	}()

	room := app.NewRoom(app.PolicyFor(cfg.PruneOnFailure))
	limiter := ws.LimiterFor(cfg.RateLimit.Messages, cfg.RateLimit.Interval)
	ctl := ws.NewSignalWSController(room, authn, limiter, ws.ConnOptions{
		SendBuffer: cfg.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait(),
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Secret: secret,
		Auth:   authn,
		Room:   room,
		Files:  files,
		Signal: ctl,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Bool("auth", authn.Required()).Msg("Ping server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
