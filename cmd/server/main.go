package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/avalon-server/internal/archive"
	"github.com/DoyleJ11/avalon-server/internal/config"
	"github.com/DoyleJ11/avalon-server/internal/coordinator"
	"github.com/DoyleJ11/avalon-server/internal/httpapi"
	"github.com/DoyleJ11/avalon-server/internal/hub"
	"github.com/DoyleJ11/avalon-server/internal/identity"
	"github.com/DoyleJ11/avalon-server/internal/logging"
	"github.com/DoyleJ11/avalon-server/internal/room"
	"github.com/DoyleJ11/avalon-server/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	opts := hub.Options{
		Session: session.Options{Logger: logger, SubscriberBuffer: cfg.SubscriberBuffer},
	}
	if cfg.ArchiveDriver != "" {
		store, err := archive.Open(cfg.ArchiveDriver, cfg.ArchiveDSN)
		if err != nil {
			return err
		}
		defer store.Close()

		w := archive.NewWriter(store, cfg.ArchiveBuffer, logger)
		opts.Session.Archiver = w
		g.Go(func() error { return w.Run(ctx) })
		logger.Info("archiving events", zap.String("driver", cfg.ArchiveDriver))
	}

	h := hub.NewHub(ctx, opts)
	svc := coordinator.New(identity.NewRegistry(), room.NewRegistry(cfg.MaxRounds, cfg.SubscriberBuffer), h, logger)

	// Build the router *with* the coordinator injected
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(svc, logger),
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
