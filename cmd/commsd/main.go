package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-comms/internal/api"
	"github.com/celerix-dev/celerix-comms/internal/config"
	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/internal/metrics"
	"github.com/celerix-dev/celerix-comms/internal/server"
	"github.com/celerix-dev/celerix-comms/internal/stats"
	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("commsd stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("COMMS_CONFIG"))
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)

	// The daemon always owns its data; StoreAddr only matters to clients.
	opts := cfg.StoreOptions(logger)
	opts.Addr = ""
	opts.MasterKey = nil
	store, err := sdk.OpenEmbedded(opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	keys, _ := store.Keys()
	logger.Info("store opened",
		slog.String("backend", cfg.Backend),
		slog.String("data_dir", cfg.DataDir),
		slog.Int("keys", len(keys)),
		slog.Int64("quota_bytes", cfg.QuotaBytes),
	)

	// Values written by sealing clients are only readable by the HTTP API
	// when it seals with the same key.
	var domainStore engine.Storage = store
	if cfg.MasterKey != "" {
		sealed, err := vault.Seal(store, cfg.StoreOptions(logger).MasterKey)
		if err != nil {
			return err
		}
		domainStore = sealed
	}

	bus := events.NewBus()
	bus.Subscribe(events.LogTo(logger))
	defer metrics.Observe(bus)()

	log := messages.New(domainStore, messages.WithLogger(logger), messages.WithBus(bus))
	archive := files.New(domainStore, append(cfg.ArchiveOptions(), files.WithLogger(logger), files.WithBus(bus))...)
	tracker := stats.New(domainStore, log, archive, stats.WithLogger(logger), stats.WithBus(bus))
	metrics.SetArchiveSizes(len(log.LoadAll().Value), len(archive.GetAll().Value))

	router := server.NewRouter(store)
	router.SetLogger(logger)
	if !cfg.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("generate TLS certificate: %w", err)
		}
		router.SetCertificate(cert)
		logger.Info("TLS enabled for the storage protocol")
	} else {
		logger.Warn("TLS disabled for the storage protocol")
	}

	gin.SetMode(gin.ReleaseMode)
	h := &api.Handler{Messages: log, Files: archive, Stats: tracker, Bus: bus, Logger: logger}
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Listen(cfg.Port)
	})
	g.Go(func() error {
		logger.Info("HTTP API listening", slog.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		return errors.Join(err, router.Stop())
	})

	return g.Wait()
}
