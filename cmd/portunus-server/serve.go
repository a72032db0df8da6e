package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Portunus/controller/internal/app"
	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
	"github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/health"
	"github.com/BrandonDHaskell/Portunus/controller/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/controller/internal/siteconfig"
	"github.com/BrandonDHaskell/Portunus/controller/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the controller (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "portunus-server", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, pruneTargets, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.SiteConfig != "" {
		site, err := siteconfig.Load(cfg.SiteConfig)
		if err != nil {
			return fmt.Errorf("site config: %w", err)
		}
		if err := site.Apply(ctx, siteconfig.Stores{
			Readers:  stores.Readers,
			Mapping:  stores.Mapping,
			Feedback: stores.Feedback,
		}); err != nil {
			return fmt.Errorf("apply site config: %w", err)
		}
		logger.Info("site config applied", "path", cfg.SiteConfig, "readers", len(site.Readers))
	}

	m := metrics.New(prometheus.NewRegistry())

	hs, err := health.New(cfg.GRPCAddr, logger.With("component", "health"))
	if err != nil {
		return err
	}

	a := app.New(stores, app.Options{
		PluginDir:        cfg.PluginDir,
		PluginPattern:    cfg.PluginPattern,
		PinTimeout:       cfg.PinTimeout,
		PinMaxLength:     cfg.PinMaxLength,
		FeedbackQueueLen: cfg.FeedbackQueueLen,
		BusBuffer:        cfg.BusBuffer,
		Health:           hs,
		Metrics:          m,
		Logger:           logger,
	})

	if err := a.Plugins.Watch(ctx); err != nil {
		logger.Warn("plugin directory not watched; use reload to pick up changes", "error", err)
	}
	if _, err := a.Plugins.LoadPlugins(ctx); err != nil {
		logger.Error("initial plugin load failed", "error", err)
	}

	pruner := service.NewPruner(pruneTargets, service.PrunerConfig{
		RetentionDays: cfg.EventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger.With("component", "pruner"))
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger.With("component", "http"),
		Addr:      cfg.HTTPAddr,
		Pipeline:  a.Pipeline,
		Collector: a.Collector,
		Readers:   a.Readers,
		Status:    a.Status,
		Outbox:    a.Outbox,
		Plugins:   a.Plugins,
		Bus:       a.Bus,
		Metrics:   m.Handler(),
	})

	go func() {
		if err := hs.Serve(ctx); err != nil {
			logger.Error("health server error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("app shutdown failed", "error", err)
	}
	return nil
}

// openStores builds the configured store set and the history tables the
// pruner trims.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.Stores, map[string]service.PruneTarget, func(), error) {
	if cfg.Store == "memory" {
		events := memory.NewAccessEventStore()
		status := memory.NewStatusStore()
		st := app.Stores{
			Readers:  memory.NewReaderStore(),
			Mapping:  memory.NewReaderPluginStore(),
			Feedback: memory.NewFeedbackStore(),
			Events:   events,
			Status:   status,
		}
		if cfg.Env == "dev" {
			if err := seedMemory(ctx, st); err != nil {
				return app.Stores{}, nil, nil, err
			}
		}
		targets := map[string]service.PruneTarget{"access_events": events, "reader_status": status}
		return st, targets, func() {}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env, Logger: logger})
	if err != nil {
		return app.Stores{}, nil, nil, err
	}
	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn, allowAllID()); err != nil {
			_ = conn.Close()
			return app.Stores{}, nil, nil, err
		}
	}

	writer := db.NewWorker(conn)
	events := sqlite.NewAccessEventStore(conn, writer)
	status := sqlite.NewStatusStore(conn, writer)
	st := app.Stores{
		Readers:  sqlite.NewReaderStore(conn, writer),
		Mapping:  sqlite.NewReaderPluginStore(conn, writer),
		Feedback: sqlite.NewFeedbackStore(conn, writer),
		Events:   events,
		Status:   status,
	}
	targets := map[string]service.PruneTarget{"access_events": events, "reader_status": status}
	return st, targets, closeDB(conn, writer, logger), nil
}

func closeDB(conn *sql.DB, writer *db.Worker, logger *slog.Logger) func() {
	return func() {
		writer.Close()
		if err := conn.Close(); err != nil {
			logger.Warn("db close failed", "error", err)
		}
	}
}

// allowAllID is the ID the registry derives for an allow_all manifest that
// sets neither id nor name.
func allowAllID() string {
	factory, ok := plugin.DefaultCatalog().Lookup("allow_all")
	if !ok {
		return ""
	}
	p := factory()
	return plugin.DeriveID(p.Name(), p.Version())
}

func seedMemory(ctx context.Context, st app.Stores) error {
	if err := st.Readers.UpsertReader(ctx, types.Reader{
		ID:           "reader-001",
		Name:         "Main Entrance",
		Enabled:      true,
		SecurityMode: types.SecurityClearText,
	}); err != nil {
		return fmt.Errorf("seed reader: %w", err)
	}
	if id := allowAllID(); id != "" {
		return st.Mapping.SetPluginsForReader(ctx, "reader-001", []string{id})
	}
	return nil
}
