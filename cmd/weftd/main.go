// Command weftd serves the weft workflow engine over HTTP: graph
// publication, run submission and control, and live event streaming.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/volvoxlabs/weft/internal/config"
	"github.com/volvoxlabs/weft/internal/engine"
	"github.com/volvoxlabs/weft/internal/eventbus"
	"github.com/volvoxlabs/weft/internal/httpapi"
	"github.com/volvoxlabs/weft/internal/persistence"
	"github.com/volvoxlabs/weft/pkg/api"
	"github.com/volvoxlabs/weft/pkg/registry"
	"github.com/volvoxlabs/weft/pkg/volvox"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "weftd",
		Short: "weftd runs the weft workflow engine as an HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"volvox", cfg.Volvox.Endpoint != "",
	)

	reg := registry.New()
	if cfg.Volvox.Endpoint != "" {
		client := volvox.NewClient(cfg.Volvox.Endpoint, cfg.Volvox.Timeout)
		for _, desc := range client.Descriptors() {
			if err := reg.Register(desc); err != nil {
				return fmt.Errorf("register volvox tool %s: %w", desc.Name, err)
			}
		}
		logger.Info("volvox toolset registered", "tools", len(reg.Names()))
	}

	bus := eventbus.New()
	stores, cleanup, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer cleanup()

	eng := engine.NewEngineWithConfig(engine.Config{
		Persistence:    stores,
		Registry:       reg,
		Sink:           bus,
		Observer:       api.NewLoggingObserver(logger),
		DefaultTimeout: cfg.Engine.DefaultTimeout,
	})

	e := httpapi.NewServer(eng, bus, logger).Echo()
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close", "error", err)
			}
		}
		logger.Info("server stopped")
	}
	return nil
}

// openStores builds the persistence layer selected by the config. The
// returned cleanup closes any underlying connections.
func openStores(cfg *config.Config) (persistence.Persistence, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Store.SQLite.Path)
		if err != nil {
			return persistence.Persistence{}, noop, err
		}
		inst, err := persistence.NewSQLiteInstanceStore(db)
		if err != nil {
			db.Close()
			return persistence.Persistence{}, noop, err
		}
		events, err := persistence.NewSQLiteEventStore(db)
		if err != nil {
			db.Close()
			return persistence.Persistence{}, noop, err
		}
		return persistence.Persistence{
			Graphs:    persistence.NewInMemoryStore(),
			Instances: inst,
			Events:    events,
		}, func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return persistence.Persistence{
			Graphs:    persistence.NewInMemoryStore(),
			Instances: persistence.NewRedisInstanceStore(client, "weft:"),
			Events:    persistence.NewMemoryEventStore(),
		}, func() { client.Close() }, nil

	default:
		mem := persistence.NewInMemoryStore()
		return persistence.Persistence{
			Graphs:    mem,
			Instances: mem,
			Events:    persistence.NewMemoryEventStore(),
		}, noop, nil
	}
}
