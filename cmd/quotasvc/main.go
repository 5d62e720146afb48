package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sjkd23/raidquota/pkg/cache"
	"github.com/sjkd23/raidquota/pkg/config"
	"github.com/sjkd23/raidquota/pkg/db"
	"github.com/sjkd23/raidquota/pkg/quota"
	"github.com/sjkd23/raidquota/pkg/repository"
	"github.com/sjkd23/raidquota/pkg/server"
)

func main() {
	var (
		addr       = flag.String("addr", envOr("ADDR", ":8080"), "listen address")
		configPath = flag.String("config", envOr("CONFIG_PATH", "dungeons.json"), "path to dungeons.json")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	loader := config.NewConfigLoader(*configPath, logger)
	catalog, err := loader.LoadConfig()
	if err != nil {
		logger.Error("failed to load dungeon catalog", "error", err)
		os.Exit(1)
	}
	dungeons := cache.NewInMemoryDungeonCache(catalog, *configPath, logger)

	database, err := db.Open(db.NewConfigFromEnv())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	if err := db.EnsureSchema(context.Background(), database); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	events := repository.NewPostgresEventRepository(database)
	snapshots := repository.NewPostgresSnapshotRepository(database)
	keyPops := repository.NewPostgresKeyPopRepository(database)
	configs := repository.NewPostgresConfigRepository(database)
	stats := repository.NewPostgresStatsRepository(database)

	ledger := quota.NewLedger(events, logger)
	resolver := quota.NewResolver(configs, dungeons)
	roleConfigs := quota.NewRoleConfigService(configs, logger)
	awards := quota.NewAwardEngine(ledger, resolver, snapshots, keyPops, logger)
	aggregator := quota.NewAggregator(stats)

	srv := server.New(ledger, resolver, roleConfigs, awards, aggregator, configs, logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("quota service listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdown
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
