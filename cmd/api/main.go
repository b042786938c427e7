package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/event"
	"github.com/congo-pay/wallet_ledger/internal/infra"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/routes"
	"github.com/congo-pay/wallet_ledger/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("app", cfg.AppName, "env", cfg.AppEnv)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.DBMigrate {
			if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
				logger.Error("migrate postgres", "error", err)
				os.Exit(1)
			}
		}
		db, err = infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using the in-memory backend")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	var publisher event.Publisher = event.NewLoggerPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		writer, err := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error("configure kafka", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		publisher = event.NewKafkaPublisher(writer)
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Publisher: publisher, Logger: logger})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
