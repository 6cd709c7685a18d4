// spotmarket — a multi-user spot exchange.
//
// Architecture:
//
//	cmd/exchange          — cobra entry point: gateway, orders, users,
//	                        instruments and migrate subcommands
//	internal/gateway      — public HTTP/WebSocket surface (echo), JWT auth,
//	                        error-to-status mapping, trade stream hub
//	internal/rpc          — Redis work-queue runtime: named queues, result
//	                        futures, typed error codec, matching locks
//	internal/orders       — admission, matching, settlement, book/history
//	internal/users        — user lifecycle, deposits/withdrawals, balances
//	internal/instruments  — instrument registry
//	internal/store        — Postgres persistence (pgx), schema migration
//	pkg/types             — shared domain model and wire schemas
//	pkg/client            — Go SDK for the HTTP API
//
// Each subcommand runs one service; a deployment runs one gateway and at
// least one worker process per queue, all sharing Postgres and Redis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"spotmarket/internal/config"
	"spotmarket/internal/gateway"
	"spotmarket/internal/instruments"
	"spotmarket/internal/orders"
	"spotmarket/internal/rpc"
	"spotmarket/internal/store"
	"spotmarket/internal/users"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:          "exchange",
		Short:        "multi-user spot exchange services",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath(), "path to config file")

	root.AddCommand(
		gatewayCmd(&cfgPath),
		workerCmd(&cfgPath, "orders", "run the matching-and-settlement worker"),
		workerCmd(&cfgPath, "users", "run the users/balances worker"),
		workerCmd(&cfgPath, "instruments", "run the instrument registry worker"),
		migrateCmd(&cfgPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("SPOT_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// setup loads config and builds the logger every subcommand shares.
func setup(cfgPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return cfg, slog.New(handler), nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func gatewayCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "run the public HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx := signalContext()

			rdb := newRedis(cfg.Redis)
			defer rdb.Close()

			caller := rpc.NewClient(rdb, cfg.RPC.CallTimeout, cfg.RPC.ResultTTL)
			hub := gateway.NewHub(rdb, logger)
			srv := gateway.NewServer(cfg.Gateway, caller, hub, logger)

			go func() {
				<-ctx.Done()
				logger.Info("shutting down gateway")
				if err := srv.Stop(); err != nil {
					logger.Error("gateway shutdown failed", "error", err)
				}
			}()
			return srv.Start(ctx)
		},
	}
}

func workerCmd(cfgPath *string, queue, short string) *cobra.Command {
	return &cobra.Command{
		Use:   queue,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx := signalContext()

			db, err := store.Open(ctx, cfg.Database.DSN(), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			rdb := newRedis(cfg.Redis)
			defer rdb.Close()

			worker := rpc.NewWorker(rdb, queue, cfg.RPC.Workers, cfg.RPC.ResultTTL, logger)
			switch queue {
			case rpc.QueueOrders:
				locker := rpc.NewLocker(rdb, cfg.RPC.LockTTL)
				stream := orders.NewRedisTradeStream(rdb, logger)
				orders.NewService(db, locker, stream, logger).Register(worker)
			case rpc.QueueUsers:
				users.NewService(db, logger).Register(worker)
			case rpc.QueueInstruments:
				instruments.NewService(db, logger).Register(worker)
			}

			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			db, err := store.Open(ctx, cfg.Database.DSN(), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Migrate(ctx)
		},
	}
}
