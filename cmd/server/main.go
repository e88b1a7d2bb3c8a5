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

	"github.com/campus-canteen/api/internal/config"
	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/logger"
	"github.com/campus-canteen/api/internal/notify"
	"github.com/campus-canteen/api/internal/router"
	"github.com/campus-canteen/api/internal/ws"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.Env); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if cfg.MigrateOnStart {
		applied, err := database.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Log.Info("migrations checked", zap.Bool("applied", applied))
	}

	hub := ws.NewHub()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })

	// The hub serves local sockets. With Redis every instance relays through
	// the topic instead, so publishing goes to the bridge.
	var realtime notify.Notifier = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		bridge := notify.NewRedisBridge(client, "", hub)
		g.Go(func() error { return bridge.Run(gctx) })
		realtime = bridge
		logger.Log.Info("redis bridge enabled")
	}

	notifier := notify.Multi{realtime}
	if cfg.AMQPURL != "" {
		exporter, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer exporter.Close() //nolint:errcheck

		g.Go(func() error { return exporter.Run(gctx) })
		notifier = append(notifier, exporter)
		logger.Log.Info("amqp export enabled", zap.String("exchange", cfg.AMQPExchange))
	}

	queries := database.New(pool)
	r := router.New(cfg, queries, pool, hub, notifier)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
