package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Topiia/crypto-price-tracker/config"
	"github.com/Topiia/crypto-price-tracker/internal/stream"
	"github.com/Topiia/crypto-price-tracker/logger"
	"github.com/Topiia/crypto-price-tracker/pkg/storage/redisstore"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// zap logger
	logg, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := redisstore.New(cfg.Redis, cfg.Log.Environment, cfg.Assets, logg)
	defer store.Close()

	// No degraded no-store mode: shared state is the whole point.
	if !store.IsAvailable(ctx) {
		logg.Error("redis is unreachable",
			zap.String("addr", cfg.Redis.Addr(cfg.Log.Environment)))
		fmt.Fprintln(os.Stderr, redisstore.RemediationHint)
		os.Exit(1)
	}

	if err := store.Initialize(ctx, false); err != nil {
		logg.Fatal("failed to initialize prices", zap.Error(err))
	}

	policy, err := stream.ParseStoreErrorPolicy(cfg.Feed.OnStoreError)
	if err != nil {
		logg.Fatal("invalid feed config", zap.Error(err))
	}

	registry := stream.NewRegistry()
	broadcaster := stream.NewBroadcaster(store, registry, cfg.Feed.Interval, policy, logg)
	gateway := stream.NewGateway(registry, cfg.Stream.WriteTimeout, logg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Stream.Port),
		Handler: gateway,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- broadcaster.Run(ctx) }()
	go func() { errCh <- srv.ListenAndServe() }()

	logg.Info("stream server listening",
		zap.Int("port", cfg.Stream.Port),
		zap.Duration("interval", cfg.Feed.Interval))

	select {
	case <-ctx.Done():
		logg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("stream server failed", zap.Error(err))
		}
	}
}
