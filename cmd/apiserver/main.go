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
	"github.com/Topiia/crypto-price-tracker/internal/api"
	"github.com/Topiia/crypto-price-tracker/internal/feed"
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

	backfiller := feed.NewBackfiller(store, logg)
	server := api.NewServer(backfiller, cfg.API.Path, cfg.Feed.HistorySize, logg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logg.Info("api server listening",
		zap.Int("port", cfg.API.Port),
		zap.String("path", cfg.API.Path),
		zap.Int("history_size", cfg.Feed.HistorySize))

	select {
	case <-ctx.Done():
		logg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("api server failed", zap.Error(err))
		}
	}
}
