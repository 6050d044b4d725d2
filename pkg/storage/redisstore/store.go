package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Topiia/crypto-price-tracker/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces per-asset price keys in Redis.
// Key existence doubles as the "already initialized" signal.
const KeyPrefix = "price:"

// ErrNotInitialized is returned when an asset's price is read before
// Initialize has seeded it.
var ErrNotInitialized = errors.New("asset price not initialized")

// RemediationHint is printed when Redis is unreachable at startup.
const RemediationHint = `Redis connection required.

Both servers keep their shared price state in Redis. Start it before
launching:

  Linux:   redis-server
  macOS:   brew services start redis
  Docker:  docker run -d -p 6379:6379 redis

If Redis runs elsewhere, point REDIS_HOST / REDIS_PORT at it (or set
redis.host / redis.port in config.yaml).`

// Store is the shared per-asset price state backed by Redis. Every call
// is a round trip; there is no local caching, so both the snapshot and
// stream servers always observe the same current price.
type Store struct {
	client *redis.Client
	assets []config.AssetConfig
	logger *zap.Logger
}

// New builds a Store for the given tracked asset set. It does not dial
// eagerly; use IsAvailable or Ping to verify connectivity at startup.
func New(cfg config.RedisConfig, env string, assets []config.AssetConfig, logger *zap.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(env),
		Password:     cfg.Credential(env),
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	return &Store{
		client: client,
		assets: assets,
		logger: logger,
	}
}

func key(assetID string) string {
	return KeyPrefix + assetID
}

// Initialize seeds every tracked asset's price. With force it overwrites
// unconditionally; otherwise existing values are left untouched (SETNX),
// which makes repeated startups idempotent.
func (s *Store) Initialize(ctx context.Context, force bool) error {
	for _, a := range s.assets {
		if force {
			if err := s.client.Set(ctx, key(a.ID), a.InitialPrice, 0).Err(); err != nil {
				return fmt.Errorf("initialize %s: %w", a.ID, err)
			}
			s.logger.Info("initialized asset price",
				zap.String("asset", a.ID), zap.Float64("price", a.InitialPrice))
			continue
		}

		set, err := s.client.SetNX(ctx, key(a.ID), a.InitialPrice, 0).Result()
		if err != nil {
			return fmt.Errorf("initialize %s: %w", a.ID, err)
		}
		if set {
			s.logger.Info("initialized asset price",
				zap.String("asset", a.ID), zap.Float64("price", a.InitialPrice))
		} else {
			s.logger.Info("using existing asset price", zap.String("asset", a.ID))
		}
	}
	return nil
}

// GetPrice reads the current price for an asset. Reading an asset that
// was never initialized yields ErrNotInitialized.
func (s *Store) GetPrice(ctx context.Context, assetID string) (float64, error) {
	price, err := s.client.Get(ctx, key(assetID)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", ErrNotInitialized, assetID)
	}
	if err != nil {
		return 0, fmt.Errorf("get price for %s: %w", assetID, err)
	}
	return price, nil
}

// SetPrice overwrites the current price for an asset. The value is not
// validated; price sanity is the caller's responsibility.
func (s *Store) SetPrice(ctx context.Context, assetID string, price float64) error {
	if err := s.client.Set(ctx, key(assetID), price, 0).Err(); err != nil {
		return fmt.Errorf("set price for %s: %w", assetID, err)
	}
	return nil
}

// TrackedAssets returns the tracked symbol IDs in configuration order.
func (s *Store) TrackedAssets() []string {
	ids := make([]string, len(s.assets))
	for i, a := range s.assets {
		ids[i] = a.ID
	}
	return ids
}

// IsAvailable reports whether Redis answers a ping. It never returns an
// error; any connectivity failure maps to false.
func (s *Store) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// Ping verifies connectivity, surfacing the underlying error.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
