package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Topiia/crypto-price-tracker/internal/feed"
	"github.com/Topiia/crypto-price-tracker/pkg/market"

	"go.uber.org/zap"
)

// StoreErrorPolicy controls how the broadcaster reacts when advancing an
// asset's price fails against the shared store mid-run.
type StoreErrorPolicy string

const (
	// SkipAsset leaves the failed asset out of this cycle's batch and
	// retries it next cycle.
	SkipAsset StoreErrorPolicy = "skip"
	// Abort stops the broadcaster on the first store failure.
	Abort StoreErrorPolicy = "abort"
)

// ParseStoreErrorPolicy validates a configured policy string.
func ParseStoreErrorPolicy(s string) (StoreErrorPolicy, error) {
	switch StoreErrorPolicy(s) {
	case SkipAsset, Abort:
		return StoreErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid on_store_error policy: %q", s)
	}
}

// Broadcaster drives the periodic tick loop: advance every tracked
// asset's price through the shared store, serialize the batch once, and
// fan it out to every registered subscriber, evicting any subscriber
// whose delivery fails.
type Broadcaster struct {
	store    feed.PriceStore
	registry *Registry
	interval time.Duration
	policy   StoreErrorPolicy
	logger   *zap.Logger
}

func NewBroadcaster(store feed.PriceStore, registry *Registry, interval time.Duration,
	policy StoreErrorPolicy, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		store:    store,
		registry: registry,
		interval: interval,
		policy:   policy,
		logger:   logger,
	}
}

// Run loops Cycle until ctx is cancelled. The only error it surfaces is
// a store failure under the Abort policy.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("broadcaster started",
		zap.Duration("interval", b.interval),
		zap.Strings("assets", b.store.TrackedAssets()))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.Cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Cycle advances all tracked assets once and delivers the resulting
// batch to a point-in-time snapshot of the subscriber set. Sends run
// concurrently and independently; a dead subscriber is removed the
// moment its send fails and never delays the others.
func (b *Broadcaster) Cycle(ctx context.Context) error {
	batch, err := b.advance(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	subs := b.registry.Snapshot()
	b.logger.Debug("broadcasting batch",
		zap.Int("ticks", len(batch)), zap.Int("subscribers", len(subs)))

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := c.Send(payload); err != nil {
				b.evict(c, err)
			}
		}(sub)
	}
	wg.Wait()

	return nil
}

// advance produces one tick per tracked asset, persisting each new price
// back to the store. Under SkipAsset a store failure drops that asset
// from the batch for this cycle only.
func (b *Broadcaster) advance(ctx context.Context) (market.Batch, error) {
	assets := b.store.TrackedAssets()
	batch := make(market.Batch, 0, len(assets))

	for _, id := range assets {
		prev, err := b.store.GetPrice(ctx, id)
		if err != nil {
			if b.policy == Abort {
				return nil, fmt.Errorf("advance %s: %w", id, err)
			}
			b.logger.Warn("skipping asset this cycle",
				zap.String("asset", id), zap.Error(err))
			continue
		}

		tick := feed.Next(id, prev)

		if err := b.store.SetPrice(ctx, id, tick.PriceUSD); err != nil {
			if b.policy == Abort {
				return nil, fmt.Errorf("advance %s: %w", id, err)
			}
			b.logger.Warn("skipping asset this cycle",
				zap.String("asset", id), zap.Error(err))
			continue
		}

		batch = append(batch, tick)
	}

	return batch, nil
}

func (b *Broadcaster) evict(c Conn, sendErr error) {
	removed := b.registry.Remove(c)
	_ = c.Close()
	if !removed {
		// Connection cleanup got there first.
		return
	}

	reason := FailureProtocol.String()
	var se *SendError
	if errors.As(sendErr, &se) {
		reason = se.Kind.String()
	}

	b.logger.Info("evicted dead subscriber",
		zap.String("remote", c.RemoteAddr()),
		zap.String("reason", reason),
		zap.Int("remaining", b.registry.Len()))
}
