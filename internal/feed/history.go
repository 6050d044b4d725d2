package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Topiia/crypto-price-tracker/pkg/market"

	"go.uber.org/zap"
)

// Each backfill step lands a random 5–15 seconds before the previous one.
const (
	minStepSeconds = 5
	maxStepSeconds = 15
)

// Backfiller produces synthetic historical ticks that terminate exactly
// at the live baseline price, so a snapshot and the subsequent stream
// form one continuous timeline per asset.
type Backfiller struct {
	store  PriceStore
	logger *zap.Logger
}

func NewBackfiller(store PriceStore, logger *zap.Logger) *Backfiller {
	return &Backfiller{store: store, logger: logger}
}

// Backfill generates n historical ticks per tracked asset, sorted
// ascending by timestamp, and commits each asset's final working price
// back to the store. That committed price is the one carried by the
// chronologically newest tick, so the live feed picks up exactly where
// the snapshot ends. n <= 0 yields an empty batch and writes nothing.
func (b *Backfiller) Backfill(ctx context.Context, n int) (market.Batch, error) {
	if n <= 0 {
		return market.Batch{}, nil
	}

	assets := b.store.TrackedAssets()
	working := make(map[string]float64, len(assets))
	for _, id := range assets {
		price, err := b.store.GetPrice(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read baseline for %s: %w", id, err)
		}
		working[id] = price
	}

	// Cumulative backward offsets: offsets[0] is nearest to now,
	// offsets[n-1] is the furthest past, strictly monotonic.
	offsets := make([]time.Duration, n)
	var back time.Duration
	for i := range offsets {
		step := minStepSeconds + rand.Float64()*(maxStepSeconds-minStepSeconds)
		back += time.Duration(step * float64(time.Second))
		offsets[i] = back
	}

	now := time.Now().UTC()
	batch := make(market.Batch, 0, n*len(assets))

	// Walk the steps oldest-first so prices chain forward through time
	// and end at the value committed below.
	for i := n - 1; i >= 0; i-- {
		ts := now.Add(-offsets[i])
		for _, id := range assets {
			next := Perturb(working[id])
			batch = append(batch, NewTickAt(id, next, ts))
			working[id] = next
		}
	}

	// Already near-sorted; the stable sort keeps the per-step asset
	// enumeration order for ticks sharing a timestamp.
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})

	for _, id := range assets {
		if err := b.store.SetPrice(ctx, id, working[id]); err != nil {
			return nil, fmt.Errorf("commit baseline for %s: %w", id, err)
		}
		b.logger.Debug("history baseline committed",
			zap.String("asset", id), zap.Float64("price", working[id]))
	}

	return batch, nil
}
