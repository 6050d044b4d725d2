package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Topiia/crypto-price-tracker/internal/feed"
	"github.com/Topiia/crypto-price-tracker/pkg/market"

	"go.uber.org/zap"
)

// memStore is an in-memory feed.PriceStore for broadcaster tests.
type memStore struct {
	mu     sync.Mutex
	order  []string
	prices map[string]float64
	getErr map[string]error
	setErr map[string]error
}

func newMemStore(prices map[string]float64, order []string) *memStore {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &memStore{
		order:  order,
		prices: cp,
		getErr: make(map[string]error),
		setErr: make(map[string]error),
	}
}

func (m *memStore) GetPrice(_ context.Context, assetID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[assetID]; err != nil {
		return 0, err
	}
	p, ok := m.prices[assetID]
	if !ok {
		return 0, fmt.Errorf("asset %s not initialized", assetID)
	}
	return p, nil
}

func (m *memStore) SetPrice(_ context.Context, assetID string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErr[assetID]; err != nil {
		return err
	}
	m.prices[assetID] = price
	return nil
}

func (m *memStore) TrackedAssets() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *memStore) price(assetID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prices[assetID]
}

func fourAssetStore() *memStore {
	return newMemStore(
		map[string]float64{"BTC": 60000, "ETH": 3500, "SOL": 150, "DOGE": 0.15},
		[]string{"BTC", "ETH", "SOL", "DOGE"},
	)
}

func TestCycleFansOutToAllLiveSubscribers(t *testing.T) {
	store := fourAssetStore()
	registry := NewRegistry()
	b := NewBroadcaster(store, registry, time.Second, SkipAsset, zap.NewNop())

	live := []*stubConn{{name: "l1"}, {name: "l2"}, {name: "l3"}}
	for _, c := range live {
		registry.Add(c)
	}

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range live {
		if c.sentCount() != 1 {
			t.Fatalf("subscriber %s received %d messages, want 1", c.name, c.sentCount())
		}

		var batch market.Batch
		if err := json.Unmarshal(c.lastSent(), &batch); err != nil {
			t.Fatalf("payload is not a tick batch: %v", err)
		}
		if len(batch) != 4 {
			t.Fatalf("batch has %d ticks, want 4", len(batch))
		}
		for i, id := range store.TrackedAssets() {
			if batch[i].AssetID != id {
				t.Fatalf("batch[%d].AssetID = %s, want %s (enumeration order)", i, batch[i].AssetID, id)
			}
		}
	}
}

func TestCycleEvictsDeadSubscribersImmediately(t *testing.T) {
	store := fourAssetStore()
	registry := NewRegistry()
	b := NewBroadcaster(store, registry, time.Second, SkipAsset, zap.NewNop())

	live := []*stubConn{{name: "l1"}, {name: "l2"}, {name: "l3"}}
	dead := []*stubConn{
		{name: "d1", sendErr: &SendError{Kind: FailureClosed, Err: errors.New("broken pipe")}},
		{name: "d2", sendErr: errors.New("some transport error")},
	}
	for _, c := range live {
		registry.Add(c)
	}
	for _, c := range dead {
		registry.Add(c)
	}

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if registry.Len() != len(live) {
		t.Fatalf("registry has %d subscribers after cycle, want %d", registry.Len(), len(live))
	}
	for _, c := range dead {
		if !c.wasClosed() {
			t.Errorf("evicted subscriber %s was not closed", c.name)
		}
	}
	for _, c := range live {
		if c.sentCount() != 1 {
			t.Errorf("live subscriber %s received %d messages, want 1", c.name, c.sentCount())
		}
	}
}

func TestCycleAdvancesPricesThroughStore(t *testing.T) {
	store := fourAssetStore()
	registry := NewRegistry()
	b := NewBroadcaster(store, registry, time.Second, SkipAsset, zap.NewNop())

	before := map[string]float64{}
	for _, id := range store.TrackedAssets() {
		before[id] = store.price(id)
	}

	capture := &stubConn{name: "cap"}
	registry.Add(capture)

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var batch market.Batch
	if err := json.Unmarshal(capture.lastSent(), &batch); err != nil {
		t.Fatalf("payload is not a tick batch: %v", err)
	}

	for _, tick := range batch {
		ratio := tick.PriceUSD / before[tick.AssetID]
		if ratio < 0.9949 || ratio > 1.0051 {
			t.Errorf("%s moved by ratio %v, outside the ±0.5%% band", tick.AssetID, ratio)
		}
		if got := store.price(tick.AssetID); got != tick.PriceUSD {
			t.Errorf("store price for %s = %v, want broadcast price %v", tick.AssetID, got, tick.PriceUSD)
		}
	}
}

func TestCycleSkipsAssetOnStoreError(t *testing.T) {
	store := fourAssetStore()
	store.getErr["ETH"] = errors.New("redis: connection refused")
	registry := NewRegistry()
	b := NewBroadcaster(store, registry, time.Second, SkipAsset, zap.NewNop())

	capture := &stubConn{name: "cap"}
	registry.Add(capture)

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("skip policy must not surface store errors, got: %v", err)
	}

	var batch market.Batch
	if err := json.Unmarshal(capture.lastSent(), &batch); err != nil {
		t.Fatalf("payload is not a tick batch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch has %d ticks, want 3 (ETH skipped)", len(batch))
	}
	for _, tick := range batch {
		if tick.AssetID == "ETH" {
			t.Fatal("skipped asset appeared in the batch")
		}
	}
}

func TestCycleAbortsOnStoreErrorWhenConfigured(t *testing.T) {
	store := fourAssetStore()
	storeErr := errors.New("redis: connection refused")
	store.getErr["BTC"] = storeErr
	registry := NewRegistry()
	b := NewBroadcaster(store, registry, time.Second, Abort, zap.NewNop())

	err := b.Cycle(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error under abort policy, got %v", err)
	}
}

func TestSnapshotThenStreamContinuity(t *testing.T) {
	store := fourAssetStore()
	backfiller := feed.NewBackfiller(store, zap.NewNop())

	snapshot, err := backfiller.Backfill(context.Background(), 3)
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	// Last snapshot price per asset.
	last := map[string]float64{}
	for _, tick := range snapshot {
		last[tick.AssetID] = tick.PriceUSD // ascending order, later wins
	}

	registry := NewRegistry()
	capture := &stubConn{name: "cap"}
	registry.Add(capture)
	b := NewBroadcaster(store, registry, time.Second, SkipAsset, zap.NewNop())

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var batch market.Batch
	if err := json.Unmarshal(capture.lastSent(), &batch); err != nil {
		t.Fatalf("payload is not a tick batch: %v", err)
	}

	for _, tick := range batch {
		ratio := tick.PriceUSD / last[tick.AssetID]
		if ratio < 0.9949 || ratio > 1.0051 {
			t.Errorf("first live %s price %v is not within ±0.5%% of snapshot's last price %v",
				tick.AssetID, tick.PriceUSD, last[tick.AssetID])
		}
	}
}

func TestParseStoreErrorPolicy(t *testing.T) {
	if _, err := ParseStoreErrorPolicy("skip"); err != nil {
		t.Errorf("skip rejected: %v", err)
	}
	if _, err := ParseStoreErrorPolicy("abort"); err != nil {
		t.Errorf("abort rejected: %v", err)
	}
	if _, err := ParseStoreErrorPolicy("explode"); err == nil {
		t.Error("invalid policy accepted")
	}
}
