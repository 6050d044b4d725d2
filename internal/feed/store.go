package feed

import "context"

// PriceStore is the shared per-asset price state both the snapshot and
// stream paths read from and advance. All writes are last-writer-wins
// per asset; there is no cross-asset atomicity to rely on.
type PriceStore interface {
	GetPrice(ctx context.Context, assetID string) (float64, error)
	SetPrice(ctx context.Context, assetID string, price float64) error
	TrackedAssets() []string
}
