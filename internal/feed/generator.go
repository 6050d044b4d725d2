package feed

import (
	"math/rand"
	"time"

	"github.com/Topiia/crypto-price-tracker/pkg/market"

	"github.com/google/uuid"
)

const (
	// Per-step perturbation band: uniform factor in [1-maxMove, 1+maxMove).
	maxMove = 0.005

	minVolume = 1_000_000
	maxVolume = 10_000_000
)

// Perturb advances a price one random-walk step: a uniform multiplicative
// move within ±0.5%, rounded to 4 decimal places.
func Perturb(price float64) float64 {
	factor := 1 - maxMove + rand.Float64()*(2*maxMove)
	return market.Round4(price * factor)
}

// NewTickAt packages a price into a tick stamped at ts, with a fresh
// unique ID and a synthetic 24h volume.
func NewTickAt(assetID string, price float64, ts time.Time) market.Tick {
	return market.Tick{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		Timestamp: ts.UTC(),
		PriceUSD:  price,
		Volume24h: minVolume + rand.Int63n(maxVolume-minVolume+1),
	}
}

// Next derives the next live tick for an asset from its previous price,
// stamped at the current wall-clock time. It does not touch the price
// store; persisting the returned price is the caller's job.
func Next(assetID string, prev float64) market.Tick {
	return NewTickAt(assetID, Perturb(prev), time.Now().UTC())
}
