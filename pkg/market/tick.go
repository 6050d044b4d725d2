package market

import (
	"math"
	"time"
)

// Tick is one timestamped price observation for a single asset.
// Ticks are immutable once created; they are only serialized and sent.
type Tick struct {
	ID        string    `json:"id"`         // unique per tick
	AssetID   string    `json:"asset_id"`   // tracked symbol, e.g. "BTC"
	Timestamp time.Time `json:"timestamp"`  // UTC, fractional seconds on the wire
	PriceUSD  float64   `json:"price_usd"`  // rounded to 4 decimal places
	Volume24h int64     `json:"volume_24h"` // synthetic trading volume
}

// Batch is the ordered set of ticks produced in one generation cycle,
// one per tracked asset, in tracked-asset enumeration order.
type Batch []Tick

// Round4 rounds a USD price to 4 decimal places, the display precision
// used on the wire.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
