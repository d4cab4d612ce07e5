// Package domain holds the core data model, the cache and store interfaces,
// and the sentinel errors shared by every component.
package domain

import "time"

// Side tells which side of a potential trade a snapshot describes.
type Side string

const (
	// SideBuy is the acquisition side: the cheapest live listing.
	SideBuy Side = "buy"
	// SideSell is the disposal side: the price the item realistically
	// resells for, derived from recent sales.
	SideSell Side = "sell"
)

// MarketSnapshot is one observation of an item on one side of the market.
// Prices are integer minor units (cents); profit math never touches floats.
// A snapshot is immutable once created.
type MarketSnapshot struct {
	ItemKey       string
	Title         string
	Price         int64
	Quantity      int
	Sales24h      int
	AvgDailySales float64
	FloatValue    float64
	ObservedAt    time.Time
	Side          Side
}

// SnapshotPair joins the buy and sell observations of one logical item taken
// within the same scan cycle.
type SnapshotPair struct {
	Buy  MarketSnapshot
	Sell MarketSnapshot
}
