// Package arbitrage computes achievable net profit for buy/sell snapshot
// pairs and filters candidates through a configurable policy chain. The
// detector is pure computation: no I/O, no clocks other than the snapshot
// timestamps, integer money throughout.
package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"skinarb/internal/domain"
)

// Rejection reasons produced by the detector itself (the filter chain has
// its own, see filters.go).
const (
	ReasonInvalidBuyPrice = "invalid-buy-price"
	ReasonUnprofitable    = "unprofitable"
	ReasonBelowMargin     = "below-margin"
)

// Result is the outcome of one detection: either an opportunity or the first
// reason the pair was rejected.
type Result struct {
	Opportunity domain.Opportunity
	OK          bool
	Reason      string
}

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	// Policy is the filter chain every candidate must pass.
	Policy FilterPolicy
	// MinMarginPct is the caller-supplied profit floor in percent.
	MinMarginPct float64
}

// Detector evaluates snapshot pairs against the fee model and filter policy.
type Detector struct {
	cfg DetectorConfig
	now func() time.Time
}

// NewDetector creates a Detector using the wall clock for ComputedAt stamps.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg, now: time.Now}
}

// NewDetectorWithClock creates a Detector with an injected clock.
func NewDetectorWithClock(cfg DetectorConfig, now func() time.Time) *Detector {
	return &Detector{cfg: cfg, now: now}
}

// Detect evaluates one buy/sell pair. Net profit is
//
//	sell.Price - buy.Price - fees(sell.Price)
//
// and an opportunity is emitted only when the filter chain passes, net
// profit is positive, and the margin clears MinMarginPct. A non-positive buy
// price is rejected as invalid input before any margin math. The fee model
// is a parameter because commissions differ per game.
func (d *Detector) Detect(buy, sell domain.MarketSnapshot, fees FeeModel) Result {
	if buy.Price <= 0 {
		return Result{Reason: ReasonInvalidBuyPrice}
	}

	pair := domain.SnapshotPair{Buy: buy, Sell: sell}
	if ok, reason := d.cfg.Policy.Evaluate(pair); !ok {
		return Result{Reason: reason}
	}

	fee := fees.Apply(sell.Price)
	net := sell.Price - buy.Price - fee
	if net <= 0 {
		return Result{Reason: ReasonUnprofitable}
	}

	margin := float64(net) / float64(buy.Price) * 100
	if margin < d.cfg.MinMarginPct {
		return Result{Reason: fmt.Sprintf("%s: %.2f%% < %.2f%%", ReasonBelowMargin, margin, d.cfg.MinMarginPct)}
	}

	return Result{
		OK: true,
		Opportunity: domain.Opportunity{
			ID:         uuid.NewString(),
			ItemKey:    buy.ItemKey,
			Title:      buy.Title,
			BuyPrice:   buy.Price,
			SellPrice:  sell.Price,
			Fee:        fee,
			NetProfit:  net,
			MarginPct:  margin,
			ComputedAt: d.now(),
		},
	}
}
