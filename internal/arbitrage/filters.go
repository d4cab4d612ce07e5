package arbitrage

import (
	"fmt"
	"strings"

	"skinarb/internal/domain"
)

// Rejection reasons surfaced by the built-in predicates.
const (
	ReasonBlacklist  = "blacklist"
	ReasonFloatRange = "float-range"
	ReasonLiquidity  = "liquidity"
	ReasonOverprice  = "overprice"
)

// Predicate is one pure filter over a snapshot pair. It returns ok, or the
// reason the pair was rejected.
type Predicate struct {
	Name  string
	Check func(pair domain.SnapshotPair) (ok bool, reason string)
}

// FilterPolicy is an ordered chain of predicates. Evaluation short-circuits
// on the first rejection; the outcome is the logical AND of all predicates,
// so ordering only affects which reason is surfaced.
type FilterPolicy struct {
	predicates []Predicate
}

// NewFilterPolicy builds a policy from the given predicates, evaluated in
// order.
func NewFilterPolicy(predicates ...Predicate) FilterPolicy {
	return FilterPolicy{predicates: predicates}
}

// Evaluate runs the chain. On rejection it returns false and the first
// failing predicate's reason.
func (p FilterPolicy) Evaluate(pair domain.SnapshotPair) (bool, string) {
	for _, pred := range p.predicates {
		if ok, reason := pred.Check(pair); !ok {
			return false, reason
		}
	}
	return true, ""
}

// FilterConfig holds the tunable thresholds for the standard policy chain.
// All of these are operator policy, not algorithm constants.
type FilterConfig struct {
	// BlacklistTerms rejects items whose title contains any term,
	// case-insensitively (souvenirs, stickers, containers, ...).
	BlacklistTerms []string
	// FloatMin/FloatMax bound the acceptable wear float. Both zero disables
	// the check; snapshots without a float (FloatValue == 0) always pass.
	FloatMin float64
	FloatMax float64
	// MinSales24h and MinAvgDailySales gate illiquid items out.
	MinSales24h      int
	MinAvgDailySales float64
	// MaxOverpriceRatio caps sell/buy; spreads beyond it are treated as
	// stale or manipulated listings rather than opportunities. Zero
	// disables the check.
	MaxOverpriceRatio float64
}

// StandardPolicy assembles the default chain from config: blacklist, float
// range, liquidity, overprice ratio.
func StandardPolicy(cfg FilterConfig) FilterPolicy {
	terms := make([]string, 0, len(cfg.BlacklistTerms))
	for _, t := range cfg.BlacklistTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}

	return NewFilterPolicy(
		Predicate{
			Name: ReasonBlacklist,
			Check: func(pair domain.SnapshotPair) (bool, string) {
				title := strings.ToLower(pair.Buy.Title)
				for _, term := range terms {
					if strings.Contains(title, term) {
						return false, ReasonBlacklist
					}
				}
				return true, ""
			},
		},
		Predicate{
			Name: ReasonFloatRange,
			Check: func(pair domain.SnapshotPair) (bool, string) {
				if cfg.FloatMin == 0 && cfg.FloatMax == 0 {
					return true, ""
				}
				fv := pair.Buy.FloatValue
				if fv == 0 {
					return true, ""
				}
				if fv < cfg.FloatMin || (cfg.FloatMax > 0 && fv > cfg.FloatMax) {
					return false, fmt.Sprintf("%s: %.4f outside [%.4f, %.4f]", ReasonFloatRange, fv, cfg.FloatMin, cfg.FloatMax)
				}
				return true, ""
			},
		},
		Predicate{
			Name: ReasonLiquidity,
			Check: func(pair domain.SnapshotPair) (bool, string) {
				if cfg.MinSales24h > 0 && pair.Sell.Sales24h < cfg.MinSales24h {
					return false, fmt.Sprintf("%s: %d sales in 24h, need %d", ReasonLiquidity, pair.Sell.Sales24h, cfg.MinSales24h)
				}
				if cfg.MinAvgDailySales > 0 && pair.Sell.AvgDailySales < cfg.MinAvgDailySales {
					return false, fmt.Sprintf("%s: %.2f avg daily sales, need %.2f", ReasonLiquidity, pair.Sell.AvgDailySales, cfg.MinAvgDailySales)
				}
				return true, ""
			},
		},
		Predicate{
			Name: ReasonOverprice,
			Check: func(pair domain.SnapshotPair) (bool, string) {
				if cfg.MaxOverpriceRatio <= 0 || pair.Buy.Price <= 0 {
					return true, ""
				}
				ratio := float64(pair.Sell.Price) / float64(pair.Buy.Price)
				if ratio > cfg.MaxOverpriceRatio {
					return false, fmt.Sprintf("%s: ratio %.2f exceeds %.2f", ReasonOverprice, ratio, cfg.MaxOverpriceRatio)
				}
				return true, ""
			},
		},
	)
}
