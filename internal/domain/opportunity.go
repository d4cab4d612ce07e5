package domain

import (
	"sort"
	"time"
)

// Opportunity is a priced item whose net profit after fees clears the
// configured margin threshold. Immutable once created by the detector.
type Opportunity struct {
	ID         string
	ItemKey    string
	Title      string
	BuyPrice   int64
	SellPrice  int64
	Fee        int64
	NetProfit  int64
	MarginPct  float64
	ComputedAt time.Time
}

// SortOpportunities orders opportunities for presentation: margin descending,
// ties broken by absolute net profit descending, then item key ascending so
// repeated runs over the same inputs produce identical output.
func SortOpportunities(opps []Opportunity) {
	sort.Slice(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.MarginPct != b.MarginPct {
			return a.MarginPct > b.MarginPct
		}
		if a.NetProfit != b.NetProfit {
			return a.NetProfit > b.NetProfit
		}
		return a.ItemKey < b.ItemKey
	})
}
