package marketplace

import (
	"sort"
	"time"

	"skinarb/internal/domain"
)

// marketItemsResponse is the wire shape of GET /exchange/v1/market/items.
type marketItemsResponse struct {
	Objects []marketItem `json:"objects"`
	Total   int          `json:"total"`
}

// marketItem is one live listing. Price is in integer minor units.
type marketItem struct {
	ItemID string `json:"itemId"`
	Title  string `json:"title"`
	GameID string `json:"gameId"`
	Price  int64  `json:"price"`
	Amount int    `json:"amount"`
	Extra  struct {
		FloatValue float64 `json:"floatValue"`
	} `json:"extra"`
}

// toSnapshot converts a listing into a buy-side snapshot.
func (m marketItem) toSnapshot(observedAt time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		ItemKey:    m.ItemID,
		Title:      m.Title,
		Price:      m.Price,
		Quantity:   m.Amount,
		FloatValue: m.Extra.FloatValue,
		ObservedAt: observedAt,
		Side:       domain.SideBuy,
	}
}

// lastSalesResponse is the wire shape of GET /trade-aggregator/v1/last-sales.
type lastSalesResponse struct {
	Sales []sale `json:"sales"`
}

// sale is one completed transaction from the trade history.
type sale struct {
	Price  int64 `json:"price"`
	SoldAt int64 `json:"soldAt"` // unix seconds
}

// salesWindow is the span the trade-history endpoint reports over; the
// average-daily-sales figure is derived from it.
const salesWindow = 7 * 24 * time.Hour

// toSellSnapshot derives the sell-side snapshot from recent sales: the
// median sale price as the achievable sell price, plus the liquidity
// counters the filter chain gates on.
func (r lastSalesResponse) toSellSnapshot(itemKey, title string, observedAt time.Time) (domain.MarketSnapshot, bool) {
	if len(r.Sales) == 0 {
		return domain.MarketSnapshot{}, false
	}

	prices := make([]int64, 0, len(r.Sales))
	sales24h := 0
	dayAgo := observedAt.Add(-24 * time.Hour).Unix()
	for _, s := range r.Sales {
		prices = append(prices, s.Price)
		if s.SoldAt >= dayAgo {
			sales24h++
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	median := prices[len(prices)/2]
	if len(prices)%2 == 0 {
		median = (prices[len(prices)/2-1] + prices[len(prices)/2]) / 2
	}

	days := salesWindow.Hours() / 24
	return domain.MarketSnapshot{
		ItemKey:       itemKey,
		Title:         title,
		Price:         median,
		Quantity:      len(r.Sales),
		Sales24h:      sales24h,
		AvgDailySales: float64(len(r.Sales)) / days,
		ObservedAt:    observedAt,
		Side:          domain.SideSell,
	}, true
}

// feeRatesResponse is the wire shape of GET /exchange/v1/customized-fees.
type feeRatesResponse struct {
	DefaultFeeBps int64 `json:"defaultFeeBps"`
	MinFee        int64 `json:"minFee"`
}

// FeeRate is the marketplace's sale commission for a game.
type FeeRate struct {
	SaleFeeBps int64
	MinFee     int64
}

// userResponse is the wire shape of GET /account/v1/user.
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

// User is the authenticated account identity, used as a startup probe.
type User struct {
	ID       string
	Username string
	Balance  int64
}
