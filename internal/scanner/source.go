package scanner

import (
	"context"
	"errors"
	"fmt"

	"skinarb/internal/domain"
)

// Marketplace is the slice of the API client the scanner consumes.
type Marketplace interface {
	MarketItems(ctx context.Context, seg domain.Segment, limit int) ([]domain.MarketSnapshot, error)
	LastSales(ctx context.Context, game, itemKey, title string) (domain.MarketSnapshot, error)
}

// Source produces the snapshot pairs for one segment within one scan cycle.
type Source interface {
	Pairs(ctx context.Context, seg domain.Segment) ([]domain.SnapshotPair, error)
}

// MarketSource builds pairs from live listings joined with trade history:
// the cheapest listing per title on the buy side, the sales-derived snapshot
// on the sell side. Both sides are fetched under the same segment context so
// a pair never mixes scan cycles.
type MarketSource struct {
	api      Marketplace
	maxItems int
}

// NewMarketSource creates a MarketSource that considers at most maxItems
// listings per segment.
func NewMarketSource(api Marketplace, maxItems int) *MarketSource {
	return &MarketSource{api: api, maxItems: maxItems}
}

// Pairs implements Source.
func (s *MarketSource) Pairs(ctx context.Context, seg domain.Segment) ([]domain.SnapshotPair, error) {
	items, err := s.api.MarketItems(ctx, seg, s.maxItems)
	if err != nil {
		return nil, fmt.Errorf("scanner: fetch listings %s: %w", seg.ID(), err)
	}

	// Listings arrive cheapest-first; keep only the best ask per title.
	seen := make(map[string]bool, len(items))
	pairs := make([]domain.SnapshotPair, 0, len(items))
	for _, buy := range items {
		if seen[buy.Title] {
			continue
		}
		seen[buy.Title] = true

		sell, err := s.api.LastSales(ctx, seg.Game, buy.ItemKey, buy.Title)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// No recorded sales means no sell side to price against.
				continue
			}
			return nil, fmt.Errorf("scanner: fetch sales %s: %w", seg.ID(), err)
		}

		pairs = append(pairs, domain.SnapshotPair{Buy: buy, Sell: sell})
	}
	return pairs, nil
}

// Compile-time interface check.
var _ Source = (*MarketSource)(nil)
