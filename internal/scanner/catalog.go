package scanner

import "skinarb/internal/domain"

// Catalog expands the configured games and tiers into the segment list, one
// segment per (game, tier) pair, all sharing the same optional price band.
func Catalog(games, tiers []string, priceFrom, priceTo int64) []domain.Segment {
	segments := make([]domain.Segment, 0, len(games)*len(tiers))
	for _, game := range games {
		for _, tier := range tiers {
			segments = append(segments, domain.Segment{
				Game:      game,
				Tier:      tier,
				PriceFrom: priceFrom,
				PriceTo:   priceTo,
			})
		}
	}
	return segments
}
